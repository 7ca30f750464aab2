package google

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/bestieapp/authlink/config"
)

// Endpoint paths served by this package. The callback paths must match the
// redirect URIs registered with the Google OAuth app.
const (
	LoginAuthorizePath       = "/oauth2/authorization/google"
	MobileLoginAuthorizePath = "/mobi/oauth2/authorization/google"
	LoginCallbackPath        = "/login/oauth2/code/google"
	IDTokenLoginPath         = "/oauth2/google/idtoken"

	CalendarAuthorizePath       = "/oauth2/google/calendar/authorize"
	CalendarMobileAuthorizePath = "/oauth2/google/calendar/authorize/mobile"
	CalendarCallbackPath        = "/oauth2/google/calendar/callback"
	CalendarStatusPath          = "/oauth2/google/calendar/status"
	CalendarUnlinkPath          = "/oauth2/google/calendar/unlink"
)

// DeriveBaseURL reconstructs the externally visible origin of a request,
// honoring reverse-proxy headers. The provider enforces byte-exact equality
// between the redirect URI submitted at authorization and at exchange, so
// both steps must derive it the same way.
func DeriveBaseURL(r *http.Request) string {
	proto := r.Header.Get("X-Forwarded-Proto")
	if proto == "" {
		if r.TLS != nil {
			proto = "https"
		} else {
			proto = "http"
		}
	}
	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = r.Host
	}
	return proto + "://" + host
}

// loginRedirectURI is the redirect URI for the identity login flow.
func loginRedirectURI(r *http.Request) string {
	return DeriveBaseURL(r) + LoginCallbackPath
}

// calendarRedirectURI is the redirect URI for the linking flow. A fixed
// configured URI wins over request derivation.
func calendarRedirectURI(r *http.Request) string {
	if fixed := config.String("google.calendarRedirectUri"); fixed != "" {
		return fixed
	}
	return DeriveBaseURL(r) + CalendarCallbackPath
}

// appendQuery attaches parameters to a base URL that may be a plain origin,
// a URL with an existing query, or a deep link ending in "?" or "&".
func appendQuery(base string, q url.Values) string {
	if len(q) == 0 {
		return base
	}
	sep := "?"
	if strings.Contains(base, "?") {
		if strings.HasSuffix(base, "?") || strings.HasSuffix(base, "&") {
			sep = ""
		} else {
			sep = "&"
		}
	}
	return base + sep + q.Encode()
}

// SanitizeError makes an error message safe to carry in a redirect query
// parameter: spaces become underscores and anything outside a conservative
// character set is dropped, so raw provider text cannot smuggle markup or
// sensitive payloads into the client URL.
func SanitizeError(msg string) string {
	msg = strings.ReplaceAll(msg, " ", "_")
	var b strings.Builder
	for _, r := range msg {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '_' || r == '-' || r == '.' || r == ':':
			b.WriteRune(r)
		}
	}
	out := b.String()
	if len(out) > 120 {
		out = out[:120]
	}
	if out == "" {
		out = "unknown_error"
	}
	return out
}
