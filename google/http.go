package google

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/bestieapp/authlink/errors"
	"golang.org/x/oauth2"
)

// Signal cookies live exactly as long as a flow's state may be consumed.
const signalCookieTTL = 300

// setSignalCookie plants a flow-signal cookie. SameSite=None is required for
// the cookie to survive the cross-site redirect back from Google, and
// browsers only accept None with Secure; plain Lax is the fallback for local
// HTTP development.
func setSignalCookie(w http.ResponseWriter, r *http.Request, name string) {
	c := &http.Cookie{
		Name:   name,
		Value:  "true",
		Path:   "/",
		MaxAge: signalCookieTTL,
	}
	if isSecure(r) {
		c.Secure = true
		c.SameSite = http.SameSiteNoneMode
	} else {
		c.SameSite = http.SameSiteLaxMode
	}
	http.SetCookie(w, c)
}

// clearSignalCookie expires a consumed signal cookie.
func clearSignalCookie(w http.ResponseWriter, r *http.Request, name string) {
	c := &http.Cookie{
		Name:   name,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	}
	if isSecure(r) {
		c.Secure = true
		c.SameSite = http.SameSiteNoneMode
	} else {
		c.SameSite = http.SameSiteLaxMode
	}
	http.SetCookie(w, c)
}

func cookieTrue(r *http.Request, name string) bool {
	c, err := r.Cookie(name)
	return err == nil && truthy(c.Value)
}

func isSecure(r *http.Request) bool {
	return r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https"
}

// contextWithClient makes x/oauth2 use our bounded-timeout client for its
// outbound calls.
func contextWithClient(ctx context.Context, c *http.Client) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(errors.HTTPStatusCode(err))
	json.NewEncoder(w).Encode(map[string]string{"error": errors.PublicMessage(err)})
}
