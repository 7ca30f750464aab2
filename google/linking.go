package google

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bestieapp/authlink/auth"
	"github.com/bestieapp/authlink/config"
	"github.com/bestieapp/authlink/credential"
	"github.com/bestieapp/authlink/errors"
	"github.com/bestieapp/authlink/events"
	"github.com/bestieapp/authlink/logging"
	"github.com/bestieapp/authlink/oauthstate"
	"golang.org/x/oauth2"
)

// Scopes requested by the linking flow: calendar access plus email so the
// credential can record which Google account was linked. That account may
// differ from the login email.
var linkingScopes = []string{
	calendarScope,
	"https://www.googleapis.com/auth/userinfo.email",
}

// LinkingDeps are the collaborators of the calendar linking flow.
type LinkingDeps struct {
	OAuth       *oauth2.Config
	States      *oauthstate.Store
	Credentials *credential.Store
	Issuer      *auth.Issuer
	Users       auth.UserDirectory
	Bus         *events.Bus
	Redirects   *events.RedirectLog
}

// LinkingController orchestrates the explicit "link calendar" flow. It is
// independent of the login flow's client machinery: it issues its own
// provider redirect and performs its own code-for-token exchange, because it
// requests a narrower scope set and must guarantee a refresh token via
// access_type=offline&prompt=consent.
type LinkingController struct {
	oauth      *oauth2.Config
	states     *oauthstate.Store
	creds      *credential.Store
	issuer     *auth.Issuer
	users      auth.UserDirectory
	bus        *events.Bus
	redirects  *events.RedirectLog
	httpClient *http.Client

	webURL       string
	mobileCalURL string
}

// NewLinkingController wires the linking flow from its dependencies and
// application config.
func NewLinkingController(d LinkingDeps) *LinkingController {
	mobileCal := config.String("frontend.mobileCalendarUrl")
	if mobileCal == "" {
		mobileCal = config.String("frontend.mobileUrl")
	}
	return &LinkingController{
		oauth:        d.OAuth,
		states:       d.States,
		creds:        d.Credentials,
		issuer:       d.Issuer,
		users:        d.Users,
		bus:          d.Bus,
		redirects:    d.Redirects,
		httpClient:   newProviderClient(),
		webURL:       config.String("frontend.baseUrl"),
		mobileCalURL: mobileCal,
	}
}

// HandleAuthorize starts a linking flow for an authenticated web client.
// GET /oauth2/google/calendar/authorize
func (c *LinkingController) HandleAuthorize(w http.ResponseWriter, r *http.Request) {
	identity, err := c.bearerIdentity(r)
	if err != nil {
		httpError(w, err)
		return
	}
	isMobile := truthy(r.URL.Query().Get("mobile")) || IsMobileUserAgent(r.UserAgent())
	c.startAuthorize(w, r, identity.Subject, isMobile)
}

// HandleMobileAuthorize starts a linking flow for a mobile web view, which
// cannot attach an Authorization header when simply opening a URL, so the
// session token arrives as a query parameter instead. Some clients
// double-encode it.
// GET /oauth2/google/calendar/authorize/mobile?token=...
func (c *LinkingController) HandleMobileAuthorize(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("token")
	if strings.Contains(raw, "%") {
		if decoded, err := url.QueryUnescape(raw); err == nil {
			raw = decoded
		}
	}

	identity, err := c.issuer.ParseIdentityToken(raw)
	if err != nil {
		c.failAuth(w, r, err)
		return
	}
	ok, err := c.users.Exists(r.Context(), identity.Subject)
	if err != nil || !ok {
		c.failAuth(w, r, errors.Mark(auth.ErrUnknownUser, 0))
		return
	}
	c.startAuthorize(w, r, identity.Subject, true)
}

// startAuthorize registers server-side state and redirects to Google. The
// state token carries the user id across what may be a cross-device
// callback, so the callback never trusts the session it arrives on.
func (c *LinkingController) startAuthorize(w http.ResponseWriter, r *http.Request, userID string, isMobile bool) {
	state := oauthstate.NewToken()
	c.states.Save(state, userID, isMobile)

	q := url.Values{}
	q.Add("client_id", c.oauth.ClientID)
	q.Add("scope", strings.Join(linkingScopes, " "))
	q.Add("response_type", "code")
	q.Add("redirect_uri", calendarRedirectURI(r))
	q.Add("state", state)
	q.Add("access_type", "offline")
	q.Add("prompt", "consent")

	logging.Infow(r.Context(), "google: starting calendar link", "user", userID, "mobile", isMobile)
	http.Redirect(w, r, authEndpoint+"?"+q.Encode(), http.StatusFound)
}

// HandleCallback completes a linking flow.
// GET /oauth2/google/calendar/callback
func (c *LinkingController) HandleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	rawState := q.Get("state")

	// The user declined consent. Resolve mobile best-effort from the state
	// so the failure lands on the right surface; no exchange is attempted.
	if providerErr := q.Get("error"); providerErr != "" {
		isMobile := false
		if entry, ok := c.states.GetAndRemove(rawState); ok {
			isMobile = entry.IsMobile
		}
		c.failLink(w, r, "", isMobile, errors.Mark(ErrProviderDenied, 0).Append(providerErr))
		return
	}

	// The consuming read is the sole authority on state validity. An empty
	// result means replay, forgery, or timeout; the state is already gone so
	// there is nothing further to leak.
	entry, ok := c.states.GetAndRemove(rawState)
	if rawState == "" || !ok {
		c.failLink(w, r, "", false, errors.Mark(ErrInvalidOrExpiredState, 0))
		return
	}

	code := q.Get("code")
	if code == "" {
		c.failLink(w, r, entry.UserID, entry.IsMobile, errors.Mark(ErrMissingCode, 0))
		return
	}

	// The provider validates the redirect URI byte-exactly against the one
	// submitted at authorization, so it must be derived the same way here.
	conf := *c.oauth
	conf.RedirectURL = calendarRedirectURI(r)
	conf.Scopes = linkingScopes

	ctx = contextWithClient(ctx, c.httpClient)
	token, err := conf.Exchange(ctx, code)
	if err != nil {
		c.failLink(w, r, entry.UserID, entry.IsMobile,
			errors.Mark(ErrProviderExchange, 0).Append(err.Error()))
		return
	}

	scope, _ := token.Extra("scope").(string)
	if !strings.Contains(scope, "calendar") {
		err := errors.Mark(credential.ErrInsufficientScope, 0).
			WithPublicMessage("Google did not grant calendar access, please retry and allow permissions")
		c.failLink(w, r, entry.UserID, entry.IsMobile, err)
		return
	}

	if token.RefreshToken == "" {
		// Degraded but not fatal: the access token remains usable until it
		// expires, after which the user must re-consent.
		logging.Warnw(ctx, "google: calendar linked without refresh token", "user", entry.UserID)
	}

	linkedEmail := c.fetchLinkedEmail(ctx, &conf, token)

	if _, err := c.creds.Save(ctx, entry.UserID, token, scope, linkedEmail); err != nil {
		c.failLink(w, r, entry.UserID, entry.IsMobile, err)
		return
	}

	c.publish(events.CalendarLinked, events.Activity{
		UserID: entry.UserID, Email: linkedEmail, Provider: ProviderName,
		IsMobile: entry.IsMobile, Time: time.Now(),
	})
	logging.Infow(ctx, "google: calendar linked", "user", entry.UserID,
		"mobile", entry.IsMobile, "linkedEmail", linkedEmail,
		"hasRefreshToken", token.RefreshToken != "")

	target := c.linkTarget(entry.IsMobile, url.Values{"linked": {"true"}})
	c.recordRedirect(target, true, "")
	http.Redirect(w, r, target, http.StatusFound)
}

// HandleStatus reports whether and how well the user's calendar is linked.
// GET /oauth2/google/calendar/status
func (c *LinkingController) HandleStatus(w http.ResponseWriter, r *http.Request) {
	identity, err := c.bearerIdentity(r)
	if err != nil {
		httpError(w, err)
		return
	}

	cred, ok, err := c.creds.Find(r.Context(), identity.Subject)
	if err != nil {
		httpError(w, err)
		return
	}
	if !ok {
		writeJSON(w, map[string]any{"linked": false})
		return
	}

	// Refresh near-expiry credentials so the report reflects a live link,
	// not one about to lapse. On refresh failure the stale values are shown.
	cred = c.creds.RefreshIfNeeded(r.Context(), cred)

	resp := map[string]any{
		"linked":           true,
		"scopes":           cred.Scopes,
		"hasCalendarScope": cred.HasCalendarScope(),
		"hasRefreshToken":  cred.HasRefreshToken(),
		"linkedEmail":      cred.LinkedEmail,
	}
	if cred.ExpiresAt != nil {
		resp["expiresAt"] = cred.ExpiresAt.Format(time.RFC3339)
	}
	var warnings []string
	if !cred.HasCalendarScope() {
		warnings = append(warnings, "credential lacks calendar scope, relink required")
	}
	if !cred.HasRefreshToken() {
		warnings = append(warnings, "no refresh token, access will lapse when the current token expires")
	}

	// verify=true asks Google whether the access token still carries the
	// calendar grant, catching revocations the stored scopes can't see.
	if truthy(r.URL.Query().Get("verify")) {
		switch err := c.creds.ValidateScope(r.Context(), cred.AccessToken); {
		case err == nil:
			resp["verified"] = true
		case errors.Is(err, credential.ErrInsufficientScope):
			resp["verified"] = false
			warnings = append(warnings, "provider no longer grants calendar scope, relink required")
		default:
			resp["verified"] = false
			warnings = append(warnings, "access token could not be verified with the provider")
		}
	}

	if len(warnings) > 0 {
		resp["warnings"] = warnings
	}
	writeJSON(w, resp)
}

// HandleUnlink removes the user's calendar credential. Idempotent.
// GET /oauth2/google/calendar/unlink
func (c *LinkingController) HandleUnlink(w http.ResponseWriter, r *http.Request) {
	identity, err := c.bearerIdentity(r)
	if err != nil {
		httpError(w, err)
		return
	}
	if err := c.creds.Delete(r.Context(), identity.Subject); err != nil {
		httpError(w, err)
		return
	}
	c.publish(events.CalendarUnlinked, events.Activity{
		UserID: identity.Subject, Provider: ProviderName, Time: time.Now(),
	})
	writeJSON(w, map[string]any{"linked": false})
}

// fetchLinkedEmail resolves which Google account granted the calendar.
// Best-effort: a failure leaves the field empty, it never aborts the link.
func (c *LinkingController) fetchLinkedEmail(ctx context.Context, conf *oauth2.Config, token *oauth2.Token) string {
	client := conf.Client(ctx, token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, userInfoEndpoint, nil)
	if err != nil {
		return ""
	}
	resp, err := client.Do(req)
	if err != nil {
		logging.Warnw(ctx, "google: linked email lookup failed", "error", err.Error())
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ""
	}
	info, err := UserInfoFromJSON(resp.Body)
	if err != nil {
		return ""
	}
	return info.Email
}

func (c *LinkingController) bearerIdentity(r *http.Request) (auth.Identity, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return auth.Identity{}, errors.Mark(auth.ErrNotFound, 0)
	}
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found {
		return auth.Identity{}, errors.Mark(auth.ErrInvalidToken, 0).Append("bad authorization header")
	}
	return c.issuer.ParseIdentityToken(token)
}

// failAuth redirects a mobile client whose session token failed validation
// to a deep link with a user-actionable message.
func (c *LinkingController) failAuth(w http.ResponseWriter, r *http.Request, err error) {
	logging.Warnw(r.Context(), "google: calendar authorize rejected", "error", err.Error())
	target := appendQuery(c.mobileCalURL, url.Values{
		"linked": {"false"},
		"error":  {"please_login_again"},
	})
	c.recordRedirect(target, false, "please_login_again")
	http.Redirect(w, r, target, http.StatusFound)
}

// failLink logs the failed attempt best-effort and redirects with a
// sanitized error.
func (c *LinkingController) failLink(w http.ResponseWriter, r *http.Request, userID string, isMobile bool, err error) {
	logging.Warnw(r.Context(), "google: calendar link failed",
		"user", userID, "mobile", isMobile, "error", err.Error())

	c.publish(events.CalendarLinkFailed, events.Activity{
		UserID: userID, Provider: ProviderName, IsMobile: isMobile,
		Error: err.Error(), Time: time.Now(),
	})

	msg := SanitizeError(errors.PublicMessage(err))
	target := c.linkTarget(isMobile, url.Values{"linked": {"false"}, "error": {msg}})
	c.recordRedirect(target, false, msg)
	http.Redirect(w, r, target, http.StatusFound)
}

func (c *LinkingController) linkTarget(isMobile bool, params url.Values) string {
	if isMobile {
		return appendQuery(c.mobileCalURL, params)
	}
	return appendQuery(c.webURL+"/settings/calendar", params)
}

func (c *LinkingController) publish(topic string, a events.Activity) {
	if c.bus != nil {
		c.bus.Publish(topic, a)
	}
}

func (c *LinkingController) recordRedirect(target string, success bool, msg string) {
	if c.redirects != nil {
		c.redirects.Record(events.Redirect{
			Time: time.Now(), Flow: "calendar", Target: target,
			Success: success, Error: msg,
		})
	}
}
