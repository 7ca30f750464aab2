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
	"golang.org/x/oauth2"
	"google.golang.org/api/idtoken"
	"google.golang.org/grpc/codes"
)

const authEndpoint = "https://accounts.google.com/o/oauth2/v2/auth"

// LoginDeps are the collaborators of the login flow.
type LoginDeps struct {
	OAuth       *oauth2.Config
	Issuer      *auth.Issuer
	Users       auth.UserDirectory
	Credentials *credential.Store
	Session     SessionStore
	Bus         *events.Bus
	Redirects   *events.RedirectLog
}

// LoginHandler serves the identity login flow: the initiation endpoints, the
// Google callback, and the client-side ID-token variant.
type LoginHandler struct {
	oauth      *oauth2.Config
	decorator  *Decorator
	signer     *stateSigner
	issuer     *auth.Issuer
	users      auth.UserDirectory
	creds      *credential.Store
	session    SessionStore
	bus        *events.Bus
	redirects  *events.RedirectLog
	httpClient *http.Client

	webURL    string
	mobileURL string
}

// NewLoginHandler wires the login flow from its dependencies and application
// config.
func NewLoginHandler(d LoginDeps) *LoginHandler {
	return &LoginHandler{
		oauth:      d.OAuth,
		decorator:  NewDecorator(d.Session),
		signer:     newStateSigner(d.OAuth.ClientSecret),
		issuer:     d.Issuer,
		users:      d.Users,
		creds:      d.Credentials,
		session:    d.Session,
		bus:        d.Bus,
		redirects:  d.Redirects,
		httpClient: newProviderClient(),
		webURL:     config.String("frontend.baseUrl"),
		mobileURL:  config.String("frontend.mobileUrl"),
	}
}

// HandleAuthorize initiates a login by redirecting the browser to Google.
// GET /oauth2/authorization/google
func (h *LoginHandler) HandleAuthorize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req := AuthRequest{
		State:  h.signer.New(r.URL.Query().Get("redirect_uri")),
		Scopes: strings.Fields(loginScopes),
		Params: url.Values{},
	}
	req = h.decorator.Decorate(req, r)

	q := url.Values{}
	q.Add("client_id", h.oauth.ClientID)
	q.Add("scope", strings.Join(req.Scopes, " "))
	q.Add("response_type", "code")
	q.Add("redirect_uri", loginRedirectURI(r))
	q.Add("state", req.State)
	for k, vs := range req.Params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	if q.Get("access_type") == "" {
		q.Add("access_type", "online")
		q.Add("prompt", "select_account")
	}

	target := authEndpoint + "?" + q.Encode()
	logging.Infow(ctx, "google: redirecting to provider", "flow", "login",
		"mobile", IsMobileTagged(req.State), "calendar", IsCalendarTagged(req.State))
	http.Redirect(w, r, target, http.StatusFound)
}

// HandleMobileAuthorize is the mobile initiation hop. It plants the mobile
// signal in a cookie and the session, then forwards to the regular authorize
// endpoint with the explicit mobile parameter. Three redundant channels
// because mobile web views are unreliable about returning each of them.
// GET /mobi/oauth2/authorization/google
func (h *LoginHandler) HandleMobileAuthorize(w http.ResponseWriter, r *http.Request) {
	setSignalCookie(w, r, MobileCookie)
	if h.session != nil {
		h.session.Set(w, r, MobileSessionAttr, "true")
	}

	q := r.URL.Query()
	q.Set("mobile", "true")
	if truthy(q.Get("calendar")) {
		setSignalCookie(w, r, CalendarCookie)
		if h.session != nil {
			h.session.Set(w, r, CalendarSessionAttr, "true")
		}
	}
	http.Redirect(w, r, LoginAuthorizePath+"?"+q.Encode(), http.StatusFound)
}

// HandleCallback completes a login after Google redirects back.
// GET /login/oauth2/code/google
func (h *LoginHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	rawState := q.Get("state")

	// Recover the flow signals before anything can fail, so even error
	// redirects land on the right surface. Explicit channels first, then
	// the User-Agent as a best-effort fallback.
	isMobile := h.sessionTrue(r, MobileSessionAttr) ||
		cookieTrue(r, MobileCookie) ||
		IsMobileTagged(rawState)
	if !isMobile {
		isMobile = IsMobileUserAgent(r.UserAgent())
	}
	isCalendar := h.sessionTrue(r, CalendarSessionAttr) ||
		cookieTrue(r, CalendarCookie) ||
		IsCalendarTagged(rawState)

	// Signals are single-use; leaking them into unrelated requests would
	// mistag future flows.
	h.clearSignals(w, r)

	if providerErr := q.Get("error"); providerErr != "" {
		h.failLogin(w, r, isMobile, errors.Mark(ErrProviderDenied, 0).Append(providerErr))
		return
	}

	_, err := h.signer.Parse(rawState)
	if err != nil {
		h.failLogin(w, r, isMobile, err)
		return
	}
	code := q.Get("code")
	if code == "" {
		h.failLogin(w, r, isMobile, errors.Mark(ErrMissingCode, 0))
		return
	}

	conf := *h.oauth
	conf.RedirectURL = loginRedirectURI(r)
	conf.Scopes = strings.Fields(loginScopes)

	ctx = contextWithClient(ctx, h.httpClient)
	token, err := conf.Exchange(ctx, code)
	if err != nil {
		h.failLogin(w, r, isMobile, errors.Mark(ErrProviderExchange, 0).Append(err.Error()))
		return
	}

	userInfo, err := h.fetchUserInfo(ctx, &conf, token)
	if err != nil {
		h.failLogin(w, r, isMobile, err)
		return
	}
	if userInfo.Email == "" {
		h.failLogin(w, r, isMobile, errors.Mark(ErrMissingIdentity, 0))
		return
	}

	userID, err := h.users.LookupUserID(ctx, userInfo.Email)
	if err != nil {
		h.failLogin(w, r, isMobile, errors.Wrap(err, 0).Append("google: no user for login email"))
		return
	}

	identity := auth.Identity{
		Provider:      ProviderName,
		SessionID:     auth.NewSessionID(),
		AuthTime:      time.Now(),
		Subject:       userID,
		Name:          userInfo.Name,
		Email:         userInfo.Email,
		EmailVerified: userInfo.IsConfirmed(),
	}
	idt, err := h.issuer.IdentityToken(identity)
	if err != nil {
		h.failLogin(w, r, isMobile, err)
		return
	}
	rft, err := h.issuer.RefreshToken(identity)
	if err != nil {
		h.failLogin(w, r, isMobile, err)
		return
	}

	// The login exchange sometimes returns calendar access too, when the
	// decorator unioned the scope in. Persisting it is best-effort: login
	// success is the primary contract and linking is secondary, so failures
	// here are logged and swallowed.
	h.saveOpportunisticCredential(ctx, userID, token, userInfo.Email)

	h.publish(events.LoginSucceeded, events.Activity{
		UserID: userID, Email: userInfo.Email, Provider: ProviderName,
		IsMobile: isMobile, Time: time.Now(),
	})
	logging.Infow(ctx, "google: login complete", "user", userID,
		"mobile", isMobile, "calendar", isCalendar)

	target := h.loginTarget(isMobile, isCalendar, idt, rft)
	h.recordRedirect(target, true, "")
	http.Redirect(w, r, target, http.StatusFound)
}

// HandleIDTokenLogin validates a Google ID token obtained client-side and
// issues session tokens as JSON. Used by native clients that run the Google
// SDK themselves instead of the server-side redirect flow.
// POST /oauth2/google/idtoken
func (h *LoginHandler) HandleIDTokenLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	raw := r.FormValue("idtoken")
	if raw == "" {
		httpError(w, errors.NewC("google: idtoken is required", codes.InvalidArgument))
		return
	}
	payload, err := idtoken.Validate(ctx, raw, h.oauth.ClientID)
	if err != nil {
		httpError(w, errors.Mark(ErrMissingIdentity, 0).Append(err.Error()))
		return
	}
	userInfo, err := UserInfoFromClaims(payload.Claims)
	if err != nil {
		httpError(w, err)
		return
	}

	userID, err := h.users.LookupUserID(ctx, userInfo.Email)
	if err != nil {
		httpError(w, errors.Wrap(err, 0).WithCode(codes.Unauthenticated))
		return
	}

	identity := auth.Identity{
		Provider:      ProviderName,
		SessionID:     auth.NewSessionID(),
		AuthTime:      time.Now(),
		Subject:       userID,
		Name:          userInfo.Name,
		Email:         userInfo.Email,
		EmailVerified: userInfo.IsConfirmed(),
	}
	idt, err := h.issuer.IdentityToken(identity)
	if err != nil {
		httpError(w, err)
		return
	}
	rft, err := h.issuer.RefreshToken(identity)
	if err != nil {
		httpError(w, err)
		return
	}

	h.publish(events.LoginSucceeded, events.Activity{
		UserID: userID, Email: userInfo.Email, Provider: ProviderName, Time: time.Now(),
	})
	writeJSON(w, map[string]string{"token": idt, "refreshToken": rft})
}

func (h *LoginHandler) fetchUserInfo(ctx context.Context, conf *oauth2.Config, token *oauth2.Token) (*UserInfo, error) {
	client := conf.Client(ctx, token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, userInfoEndpoint, nil)
	if err != nil {
		return nil, errors.Wrap(err, 0)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Mark(ErrProviderExchange, 0).Append(err.Error())
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Codef(codes.Internal, "google: userinfo returned status %d", resp.StatusCode)
	}
	return UserInfoFromJSON(resp.Body)
}

// saveOpportunisticCredential persists provider tokens returned by the login
// exchange when they include calendar access or a refresh token.
func (h *LoginHandler) saveOpportunisticCredential(ctx context.Context, userID string, token *oauth2.Token, email string) {
	if h.creds == nil {
		return
	}
	scope, _ := token.Extra("scope").(string)
	if token.RefreshToken == "" && !strings.Contains(scope, "calendar") {
		return
	}
	if _, err := h.creds.Save(ctx, userID, token, scope, email); err != nil {
		logging.Warnw(ctx, "google: opportunistic credential save failed",
			"user", userID, "error", err.Error())
	}
}

// failLogin logs the failed attempt best-effort and redirects to an error
// page with a sanitized message.
func (h *LoginHandler) failLogin(w http.ResponseWriter, r *http.Request, isMobile bool, err error) {
	ctx := r.Context()
	logging.Warnw(ctx, "google: login failed", "mobile", isMobile, "error", err.Error())

	h.publish(events.LoginFailed, events.Activity{
		Provider: ProviderName, IsMobile: isMobile,
		Error: err.Error(), Time: time.Now(),
	})

	msg := SanitizeError(errors.PublicMessage(err))
	var target string
	if isMobile {
		target = appendQuery(h.mobileURL, url.Values{"error": {msg}})
	} else {
		target = appendQuery(h.webURL+"/login/error", url.Values{"error": {msg}})
	}
	h.recordRedirect(target, false, msg)
	http.Redirect(w, r, target, http.StatusFound)
}

// loginTarget picks the post-login destination. Mobile flows land on a deep
// link; mobile calendar flows land on the calendar-specific one so the app
// can jump straight to the linked view.
func (h *LoginHandler) loginTarget(isMobile, isCalendar bool, idt, rft string) string {
	params := url.Values{"token": {idt}, "refreshToken": {rft}}
	if isMobile {
		base := h.mobileURL
		if isCalendar {
			if cal := config.String("frontend.mobileCalendarUrl"); cal != "" {
				base = cal
			}
		}
		return appendQuery(base, params)
	}
	return appendQuery(h.webURL+"/login/success", params)
}

func (h *LoginHandler) clearSignals(w http.ResponseWriter, r *http.Request) {
	clearSignalCookie(w, r, MobileCookie)
	clearSignalCookie(w, r, CalendarCookie)
	if h.session != nil {
		h.session.Clear(w, r, MobileSessionAttr)
		h.session.Clear(w, r, CalendarSessionAttr)
	}
}

func (h *LoginHandler) sessionTrue(r *http.Request, key string) bool {
	return h.session != nil && truthy(h.session.Get(r, key))
}

func (h *LoginHandler) publish(topic string, a events.Activity) {
	if h.bus != nil {
		h.bus.Publish(topic, a)
	}
}

func (h *LoginHandler) recordRedirect(target string, success bool, msg string) {
	if h.redirects != nil {
		h.redirects.Record(events.Redirect{
			Time: time.Now(), Flow: "login", Target: target,
			Success: success, Error: msg,
		})
	}
}
