// Package google implements both Google OAuth2 flows the application runs:
//
// Identity login: the browser is sent to Google with openid/email/profile
// scopes, the callback verifies who the user is, and the client receives a
// signed session token. The AuthorizationRequestDecorator tags outgoing
// login requests so the callback knows whether the flow started on a mobile
// client and whether calendar access was piggybacked onto the login.
//
// Calendar linking: a second, explicit flow with its own state registry and
// its own code-for-token exchange. It requests only the calendar scope and
// forces access_type=offline&prompt=consent so a refresh token is guaranteed,
// then persists the resulting credential.
//
// The two flows deliberately share nothing but the credential store: login
// state is a self-contained HMAC-signed blob (no server memory needed),
// while linking state is a server-side single-use token that carries the
// user id across what may be a cross-device callback.
package google

import (
	"net/http"
	"time"

	"github.com/bestieapp/authlink/config"
	"github.com/bestieapp/authlink/errors"
	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	"google.golang.org/grpc/codes"
)

// ProviderName is used as the provider key on credentials and identities.
const ProviderName = "google"

var (
	// The state at a callback was absent, already consumed, or expired: a
	// replay, forgery, or timeout. No token exchange is attempted.
	ErrInvalidOrExpiredState = errors.NewC("invalid or expired oauth state", codes.PermissionDenied)

	// The user declined consent at Google.
	ErrProviderDenied = errors.NewC("provider denied access", codes.PermissionDenied)

	// The callback arrived without an authorization code.
	ErrMissingCode = errors.NewC("callback missing authorization code", codes.InvalidArgument)

	// The code-for-token exchange failed at the provider.
	ErrProviderExchange = errors.NewC("provider token exchange failed", codes.Unavailable)

	// The completed identity assertion lacked the required email attribute.
	ErrMissingIdentity = errors.NewC("identity missing email attribute", codes.Unauthenticated)
)

const (
	// Scopes requested by the identity login flow.
	loginScopes = "openid email profile"

	// Scope requested by the calendar linking flow.
	calendarScope = "https://www.googleapis.com/auth/calendar"
)

// Timeout applied to every outbound provider call.
const providerTimeout = 10 * time.Second

func newProviderClient() *http.Client {
	return &http.Client{Timeout: providerTimeout}
}

// OAuthConfig builds the x/oauth2 client config from application config. The
// redirect URL is set per request by the flows, since it may be derived from
// forwarded headers.
func OAuthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     config.String("google.clientId"),
		ClientSecret: config.String("google.clientSecret"),
		Endpoint:     googleoauth.Endpoint,
	}
}
