// Package auth issues and validates the session tokens handed to clients
// after a completed login, and defines the identity types shared by the
// OAuth2 flows.
//
// Authentication itself is delegated to an identity provider; the provider
// verifies who the client is and this package turns the result into a signed
// JWT. Clients present the token on subsequent requests, either as a bearer
// header or, for mobile web views that cannot set headers, as a query
// parameter.
package auth

import (
	"context"
	"time"

	"github.com/bestieapp/authlink/errors"
	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc/codes"
)

var (
	// No identity was found for the request.
	ErrNotFound = errors.NewC("identity not found", codes.Unauthenticated)

	// The token's expiration date was in the past.
	ErrExpired = errors.NewC("token has expired", codes.Unauthenticated)

	// The token was not signed correctly or is structurally invalid.
	ErrInvalidToken = errors.NewC("token is invalid", codes.InvalidArgument)

	// No user exists for the subject carried by an otherwise valid token.
	ErrUnknownUser = errors.NewC("unknown user", codes.Unauthenticated)
)

// Identity describes an authenticated user as asserted by an identity
// provider.
type Identity struct {
	// Unique identifier for the session that authenticated the identity.
	// Maps to the `jti` JWT claim.
	SessionID string

	// The time at which the identity was authenticated. Maps to the
	// `auth_time` JWT claim. May differ from IssuedAt after a refresh.
	AuthTime time.Time

	// Application user id. Maps to the `sub` JWT claim.
	Subject string

	// Name of the identity provider used to authenticate the user. Maps to
	// the custom `idp` JWT claim.
	Provider string

	// The email address received from the identity provider, if available.
	Email string

	// Whether the identity provider has verified the email address.
	EmailVerified bool

	// Name received from the identity provider, if available.
	Name string
}

// Claims registered as part of an authlink session token.
type Claims struct {
	// Standard public JWT claims per https://www.iana.org/assignments/jwt/jwt.xhtml
	jwt.RegisteredClaims
	Name          string           `json:"name"`
	Email         string           `json:"email"`
	EmailVerified bool             `json:"email_verified"`
	AuthTime      *jwt.NumericDate `json:"auth_time,omitempty"`

	// Custom claims.
	Provider string `json:"idp"`
	TokenUse string `json:"token_use,omitempty"`
}

func (c *Claims) Validate() error {
	if c.Provider == "" {
		return errors.Mark(ErrInvalidToken, 0).Append("missing provider")
	}
	return nil
}

// UserDirectory resolves application user ids. The user repository itself
// lives outside this service; the flows only need these two lookups.
type UserDirectory interface {
	// LookupUserID resolves the application user id for a verified email.
	// Returns ErrNotFound if no user exists.
	LookupUserID(ctx context.Context, email string) (string, error)

	// Exists reports whether a user id is known.
	Exists(ctx context.Context, userID string) (bool, error)
}
