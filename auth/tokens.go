package auth

import (
	"time"

	"github.com/bestieapp/authlink/config"
	"github.com/bestieapp/authlink/errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
)

// Leeway for JWT expiration checks.
const jwtLeeway = 5 * time.Second

const (
	useSession = "session"
	useRefresh = "refresh"
)

// Issuer creates and validates signed session tokens. Both issuer and
// audience are set to the configured address, indicating a token was created
// by this server and is only intended for this server.
type Issuer struct {
	signingKey        []byte
	address           string
	tokenExpiration   time.Duration
	refreshExpiration time.Duration

	// Stubbed in tests.
	timeFunc func() time.Time
}

// NewIssuer builds an Issuer from application config.
func NewIssuer() *Issuer {
	return &Issuer{
		signingKey:        []byte(config.String("auth.signingKey")),
		address:           config.String("server.address"),
		tokenExpiration:   config.Duration("auth.tokenExpiration"),
		refreshExpiration: config.Duration("auth.refreshExpiration"),
		timeFunc:          time.Now,
	}
}

// NewIssuerForTest builds an Issuer with explicit values, for tests.
func NewIssuerForTest(signingKey, address string, tokenExp, refreshExp time.Duration) *Issuer {
	return &Issuer{
		signingKey:        []byte(signingKey),
		address:           address,
		tokenExpiration:   tokenExp,
		refreshExpiration: refreshExp,
		timeFunc:          time.Now,
	}
}

// NewSessionID returns an id for the `jti` claim of a fresh login session.
func NewSessionID() string {
	return uuid.NewString()
}

// IdentityToken creates a signed session JWT for the given identity.
func (iss *Issuer) IdentityToken(identity Identity) (string, error) {
	return iss.sign(identity, useSession, iss.tokenExpiration)
}

// RefreshToken creates a signed long-lived token that can be swapped for a
// fresh session token.
func (iss *Issuer) RefreshToken(identity Identity) (string, error) {
	return iss.sign(identity, useRefresh, iss.refreshExpiration)
}

func (iss *Issuer) sign(identity Identity, use string, ttl time.Duration) (string, error) {
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        identity.SessionID,
			Subject:   identity.Subject,
			Audience:  jwt.ClaimStrings{iss.address},
			Issuer:    iss.address,
			IssuedAt:  jwt.NewNumericDate(iss.timeFunc()),
			ExpiresAt: jwt.NewNumericDate(iss.timeFunc().Add(ttl)),
		},
		Name:          identity.Name,
		Email:         identity.Email,
		EmailVerified: identity.EmailVerified,
		Provider:      identity.Provider,
		AuthTime:      jwt.NewNumericDate(identity.AuthTime),
		TokenUse:      use,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	ss, err := token.SignedString(iss.signingKey)
	if err != nil {
		return "", errors.Wrap(err, 0).WithCode(codes.Unauthenticated)
	}
	return ss, nil
}

// ParseIdentityToken takes a signed session JWT, validates it, and returns
// the identity encoded within. Invalid and expired tokens error.
func (iss *Issuer) ParseIdentityToken(tokenString string) (Identity, error) {
	return iss.parse(tokenString, useSession)
}

// ParseRefreshToken validates a refresh JWT. A session token is not accepted
// in its place.
func (iss *Issuer) ParseRefreshToken(tokenString string) (Identity, error) {
	return iss.parse(tokenString, useRefresh)
}

func (iss *Issuer) parse(tokenString, use string) (Identity, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&Claims{},
		func(token *jwt.Token) (interface{}, error) {
			return iss.signingKey, nil
		},
		jwt.WithIssuer(iss.address),
		jwt.WithAudience(iss.address),
		jwt.WithLeeway(jwtLeeway),
		jwt.WithTimeFunc(iss.timeFunc),
		jwt.WithIssuedAt(),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, errors.Mark(ErrExpired, 0)
		}
		return Identity{}, errors.Mark(ErrInvalidToken, 0).Append(err.Error())
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Identity{}, errors.Mark(ErrInvalidToken, 0).Append("invalid claims")
	}
	if err := claims.Validate(); err != nil {
		return Identity{}, err
	}
	if claims.TokenUse != use {
		return Identity{}, errors.Mark(ErrInvalidToken, 0).Append("wrong token use")
	}

	identity := Identity{
		Provider:      claims.Provider,
		SessionID:     claims.ID,
		Subject:       claims.Subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		Name:          claims.Name,
	}
	if claims.AuthTime != nil {
		identity.AuthTime = claims.AuthTime.Time
	}
	return identity, nil
}
