package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testIssuer() *Issuer {
	return NewIssuerForTest("test-key", "localhost:8000", time.Hour, 30*24*time.Hour)
}

func testIdentity() Identity {
	return Identity{
		SessionID:     NewSessionID(),
		AuthTime:      time.Now().Truncate(time.Second),
		Subject:       "user-123",
		Provider:      "google",
		Email:         "pat@example.com",
		EmailVerified: true,
		Name:          "Pat Example",
	}
}

func TestIdentityTokenRoundTrip(t *testing.T) {
	iss := testIssuer()
	id := testIdentity()

	tokenString, err := iss.IdentityToken(id)
	require.NoError(t, err)
	require.NotEmpty(t, tokenString)

	parsed, err := iss.ParseIdentityToken(tokenString)
	require.NoError(t, err)
	assert.True(t, parsed.AuthTime.Equal(id.AuthTime), "auth_time should survive the round trip")

	parsed.AuthTime = id.AuthTime
	assert.Equal(t, id, parsed)
}

func TestRefreshTokenRoundTrip(t *testing.T) {
	iss := testIssuer()
	id := testIdentity()

	tokenString, err := iss.RefreshToken(id)
	require.NoError(t, err)

	parsed, err := iss.ParseRefreshToken(tokenString)
	require.NoError(t, err)
	assert.Equal(t, id.Subject, parsed.Subject)
}

func TestTokenUseNotInterchangeable(t *testing.T) {
	iss := testIssuer()
	id := testIdentity()

	session, err := iss.IdentityToken(id)
	require.NoError(t, err)
	refresh, err := iss.RefreshToken(id)
	require.NoError(t, err)

	_, err = iss.ParseRefreshToken(session)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = iss.ParseIdentityToken(refresh)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestExpiredToken(t *testing.T) {
	iss := testIssuer()
	iss.timeFunc = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	tokenString, err := iss.IdentityToken(testIdentity())
	require.NoError(t, err)

	iss.timeFunc = time.Now
	_, err = iss.ParseIdentityToken(tokenString)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestWrongSigningKey(t *testing.T) {
	iss := testIssuer()
	tokenString, err := iss.IdentityToken(testIdentity())
	require.NoError(t, err)

	other := NewIssuerForTest("different-key", "localhost:8000", time.Hour, time.Hour)
	_, err = other.ParseIdentityToken(tokenString)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestWrongAudience(t *testing.T) {
	iss := testIssuer()
	tokenString, err := iss.IdentityToken(testIdentity())
	require.NoError(t, err)

	other := NewIssuerForTest("test-key", "other.example.com", time.Hour, time.Hour)
	_, err = other.ParseIdentityToken(tokenString)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestGarbageToken(t *testing.T) {
	iss := testIssuer()
	_, err := iss.ParseIdentityToken("not.a.jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestMissingProviderClaim(t *testing.T) {
	iss := testIssuer()
	id := testIdentity()
	id.Provider = ""
	tokenString, err := iss.IdentityToken(id)
	require.NoError(t, err)

	_, err = iss.ParseIdentityToken(tokenString)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
