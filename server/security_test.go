package server

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecurityHeaders_Static(t *testing.T) {
	s := &SecurityHeaders{XFramesOptions: XFramesOptionsDeny}
	rr := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "http://app.example.com/", nil)

	require.NoError(t, s.Apply(rr, r))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", rr.Header().Get("Referrer-Policy"))
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestSecurityHeaders_HSTS(t *testing.T) {
	s := &SecurityHeaders{
		HSTSExpiration:        2 * 365 * 24 * time.Hour,
		HSTSIncludeSubdomains: true,
		HSTSPreload:           true,
	}
	rr := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "http://app.example.com/", nil)

	require.NoError(t, s.Apply(rr, r))
	assert.Equal(t, "max-age=63072000; includeSubDomains; preload",
		rr.Header().Get("Strict-Transport-Security"))
}

func TestSecurityHeaders_HSTSPreloadTooShort(t *testing.T) {
	s := &SecurityHeaders{
		HSTSExpiration: time.Hour,
		HSTSPreload:    true,
	}
	rr := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "http://app.example.com/", nil)
	assert.ErrorIs(t, s.Apply(rr, r), ErrBadHSTSExpiration)
}

func TestSecurityHeaders_CORS(t *testing.T) {
	s := &SecurityHeaders{
		CORSOrigins:          []string{"https://app.bestie.test"},
		CORSAllowCredentials: true,
	}

	t.Run("allowed origin", func(t *testing.T) {
		rr := httptest.NewRecorder()
		r := httptest.NewRequest("GET", "http://api.example.com/status", nil)
		r.Header.Set("Origin", "https://app.bestie.test")

		require.NoError(t, s.Apply(rr, r))
		assert.Equal(t, "https://app.bestie.test", rr.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", rr.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("preflight", func(t *testing.T) {
		rr := httptest.NewRecorder()
		r := httptest.NewRequest("OPTIONS", "http://api.example.com/status", nil)
		r.Header.Set("Origin", "https://app.bestie.test")

		require.NoError(t, s.Apply(rr, r))
		assert.Equal(t, "https://app.bestie.test", rr.Header().Get("Access-Control-Allow-Origin"))
		assert.NotEmpty(t, rr.Header().Get("Access-Control-Allow-Methods"))
	})

	t.Run("disallowed origin", func(t *testing.T) {
		rr := httptest.NewRecorder()
		r := httptest.NewRequest("GET", "http://api.example.com/status", nil)
		r.Header.Set("Origin", "https://evil.example.com")

		require.NoError(t, s.Apply(rr, r))
		assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
	})
}
