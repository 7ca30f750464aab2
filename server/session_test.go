package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSessionStore(t *testing.T) *SessionStore {
	t.Helper()
	s := NewSessionStore()
	t.Cleanup(s.Close)
	return s
}

func TestSessionStore_RoundTrip(t *testing.T) {
	s := newTestSessionStore(t)

	r1 := httptest.NewRequest("GET", "http://app.example.com/a", nil)
	rr := httptest.NewRecorder()
	s.Set(rr, r1, "oauth2_mobile", "true")

	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, sessionCookie, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	// A later request carrying the cookie sees the attribute.
	r2 := httptest.NewRequest("GET", "http://app.example.com/b", nil)
	r2.AddCookie(cookies[0])
	assert.Equal(t, "true", s.Get(r2, "oauth2_mobile"))
	assert.Empty(t, s.Get(r2, "oauth2_calendar"))
}

func TestSessionStore_SecondSetReusesSession(t *testing.T) {
	s := newTestSessionStore(t)

	r := httptest.NewRequest("GET", "http://app.example.com/a", nil)
	rr := httptest.NewRecorder()
	s.Set(rr, r, "a", "1")
	s.Set(rr, r, "b", "2")

	require.Len(t, rr.Result().Cookies(), 1, "one session for both writes")

	r2 := httptest.NewRequest("GET", "http://app.example.com/b", nil)
	r2.AddCookie(rr.Result().Cookies()[0])
	assert.Equal(t, "1", s.Get(r2, "a"))
	assert.Equal(t, "2", s.Get(r2, "b"))
}

func TestSessionStore_Clear(t *testing.T) {
	s := newTestSessionStore(t)

	r := httptest.NewRequest("GET", "http://app.example.com/a", nil)
	rr := httptest.NewRecorder()
	s.Set(rr, r, "a", "1")

	r2 := httptest.NewRequest("GET", "http://app.example.com/b", nil)
	r2.AddCookie(rr.Result().Cookies()[0])
	s.Clear(httptest.NewRecorder(), r2, "a")
	assert.Empty(t, s.Get(r2, "a"))

	// Clearing without a session is a no-op.
	s.Clear(httptest.NewRecorder(), httptest.NewRequest("GET", "http://app.example.com/c", nil), "a")
}

func TestSessionStore_NoCookieNoSession(t *testing.T) {
	s := newTestSessionStore(t)
	r := httptest.NewRequest("GET", "http://app.example.com/a", nil)
	assert.Empty(t, s.Get(r, "anything"))
}

func TestSessionStore_Expiry(t *testing.T) {
	s := newTestSessionStore(t)
	now := time.Now()
	s.now = func() time.Time { return now }

	r := httptest.NewRequest("GET", "http://app.example.com/a", nil)
	rr := httptest.NewRecorder()
	s.Set(rr, r, "a", "1")

	r2 := httptest.NewRequest("GET", "http://app.example.com/b", nil)
	r2.AddCookie(rr.Result().Cookies()[0])
	assert.Equal(t, "1", s.Get(r2, "a"))

	now = now.Add(sessionTTL + time.Second)
	assert.Empty(t, s.Get(r2, "a"))

	s.sweep()
	s.mu.Lock()
	assert.Empty(t, s.sessions)
	s.mu.Unlock()
}

func TestSessionStore_SecureCookieOverTLS(t *testing.T) {
	s := newTestSessionStore(t)

	r := httptest.NewRequest("GET", "http://app.example.com/a", nil)
	r.Header.Set("X-Forwarded-Proto", "https")
	rr := httptest.NewRecorder()
	s.Set(rr, r, "a", "1")

	c := rr.Result().Cookies()[0]
	assert.True(t, c.Secure)
	assert.Equal(t, http.SameSiteNoneMode, c.SameSite)
}
