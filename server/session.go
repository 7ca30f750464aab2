package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// Cookie carrying the session id.
	sessionCookie = "al_sid"

	sessionTTL   = 30 * time.Minute
	sessionSweep = time.Minute
)

type sessionEntry struct {
	attrs     map[string]string
	expiresAt time.Time
}

// SessionStore keeps per-browser attributes server-side, keyed by a random
// session id in a cookie. It backs the redundant flow signals: attributes
// survive the provider round trip even when mobile web views drop the signal
// cookies themselves.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*sessionEntry
	done     chan struct{}
	once     sync.Once
	now      func() time.Time
}

// NewSessionStore creates a session store and starts its expiry sweeper.
func NewSessionStore() *SessionStore {
	s := &SessionStore{
		sessions: map[string]*sessionEntry{},
		done:     make(chan struct{}),
		now:      time.Now,
	}
	go s.sweepLoop()
	return s
}

// Close stops the sweeper.
func (s *SessionStore) Close() {
	s.once.Do(func() { close(s.done) })
}

// Get returns a session attribute, or "" when no session or attribute
// exists.
func (s *SessionStore) Get(r *http.Request, key string) string {
	c, err := r.Cookie(sessionCookie)
	if err != nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[c.Value]
	if !ok || e.expiresAt.Before(s.now()) {
		return ""
	}
	return e.attrs[key]
}

// Set stores a session attribute, creating the session and its cookie on
// first use. The cookie is also added to the request so later writes within
// the same request reuse the new session.
func (s *SessionStore) Set(w http.ResponseWriter, r *http.Request, key, value string) {
	sid := s.sessionID(w, r)

	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[sid]
	if !ok || e.expiresAt.Before(s.now()) {
		e = &sessionEntry{attrs: map[string]string{}}
		s.sessions[sid] = e
	}
	e.attrs[key] = value
	e.expiresAt = s.now().Add(sessionTTL)
}

// Clear removes a session attribute. Clearing an absent attribute is a
// no-op.
func (s *SessionStore) Clear(w http.ResponseWriter, r *http.Request, key string) {
	c, err := r.Cookie(sessionCookie)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.sessions[c.Value]; ok {
		delete(e.attrs, key)
	}
}

func (s *SessionStore) sessionID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(sessionCookie); err == nil {
		return c.Value
	}
	c := &http.Cookie{
		Name:     sessionCookie,
		Value:    uuid.NewString(),
		Path:     "/",
		HttpOnly: true,
		MaxAge:   int(sessionTTL.Seconds()),
	}
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		c.Secure = true
		c.SameSite = http.SameSiteNoneMode
	} else {
		c.SameSite = http.SameSiteLaxMode
	}
	http.SetCookie(w, c)
	r.AddCookie(c)
	return c.Value
}

func (s *SessionStore) sweepLoop() {
	t := time.NewTicker(sessionSweep)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			s.sweep()
		case <-s.done:
			return
		}
	}
}

func (s *SessionStore) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for sid, e := range s.sessions {
		if e.expiresAt.Before(now) {
			delete(s.sessions, sid)
		}
	}
}
