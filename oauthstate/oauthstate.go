// Package oauthstate tracks short-lived OAuth2 state tokens for flows that
// carry their metadata server-side. Entries are single-use: the callback
// consumes a token with GetAndRemove, and a token can be consumed at most
// once no matter how many callbacks race for it.
package oauthstate

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultTTL bounds how long an initiated flow may take before its
	// callback is rejected as expired.
	DefaultTTL = 5 * time.Minute

	// sweepInterval controls how often expired entries are dropped. The
	// sweep only bounds memory; GetAndRemove checks expiry itself.
	sweepInterval = time.Minute
)

// Entry is the metadata registered when a flow is initiated.
type Entry struct {
	Token     string
	UserID    string
	IsMobile  bool
	CreatedAt time.Time
	ExpiresAt time.Time
}

// NewToken returns a fresh collision-free state token.
func NewToken() string {
	return uuid.NewString()
}

// Option is a functional option for configuring the store.
type Option func(*Store)

// WithTTL overrides the default entry lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Store is an in-memory, TTL-bound registry of state tokens. All methods are
// safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	entries map[string]Entry

	ttl  time.Duration
	now  func() time.Time
	done chan struct{}
	once sync.Once
}

// New returns a started store. Callers should Close it when done to stop the
// background sweep.
func New(opts ...Option) *Store {
	s := &Store{
		entries: map[string]Entry{},
		ttl:     DefaultTTL,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.sweepLoop()
	return s
}

// Save registers a token for later consumption. A colliding token is
// silently overwritten; callers are responsible for collision-free token
// generation (see NewToken).
func (s *Store) Save(token, userID string, isMobile bool) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[token] = Entry{
		Token:     token,
		UserID:    userID,
		IsMobile:  isMobile,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
}

// GetAndRemove atomically consumes a token. The second return is false if
// the token is absent, already consumed, or expired; expired entries are
// treated as absent even if the sweep has not dropped them yet.
func (s *Store) GetAndRemove(token string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[token]
	if !ok {
		return Entry{}, false
	}
	delete(s.entries, token)
	if s.now().After(e.ExpiresAt) {
		return Entry{}, false
	}
	return e, true
}

// Has reports whether a live entry exists for the token without consuming
// it. Diagnostics only: validation must go through GetAndRemove, which is
// the sole authority on whether a token may be consumed.
func (s *Store) Has(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[token]
	return ok && !s.now().After(e.ExpiresAt)
}

// Len returns the number of stored entries, including not-yet-swept expired
// ones.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Close stops the background sweep. Safe to call more than once.
func (s *Store) Close() {
	s.once.Do(func() {
		close(s.done)
	})
}

func (s *Store) sweepLoop() {
	t := time.NewTicker(sweepInterval)
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

func (s *Store) sweep() {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for token, e := range s.entries {
		if now.After(e.ExpiresAt) {
			delete(s.entries, token)
		}
	}
}
