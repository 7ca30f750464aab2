package events

import (
	"sync"
	"time"
)

// Redirect is one terminal redirect issued by a flow.
type Redirect struct {
	Time    time.Time `json:"time"`
	Flow    string    `json:"flow"`   // "login" or "calendar"
	Target  string    `json:"target"` // the Location the client was sent to
	Success bool      `json:"success"`
	Error   string    `json:"error,omitempty"`
}

// RedirectLog is a bounded, concurrency-safe ring buffer of recent
// redirects. Flows record into an injected log rather than global state, so
// tests and multi-tenant embedding both work.
type RedirectLog struct {
	mu    sync.Mutex
	buf   []Redirect
	next  int
	count int
}

// NewRedirectLog returns a log that retains the most recent capacity
// entries.
func NewRedirectLog(capacity int) *RedirectLog {
	if capacity < 1 {
		capacity = 1
	}
	return &RedirectLog{buf: make([]Redirect, capacity)}
}

// Record appends a redirect, evicting the oldest when full.
func (l *RedirectLog) Record(r Redirect) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf[l.next] = r
	l.next = (l.next + 1) % len(l.buf)
	if l.count < len(l.buf) {
		l.count++
	}
}

// Last returns the most recent redirect.
func (l *RedirectLog) Last() (Redirect, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.count == 0 {
		return Redirect{}, false
	}
	idx := (l.next - 1 + len(l.buf)) % len(l.buf)
	return l.buf[idx], true
}

// Recent returns retained redirects, newest first.
func (l *RedirectLog) Recent() []Redirect {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Redirect, 0, l.count)
	for i := 0; i < l.count; i++ {
		idx := (l.next - 1 - i + 2*len(l.buf)) % len(l.buf)
		out = append(out, l.buf[idx])
	}
	return out
}
