// Package credential persists provider OAuth2 tokens per user and keeps them
// usable: refreshing access tokens before they expire and checking that a
// token actually carries the calendar grant the application needs.
package credential

import (
	"strings"
	"time"
)

// CalendarScope is the Google Calendar scope the linking flow requests.
const CalendarScope = "https://www.googleapis.com/auth/calendar"

// Credential holds the provider tokens granted to a user. One row exists per
// (user, provider) pair; writes are last-writer-wins upserts.
type Credential struct {
	UserID       string     `json:"userId"`
	Provider     string     `json:"provider"`
	AccessToken  string     `json:"accessToken"`
	RefreshToken string     `json:"refreshToken,omitempty"`
	Scopes       string     `json:"scopes"`
	LinkedEmail  string     `json:"linkedEmail,omitempty"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// PK implements storage.Model.
func (c Credential) PK() string {
	return c.UserID + "::" + c.Provider
}

// HasRefreshToken reports whether the credential can be refreshed without
// user interaction.
func (c Credential) HasRefreshToken() bool {
	return c.RefreshToken != ""
}

// HasCalendarScope reports whether the granted scopes include calendar
// access. Scope strings are space-delimited and matched by substring, since
// providers may return readonly variants.
func (c Credential) HasCalendarScope() bool {
	return strings.Contains(c.Scopes, "calendar")
}

// ExpiresWithin reports whether the access token expires inside the given
// window. A credential without expiry is treated as already expired: its
// freshness is unknown so callers should refresh.
func (c Credential) ExpiresWithin(window time.Duration, now time.Time) bool {
	if c.ExpiresAt == nil {
		return true
	}
	return !c.ExpiresAt.After(now.Add(window))
}
