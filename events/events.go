// Package events provides the in-process publish/subscribe bus used for
// fire-and-forget activity logging, and the bounded redirect log behind the
// debug endpoint. Subscriber failures never propagate to publishers: the
// flows record activity best-effort and must complete their redirects
// regardless.
package events

import "time"

// Topics published by the OAuth2 flows.
const (
	LoginSucceeded     = "auth.login"
	LoginFailed        = "auth.login_failed"
	CalendarLinked     = "calendar.linked"
	CalendarLinkFailed = "calendar.link_failed"
	CalendarUnlinked   = "calendar.unlinked"
)

// Activity is the payload for all flow topics.
type Activity struct {
	UserID   string
	Email    string
	Provider string
	IsMobile bool
	Error    string
	Time     time.Time
}
