package google

import "strings"

// Flow tags are appended to the OAuth2 state parameter so the callback can
// recover how a flow was initiated even when cookies and sessions do not
// survive the provider round trip. Tags are only ever appended, never
// removed, and both can co-occur as "::m::c", so detection uses substring
// search rather than exact suffix matching.
const (
	// TagMobile marks a flow initiated from a mobile client.
	TagMobile = "::m"

	// TagCalendar marks a flow that requested calendar access.
	TagCalendar = "::c"
)

// TagState appends the applicable flow tags to a state value.
func TagState(state string, mobile, calendar bool) string {
	if mobile {
		state += TagMobile
	}
	if calendar {
		state += TagCalendar
	}
	return state
}

// IsMobileTagged reports whether the state carries the mobile tag.
func IsMobileTagged(state string) bool {
	return strings.Contains(state, TagMobile)
}

// IsCalendarTagged reports whether the state carries the calendar tag.
func IsCalendarTagged(state string) bool {
	return strings.Contains(state, TagCalendar)
}

// StripTags returns the state with all flow tags removed, restoring the
// value the initiator originally issued.
func StripTags(state string) string {
	state = strings.ReplaceAll(state, TagMobile, "")
	return strings.ReplaceAll(state, TagCalendar, "")
}
