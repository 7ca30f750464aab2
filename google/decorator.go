package google

import (
	"net/http"
	"net/url"
	"strings"
)

// Cookie and session attribute names used to signal flow metadata across the
// provider round trip. Redundant channels are deliberate: mobile web views
// drop cookies more often than sessions, and neither survives a cross-device
// callback, which is what the state tags are for.
const (
	MobileCookie   = "oauth2_mobile"
	CalendarCookie = "oauth2_calendar"

	MobileSessionAttr   = "oauth2_mobile"
	CalendarSessionAttr = "oauth2_calendar"
)

// SessionReader exposes per-browser session attributes. Implementations
// return "" when no session or attribute exists.
type SessionReader interface {
	Get(r *http.Request, key string) string
}

// SessionStore extends SessionReader with writes: the mobile initiation hop
// sets attributes, and the callback clears them once consumed.
type SessionStore interface {
	SessionReader
	Set(w http.ResponseWriter, r *http.Request, key, value string)
	Clear(w http.ResponseWriter, r *http.Request, key string)
}

// AuthRequest is an in-flight "build authorization URL" operation: the state
// to send, the scopes to request, and any additional provider parameters.
type AuthRequest struct {
	State  string
	Scopes []string
	Params url.Values
}

// clone returns a copy whose mutation does not affect the original.
func (a AuthRequest) clone() AuthRequest {
	out := AuthRequest{
		State:  a.State,
		Scopes: append([]string(nil), a.Scopes...),
		Params: url.Values{},
	}
	for k, vs := range a.Params {
		out.Params[k] = append([]string(nil), vs...)
	}
	return out
}

// Decorator inspects the inbound request that initiated a login and decides
// whether the outgoing authorization request should be tagged as mobile
// and/or calendar-scoped.
type Decorator struct {
	session SessionReader
}

// NewDecorator builds a Decorator. session may be nil when no session
// channel is available.
func NewDecorator(session SessionReader) *Decorator {
	return &Decorator{session: session}
}

// Decorate applies flow tagging to an outgoing authorization request.
//
// The calendar signal is the OR of the `calendar` query parameter, the
// oauth2_calendar cookie, and the oauth2_calendar session attribute. The
// mobile signal is the explicit `mobile` query parameter, falling back to
// User-Agent sniffing. When no mobile signal is found the request is
// returned unmodified; sniffing failures never block the flow.
//
// A mobile request gets `::m` (and `::c` when calendar) appended to its
// state, `prompt=consent` and `access_type=offline` forced so Google returns
// a refresh token, and the calendar scope unioned in when the flow asked for
// calendar access.
func (d *Decorator) Decorate(req AuthRequest, r *http.Request) AuthRequest {
	q := r.URL.Query()

	isCalendar := truthy(q.Get("calendar")) ||
		cookieTrue(r, CalendarCookie) ||
		d.sessionTrue(r, CalendarSessionAttr)

	isMobile := truthy(q.Get("mobile"))
	if !isMobile {
		isMobile = IsMobileUserAgent(r.UserAgent())
	}
	if !isMobile {
		return req
	}

	out := req.clone()
	out.State = TagState(out.State, true, isCalendar)
	out.Params.Set("prompt", "consent")
	out.Params.Set("access_type", "offline")

	if isCalendar || strings.Contains(q.Get("scope"), "calendar") {
		out.Scopes = unionScope(out.Scopes, calendarScope)
	}
	return out
}

func (d *Decorator) sessionTrue(r *http.Request, key string) bool {
	return d.session != nil && truthy(d.session.Get(r, key))
}

func unionScope(scopes []string, scope string) []string {
	for _, s := range scopes {
		if s == scope {
			return scopes
		}
	}
	return append(scopes, scope)
}

// truthy interprets the bool-ish strings clients send in query parameters
// and cookies.
func truthy(v string) bool {
	switch strings.ToLower(v) {
	case "true", "1", "yes":
		return true
	}
	return false
}
