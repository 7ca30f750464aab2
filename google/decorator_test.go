package google

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

const androidUA = "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36"

type fakeSession map[string]string

func (f fakeSession) Get(_ *http.Request, key string) string { return f[key] }

func baseAuthRequest() AuthRequest {
	return AuthRequest{
		State:  "state123",
		Scopes: []string{"openid", "email", "profile"},
		Params: url.Values{},
	}
}

func TestDecorate_DesktopUnmodified(t *testing.T) {
	d := NewDecorator(nil)
	r := httptest.NewRequest("GET", "http://app.example.com"+LoginAuthorizePath, nil)

	got := d.Decorate(baseAuthRequest(), r)
	assert.Equal(t, baseAuthRequest(), got)
}

func TestDecorate_DesktopCalendarSignalAloneUnmodified(t *testing.T) {
	// A calendar signal without a mobile signal changes nothing: web clients
	// get calendar access through the explicit linking flow instead.
	d := NewDecorator(fakeSession{CalendarSessionAttr: "true"})
	r := httptest.NewRequest("GET", "http://app.example.com"+LoginAuthorizePath+"?calendar=true", nil)

	got := d.Decorate(baseAuthRequest(), r)
	assert.Equal(t, baseAuthRequest(), got)
}

func TestDecorate_ExplicitMobileParam(t *testing.T) {
	d := NewDecorator(nil)
	r := httptest.NewRequest("GET", "http://app.example.com"+LoginAuthorizePath+"?mobile=true", nil)

	got := d.Decorate(baseAuthRequest(), r)
	assert.Equal(t, "state123::m", got.State)
	assert.Equal(t, "consent", got.Params.Get("prompt"))
	assert.Equal(t, "offline", got.Params.Get("access_type"))
	assert.NotContains(t, got.Scopes, calendarScope)
}

func TestDecorate_UserAgentFallback(t *testing.T) {
	d := NewDecorator(nil)
	r := httptest.NewRequest("GET", "http://app.example.com"+LoginAuthorizePath, nil)
	r.Header.Set("User-Agent", androidUA)

	got := d.Decorate(baseAuthRequest(), r)
	assert.Equal(t, "state123::m", got.State)
	assert.Equal(t, "offline", got.Params.Get("access_type"))
}

func TestDecorate_MobileWithCalendarQuery(t *testing.T) {
	d := NewDecorator(nil)
	r := httptest.NewRequest("GET", "http://app.example.com"+LoginAuthorizePath+"?mobile=true&calendar=true", nil)

	got := d.Decorate(baseAuthRequest(), r)
	assert.Equal(t, "state123::m::c", got.State)
	assert.Contains(t, got.Scopes, calendarScope)
}

func TestDecorate_MobileWithCalendarCookie(t *testing.T) {
	d := NewDecorator(nil)
	r := httptest.NewRequest("GET", "http://app.example.com"+LoginAuthorizePath+"?mobile=1", nil)
	r.AddCookie(&http.Cookie{Name: CalendarCookie, Value: "true"})

	got := d.Decorate(baseAuthRequest(), r)
	assert.Equal(t, "state123::m::c", got.State)
	assert.Contains(t, got.Scopes, calendarScope)
}

func TestDecorate_MobileWithCalendarSessionAttr(t *testing.T) {
	d := NewDecorator(fakeSession{CalendarSessionAttr: "true"})
	r := httptest.NewRequest("GET", "http://app.example.com"+LoginAuthorizePath+"?mobile=true", nil)

	got := d.Decorate(baseAuthRequest(), r)
	assert.Equal(t, "state123::m::c", got.State)
}

func TestDecorate_ScopeUnionIsIdempotent(t *testing.T) {
	d := NewDecorator(nil)
	r := httptest.NewRequest("GET", "http://app.example.com"+LoginAuthorizePath+"?mobile=true&calendar=true", nil)

	req := baseAuthRequest()
	req.Scopes = append(req.Scopes, calendarScope)
	got := d.Decorate(req, r)

	count := 0
	for _, s := range got.Scopes {
		if s == calendarScope {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestDecorate_DoesNotMutateInput(t *testing.T) {
	d := NewDecorator(nil)
	r := httptest.NewRequest("GET", "http://app.example.com"+LoginAuthorizePath+"?mobile=true&calendar=true", nil)

	req := baseAuthRequest()
	_ = d.Decorate(req, r)
	assert.Equal(t, "state123", req.State)
	assert.Empty(t, req.Params.Get("prompt"))
	assert.Len(t, req.Scopes, 3)
}

func TestTruthy(t *testing.T) {
	for _, v := range []string{"true", "TRUE", "1", "yes", "Yes"} {
		assert.True(t, truthy(v), v)
	}
	for _, v := range []string{"", "false", "0", "no", "maybe"} {
		assert.False(t, truthy(v), v)
	}
}
