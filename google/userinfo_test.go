package google

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserInfoFromJSON(t *testing.T) {
	body := `{
		"sub": "110169484474386276334",
		"email": "bestie@gmail.com",
		"email_verified": true,
		"name": "Bestie User",
		"given_name": "Bestie",
		"family_name": "User",
		"picture": "https://lh3.googleusercontent.com/a/photo",
		"locale": "en"
	}`
	u, err := UserInfoFromJSON(strings.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, "110169484474386276334", u.ID)
	assert.Equal(t, "bestie@gmail.com", u.Email)
	assert.Equal(t, "Bestie User", u.Name)
	require.NotNil(t, u.EmailVerified)
	assert.True(t, *u.EmailVerified)
}

func TestUserInfoFromJSON_BadPayload(t *testing.T) {
	_, err := UserInfoFromJSON(strings.NewReader("not json"))
	assert.Error(t, err)
}

func TestUserInfo_IsConfirmed(t *testing.T) {
	boolPtr := func(v bool) *bool { return &v }
	tests := []struct {
		name string
		u    UserInfo
		want bool
	}{
		{"gmail", UserInfo{Email: "a@gmail.com"}, true},
		{"gmail unverified flag ignored", UserInfo{Email: "a@gmail.com", EmailVerified: boolPtr(false)}, true},
		{"workspace verified", UserInfo{Email: "a@bestie.app", Hd: "bestie.app", EmailVerified: boolPtr(true)}, true},
		{"workspace unverified", UserInfo{Email: "a@bestie.app", Hd: "bestie.app", EmailVerified: boolPtr(false)}, false},
		{"workspace missing flag", UserInfo{Email: "a@bestie.app", Hd: "bestie.app"}, false},
		{"other domain", UserInfo{Email: "a@example.com", EmailVerified: boolPtr(true)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.u.IsConfirmed())
		})
	}
}

func TestUserInfoFromClaims(t *testing.T) {
	claims := map[string]interface{}{
		"sub":            "12345",
		"email":          "bestie@gmail.com",
		"email_verified": true,
		"name":           "Bestie User",
		"given_name":     "Bestie",
		"hd":             "",
	}
	u, err := UserInfoFromClaims(claims)
	require.NoError(t, err)
	assert.Equal(t, "12345", u.ID)
	assert.Equal(t, "bestie@gmail.com", u.Email)
	assert.Equal(t, "Bestie", u.GivenName)
	require.NotNil(t, u.EmailVerified)
	assert.True(t, *u.EmailVerified)
}

func TestUserInfoFromClaims_MissingRequired(t *testing.T) {
	for _, missing := range []string{"sub", "email", "name"} {
		claims := map[string]interface{}{
			"sub":   "12345",
			"email": "bestie@gmail.com",
			"name":  "Bestie User",
		}
		delete(claims, missing)
		_, err := UserInfoFromClaims(claims)
		assert.Error(t, err, missing)
	}
}
