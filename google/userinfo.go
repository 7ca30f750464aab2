package google

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/bestieapp/authlink/errors"
	"google.golang.org/grpc/codes"
)

// Overridable so tests can stand in for Google.
var userInfoEndpoint = "https://www.googleapis.com/oauth2/v3/userinfo"

// UserInfo is the profile Google returns for an authenticated user, either
// from the userinfo endpoint or from ID-token claims.
type UserInfo struct {
	ID            string `json:"sub"`
	Email         string `json:"email"`
	Name          string `json:"name"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Locale        string `json:"locale"`
	Picture       string `json:"picture"`
	Hd            string `json:"hd"`
	EmailVerified *bool  `json:"email_verified"`
}

// IsConfirmed reports whether the email can be treated as owned by the user.
// Gmail addresses are authoritative. Workspace accounts (hd set) are trusted
// only when Google says the email is verified. Other addresses may be
// aliases the user never proved ownership of, so they are never confirmed.
func (u *UserInfo) IsConfirmed() bool {
	if strings.HasSuffix(u.Email, "@gmail.com") {
		return true
	}
	if u.Hd != "" {
		return u.EmailVerified != nil && *u.EmailVerified
	}
	return false
}

// UserInfoFromJSON parses a userinfo endpoint response.
func UserInfoFromJSON(r io.Reader) (*UserInfo, error) {
	var u UserInfo
	if err := json.NewDecoder(r).Decode(&u); err != nil {
		return nil, errors.Codef(codes.Internal, "google: failed to decode userinfo: %s", err)
	}
	return &u, nil
}

// UserInfoFromClaims builds a UserInfo from validated ID-token claims. The
// sub, email and name claims are required.
func UserInfoFromClaims(claims map[string]interface{}) (*UserInfo, error) {
	sub, err := claimsString("sub", claims, true)
	if err != nil {
		return nil, err
	}
	email, err := claimsString("email", claims, true)
	if err != nil {
		return nil, err
	}
	name, err := claimsString("name", claims, true)
	if err != nil {
		return nil, err
	}

	u := &UserInfo{ID: sub, Email: email, Name: name}
	u.GivenName, _ = claimsString("given_name", claims, false)
	u.FamilyName, _ = claimsString("family_name", claims, false)
	u.Locale, _ = claimsString("locale", claims, false)
	u.Picture, _ = claimsString("picture", claims, false)
	u.Hd, _ = claimsString("hd", claims, false)

	if v, ok := claims["email_verified"].(bool); ok {
		verified := v
		u.EmailVerified = &verified
	}
	return u, nil
}

func claimsString(key string, claims map[string]interface{}, required bool) (string, error) {
	v, ok := claims[key].(string)
	if !ok || v == "" {
		if required {
			return "", errors.Codef(codes.InvalidArgument, "google: claims missing %q", key)
		}
		return "", nil
	}
	return v, nil
}
