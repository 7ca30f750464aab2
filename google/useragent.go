package google

import "strings"

// Substrings that identify phone and tablet browsers. Matching is
// best-effort: the decorator only uses the result as a fallback when no
// explicit mobile signal was supplied, so a miss just means the web redirect
// targets are used.
var mobileTokens = []string{
	"mobile",
	"android",
	"iphone",
	"ipod",
	"ipad",
	"tablet",
	"silk",
	"kindle",
	"opera mini",
	"windows phone",
}

// IsMobileUserAgent reports whether the User-Agent header looks like a phone
// or tablet browser. An empty or unrecognized value is not mobile.
func IsMobileUserAgent(ua string) bool {
	if ua == "" {
		return false
	}
	ua = strings.ToLower(ua)
	for _, token := range mobileTokens {
		if strings.Contains(ua, token) {
			return true
		}
	}
	return false
}
