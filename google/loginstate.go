package google

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/bestieapp/authlink/errors"
)

// Login-flow state must survive without server memory: the server signs the
// blob instead of remembering it. Flow tags are appended to the encoded blob
// after signing (and stripped before verification) so tagging never breaks
// the signature.
const loginStateExpiration = 5 * time.Minute

// loginState wraps the post-login destination with the data needed to verify
// the callback really belongs to a flow this server started.
type loginState struct {
	Dest      string    `json:"d"`
	TimeStamp time.Time `json:"t"`
	Signature string    `json:"sig"`
}

func (s *loginState) encode() string {
	b, _ := json.Marshal(s)
	return base64.URLEncoding.EncodeToString(b)
}

// stateSigner signs and verifies login states with an HMAC keyed by the
// OAuth client secret.
type stateSigner struct {
	key      []byte
	timeFunc func() time.Time
}

func newStateSigner(secret string) *stateSigner {
	return &stateSigner{key: []byte(secret), timeFunc: time.Now}
}

// New returns an encoded, signed state carrying the given destination.
func (ss *stateSigner) New(dest string) string {
	s := &loginState{
		Dest:      dest,
		TimeStamp: ss.timeFunc(),
	}
	s.Signature = ss.signature(s)
	return s.encode()
}

// Parse verifies an encoded state, tolerating appended flow tags. Expired
// and tampered states error.
func (ss *stateSigner) Parse(raw string) (*loginState, error) {
	raw = StripTags(raw)
	if raw == "" {
		return nil, errors.Mark(ErrInvalidOrExpiredState, 0).Append("empty state")
	}
	b, err := base64.URLEncoding.DecodeString(raw)
	if err != nil {
		return nil, errors.Mark(ErrInvalidOrExpiredState, 0).Append("not base64")
	}
	var s loginState
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, errors.Mark(ErrInvalidOrExpiredState, 0).Append("json decode failed")
	}
	if s.TimeStamp.Add(loginStateExpiration).Before(ss.timeFunc()) {
		return nil, errors.Mark(ErrInvalidOrExpiredState, 0).Append("expired")
	}

	actual, err := hex.DecodeString(s.Signature)
	if err != nil {
		return nil, errors.Mark(ErrInvalidOrExpiredState, 0).Append("bad signature encoding")
	}
	s.Signature = ""
	if !hmac.Equal(actual, ss.sum(&s)) {
		return nil, errors.Mark(ErrInvalidOrExpiredState, 0).Append("signature mismatch")
	}
	return &s, nil
}

func (ss *stateSigner) signature(s *loginState) string {
	return hex.EncodeToString(ss.sum(s))
}

func (ss *stateSigner) sum(s *loginState) []byte {
	h := hmac.New(sha256.New, ss.key)
	h.Write([]byte(s.encode()))
	return h.Sum(nil)
}
