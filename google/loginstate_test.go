package google

import (
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/bestieapp/authlink/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateSigner_RoundTrip(t *testing.T) {
	ss := newStateSigner("test-secret")
	raw := ss.New("https://app.example.com/login/oauth2/code/google")
	parsed, err := ss.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "https://app.example.com/login/oauth2/code/google", parsed.Dest)
}

func TestStateSigner_ToleratesFlowTags(t *testing.T) {
	ss := newStateSigner("test-secret")
	raw := ss.New("https://app.example.com/cb")

	for _, tagged := range []string{
		TagState(raw, true, false),
		TagState(raw, false, true),
		TagState(raw, true, true),
	} {
		parsed, err := ss.Parse(tagged)
		require.NoError(t, err)
		assert.Equal(t, "https://app.example.com/cb", parsed.Dest)
	}
}

func TestStateSigner_RejectsTampered(t *testing.T) {
	ss := newStateSigner("test-secret")
	raw := ss.New("https://app.example.com/cb")

	b, err := base64.URLEncoding.DecodeString(raw)
	require.NoError(t, err)
	var s loginState
	require.NoError(t, json.Unmarshal(b, &s))

	// Point the destination somewhere else without re-signing.
	s.Dest = "https://evil.example.com/cb"
	_, err = ss.Parse(s.encode())
	assert.True(t, errors.Is(err, ErrInvalidOrExpiredState))
}

func TestStateSigner_RejectsWrongKey(t *testing.T) {
	a := newStateSigner("key-a")
	b := newStateSigner("key-b")
	raw := a.New("https://app.example.com/cb")
	_, err := b.Parse(raw)
	assert.True(t, errors.Is(err, ErrInvalidOrExpiredState))
}

func TestStateSigner_RejectsExpired(t *testing.T) {
	ss := newStateSigner("test-secret")
	raw := ss.New("https://app.example.com/cb")

	ss.timeFunc = func() time.Time { return time.Now().Add(loginStateExpiration + time.Second) }
	_, err := ss.Parse(raw)
	assert.True(t, errors.Is(err, ErrInvalidOrExpiredState))
}

func TestStateSigner_RejectsGarbage(t *testing.T) {
	ss := newStateSigner("test-secret")
	for _, raw := range []string{"", "::m", "not base64!", base64.URLEncoding.EncodeToString([]byte("not json"))} {
		_, err := ss.Parse(raw)
		assert.True(t, errors.Is(err, ErrInvalidOrExpiredState), "input %q", raw)
	}
}
