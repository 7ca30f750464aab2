package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bestieapp/authlink/auth"
	"github.com/bestieapp/authlink/config"
	"github.com/bestieapp/authlink/credential"
	"github.com/bestieapp/authlink/errors"
	"github.com/bestieapp/authlink/storage/memorystore"
	"golang.org/x/oauth2"
	"google.golang.org/grpc/codes"
)

const (
	testWebURL       = "https://app.bestie.test"
	testMobileURL    = "bestie://login"
	testMobileCalURL = "bestie://calendar"
	testClientSecret = "test-client-secret"
)

var configOnce sync.Once

func setupConfig(t *testing.T) {
	t.Helper()
	configOnce.Do(func() {
		for k, v := range map[string]any{
			"frontend.baseUrl":           testWebURL,
			"frontend.mobileUrl":         testMobileURL,
			"frontend.mobileCalendarUrl": testMobileCalURL,
			"google.clientId":            "test-client-id",
			"google.clientSecret":        testClientSecret,
		} {
			if err := config.Config.Set(k, v); err != nil {
				panic(err)
			}
		}
	})
}

// fakeProvider stands in for Google's token and userinfo endpoints.
type fakeProvider struct {
	server    *httptest.Server
	exchanges atomic.Int64

	mu           sync.Mutex
	tokenRes     map[string]any
	userRes      map[string]any
	failExchange bool
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()
	p := &fakeProvider{
		tokenRes: map[string]any{
			"access_token": "at-123",
			"token_type":   "Bearer",
			"expires_in":   3600,
			"scope":        "openid email profile",
		},
		userRes: map[string]any{
			"sub":            "g-110169",
			"email":          "bestie@gmail.com",
			"email_verified": true,
			"name":           "Bestie User",
		},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		p.exchanges.Add(1)
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.failExchange {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(p.tokenRes)
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		defer p.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(p.userRes)
	})
	mux.HandleFunc("/tokeninfo", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		defer p.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"scope": p.tokenRes["scope"], "expires_in": 3600,
		})
	})
	p.server = httptest.NewServer(mux)
	t.Cleanup(p.server.Close)

	prev := userInfoEndpoint
	userInfoEndpoint = p.server.URL + "/userinfo"
	t.Cleanup(func() { userInfoEndpoint = prev })
	return p
}

func (p *fakeProvider) setToken(k string, v any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokenRes[k] = v
}

func (p *fakeProvider) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     "test-client-id",
		ClientSecret: testClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:   p.server.URL + "/auth",
			TokenURL:  p.server.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// fakeUsers is an email-keyed user directory.
type fakeUsers map[string]string // email -> userID

func (f fakeUsers) LookupUserID(_ context.Context, email string) (string, error) {
	if id, ok := f[email]; ok {
		return id, nil
	}
	return "", errors.Mark(auth.ErrUnknownUser, 0).WithCode(codes.Unauthenticated)
}

func (f fakeUsers) Exists(_ context.Context, userID string) (bool, error) {
	for _, id := range f {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

// memSession is a SessionStore that ignores request identity, good enough
// for single-flow tests.
type memSession struct {
	mu    sync.Mutex
	attrs map[string]string
}

func newMemSession() *memSession { return &memSession{attrs: map[string]string{}} }

func (s *memSession) Get(_ *http.Request, key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attrs[key]
}

func (s *memSession) Set(_ http.ResponseWriter, _ *http.Request, key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attrs[key] = value
}

func (s *memSession) Clear(_ http.ResponseWriter, _ *http.Request, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attrs, key)
}

func testIssuer() *auth.Issuer {
	return auth.NewIssuerForTest("test-signing-key", "http://app.example.com", time.Hour, 24*time.Hour)
}

func (p *fakeProvider) credStore() *credential.Store {
	return credential.New(memorystore.New(), ProviderName, p.oauthConfig(),
		credential.WithIntrospectionURL(p.server.URL+"/tokeninfo"))
}
