package credential

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bestieapp/authlink/errors"
	"github.com/bestieapp/authlink/logging"
	"github.com/bestieapp/authlink/storage"
	"golang.org/x/oauth2"
	"google.golang.org/grpc/codes"
)

var (
	// The provider rejected the access token outright.
	ErrInvalidToken = errors.NewC("provider rejected access token", codes.Unauthenticated)

	// The token is valid but the grant lacks the calendar scope. Distinct
	// from ErrInvalidToken so callers can tell "bad token" from "right
	// token, wrong scope".
	ErrInsufficientScope = errors.NewC("token granted without calendar scope", codes.PermissionDenied)
)

const (
	// Access tokens within this margin of expiry are refreshed eagerly, so a
	// token cannot expire between validation and use.
	refreshMargin = 60 * time.Second

	// Bound on all outbound provider calls.
	providerTimeout = 10 * time.Second

	// Google's token introspection endpoint.
	defaultIntrospectionURL = "https://oauth2.googleapis.com/tokeninfo"
)

// Option is a functional option for configuring the store.
type Option func(*Store)

// WithIntrospectionURL overrides the provider introspection endpoint, for
// tests.
func WithIntrospectionURL(u string) Option {
	return func(s *Store) {
		s.introspectionURL = u
	}
}

// WithHTTPClient overrides the client used for provider calls.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Store) {
		s.httpClient = c
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Store persists credentials and talks to the provider for refreshes and
// scope introspection.
type Store struct {
	db       storage.Store
	provider string

	// Used for refresh-token exchanges; only ClientID, ClientSecret and
	// Endpoint are consulted.
	oauth *oauth2.Config

	introspectionURL string
	httpClient       *http.Client
	now              func() time.Time
}

// New builds a Store on top of the given persistence backend. The oauth
// config supplies the client credentials and token endpoint used to refresh
// access tokens.
func New(db storage.Store, provider string, oauth *oauth2.Config, opts ...Option) *Store {
	s := &Store{
		db:               db,
		provider:         provider,
		oauth:            oauth,
		introspectionURL: defaultIntrospectionURL,
		httpClient:       &http.Client{Timeout: providerTimeout},
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save upserts the credential for a user. The first save creates the row;
// later saves overwrite access token, scopes, expiry and linked email, but
// the stored refresh token is only replaced when a non-empty one is supplied.
// Google omits the refresh token on re-authorization, and dropping the one
// we already hold would force the user to re-consent.
func (s *Store) Save(ctx context.Context, userID string, token *oauth2.Token, scopes, linkedEmail string) (Credential, error) {
	now := s.now()
	cred := Credential{
		UserID:      userID,
		Provider:    s.provider,
		AccessToken: token.AccessToken,
		Scopes:      scopes,
		LinkedEmail: linkedEmail,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if !token.Expiry.IsZero() {
		expiry := token.Expiry
		cred.ExpiresAt = &expiry
	}

	existing := Credential{}
	err := s.db.Read(cred.PK(), &existing)
	switch {
	case err == nil:
		cred.CreatedAt = existing.CreatedAt
		cred.RefreshToken = existing.RefreshToken
	case !errors.Is(err, storage.ErrNotFound):
		return Credential{}, err
	}
	if token.RefreshToken != "" {
		cred.RefreshToken = token.RefreshToken
	}

	if err := s.db.Upsert(cred); err != nil {
		return Credential{}, err
	}
	logging.Infow(ctx, "credential: saved", "user", userID, "provider", s.provider,
		"hasRefreshToken", cred.HasRefreshToken(), "scopes", scopes)
	return cred, nil
}

// Find returns the stored credential for a user. The second return is false
// when none exists.
func (s *Store) Find(ctx context.Context, userID string) (Credential, bool, error) {
	cred := Credential{UserID: userID, Provider: s.provider}
	err := s.db.Read(cred.PK(), &cred)
	if errors.Is(err, storage.ErrNotFound) {
		return Credential{}, false, nil
	}
	if err != nil {
		return Credential{}, false, err
	}
	return cred, true, nil
}

// RefreshIfNeeded returns a credential with a usable access token. A
// credential without a refresh token is returned unchanged, as is one whose
// token is still comfortably valid. When the refresh exchange fails the
// stale credential is returned rather than an error: the caller's provider
// call will then fail with the real provider message instead of being masked
// by an unrelated "refresh failed" error here.
func (s *Store) RefreshIfNeeded(ctx context.Context, cred Credential) Credential {
	if !cred.HasRefreshToken() {
		return cred
	}
	if !cred.ExpiresWithin(refreshMargin, s.now()) {
		return cred
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	src := s.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: cred.RefreshToken})
	token, err := src.Token()
	if err != nil {
		logging.Warnw(ctx, "credential: refresh failed, returning stale credential",
			"user", cred.UserID, "error", err.Error())
		return cred
	}

	cred.AccessToken = token.AccessToken
	if !token.Expiry.IsZero() {
		expiry := token.Expiry
		cred.ExpiresAt = &expiry
	}
	if token.RefreshToken != "" {
		cred.RefreshToken = token.RefreshToken
	}
	cred.UpdatedAt = s.now()

	if err := s.db.Upsert(cred); err != nil {
		logging.Warnw(ctx, "credential: failed to persist refreshed token",
			"user", cred.UserID, "error", err.Error())
	}
	return cred
}

// ValidateScope asks the provider about an access token. Returns
// ErrInvalidToken if the provider rejects the token, ErrInsufficientScope if
// the grant lacks calendar access, nil otherwise.
func (s *Store) ValidateScope(ctx context.Context, accessToken string) error {
	u := s.introspectionURL + "?access_token=" + url.QueryEscape(accessToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return errors.Wrap(err, 0)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return errors.Mark(ErrInvalidToken, 0).Append(err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Mark(ErrInvalidToken, 0)
	}

	var info struct {
		Scope string `json:"scope"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return errors.Mark(ErrInvalidToken, 0).Append(err.Error())
	}
	if !strings.Contains(info.Scope, "calendar") {
		return errors.Mark(ErrInsufficientScope, 0)
	}
	return nil
}

// Delete removes a user's credential. Deleting an absent credential is a
// no-op.
func (s *Store) Delete(ctx context.Context, userID string) error {
	cred := Credential{UserID: userID, Provider: s.provider}
	err := s.db.Delete(cred)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	logging.Infow(ctx, "credential: deleted", "user", userID, "provider", s.provider)
	return nil
}
