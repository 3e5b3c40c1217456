package sso

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jience/AwesomeSSOManager/pkg/auth"
	"github.com/jience/AwesomeSSOManager/pkg/observability"
)

type fakeProviderStore struct {
	mu        sync.Mutex
	providers map[string]*ProviderConfig
}

func newFakeProviderStore(providers ...*ProviderConfig) *fakeProviderStore {
	s := &fakeProviderStore{providers: make(map[string]*ProviderConfig)}
	for _, p := range providers {
		s.providers[p.ID] = p
	}
	return s
}

func (s *fakeProviderStore) ListProviders(context.Context) ([]*ProviderConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*ProviderConfig, 0, len(s.providers))
	for _, p := range s.providers {
		out = append(out, p)
	}
	return out, nil
}

func (s *fakeProviderStore) GetProvider(_ context.Context, id string) (*ProviderConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.providers[id]; ok {
		return p, nil
	}
	return nil, ErrProviderNotFound
}

func (s *fakeProviderStore) CreateProvider(_ context.Context, p *ProviderConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.providers[p.ID]; ok {
		return ErrProviderExists
	}
	s.providers[p.ID] = p
	return nil
}

func (s *fakeProviderStore) UpdateProvider(_ context.Context, p *ProviderConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.providers[p.ID]; !ok {
		return ErrProviderNotFound
	}
	s.providers[p.ID] = p
	return nil
}

func (s *fakeProviderStore) DeleteProvider(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.providers[id]; !ok {
		return ErrProviderNotFound
	}
	delete(s.providers, id)
	return nil
}

func newTestCoordinator(t *testing.T, client *http.Client, users *fakeUserStore, providers ...*ProviderConfig) (*Coordinator, *auth.SessionIssuer) {
	t.Helper()
	issuer := auth.NewSessionIssuer([]byte("session-secret"), users)
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	coordinator := NewCoordinator(
		newFakeProviderStore(providers...),
		NewRegistry(client),
		NewResolver(users),
		issuer,
		NewStateSigner([]byte("state-secret")),
		"https://sso.example.com/",
		logger,
	)
	return coordinator, issuer
}

func TestCoordinatorCallbackURL(t *testing.T) {
	c, _ := newTestCoordinator(t, nil, newFakeUserStore())
	assert.Equal(t,
		"https://sso.example.com/api/auth/sso/campus-cas/callback",
		c.CallbackURL("campus-cas"))
}

func TestCoordinatorStartLoginUnknownProvider(t *testing.T) {
	c, _ := newTestCoordinator(t, nil, newFakeUserStore())

	_, err := c.StartLogin(context.Background(), "nope")

	var confErr *ConfigurationError
	require.ErrorAs(t, err, &confErr)
	assert.Contains(t, confErr.Reason, "unknown SSO provider")
}

func TestCoordinatorStartLoginDisabledProvider(t *testing.T) {
	provider := casProvider("https://cas.example.edu")
	provider.Enabled = false
	c, _ := newTestCoordinator(t, nil, newFakeUserStore(), provider)

	_, err := c.StartLogin(context.Background(), provider.ID)

	var confErr *ConfigurationError
	require.ErrorAs(t, err, &confErr)
	assert.Contains(t, confErr.Reason, "disabled")
}

func TestCoordinatorStartLoginMintsVerifiableState(t *testing.T) {
	c, _ := newTestCoordinator(t, nil, newFakeUserStore(), oidcProvider("https://idp.example.com"))

	loginURL, err := c.StartLogin(context.Background(), "corp-oidc")
	require.NoError(t, err)

	parsed, err := url.Parse(loginURL)
	require.NoError(t, err)
	state := parsed.Query().Get("state")
	require.NotEmpty(t, state)
	assert.NoError(t, c.states.Verify(state))
}

func TestCoordinatorCompleteLoginMissingState(t *testing.T) {
	c, _ := newTestCoordinator(t, nil, newFakeUserStore(), oidcProvider("https://idp.example.com"))

	_, err := c.CompleteLogin(context.Background(), "corp-oidc", url.Values{"code": {"x"}})

	var authErr *AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "missing state parameter", authErr.Reason)
}

func TestCoordinatorCompleteLoginForgedState(t *testing.T) {
	c, _ := newTestCoordinator(t, nil, newFakeUserStore(), oidcProvider("https://idp.example.com"))

	_, err := c.CompleteLogin(context.Background(), "corp-oidc",
		url.Values{"code": {"x"}, "state": {"forged.123.sig"}})

	var authErr *AuthenticationError
	require.ErrorAs(t, err, &authErr)
}

func TestCoordinatorCompleteLoginCAS(t *testing.T) {
	// End to end over the CAS leg: ticket validation, JIT provisioning and
	// session issuance. CAS needs no relay state.
	srv := fakeCASServer(t, map[string]interface{}{
		"serviceResponse": map[string]interface{}{
			"authenticationSuccess": map[string]interface{}{"user": "jdoe"},
		},
	})
	defer srv.Close()

	users := newFakeUserStore()
	c, issuer := newTestCoordinator(t, srv.Client(), users, casProvider(srv.URL))

	result, err := c.CompleteLogin(context.Background(), "campus-cas",
		url.Values{"ticket": {"ST-1-abc"}})
	require.NoError(t, err)

	assert.Equal(t, "jdoe", result.User.Username)
	assert.Equal(t, auth.RoleUser, result.User.Role)
	assert.False(t, result.User.HasLocalCredential)

	verified, err := issuer.Verify(context.Background(), result.Token)
	require.NoError(t, err)
	assert.Equal(t, result.User.ID, verified.ID)

	// A second login with a fresh ticket lands on the same account.
	again, err := c.CompleteLogin(context.Background(), "campus-cas",
		url.Values{"ticket": {"ST-2-def"}})
	require.NoError(t, err)
	assert.Equal(t, result.User.ID, again.User.ID)
}

func TestCoordinatorCompleteLoginFailedTicket(t *testing.T) {
	srv := fakeCASServer(t, map[string]interface{}{
		"serviceResponse": map[string]interface{}{
			"authenticationFailure": map[string]interface{}{
				"code": "INVALID_TICKET", "description": "unknown ticket",
			},
		},
	})
	defer srv.Close()

	users := newFakeUserStore()
	c, _ := newTestCoordinator(t, srv.Client(), users, casProvider(srv.URL))

	_, err := c.CompleteLogin(context.Background(), "campus-cas",
		url.Values{"ticket": {"ST-bad"}})

	assert.Equal(t, "CAS authentication failed", SafeErrorMessage(err))
	assert.Empty(t, users.users, "no account is provisioned on a failed login")
}

func TestCoordinatorCompleteLoginDoesNotLeakStorageErrors(t *testing.T) {
	srv := fakeCASServer(t, map[string]interface{}{
		"serviceResponse": map[string]interface{}{
			"authenticationSuccess": map[string]interface{}{"user": "jdoe"},
		},
	})
	defer srv.Close()

	issuer := auth.NewSessionIssuer([]byte("s"), &failingUserStore{})
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	c := NewCoordinator(
		newFakeProviderStore(casProvider(srv.URL)),
		NewRegistry(srv.Client()),
		NewResolver(&failingUserStore{}),
		issuer,
		NewStateSigner([]byte("state-secret")),
		"https://sso.example.com",
		logger,
	)

	_, err := c.CompleteLogin(context.Background(), "campus-cas",
		url.Values{"ticket": {"ST-1"}})
	require.Error(t, err)
	assert.Equal(t, "authentication failed", SafeErrorMessage(err))
	assert.NotContains(t, SafeErrorMessage(err), "connection refused")
}
