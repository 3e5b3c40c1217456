package sso

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jience/AwesomeSSOManager/pkg/auth"
	"github.com/jience/AwesomeSSOManager/pkg/observability"
)

// idpTimeout bounds the callback leg's identity provider round trips
// (token exchange, userinfo, ticket validation).
const idpTimeout = 30 * time.Second

// Coordinator drives a federated login end to end: provider lookup,
// protocol dispatch, relay state verification, just-in-time provisioning
// and session issuance. It holds no per-login state, so concurrent logins
// need no synchronization here.
type Coordinator struct {
	providers ProviderStore
	registry  *Registry
	resolver  *Resolver
	issuer    *auth.SessionIssuer
	states    *StateSigner
	baseURL   string
	logger    *observability.Logger
}

// NewCoordinator wires the federation components together. baseURL is this
// service's externally reachable origin, used to derive callback URLs.
func NewCoordinator(providers ProviderStore, registry *Registry, resolver *Resolver,
	issuer *auth.SessionIssuer, states *StateSigner, baseURL string,
	logger *observability.Logger) *Coordinator {
	return &Coordinator{
		providers: providers,
		registry:  registry,
		resolver:  resolver,
		issuer:    issuer,
		states:    states,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		logger:    logger,
	}
}

// CallbackURL returns the callback endpoint registered with identity
// providers for the given provider ID.
func (c *Coordinator) CallbackURL(providerID string) string {
	return fmt.Sprintf("%s/api/auth/sso/%s/callback", c.baseURL, url.PathEscape(providerID))
}

// LoginResult is what a completed federated login hands back to the HTTP
// layer: the session token plus the resolved local account.
type LoginResult struct {
	Token    string
	User     *auth.User
	Protocol ProtocolType
}

// StartLogin returns the identity provider redirect URL for a login
// attempt against the given provider.
func (c *Coordinator) StartLogin(ctx context.Context, providerID string) (string, error) {
	provider, handler, err := c.resolveProvider(ctx, providerID)
	if err != nil {
		return "", err
	}

	relayState, err := c.states.Mint()
	if err != nil {
		return "", fmt.Errorf("failed to mint relay state: %w", err)
	}

	loginURL, err := handler.BuildLoginURL(provider, c.CallbackURL(providerID), relayState)
	if err != nil {
		return "", err
	}

	c.logger.WithFields(map[string]interface{}{
		"provider": providerID,
		"protocol": string(provider.Type),
	}).Info("sso login started")
	return loginURL, nil
}

// CompleteLogin consumes the identity provider callback, provisions the
// local account and mints a session token. Errors carry the full cause for
// logging; callers must reduce them with SafeErrorMessage before showing
// anything to a browser.
func (c *Coordinator) CompleteLogin(ctx context.Context, providerID string, params url.Values) (*LoginResult, error) {
	provider, handler, err := c.resolveProvider(ctx, providerID)
	if err != nil {
		return nil, err
	}

	if err := c.verifyRelayState(provider.Type, params); err != nil {
		return nil, err
	}

	idpCtx, cancel := context.WithTimeout(ctx, idpTimeout)
	defer cancel()
	identity, err := handler.Authenticate(idpCtx, provider, params, c.CallbackURL(providerID))
	if err != nil {
		c.logger.WithError(err).WithProvider(providerID).Warn("sso authentication failed")
		return nil, err
	}

	user, err := c.resolver.ResolveOrCreate(ctx, identity)
	if err != nil {
		c.logger.WithError(err).WithProvider(providerID).Error("sso provisioning failed")
		return nil, err
	}

	token, err := c.issuer.Issue(user)
	if err != nil {
		return nil, err
	}

	c.logger.WithFields(map[string]interface{}{
		"provider": providerID,
		"protocol": string(provider.Type),
		"username": user.Username,
	}).Info("sso login completed")
	return &LoginResult{Token: token, User: user, Protocol: provider.Type}, nil
}

func (c *Coordinator) resolveProvider(ctx context.Context, providerID string) (*ProviderConfig, Handler, error) {
	provider, err := c.providers.GetProvider(ctx, providerID)
	if err != nil {
		if errors.Is(err, ErrProviderNotFound) {
			return nil, nil, NewConfigurationError("unknown SSO provider %q", providerID)
		}
		return nil, nil, fmt.Errorf("failed to load provider %q: %w", providerID, err)
	}
	if !provider.Enabled {
		return nil, nil, NewConfigurationError("SSO provider %q is disabled", providerID)
	}
	handler, err := c.registry.Resolve(string(provider.Type))
	if err != nil {
		return nil, nil, err
	}
	return provider, handler, nil
}

// verifyRelayState checks the signed anti-replay value on protocols that
// echo one back. CAS is exempt: its ticket is single-use server-side.
func (c *Coordinator) verifyRelayState(protocol ProtocolType, params url.Values) error {
	var state string
	switch protocol {
	case ProtocolOIDC, ProtocolOAuth2:
		state = params.Get("state")
	case ProtocolSAML2:
		state = params.Get("RelayState")
	case ProtocolCAS:
		return nil
	}
	if state == "" {
		return NewAuthenticationError("missing state parameter")
	}
	return c.states.Verify(state)
}
