package sso

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Handler implements one federation protocol.
//
// BuildLoginURL derives the identity provider redirect from configuration
// alone and performs no network calls; relayState is the signed value the
// coordinator expects back on the callback leg (ignored by protocols with
// no such channel). Authenticate consumes the callback parameters, talks
// to the identity provider as the protocol requires, and returns the
// normalized identity.
type Handler interface {
	Type() ProtocolType
	BuildLoginURL(provider *ProviderConfig, callbackURL, relayState string) (string, error)
	Authenticate(ctx context.Context, provider *ProviderConfig, params url.Values, callbackURL string) (*SSOUser, error)

	// ValidateConfig reports the first missing or malformed config key as
	// a *ConfigurationError. Used by provider CRUD before persisting.
	ValidateConfig(provider *ProviderConfig) error
}

// Registry resolves protocol types to handlers. The handler set is fixed
// at construction; lookup is case-insensitive.
type Registry struct {
	handlers map[ProtocolType]Handler
}

// NewRegistry builds a registry over the four supported protocols. All
// outbound identity provider calls go through client; pass nil for a
// default with a sane timeout. Transport-level failures talking to an
// identity provider are retried once before they surface.
func NewRegistry(client *http.Client) *Registry {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	client = withRetry(client)
	r := &Registry{handlers: make(map[ProtocolType]Handler)}
	for _, h := range []Handler{
		NewOIDCHandler(client),
		NewOAuth2Handler(client),
		NewSAMLHandler(),
		NewCASHandler(client),
	} {
		r.handlers[h.Type()] = h
	}
	return r
}

// Resolve returns the handler for a protocol type, matching
// case-insensitively. Unknown types are a *ConfigurationError.
func (r *Registry) Resolve(protocolType string) (Handler, error) {
	h, ok := r.handlers[ProtocolType(strings.ToUpper(strings.TrimSpace(protocolType)))]
	if !ok {
		return nil, NewConfigurationError("unsupported SSO protocol %q", protocolType)
	}
	return h, nil
}

// Types lists the registered protocol types.
func (r *Registry) Types() []ProtocolType {
	types := make([]ProtocolType, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	return types
}
