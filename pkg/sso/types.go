package sso

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ProtocolType identifies one of the supported federation protocols. The
// set is closed; adding a protocol means adding a Handler to the registry.
type ProtocolType string

const (
	ProtocolOIDC   ProtocolType = "OIDC"
	ProtocolOAuth2 ProtocolType = "OAUTH2"
	ProtocolSAML2  ProtocolType = "SAML2"
	ProtocolCAS    ProtocolType = "CAS"
)

// ProviderConfig is a stored identity provider registration. Config is an
// opaque key/value map whose meaning belongs to the protocol handler; the
// rest of the system never interprets it.
type ProviderConfig struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Type        ProtocolType      `json:"type"`
	Logo        string            `json:"logo,omitempty"`
	Description string            `json:"description,omitempty"`
	Enabled     bool              `json:"isEnabled"`
	Config      map[string]string `json:"config"`
	CreatedAt   time.Time         `json:"createdAt"`
}

// ConfigValue returns a config key's value, trimmed, or "" when absent.
func (p *ProviderConfig) ConfigValue(key string) string {
	return strings.TrimSpace(p.Config[key])
}

// SSOUser is the normalized identity a protocol handler extracts from a
// successful authentication. ExternalID is the provider's stable subject
// identifier; Email and Username are always non-empty after normalization,
// synthesized from placeholders when the provider omits them.
type SSOUser struct {
	ExternalID    string            `json:"externalId"`
	Email         string            `json:"email"`
	Username      string            `json:"username"`
	RawAttributes map[string]string `json:"rawAttributes,omitempty"`
}

// NewSSOUser normalizes a mapped identity. A missing username falls back
// to the local part of the email address.
func NewSSOUser(externalID, email, username string, raw map[string]string) *SSOUser {
	if username == "" && email != "" {
		username = email
		if at := strings.Index(email, "@"); at > 0 {
			username = email[:at]
		}
	}
	return &SSOUser{
		ExternalID:    externalID,
		Email:         email,
		Username:      username,
		RawAttributes: raw,
	}
}

// Storage sentinel errors for provider records.
var (
	ErrProviderNotFound = errors.New("provider not found")
	ErrProviderExists   = errors.New("provider already exists")
)

// ProviderStore is the persistence contract for provider registrations.
type ProviderStore interface {
	ListProviders(ctx context.Context) ([]*ProviderConfig, error)
	GetProvider(ctx context.Context, id string) (*ProviderConfig, error)

	// CreateProvider persists a new provider, returning ErrProviderExists
	// when the id is already taken.
	CreateProvider(ctx context.Context, provider *ProviderConfig) error

	UpdateProvider(ctx context.Context, provider *ProviderConfig) error
	DeleteProvider(ctx context.Context, id string) error
}
