package sso

import (
	"context"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"net/url"
	"strings"

	saml2 "github.com/russellhaering/gosaml2"
	dsig "github.com/russellhaering/goxmldsig"
)

// SAMLHandler implements SAML 2.0 web SSO with the HTTP-Redirect binding
// for the authentication request and HTTP-POST for the assertion.
type SAMLHandler struct{}

// NewSAMLHandler creates the SAML protocol handler.
func NewSAMLHandler() *SAMLHandler {
	return &SAMLHandler{}
}

// Type returns the protocol type
func (h *SAMLHandler) Type() ProtocolType { return ProtocolSAML2 }

// serviceProvider translates the opaque provider config into a gosaml2
// service provider. The SP entity ID is derived from the callback URL so
// providers need no extra registration step.
func (h *SAMLHandler) serviceProvider(provider *ProviderConfig, callbackURL string) (*saml2.SAMLServiceProvider, error) {
	if err := h.ValidateConfig(provider); err != nil {
		return nil, err
	}

	cert, err := parseIdPCertificate(provider.ConfigValue("cert"))
	if err != nil {
		return nil, NewConfigurationError("provider %q has an invalid IdP certificate: %v", provider.ID, err)
	}

	entityID := callbackURL + "/metadata"
	return &saml2.SAMLServiceProvider{
		IdentityProviderSSOURL:      provider.ConfigValue("entryPoint"),
		IdentityProviderIssuer:      provider.ConfigValue("issuer"),
		ServiceProviderIssuer:       entityID,
		AssertionConsumerServiceURL: callbackURL,
		AudienceURI:                 entityID,
		IDPCertificateStore: &dsig.MemoryX509CertificateStore{
			Roots: []*x509.Certificate{cert},
		},
		SignAuthnRequests: false,
	}, nil
}

// BuildLoginURL builds the redirect-binding authentication request URL.
func (h *SAMLHandler) BuildLoginURL(provider *ProviderConfig, callbackURL, relayState string) (string, error) {
	sp, err := h.serviceProvider(provider, callbackURL)
	if err != nil {
		return "", err
	}
	loginURL, err := sp.BuildAuthURL(relayState)
	if err != nil {
		return "", NewConfigurationError("provider %q cannot build a SAML request: %v", provider.ID, err)
	}
	return loginURL, nil
}

// Authenticate validates the POSTed assertion against the configured IdP
// issuer and certificate and maps its attribute statements.
func (h *SAMLHandler) Authenticate(ctx context.Context, provider *ProviderConfig, params url.Values, callbackURL string) (*SSOUser, error) {
	samlResponse := params.Get("SAMLResponse")
	if samlResponse == "" {
		return nil, NewAuthenticationError("no SAML response received")
	}

	sp, err := h.serviceProvider(provider, callbackURL)
	if err != nil {
		return nil, err
	}

	assertionInfo, err := sp.RetrieveAssertionInfo(samlResponse)
	if err != nil {
		return nil, &AuthenticationError{Reason: "SAML assertion validation failed", Cause: err}
	}

	// gosaml2 downgrades some rejections to warnings; enumerate them all so
	// the log shows every reason the assertion was refused.
	var problems []string
	if warn := assertionInfo.WarningInfo; warn != nil {
		if warn.InvalidTime {
			problems = append(problems, "assertion is outside its validity window")
		}
		if warn.NotInAudience {
			problems = append(problems, "assertion audience does not include this service")
		}
	}
	if len(problems) > 0 {
		return nil, &AuthenticationError{
			Reason: "SAML assertion validation failed",
			Cause:  fmt.Errorf("%s", strings.Join(problems, "; ")),
		}
	}

	return mapSAMLAssertion(assertionInfo)
}

// mapSAMLAssertion extracts the normalized identity from a validated
// assertion. Attribute names vary by IdP (Okta, Azure AD, ADFS), so the
// common aliases are probed in order.
func mapSAMLAssertion(info *saml2.AssertionInfo) (*SSOUser, error) {
	nameID := info.NameID
	if nameID == "" {
		return nil, NewAuthenticationError("SAML assertion is missing a NameID")
	}

	email := firstSAMLAttribute(info, "email", "Email", "User.Email")
	if email == "" {
		email = nameID + "@saml-user.com"
	}
	username := firstSAMLAttribute(info, "name", "DisplayName")
	if username == "" {
		username = nameID
	}

	raw := make(map[string]string, len(info.Values))
	for name, attr := range info.Values {
		values := make([]string, 0, len(attr.Values))
		for _, v := range attr.Values {
			values = append(values, v.Value)
		}
		raw[name] = strings.Join(values, ",")
	}

	return NewSSOUser(nameID, email, username, raw), nil
}

// ValidateConfig checks the required SAML config keys.
func (h *SAMLHandler) ValidateConfig(provider *ProviderConfig) error {
	return requireConfigKeys(provider, "entryPoint", "issuer", "cert")
}

func firstSAMLAttribute(info *saml2.AssertionInfo, names ...string) string {
	for _, name := range names {
		attr, ok := info.Values[name]
		if !ok {
			continue
		}
		for _, v := range attr.Values {
			if v.Value != "" {
				return v.Value
			}
		}
	}
	return ""
}

// parseIdPCertificate accepts either a PEM block or bare base64 DER, the
// two shapes IdP admin consoles hand out.
func parseIdPCertificate(raw string) (*x509.Certificate, error) {
	raw = strings.TrimSpace(raw)
	if block, _ := pem.Decode([]byte(raw)); block != nil {
		return x509.ParseCertificate(block.Bytes)
	}
	der, err := base64.StdEncoding.DecodeString(stripWhitespace(raw))
	if err != nil {
		return nil, fmt.Errorf("certificate is neither PEM nor base64 DER: %w", err)
	}
	return x509.ParseCertificate(der)
}

func stripWhitespace(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r':
			return -1
		}
		return r
	}, s)
}
