package sso

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

const defaultOIDCScopes = "openid profile email"

// OIDCHandler implements the OpenID Connect authorization code flow.
type OIDCHandler struct {
	client *http.Client
}

// NewOIDCHandler creates the OIDC protocol handler.
func NewOIDCHandler(client *http.Client) *OIDCHandler {
	return &OIDCHandler{client: client}
}

// Type returns the protocol type
func (h *OIDCHandler) Type() ProtocolType { return ProtocolOIDC }

// BuildLoginURL builds the authorization endpoint redirect.
func (h *OIDCHandler) BuildLoginURL(provider *ProviderConfig, callbackURL, relayState string) (string, error) {
	if err := h.ValidateConfig(provider); err != nil {
		return "", err
	}
	scopes := provider.ConfigValue("scope")
	if scopes == "" {
		scopes = defaultOIDCScopes
	}
	cfg := &oauth2.Config{
		ClientID:    provider.ConfigValue("clientId"),
		Endpoint:    oauth2.Endpoint{AuthURL: provider.ConfigValue("authorizationUrl")},
		RedirectURL: callbackURL,
		Scopes:      strings.Fields(scopes),
	}
	return cfg.AuthCodeURL(relayState), nil
}

// Authenticate exchanges the callback code for a token, verifies the ID
// token when an issuer is configured, and maps the userinfo claims.
func (h *OIDCHandler) Authenticate(ctx context.Context, provider *ProviderConfig, params url.Values, callbackURL string) (*SSOUser, error) {
	if err := h.ValidateConfig(provider); err != nil {
		return nil, err
	}

	token, err := exchangeCode(ctx, h.client, provider, params, callbackURL)
	if err != nil {
		return nil, err
	}

	if issuer := provider.ConfigValue("issuer"); issuer != "" {
		if err := h.verifyIDToken(ctx, provider, issuer, token); err != nil {
			return nil, err
		}
	}

	userInfoURL := provider.ConfigValue("userInfoUrl")
	if userInfoURL == "" {
		userInfoURL = deriveUserInfoURL(provider.ConfigValue("tokenUrl"))
	}
	claims, err := fetchUserInfo(ctx, h.client, provider, token, userInfoURL)
	if err != nil {
		return nil, err
	}

	externalID := firstClaim(claims, "sub", "id")
	if externalID == "" {
		return nil, NewAuthenticationError("identity provider response is missing a subject identifier")
	}
	email := firstClaim(claims, "email")
	username := firstClaim(claims, "name", "preferred_username", "login")
	if username == "" && email == "" {
		username = externalID
	}
	return NewSSOUser(externalID, email, username, claimsToAttributes(claims)), nil
}

// ValidateConfig checks the required OIDC config keys.
func (h *OIDCHandler) ValidateConfig(provider *ProviderConfig) error {
	return requireConfigKeys(provider, "clientId", "clientSecret", "authorizationUrl", "tokenUrl")
}

func (h *OIDCHandler) verifyIDToken(ctx context.Context, provider *ProviderConfig, issuer string, token *oauth2.Token) error {
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return NewAuthenticationError("identity provider did not return an ID token")
	}
	ctx = gooidc.ClientContext(ctx, h.client)
	idp, err := gooidc.NewProvider(ctx, issuer)
	if err != nil {
		return &AuthenticationError{Reason: "identity provider discovery failed", Cause: err}
	}
	verifier := idp.Verifier(&gooidc.Config{ClientID: provider.ConfigValue("clientId")})
	if _, err := verifier.Verify(ctx, rawIDToken); err != nil {
		return &AuthenticationError{Reason: "ID token verification failed", Cause: err}
	}
	return nil
}

// deriveUserInfoURL applies the conventional userinfo location when none is
// configured: the token endpoint with its trailing /token swapped out.
func deriveUserInfoURL(tokenURL string) string {
	if strings.HasSuffix(tokenURL, "/token") {
		return strings.TrimSuffix(tokenURL, "/token") + "/userinfo"
	}
	return strings.Replace(tokenURL, "/token", "/userinfo", 1)
}

// Helpers shared by the OIDC and OAuth2 handlers.

func requireConfigKeys(provider *ProviderConfig, keys ...string) error {
	for _, key := range keys {
		if provider.ConfigValue(key) == "" {
			return NewConfigurationError("provider %q is missing required config key %q", provider.ID, key)
		}
	}
	return nil
}

func exchangeCode(ctx context.Context, client *http.Client, provider *ProviderConfig, params url.Values, callbackURL string) (*oauth2.Token, error) {
	code := params.Get("code")
	if code == "" {
		return nil, NewAuthenticationError("no authorization code received")
	}
	cfg := &oauth2.Config{
		ClientID:     provider.ConfigValue("clientId"),
		ClientSecret: provider.ConfigValue("clientSecret"),
		Endpoint:     oauth2.Endpoint{TokenURL: provider.ConfigValue("tokenUrl")},
		RedirectURL:  callbackURL,
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, client)
	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, &AuthenticationError{Reason: "authorization code exchange failed", Cause: err}
	}
	return token, nil
}

func fetchUserInfo(ctx context.Context, client *http.Client, provider *ProviderConfig, token *oauth2.Token, userInfoURL string) (map[string]interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, userInfoURL, nil)
	if err != nil {
		return nil, NewConfigurationError("provider %q has an invalid userinfo URL: %v", provider.ID, err)
	}
	token.SetAuthHeader(req)

	resp, err := client.Do(req)
	if err != nil {
		return nil, &AuthenticationError{Reason: "failed to fetch user profile", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &AuthenticationError{
			Reason: "failed to fetch user profile",
			Cause:  fmt.Errorf("userinfo endpoint returned status %d: %s", resp.StatusCode, string(body)),
		}
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	var claims map[string]interface{}
	if err := dec.Decode(&claims); err != nil {
		return nil, &AuthenticationError{Reason: "failed to fetch user profile", Cause: err}
	}
	return claims, nil
}

// firstClaim returns the first key whose value stringifies non-empty.
// Numeric identifiers are rendered verbatim, so a provider returning
// id 42 yields "42".
func firstClaim(claims map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if s := stringifyClaim(claims[key]); s != "" {
			return s
		}
	}
	return ""
}

func stringifyClaim(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		if val {
			return "true"
		}
		return "false"
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

func claimsToAttributes(claims map[string]interface{}) map[string]string {
	attrs := make(map[string]string, len(claims))
	for k, v := range claims {
		attrs[k] = stringifyClaim(v)
	}
	return attrs
}
