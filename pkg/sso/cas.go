package sso

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// CASHandler implements CAS protocol v3 with JSON service validation.
// CAS carries no relay state channel; replay protection comes from the
// ticket being single-use at the CAS server.
type CASHandler struct {
	client *http.Client
}

// NewCASHandler creates the CAS protocol handler.
func NewCASHandler(client *http.Client) *CASHandler {
	return &CASHandler{client: client}
}

// Type returns the protocol type
func (h *CASHandler) Type() ProtocolType { return ProtocolCAS }

// BuildLoginURL builds the CAS login redirect. relayState is unused.
func (h *CASHandler) BuildLoginURL(provider *ProviderConfig, callbackURL, relayState string) (string, error) {
	if err := h.ValidateConfig(provider); err != nil {
		return "", err
	}
	serverURL := strings.TrimSuffix(provider.ConfigValue("serverUrl"), "/")
	return serverURL + "/login?service=" + url.QueryEscape(callbackURL), nil
}

// casServiceResponse is the /p3/serviceValidate JSON envelope.
type casServiceResponse struct {
	ServiceResponse struct {
		AuthenticationSuccess *struct {
			User       string                 `json:"user"`
			Attributes map[string]interface{} `json:"attributes"`
		} `json:"authenticationSuccess"`
		AuthenticationFailure *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"authenticationFailure"`
	} `json:"serviceResponse"`
}

// Authenticate validates the callback ticket against the CAS server.
func (h *CASHandler) Authenticate(ctx context.Context, provider *ProviderConfig, params url.Values, callbackURL string) (*SSOUser, error) {
	if err := h.ValidateConfig(provider); err != nil {
		return nil, err
	}

	ticket := params.Get("ticket")
	if ticket == "" {
		return nil, NewAuthenticationError("no CAS ticket received")
	}

	serverURL := strings.TrimSuffix(provider.ConfigValue("serverUrl"), "/")
	query := url.Values{}
	query.Set("service", callbackURL)
	query.Set("ticket", ticket)
	query.Set("format", "JSON")
	validateURL := serverURL + "/p3/serviceValidate?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, validateURL, nil)
	if err != nil {
		return nil, NewConfigurationError("provider %q has an invalid CAS server URL: %v", provider.ID, err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, &AuthenticationError{Reason: "CAS ticket validation failed", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &AuthenticationError{
			Reason: "CAS ticket validation failed",
			Cause:  fmt.Errorf("validation endpoint returned status %d: %s", resp.StatusCode, string(body)),
		}
	}

	var envelope casServiceResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, &AuthenticationError{Reason: "CAS ticket validation failed", Cause: err}
	}

	success := envelope.ServiceResponse.AuthenticationSuccess
	if success == nil || success.User == "" {
		cause := fmt.Errorf("no authenticationSuccess in service response")
		if f := envelope.ServiceResponse.AuthenticationFailure; f != nil {
			cause = fmt.Errorf("%s: %s", f.Code, f.Description)
		}
		return nil, &AuthenticationError{Reason: "CAS authentication failed", Cause: cause}
	}

	raw := make(map[string]string, len(success.Attributes)+1)
	raw["user"] = success.User
	for k, v := range success.Attributes {
		raw[k] = casAttributeString(v)
	}

	email := casAttributeString(success.Attributes["email"])
	if email == "" {
		email = success.User + "@cas-user.com"
	}

	return NewSSOUser(success.User, email, success.User, raw), nil
}

// ValidateConfig checks the required CAS config keys.
func (h *CASHandler) ValidateConfig(provider *ProviderConfig) error {
	return requireConfigKeys(provider, "serverUrl")
}

// casAttributeString flattens a CAS attribute value. CAS v3 encodes
// multi-valued attributes as arrays; single values arrive as scalars.
func casAttributeString(v interface{}) string {
	if arr, ok := v.([]interface{}); ok {
		if len(arr) == 0 {
			return ""
		}
		v = arr[0]
	}
	return stringifyClaim(v)
}
