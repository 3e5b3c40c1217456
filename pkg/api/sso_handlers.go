package api

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/mux"

	"github.com/jience/AwesomeSSOManager/pkg/audit"
	"github.com/jience/AwesomeSSOManager/pkg/httputil"
	"github.com/jience/AwesomeSSOManager/pkg/middleware"
	"github.com/jience/AwesomeSSOManager/pkg/observability"
	"github.com/jience/AwesomeSSOManager/pkg/sso"
)

// SSOHandlers serves the browser-facing legs of a federated login.
type SSOHandlers struct {
	coordinator *sso.Coordinator
	audit       audit.Logger
	metrics     *observability.Metrics
	logger      *observability.Logger
	frontendURL string
}

// NewSSOHandlers creates the federated login handler group.
func NewSSOHandlers(coordinator *sso.Coordinator, auditLog audit.Logger, metrics *observability.Metrics,
	logger *observability.Logger, frontendURL string) *SSOHandlers {
	return &SSOHandlers{
		coordinator: coordinator,
		audit:       auditLog,
		metrics:     metrics,
		logger:      logger,
		frontendURL: strings.TrimSuffix(frontendURL, "/"),
	}
}

// RegisterRoutes registers the SSO flow routes
func (h *SSOHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/auth/sso/{provider}/login", h.ssoLogin).Methods("GET")
	// SAML POST binding delivers the response as a form post; everything
	// else arrives as a GET redirect.
	router.HandleFunc("/api/auth/sso/{provider}/callback", h.ssoCallback).Methods("GET", "POST")
}

// ssoLogin handles GET /api/auth/sso/{provider}/login
func (h *SSOHandlers) ssoLogin(w http.ResponseWriter, r *http.Request) {
	providerID := mux.Vars(r)["provider"]

	loginURL, err := h.coordinator.StartLogin(r.Context(), providerID)
	if err != nil {
		var confErr *sso.ConfigurationError
		if errors.As(err, &confErr) {
			httputil.WriteNotFoundError(w, confErr.Error())
			return
		}
		h.logger.WithError(err).WithProvider(providerID).Error("failed to start sso login")
		httputil.WriteInternalError(w, errors.New("internal server error"))
		return
	}

	http.Redirect(w, r, loginURL, http.StatusFound)
}

// ssoCallback handles GET|POST /api/auth/sso/{provider}/callback. A browser
// lands here from the identity provider, so the answer is always a redirect
// back to the frontend, never JSON.
func (h *SSOHandlers) ssoCallback(w http.ResponseWriter, r *http.Request) {
	providerID := mux.Vars(r)["provider"]

	if err := r.ParseForm(); err != nil {
		h.redirectError(w, r, providerID, sso.NewAuthenticationError("malformed callback request"))
		return
	}

	result, err := h.coordinator.CompleteLogin(r.Context(), providerID, r.Form)
	if err != nil {
		h.metrics.RecordLogin(providerID, "UNKNOWN", false)
		h.auditSSO(r, providerID, "", audit.EventStatusFailure, sso.SafeErrorMessage(err))
		h.redirectError(w, r, providerID, err)
		return
	}

	h.metrics.RecordLogin(providerID, string(result.Protocol), true)
	h.auditSSO(r, providerID, result.User.Username, audit.EventStatusSuccess, "sso login completed")

	h.redirect(w, r, url.Values{"token": {result.Token}})
}

// redirectError sends the browser back to the frontend with a sanitized
// error message. Full causes stay in the server log.
func (h *SSOHandlers) redirectError(w http.ResponseWriter, r *http.Request, providerID string, err error) {
	h.logger.WithError(err).WithProvider(providerID).Warn("sso callback failed")
	h.redirect(w, r, url.Values{"error": {sso.SafeErrorMessage(err)}})
}

func (h *SSOHandlers) redirect(w http.ResponseWriter, r *http.Request, params url.Values) {
	http.Redirect(w, r, h.frontendURL+"/sso/callback?"+params.Encode(), http.StatusFound)
}

func (h *SSOHandlers) auditSSO(r *http.Request, providerID, username string, status audit.EventStatus, message string) {
	eventType := audit.EventTypeSSOLogin
	if status == audit.EventStatusFailure {
		eventType = audit.EventTypeSSOLoginFailed
	}
	if err := h.audit.LogEvent(r.Context(), &audit.Event{
		Type:     eventType,
		Status:   status,
		Username: username,
		Provider: providerID,
		ClientIP: middleware.ClientIP(r),
		Message:  message,
	}); err != nil {
		h.logger.WithError(err).Warn("failed to write audit event")
	}
}
