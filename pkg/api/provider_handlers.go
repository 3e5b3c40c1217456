package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/jience/AwesomeSSOManager/pkg/audit"
	"github.com/jience/AwesomeSSOManager/pkg/auth"
	"github.com/jience/AwesomeSSOManager/pkg/httputil"
	"github.com/jience/AwesomeSSOManager/pkg/middleware"
	"github.com/jience/AwesomeSSOManager/pkg/observability"
	"github.com/jience/AwesomeSSOManager/pkg/sso"
)

// redactedSecret replaces sensitive config values in API responses.
const redactedSecret = "********"

// ProviderHandlers serves CRUD over identity provider registrations.
// Reads require a session; mutations additionally require the admin role.
type ProviderHandlers struct {
	providers sso.ProviderStore
	registry  *sso.Registry
	authMW    *middleware.AuthMiddleware
	audit     audit.Logger
	logger    *observability.Logger
}

// NewProviderHandlers creates the provider management handler group.
func NewProviderHandlers(providers sso.ProviderStore, registry *sso.Registry,
	authMW *middleware.AuthMiddleware, auditLog audit.Logger, logger *observability.Logger) *ProviderHandlers {
	return &ProviderHandlers{
		providers: providers,
		registry:  registry,
		authMW:    authMW,
		audit:     auditLog,
		logger:    logger,
	}
}

// RegisterRoutes registers provider management routes
func (h *ProviderHandlers) RegisterRoutes(router *mux.Router) {
	authed := func(fn http.HandlerFunc) http.Handler {
		return h.authMW.Handler(fn)
	}
	admin := func(fn http.HandlerFunc) http.Handler {
		return h.authMW.Handler(h.authMW.RequireRole(auth.RoleAdmin, fn))
	}

	router.Handle("/api/providers", authed(h.listProviders)).Methods("GET")
	router.Handle("/api/providers/{id}", authed(h.getProvider)).Methods("GET")
	router.Handle("/api/providers", admin(h.createProvider)).Methods("POST")
	router.Handle("/api/providers/{id}", admin(h.updateProvider)).Methods("PUT")
	router.Handle("/api/providers/{id}", admin(h.deleteProvider)).Methods("DELETE")
}

// listProviders handles GET /api/providers
func (h *ProviderHandlers) listProviders(w http.ResponseWriter, r *http.Request) {
	providers, err := h.providers.ListProviders(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("failed to list providers")
		httputil.WriteInternalError(w, errors.New("internal server error"))
		return
	}

	sanitized := make([]*sso.ProviderConfig, len(providers))
	for i, provider := range providers {
		sanitized[i] = sanitizeProvider(provider)
	}
	httputil.WriteSuccess(w, sanitized)
}

// getProvider handles GET /api/providers/{id}
func (h *ProviderHandlers) getProvider(w http.ResponseWriter, r *http.Request) {
	provider, err := h.providers.GetProvider(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeProviderError(w, err)
		return
	}
	httputil.WriteSuccess(w, sanitizeProvider(provider))
}

type createProviderRequest struct {
	Name        string            `json:"name"`
	Type        string            `json:"type"`
	Logo        string            `json:"logo"`
	Description string            `json:"description"`
	Enabled     *bool             `json:"isEnabled"`
	Config      map[string]string `json:"config"`
}

// createProvider handles POST /api/providers
func (h *ProviderHandlers) createProvider(w http.ResponseWriter, r *http.Request) {
	var req createProviderRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Name == "" || req.Type == "" {
		httputil.WriteBadRequest(w, "Missing required fields")
		return
	}

	handler, err := h.registry.Resolve(req.Type)
	if err != nil {
		httputil.WriteBadRequest(w, sso.SafeErrorMessage(err))
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	if req.Config == nil {
		req.Config = map[string]string{}
	}

	provider := &sso.ProviderConfig{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Type:        handler.Type(),
		Logo:        req.Logo,
		Description: req.Description,
		Enabled:     enabled,
		Config:      req.Config,
		CreatedAt:   time.Now().UTC(),
	}

	if err := handler.ValidateConfig(provider); err != nil {
		httputil.WriteBadRequest(w, sso.SafeErrorMessage(err))
		return
	}

	if err := h.providers.CreateProvider(r.Context(), provider); err != nil {
		h.writeProviderError(w, err)
		return
	}

	h.auditChange(r, audit.EventTypeProviderCreate, provider)
	httputil.WriteCreated(w, sanitizeProvider(provider))
}

// updateProviderRequest uses pointer fields so absent keys leave the stored
// value untouched. The ID is immutable and has no field here.
type updateProviderRequest struct {
	Name        *string            `json:"name"`
	Type        *string            `json:"type"`
	Logo        *string            `json:"logo"`
	Description *string            `json:"description"`
	Enabled     *bool              `json:"isEnabled"`
	Config      *map[string]string `json:"config"`
}

// updateProvider handles PUT /api/providers/{id}
func (h *ProviderHandlers) updateProvider(w http.ResponseWriter, r *http.Request) {
	provider, err := h.providers.GetProvider(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeProviderError(w, err)
		return
	}

	var req updateProviderRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if req.Name != nil {
		provider.Name = *req.Name
	}
	if req.Type != nil {
		provider.Type = sso.ProtocolType(*req.Type)
	}
	if req.Logo != nil {
		provider.Logo = *req.Logo
	}
	if req.Description != nil {
		provider.Description = *req.Description
	}
	if req.Enabled != nil {
		provider.Enabled = *req.Enabled
	}
	if req.Config != nil {
		// A round-tripped masked secret means "keep the stored one".
		previousSecret := provider.Config["clientSecret"]
		provider.Config = *req.Config
		if provider.Config["clientSecret"] == redactedSecret {
			provider.Config["clientSecret"] = previousSecret
		}
	}

	handler, err := h.registry.Resolve(string(provider.Type))
	if err != nil {
		httputil.WriteBadRequest(w, sso.SafeErrorMessage(err))
		return
	}
	provider.Type = handler.Type()
	if err := handler.ValidateConfig(provider); err != nil {
		httputil.WriteBadRequest(w, sso.SafeErrorMessage(err))
		return
	}

	if err := h.providers.UpdateProvider(r.Context(), provider); err != nil {
		h.writeProviderError(w, err)
		return
	}

	h.auditChange(r, audit.EventTypeProviderUpdate, provider)
	httputil.WriteSuccess(w, sanitizeProvider(provider))
}

// deleteProvider handles DELETE /api/providers/{id}
func (h *ProviderHandlers) deleteProvider(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	provider, err := h.providers.GetProvider(r.Context(), id)
	if err != nil {
		h.writeProviderError(w, err)
		return
	}

	if err := h.providers.DeleteProvider(r.Context(), id); err != nil {
		h.writeProviderError(w, err)
		return
	}

	h.auditChange(r, audit.EventTypeProviderDelete, provider)
	httputil.WriteSuccess(w, map[string]string{"message": "Provider deleted successfully"})
}

func (h *ProviderHandlers) writeProviderError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, sso.ErrProviderNotFound):
		httputil.WriteNotFoundError(w, "Provider not found")
	case errors.Is(err, sso.ErrProviderExists):
		httputil.WriteConflict(w, "Provider already exists")
	default:
		h.logger.WithError(err).Error("provider storage operation failed")
		httputil.WriteInternalError(w, errors.New("internal server error"))
	}
}

func (h *ProviderHandlers) auditChange(r *http.Request, eventType audit.EventType, provider *sso.ProviderConfig) {
	username := ""
	if user, ok := middleware.UserFromContext(r.Context()); ok {
		username = user.Username
	}
	if err := h.audit.LogEvent(r.Context(), &audit.Event{
		Type:     eventType,
		Status:   audit.EventStatusSuccess,
		Username: username,
		Provider: provider.ID,
		Protocol: string(provider.Type),
		ClientIP: middleware.ClientIP(r),
		Message:  provider.Name,
	}); err != nil {
		h.logger.WithError(err).Warn("failed to write audit event")
	}
}

// sanitizeProvider copies a provider with secret config values masked.
// Stored values are never mutated.
func sanitizeProvider(provider *sso.ProviderConfig) *sso.ProviderConfig {
	out := *provider
	out.Config = make(map[string]string, len(provider.Config))
	for k, v := range provider.Config {
		if k == "clientSecret" && v != "" {
			out.Config[k] = redactedSecret
			continue
		}
		out.Config[k] = v
	}
	return &out
}
