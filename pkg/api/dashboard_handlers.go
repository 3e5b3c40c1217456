package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/jience/AwesomeSSOManager/pkg/httputil"
	"github.com/jience/AwesomeSSOManager/pkg/middleware"
	"github.com/jience/AwesomeSSOManager/pkg/sso"
)

// DashboardHandlers serves aggregate statistics for the admin UI.
type DashboardHandlers struct {
	providers sso.ProviderStore
	authMW    *middleware.AuthMiddleware
}

// NewDashboardHandlers creates the dashboard handler group.
func NewDashboardHandlers(providers sso.ProviderStore, authMW *middleware.AuthMiddleware) *DashboardHandlers {
	return &DashboardHandlers{providers: providers, authMW: authMW}
}

// RegisterRoutes registers dashboard routes
func (h *DashboardHandlers) RegisterRoutes(router *mux.Router) {
	router.Handle("/api/dashboard/stats", h.authMW.Handler(http.HandlerFunc(h.stats))).Methods("GET")
}

type dashboardStats struct {
	TotalProviders  int            `json:"totalProviders"`
	ActiveProviders int            `json:"activeProviders"`
	ProtocolStats   map[string]int `json:"protocolStats"`
}

// stats handles GET /api/dashboard/stats
func (h *DashboardHandlers) stats(w http.ResponseWriter, r *http.Request) {
	providers, err := h.providers.ListProviders(r.Context())
	if err != nil {
		httputil.WriteInternalError(w, errors.New("internal server error"))
		return
	}

	stats := dashboardStats{
		TotalProviders: len(providers),
		ProtocolStats:  make(map[string]int),
	}
	for _, provider := range providers {
		if provider.Enabled {
			stats.ActiveProviders++
		}
		stats.ProtocolStats[string(provider.Type)]++
	}

	httputil.WriteSuccess(w, stats)
}
