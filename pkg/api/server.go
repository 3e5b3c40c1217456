package api

import (
	"net/http"

	"github.com/go-chi/cors"
	"github.com/gorilla/mux"

	"github.com/jience/AwesomeSSOManager/pkg/audit"
	"github.com/jience/AwesomeSSOManager/pkg/auth"
	"github.com/jience/AwesomeSSOManager/pkg/httputil"
	"github.com/jience/AwesomeSSOManager/pkg/middleware"
	"github.com/jience/AwesomeSSOManager/pkg/observability"
	"github.com/jience/AwesomeSSOManager/pkg/sso"
)

// maxRequestBody bounds JSON request bodies. Provider configs are small;
// anything larger is abuse.
const maxRequestBody = 1 << 20 // 1 MiB

// Deps carries everything the API server needs. Audit and RateLimiter are
// optional; the rest must be set.
type Deps struct {
	// Users and Providers are usually the same storage.Store, but the
	// provider side may be wrapped in a read-through cache.
	Users     auth.UserStore
	Providers sso.ProviderStore

	Coordinator *sso.Coordinator
	Registry    *sso.Registry
	Issuer      *auth.SessionIssuer
	Logger      *observability.Logger
	Metrics     *observability.Metrics

	// Audit receives login and provider change events. Nil disables auditing.
	Audit audit.Logger

	// RateLimiter guards the credential login endpoint. Nil disables limiting.
	RateLimiter *middleware.LoginRateLimiter

	// FrontendURL is where the SSO callback redirects browsers, without a
	// trailing slash.
	FrontendURL string

	// AllowedOrigins configures CORS for the frontend.
	AllowedOrigins []string
}

// Server represents our API server
type Server struct {
	router  *mux.Router
	handler http.Handler
	logger  *observability.Logger
}

// NewServer creates a new API server
func NewServer(deps Deps) *Server {
	s := &Server{
		router: mux.NewRouter(),
		logger: deps.Logger,
	}

	if deps.Audit == nil {
		deps.Audit = audit.NopLogger{}
	}

	authMW := middleware.NewAuthMiddleware(deps.Issuer).WithMetrics(deps.Metrics)

	s.router.Use(mux.MiddlewareFunc(observability.HTTPMetricsMiddleware(deps.Metrics, routeTemplate)))

	authHandlers := NewAuthHandlers(deps.Users, deps.Issuer, authMW, deps.RateLimiter, deps.Audit, deps.Metrics, deps.Logger)
	authHandlers.RegisterRoutes(s.router)

	ssoHandlers := NewSSOHandlers(deps.Coordinator, deps.Audit, deps.Metrics, deps.Logger, deps.FrontendURL)
	ssoHandlers.RegisterRoutes(s.router)

	providerHandlers := NewProviderHandlers(deps.Providers, deps.Registry, authMW, deps.Audit, deps.Logger)
	providerHandlers.RegisterRoutes(s.router)

	dashboardHandlers := NewDashboardHandlers(deps.Providers, authMW)
	dashboardHandlers.RegisterRoutes(s.router)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   deps.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           3600,
	}).Handler(s.router)

	s.handler = httputil.Chain(
		httputil.RecoveryMiddleware(deps.Logger),
		httputil.MaxBytesMiddleware(maxRequestBody),
	)(corsHandler)

	return s
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// routeTemplate reduces request paths to their mux route template so the
// metrics path label stays low-cardinality.
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return r.URL.Path
}
