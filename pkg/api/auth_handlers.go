package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/jience/AwesomeSSOManager/pkg/audit"
	"github.com/jience/AwesomeSSOManager/pkg/auth"
	"github.com/jience/AwesomeSSOManager/pkg/httputil"
	"github.com/jience/AwesomeSSOManager/pkg/middleware"
	"github.com/jience/AwesomeSSOManager/pkg/observability"
)

// localProvider labels credential logins in metrics and audit events.
const (
	localProvider = "local"
	localProtocol = "LOCAL"
)

// AuthHandlers serves local credential login and the current-user endpoint.
type AuthHandlers struct {
	users   auth.UserStore
	issuer  *auth.SessionIssuer
	authMW  *middleware.AuthMiddleware
	limiter *middleware.LoginRateLimiter
	audit   audit.Logger
	metrics *observability.Metrics
	logger  *observability.Logger
}

// NewAuthHandlers creates the authentication handler group.
func NewAuthHandlers(users auth.UserStore, issuer *auth.SessionIssuer, authMW *middleware.AuthMiddleware,
	limiter *middleware.LoginRateLimiter, auditLog audit.Logger, metrics *observability.Metrics,
	logger *observability.Logger) *AuthHandlers {
	return &AuthHandlers{
		users:   users,
		issuer:  issuer,
		authMW:  authMW,
		limiter: limiter,
		audit:   auditLog,
		metrics: metrics,
		logger:  logger,
	}
}

// RegisterRoutes registers authentication routes
func (h *AuthHandlers) RegisterRoutes(router *mux.Router) {
	login := http.Handler(http.HandlerFunc(h.login))
	if h.limiter != nil {
		login = h.limiter.Handler(login)
	}
	router.Handle("/api/auth/login", login).Methods("POST")
	router.Handle("/api/auth/me", h.authMW.Handler(http.HandlerFunc(h.me))).Methods("GET")
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string     `json:"token"`
	User  *auth.User `json:"user"`
}

// login handles POST /api/auth/login
func (h *AuthHandlers) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		httputil.WriteBadRequest(w, "Missing username or password")
		return
	}

	user, err := h.users.GetUserByUsername(r.Context(), req.Username)
	if err != nil && !errors.Is(err, auth.ErrUserNotFound) {
		h.logger.WithError(err).Error("failed to load user for login")
		httputil.WriteInternalError(w, errors.New("internal server error"))
		return
	}

	// One rejection path for unknown users, wrong passwords and
	// federation-only accounts, so responses don't leak which it was.
	if user == nil || !user.CheckPassword(req.Password) {
		h.metrics.RecordLogin(localProvider, localProtocol, false)
		h.auditLogin(r, req.Username, audit.EventStatusFailure, "invalid credentials")
		httputil.WriteUnauthorized(w, "Invalid credentials")
		return
	}

	token, err := h.issuer.Issue(user)
	if err != nil {
		h.logger.WithError(err).Error("failed to issue session token")
		httputil.WriteInternalError(w, errors.New("internal server error"))
		return
	}

	h.metrics.RecordLogin(localProvider, localProtocol, true)
	h.auditLogin(r, user.Username, audit.EventStatusSuccess, "local login completed")
	httputil.WriteSuccess(w, loginResponse{Token: token, User: user})
}

// me handles GET /api/auth/me
func (h *AuthHandlers) me(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "token is missing")
		return
	}
	httputil.WriteSuccess(w, user)
}

func (h *AuthHandlers) auditLogin(r *http.Request, username string, status audit.EventStatus, message string) {
	eventType := audit.EventTypeLocalLogin
	if status == audit.EventStatusFailure {
		eventType = audit.EventTypeLocalLoginFailed
	}
	if err := h.audit.LogEvent(r.Context(), &audit.Event{
		Type:     eventType,
		Status:   status,
		Username: username,
		Provider: localProvider,
		Protocol: localProtocol,
		ClientIP: middleware.ClientIP(r),
		Message:  message,
	}); err != nil {
		h.logger.WithError(err).Warn("failed to write audit event")
	}
}
