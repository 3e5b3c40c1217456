package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/jience/AwesomeSSOManager/pkg/auth"
	"github.com/jience/AwesomeSSOManager/pkg/contextkeys"
	"github.com/jience/AwesomeSSOManager/pkg/observability"
)

// AuthMiddleware authenticates requests with a bearer session token.
type AuthMiddleware struct {
	issuer  *auth.SessionIssuer
	metrics *observability.Metrics
}

// NewAuthMiddleware creates the authentication middleware.
func NewAuthMiddleware(issuer *auth.SessionIssuer) *AuthMiddleware {
	return &AuthMiddleware{issuer: issuer}
}

// WithMetrics enables token verification counters.
func (m *AuthMiddleware) WithMetrics(metrics *observability.Metrics) *AuthMiddleware {
	m.metrics = metrics
	return m
}

// Handler wraps next, rejecting requests without a valid session token.
// The verified user is placed in the request context.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := m.issuer.Verify(r.Context(), BearerToken(r))
		m.recordVerification(err == nil)
		if err != nil {
			var tokenErr *auth.TokenError
			if errors.As(err, &tokenErr) {
				unauthorized(w, tokenErr.Message())
				return
			}
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}

		ctx := context.WithValue(r.Context(), contextkeys.UserKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole wraps next, additionally rejecting authenticated users whose
// current role does not match. Must run inside Handler.
func (m *AuthMiddleware) RequireRole(role auth.Role, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		if !ok {
			unauthorized(w, "token is missing")
			return
		}
		if user.Role != role {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			json.NewEncoder(w).Encode(map[string]string{"error": "insufficient permissions"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// BearerToken extracts the bearer token from the Authorization header,
// returning "" when absent or malformed.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// UserFromContext returns the authenticated user set by Handler.
func UserFromContext(ctx context.Context) (*auth.User, bool) {
	user, ok := ctx.Value(contextkeys.UserKey).(*auth.User)
	return user, ok
}

func (m *AuthMiddleware) recordVerification(ok bool) {
	if m.metrics == nil {
		return
	}
	outcome := observability.OutcomeFailure
	if ok {
		outcome = observability.OutcomeSuccess
	}
	m.metrics.TokenVerificationsTotal.WithLabelValues(outcome).Inc()
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
