package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jience/AwesomeSSOManager/pkg/audit"
	"github.com/jience/AwesomeSSOManager/pkg/auth"
	"github.com/jience/AwesomeSSOManager/pkg/middleware"
	"github.com/jience/AwesomeSSOManager/pkg/observability"
)

func TestLoginSuccess(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedUser(t, "alice", "s3cret", auth.RoleAdmin)

	rec := env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": "alice",
		"password": "s3cret",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Token string     `json:"token"`
		User  *auth.User `json:"user"`
	}
	decodeBody(t, rec, &resp)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "alice", resp.User.Username)
	assert.Equal(t, auth.RoleAdmin, resp.User.Role)
	assert.NotContains(t, rec.Body.String(), "passwordHash", "hashes must never serialize")

	events := env.audit.byType(audit.EventTypeLocalLogin)
	require.Len(t, events, 1)
	assert.Equal(t, audit.EventStatusSuccess, events[0].Status)
	assert.Equal(t, "alice", events[0].Username)
}

func TestLoginRejections(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedUser(t, "alice", "s3cret", auth.RoleUser)

	federated := &auth.User{ID: "fed-id", Username: "fed", Email: "fed@example.com", Role: auth.RoleUser}
	require.NoError(t, env.store.CreateUser(context.Background(), federated))

	tests := []struct {
		name     string
		body     map[string]string
		wantCode int
		wantErr  string
	}{
		{
			name:     "wrong password",
			body:     map[string]string{"username": "alice", "password": "nope"},
			wantCode: http.StatusUnauthorized,
			wantErr:  "Invalid credentials",
		},
		{
			name:     "unknown user",
			body:     map[string]string{"username": "ghost", "password": "s3cret"},
			wantCode: http.StatusUnauthorized,
			wantErr:  "Invalid credentials",
		},
		{
			name:     "federated account has no usable password",
			body:     map[string]string{"username": "fed", "password": ""},
			wantCode: http.StatusBadRequest,
			wantErr:  "Missing username or password",
		},
		{
			name:     "federated account with guessed password",
			body:     map[string]string{"username": "fed", "password": "anything"},
			wantCode: http.StatusUnauthorized,
			wantErr:  "Invalid credentials",
		},
		{
			name:     "missing username",
			body:     map[string]string{"password": "s3cret"},
			wantCode: http.StatusBadRequest,
			wantErr:  "Missing username or password",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/auth/login", "", tt.body)
			assert.Equal(t, tt.wantCode, rec.Code)

			var resp map[string]string
			decodeBody(t, rec, &resp)
			assert.Equal(t, tt.wantErr, resp["error"])
		})
	}
}

func TestLoginFailureAudited(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedUser(t, "alice", "s3cret", auth.RoleUser)

	env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": "alice",
		"password": "wrong",
	})

	events := env.audit.byType(audit.EventTypeLocalLoginFailed)
	require.Len(t, events, 1)
	assert.Equal(t, audit.EventStatusFailure, events[0].Status)
	assert.Equal(t, "alice", events[0].Username)
	assert.NotEmpty(t, events[0].ClientIP)
}

func TestMe(t *testing.T) {
	env := newTestEnv(t, nil)
	user := env.seedUser(t, "alice", "s3cret", auth.RoleUser)

	rec := env.do(t, http.MethodGet, "/api/auth/me", env.token(t, user), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got auth.User
	decodeBody(t, rec, &got)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, "alice@example.com", got.Email)
}

func TestMeWithoutToken(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginRateLimited(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	limiter := middleware.NewLoginRateLimiter(client,
		&middleware.RateLimitConfig{RequestsPerWindow: 2, WindowDuration: time.Minute},
		observability.NewLogger(observability.ErrorLevel, io.Discard))

	env := newTestEnv(t, limiter)
	env.seedUser(t, "alice", "s3cret", auth.RoleUser)

	body := map[string]string{"username": "alice", "password": "wrong"}
	for i := 0; i < 2; i++ {
		rec := env.do(t, http.MethodPost, "/api/auth/login", "", body)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	rec := env.do(t, http.MethodPost, "/api/auth/login", "", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestLoginMalformedBody(t *testing.T) {
	env := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
