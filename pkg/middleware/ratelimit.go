package middleware

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/jience/AwesomeSSOManager/pkg/observability"
)

// RateLimitConfig configures the login rate limiter.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// DefaultRateLimitConfig returns the default limits for login endpoints:
// tight enough to blunt credential stuffing, loose enough for a user
// fumbling a password.
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerWindow: 10,
		WindowDuration:    time.Minute,
	}
}

// LoginRateLimiter is a Redis-backed fixed-window limiter keyed by client
// IP, shared across instances. Redis failures fail open: an unreachable
// limiter must not lock everyone out.
type LoginRateLimiter struct {
	redis   *redis.Client
	config  *RateLimitConfig
	prefix  string
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewLoginRateLimiter creates a limiter over the given Redis client.
func NewLoginRateLimiter(redisClient *redis.Client, config *RateLimitConfig, logger *observability.Logger) *LoginRateLimiter {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	return &LoginRateLimiter{
		redis:  redisClient,
		config: config,
		prefix: "loginlimit",
		logger: logger,
	}
}

// WithMetrics enables the rejected-request counter.
func (rl *LoginRateLimiter) WithMetrics(metrics *observability.Metrics) *LoginRateLimiter {
	rl.metrics = metrics
	return rl
}

// Allow reports whether the key has budget left in the current window.
func (rl *LoginRateLimiter) Allow(r *http.Request, key string) bool {
	ctx := r.Context()
	redisKey := fmt.Sprintf("%s:%s", rl.prefix, key)

	pipe := rl.redis.Pipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, rl.config.WindowDuration)
	if _, err := pipe.Exec(ctx); err != nil {
		rl.logger.WithError(err).Warn("rate limiter unavailable, failing open")
		return true
	}
	return incr.Val() <= int64(rl.config.RequestsPerWindow)
}

// Handler wraps next with per-IP limiting.
func (rl *LoginRateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(r, ClientIP(r)) {
			if rl.metrics != nil {
				rl.metrics.RateLimitedTotal.Inc()
			}
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", strconv.Itoa(int(rl.config.WindowDuration.Seconds())))
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]string{"error": "too many login attempts, try again later"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClientIP resolves the caller's address, honoring X-Forwarded-For when a
// proxy sits in front.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
