package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jience/AwesomeSSOManager/pkg/observability"
)

// Storage backend types.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
	StorageSQLite   = "sqlite"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Auth configuration (session tokens, relay state, rate limits)
	Auth AuthConfig

	// Storage configuration
	Storage StorageConfig

	// Redis configuration (optional, enables the login rate limiter)
	Redis RedisConfig

	// SSO flow configuration
	SSO SSOConfig

	// Audit configuration
	Audit AuditConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string

	// AllowedOrigins configures CORS for the frontend
	AllowedOrigins []string
}

// AuthConfig holds session and login protection settings
type AuthConfig struct {
	// SessionSecret signs session tokens. Required.
	SessionSecret string

	// StateSecret signs SSO relay state. Defaults to SessionSecret.
	StateSecret string

	// Login rate limiting (requires Redis)
	LoginRateLimit  int
	LoginRateWindow time.Duration
}

// StorageConfig selects and configures the persistence backend
type StorageConfig struct {
	// Type is one of memory, sqlite, postgres
	Type string

	// SQLitePath is the database file for sqlite storage
	SQLitePath string

	// PostgresURL is the connection string for postgres storage
	PostgresURL string
}

// RedisConfig holds the optional Redis connection. An empty Addr disables
// Redis-backed features.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// SSOConfig holds the federation flow settings
type SSOConfig struct {
	// BaseURL is this service's externally reachable origin, used to
	// derive provider callback URLs
	BaseURL string

	// FrontendURL is where completed logins redirect the browser
	FrontendURL string

	// SeedFile optionally points at a YAML provider seed file
	SeedFile string

	// WatchSeed reloads the seed file on change
	WatchSeed bool
}

// AuditConfig holds audit trail settings
type AuditConfig struct {
	// Retention bounds how long persisted audit events are kept
	Retention time.Duration
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Auth:          loadAuthConfig(),
		Storage:       loadStorageConfig(),
		Redis:         loadRedisConfig(),
		SSO:           loadSSOConfig(),
		Audit:         loadAuditConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("SSOM_HOST", "0.0.0.0"),
		Port:            getEnv("SSOM_PORT", "8080"),
		ReadTimeout:     getEnvDuration("SSOM_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("SSOM_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("SSOM_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("SSOM_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("SSOM_HEALTH_PORT", "9090"),
		AllowedOrigins:  getEnvList("SSOM_ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
	}
}

// loadAuthConfig loads session configuration from environment
func loadAuthConfig() AuthConfig {
	sessionSecret := getEnv("SSOM_SESSION_SECRET", "")
	return AuthConfig{
		SessionSecret:   sessionSecret,
		StateSecret:     getEnv("SSOM_STATE_SECRET", sessionSecret),
		LoginRateLimit:  getEnvInt("SSOM_LOGIN_RATE_LIMIT", 10),
		LoginRateWindow: getEnvDuration("SSOM_LOGIN_RATE_WINDOW", time.Minute),
	}
}

// loadStorageConfig loads storage configuration from environment
func loadStorageConfig() StorageConfig {
	return StorageConfig{
		Type:        strings.ToLower(getEnv("SSOM_STORAGE_TYPE", StorageMemory)),
		SQLitePath:  getEnv("SSOM_SQLITE_PATH", "ssomanager.db"),
		PostgresURL: getEnv("SSOM_POSTGRES_URL", ""),
	}
}

// loadRedisConfig loads Redis configuration from environment
func loadRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:     getEnv("SSOM_REDIS_ADDR", ""),
		Password: getEnv("SSOM_REDIS_PASSWORD", ""),
		DB:       getEnvInt("SSOM_REDIS_DB", 0),
	}
}

// loadSSOConfig loads SSO flow configuration from environment
func loadSSOConfig() SSOConfig {
	return SSOConfig{
		BaseURL:     getEnv("SSOM_BASE_URL", "http://localhost:8080"),
		FrontendURL: getEnv("SSOM_FRONTEND_URL", "http://localhost:5173"),
		SeedFile:    getEnv("SSOM_SEED_FILE", ""),
		WatchSeed:   getEnvBool("SSOM_SEED_WATCH", true),
	}
}

// loadAuditConfig loads audit configuration from environment
func loadAuditConfig() AuditConfig {
	days := getEnvInt("SSOM_AUDIT_RETENTION_DAYS", 90)
	return AuditConfig{
		Retention: time.Duration(days) * 24 * time.Hour,
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           parseLogLevel(getEnv("SSOM_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("SSOM_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("SSOM_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("SSOM_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("SSOM_OTEL_SERVICE_NAME", "sso-manager"),
		OTelServiceVersion: getEnv("SSOM_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("SSOM_OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	// Validate auth config
	if c.Auth.SessionSecret == "" {
		return fmt.Errorf("SSOM_SESSION_SECRET is required")
	}
	if c.Auth.LoginRateLimit <= 0 {
		return fmt.Errorf("login rate limit must be positive")
	}

	// Validate storage config based on type
	switch c.Storage.Type {
	case StorageMemory:
	case StorageSQLite:
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required for sqlite storage")
		}
	case StoragePostgres:
		if c.Storage.PostgresURL == "" {
			return fmt.Errorf("postgres URL is required for postgres storage")
		}
	default:
		return fmt.Errorf("invalid storage type: %s (must be memory, sqlite, or postgres)", c.Storage.Type)
	}

	// Validate SSO config
	if !strings.HasPrefix(c.SSO.BaseURL, "http://") && !strings.HasPrefix(c.SSO.BaseURL, "https://") {
		return fmt.Errorf("base URL must be an absolute http(s) URL")
	}
	if !strings.HasPrefix(c.SSO.FrontendURL, "http://") && !strings.HasPrefix(c.SSO.FrontendURL, "https://") {
		return fmt.Errorf("frontend URL must be an absolute http(s) URL")
	}

	// Validate audit config
	if c.Audit.Retention <= 0 {
		return fmt.Errorf("audit retention must be positive")
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvList returns a comma-separated environment variable or a default
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
