package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/jience/AwesomeSSOManager/pkg/api"
	"github.com/jience/AwesomeSSOManager/pkg/audit"
	"github.com/jience/AwesomeSSOManager/pkg/auth"
	"github.com/jience/AwesomeSSOManager/pkg/config"
	"github.com/jience/AwesomeSSOManager/pkg/middleware"
	"github.com/jience/AwesomeSSOManager/pkg/observability"
	"github.com/jience/AwesomeSSOManager/pkg/sso"
	"github.com/jience/AwesomeSSOManager/pkg/storage"
)

// providerCacheSize bounds the LRU over provider configs. Deployments
// rarely register more than a handful of providers.
const providerCacheSize = 128

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "ssomanager: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Tracing
	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := observability.ShutdownOTel(shutdownCtx, otelProviders, logger); err != nil {
			logger.WithError(err).Error("OpenTelemetry shutdown failed")
		}
	}()

	// Storage
	store, db, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	providerStore, err := storage.NewCachedProviderStore(store, providerCacheSize)
	if err != nil {
		return fmt.Errorf("failed to create provider cache: %w", err)
	}

	// Seed providers from file, optionally hot-reloading on change
	if cfg.SSO.SeedFile != "" {
		if err := storage.LoadSeed(ctx, cfg.SSO.SeedFile, providerStore, logger); err != nil {
			return fmt.Errorf("failed to load provider seed: %w", err)
		}
		if cfg.SSO.WatchSeed {
			go func() {
				defer observability.RecoverPanic(logger, "seed watcher")
				if err := storage.WatchSeed(ctx, cfg.SSO.SeedFile, providerStore, logger); err != nil &&
					!errors.Is(err, context.Canceled) {
					logger.WithError(err).Error("seed watcher stopped")
				}
			}()
		}
	}

	// Metrics
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	// Redis (optional, enables login rate limiting)
	var redisClient *redis.Client
	var limiter *middleware.LoginRateLimiter
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		limiter = middleware.NewLoginRateLimiter(redisClient, &middleware.RateLimitConfig{
			RequestsPerWindow: cfg.Auth.LoginRateLimit,
			WindowDuration:    cfg.Auth.LoginRateWindow,
		}, logger).WithMetrics(metrics)
	} else {
		logger.Warn("no Redis configured, login rate limiting disabled")
	}

	// Federation plumbing
	issuer := auth.NewSessionIssuer([]byte(cfg.Auth.SessionSecret), store)
	ssoRegistry := sso.NewRegistry(nil)
	coordinator := sso.NewCoordinator(providerStore, ssoRegistry, sso.NewResolver(store), issuer,
		sso.NewStateSigner([]byte(cfg.Auth.StateSecret)), cfg.SSO.BaseURL, logger)

	// Audit: always log to stdout, additionally persist when postgres is
	// the backing store
	sinks := []audit.Logger{audit.NewWriterLogger(os.Stdout)}
	if db != nil {
		auditStore := audit.NewStore(db)
		if err := auditStore.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to migrate audit schema: %w", err)
		}
		scheduler := cron.New()
		if _, err := auditStore.ScheduleRetention(scheduler, cfg.Audit.Retention, logger); err != nil {
			return fmt.Errorf("failed to schedule audit retention: %w", err)
		}
		scheduler.Start()
		defer scheduler.Stop()
		// Database writes happen off the login path.
		sinks = append(sinks, audit.NewAsyncLogger(auditStore, logger))
	}
	auditLogger := audit.NewMultiLogger(sinks...)
	defer auditLogger.Close()

	refreshProviderGauge(ctx, providerStore, metrics, logger)

	apiServer := api.NewServer(api.Deps{
		Users:          store,
		Providers:      providerStore,
		Coordinator:    coordinator,
		Registry:       ssoRegistry,
		Issuer:         issuer,
		Logger:         logger,
		Metrics:        metrics,
		Audit:          auditLogger,
		RateLimiter:    limiter,
		FrontendURL:    cfg.SSO.FrontendURL,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	var handler http.Handler = apiServer
	if cfg.Observability.OTelEnabled {
		handler = otelhttp.NewHandler(handler, "ssomanager")
	}

	// Health and metrics on a separate listener for probes
	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(db, redisClient))
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}

	apiSrv := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	healthSrv := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:      healthMux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("API server listening on %s", apiSrv.Addr)
		if err := apiSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Infof("Health server listening on %s", healthSrv.Addr)
		if err := healthSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := apiSrv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("api server shutdown: %w", err))
		}
		if err := healthSrv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("health server shutdown: %w", err))
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Shutdown complete")
	return nil
}

// openStorage creates the configured backing store. The returned *sql.DB is
// non-nil only for postgres, where health checks and the audit trail share
// the pool.
func openStorage(ctx context.Context, cfg *config.Config, logger *observability.Logger) (storage.Store, *sql.DB, error) {
	switch cfg.Storage.Type {
	case config.StorageMemory:
		logger.Warn("using in-memory storage, data will not survive restarts")
		return storage.NewMemoryStore(), nil, nil
	case config.StorageSQLite:
		store, err := storage.NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite storage: %w", err)
		}
		logger.Infof("SQLite storage initialized at %s", cfg.Storage.SQLitePath)
		return store, nil, nil
	case config.StoragePostgres:
		store, err := storage.OpenPostgres(ctx, cfg.Storage.PostgresURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open postgres storage: %w", err)
		}
		logger.Info("PostgreSQL storage initialized")
		return store, store.DB(), nil
	default:
		return nil, nil, fmt.Errorf("unsupported storage type %q", cfg.Storage.Type)
	}
}

// refreshProviderGauge snapshots per-protocol provider counts at boot.
func refreshProviderGauge(ctx context.Context, providers sso.ProviderStore, metrics *observability.Metrics, logger *observability.Logger) {
	list, err := providers.ListProviders(ctx)
	if err != nil {
		logger.WithError(err).Warn("failed to count providers for metrics")
		return
	}
	counts := make(map[string]int)
	for _, p := range list {
		counts[string(p.Type)]++
	}
	for protocol, count := range counts {
		metrics.ProvidersRegistered.WithLabelValues(protocol).Set(float64(count))
	}
}
