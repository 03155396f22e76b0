package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/tally/pkg/api"
	"github.com/platinummonkey/tally/pkg/config"
	"github.com/platinummonkey/tally/pkg/middleware"
	"github.com/platinummonkey/tally/pkg/observability"
	"github.com/platinummonkey/tally/pkg/records"
	"github.com/platinummonkey/tally/pkg/savedsearch"
	"github.com/platinummonkey/tally/pkg/search"
	"github.com/platinummonkey/tally/pkg/storage/backend"
	"github.com/platinummonkey/tally/pkg/storage/postgres"
)

// set with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	migrateEntities := flag.Bool("migrate-entities", false, "Create the contact, project, task and user tables (development only)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.Level(), os.Stdout).WithField("service", "tally")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, *migrateEntities); err != nil {
		logger.WithError(err).Error("tally exited with error")
		os.Exit(1)
	}
	logger.Info("tally stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *observability.Logger, migrateEntities bool) error {
	otelCfg := cfg.Observability.OTel()
	if otelCfg.ServiceVersion == "" {
		otelCfg.ServiceVersion = version
	}
	providers, err := observability.InitOTel(ctx, otelCfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := observability.ShutdownOTel(shutdownCtx, providers, logger); err != nil {
			logger.WithError(err).Warn("failed to shut down OpenTelemetry")
		}
	}()

	var (
		registry *prometheus.Registry
		metrics  *observability.Metrics
	)
	if cfg.Observability.MetricsEnabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics = observability.NewMetrics(registry)
	}

	conns, err := postgres.NewConnectionManager(postgres.ConnectionConfigFrom(cfg.Storage), logger)
	if err != nil {
		return err
	}
	defer conns.Close()
	conns.StartHealthCheckRoutine(ctx, 30*time.Second)

	if err := savedsearch.Migrate(ctx, conns.Primary()); err != nil {
		return err
	}
	if migrateEntities {
		if err := records.Migrate(ctx, conns.Primary()); err != nil {
			return err
		}
		logger.Info("entity tables migrated")
	}

	be, err := backend.Open(ctx, cfg.Storage, conns, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := be.Close(); err != nil {
			logger.WithError(err).Warn("failed to close storage")
		}
	}()

	recordStore := records.NewStore(conns)
	indexer := search.NewIndexer(be.Index, recordStore, search.IndexerConfig{
		Locker:  be.Locker,
		LockTTL: cfg.Search.RebuildLockTTL,
		Logger:  logger,
		Metrics: metrics,
	})

	if err := be.Warm(ctx, indexer, cfg.Storage.SnapshotKey, cfg.Search.RestoreSnapshot, cfg.Search.RebuildOnStart, logger); err != nil {
		return err
	}

	dispatcher, err := search.NewDispatcher(indexer, search.DispatcherConfig{
		Workers:     cfg.Search.IndexWorkers,
		TaskTimeout: cfg.Search.IndexTaskTimeout,
		Logger:      logger,
		Metrics:     metrics,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := dispatcher.Close(cfg.Server.ShutdownTimeout); err != nil {
			logger.WithError(err).Warn("index dispatcher did not drain")
		}
	}()

	manager := savedsearch.NewManager(conns.Primary(), savedsearch.Config{
		HistoryLimit: cfg.Search.HistoryLimit,
		Logger:       logger,
		Metrics:      metrics,
	})

	var lookups search.Lookups = recordStore
	if cfg.Search.EnrichmentCacheSize > 0 {
		lookups = search.NewCachedLookups(recordStore, cfg.Search.EnrichmentCacheSize, cfg.Search.EnrichmentCacheTTL, metrics)
	}

	engine := search.NewEngine(be.Index, search.EngineConfig{
		Lookups:       lookups,
		History:       manager,
		MaxHighlights: cfg.Search.MaxHighlights,
		Logger:        logger,
		Metrics:       metrics,
	})

	server := api.NewServer(api.Config{
		RateLimit:     rateLimit(ctx, cfg.Server, be, logger, metrics),
		Searcher:      engine,
		SavedSearches: manager,
		Rebuilder:     indexer,
		Updater:       dispatcher,
		Records:       recordStore,
		Index:         be.Index,
		Authorizer:    recordStore,
		RebuildHook:   snapshotAfterRebuild(be, cfg.Storage.SnapshotKey, cfg.Server.ShutdownTimeout, logger),
		RebuildLimit:  cfg.Search.RebuildTimeout,
		Logger:        logger,
		Metrics:       metrics,
	})

	health := observability.NewHealthChecker(version).
		AddCheck("postgres", true, observability.DatabaseCheck(conns.Primary()))
	if be.Redis != nil {
		health.AddCheck("redis", false, observability.RedisCheck(be.Redis))
	}
	if be.Snapshots != nil {
		health.AddCheck("s3", false, be.Snapshots.HealthCheck)
	}

	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, health)
	if registry != nil {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	healthServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:           healthMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	if path := os.Getenv(config.FileEnv); path != "" {
		g.Go(func() error {
			err := config.Watch(gctx, path, logger, func(next *config.Config) {
				logger.SetLevel(next.Observability.Level())
			})
			if err != nil {
				logger.WithError(err).Warn("config reload disabled")
			}
			return nil
		})
	}

	for _, srv := range []*http.Server{apiServer, healthServer} {
		g.Go(func() error {
			logger.WithField("addr", srv.Addr).Info("listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server on %s failed: %w", srv.Addr, err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return errors.Join(apiServer.Shutdown(shutdownCtx), healthServer.Shutdown(shutdownCtx))
	})

	return g.Wait()
}

// rateLimit builds the API's per caller limiter, shared through Redis when
// the backend has it
func rateLimit(ctx context.Context, cfg config.ServerConfig, be *backend.Backend, logger *observability.Logger, metrics *observability.Metrics) func(http.Handler) http.Handler {
	if !cfg.RateLimitEnabled {
		return nil
	}
	userCfg := middleware.RateLimitConfig{RequestsPerWindow: cfg.RateLimitUser, WindowDuration: time.Minute, BurstSize: cfg.RateLimitBurst}
	anonCfg := middleware.RateLimitConfig{RequestsPerWindow: cfg.RateLimitAnonymous, WindowDuration: time.Minute, BurstSize: cfg.RateLimitBurst}

	var users, anonymous middleware.Limiter
	if be.Redis != nil {
		users = middleware.NewDistributedRateLimiter(be.Redis, userCfg, "tally:ratelimit:user")
		anonymous = middleware.NewDistributedRateLimiter(be.Redis, anonCfg, "tally:ratelimit:anon")
	} else {
		local := middleware.NewRateLimiter(userCfg)
		local.StartCleanup(ctx)
		users = local
		local = middleware.NewRateLimiter(anonCfg)
		local.StartCleanup(ctx)
		anonymous = local
	}
	return middleware.NewRateLimitMiddleware(users, anonymous, logger, metrics).Handler
}

// snapshotAfterRebuild uploads a fresh snapshot once an admin triggered
// rebuild succeeds
func snapshotAfterRebuild(be *backend.Backend, key string, timeout time.Duration, logger *observability.Logger) func(*search.RebuildStats, error) {
	return func(stats *search.RebuildStats, err error) {
		if err != nil || be.Snapshots == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		n, err := be.ExportSnapshot(ctx, key)
		if err != nil {
			logger.WithError(err).Warn("failed to export index snapshot")
			return
		}
		logger.WithField("entries", n).Info("index snapshot exported")
	}
}
