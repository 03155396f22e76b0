// Package observability provides structured logging, Prometheus metrics, health
// checks and OpenTelemetry setup for the tally services.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("entity_type", "task").WithError(err).Warn("index upsert failed")
//
// Request-scoped logging picks up the request and user ids stored in the
// context by the API middleware:
//
//	observability.FromContext(ctx).Info("saved search deleted")
//
// # Prometheus Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.ObserveSearch("task", 12, 3*time.Millisecond)
//
// All Metrics methods accept a nil receiver so libraries can be used without
// a registry.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisClient)
//	observability.RegisterHealthRoutes(mux, checker)
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, cfg, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
package observability
