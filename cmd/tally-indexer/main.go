package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/tally/pkg/config"
	"github.com/platinummonkey/tally/pkg/observability"
	"github.com/platinummonkey/tally/pkg/records"
	"github.com/platinummonkey/tally/pkg/search"
	"github.com/platinummonkey/tally/pkg/storage/backend"
	"github.com/platinummonkey/tally/pkg/storage/postgres"
)

var (
	runOnce  = flag.Bool("run-once", false, "Rebuild the index once and exit")
	schedule = flag.String("schedule", "", "Cron schedule for full rebuilds (overrides TALLY_REBUILD_SCHEDULE)")
	logLevel = flag.String("log-level", "", "Log level (debug, info, warn, error)")
)

// Indexer rebuilds the search index from the entity tables on a schedule and
// publishes a snapshot after every successful rebuild. The Redis lock keeps
// it from racing rebuilds started by API replicas.
func main() {
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	if *logLevel != "" {
		cfg.Observability.LogLevel = *logLevel
	}
	if *schedule != "" {
		cfg.Search.RebuildSchedule = *schedule
	}

	logger := setupLogger(cfg.Observability.LogLevel)
	components := observability.NewLogger(cfg.Observability.Level(), os.Stderr).WithField("service", "tally-indexer")

	conns, err := postgres.NewConnectionManager(postgres.ConnectionConfigFrom(cfg.Storage), components)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer conns.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	be, err := backend.Open(ctx, cfg.Storage, conns, components)
	if err != nil {
		logger.Fatalf("Failed to open storage: %v", err)
	}
	defer be.Close()

	if be.Locker == nil && !*runOnce {
		logger.Warn("Redis is not configured; rebuilds are not coordinated with other processes")
	}

	indexer := search.NewIndexer(be.Index, records.NewStore(conns), search.IndexerConfig{
		Locker:  be.Locker,
		LockTTL: cfg.Search.RebuildLockTTL,
		Logger:  components,
	})

	if *runOnce {
		if err := rebuild(ctx, indexer, be, cfg, logger); err != nil {
			logger.Fatalf("Rebuild failed: %v", err)
		}
		return
	}

	c := cron.New()
	_, err = c.AddFunc(cfg.Search.RebuildSchedule, func() {
		if err := rebuild(ctx, indexer, be, cfg, logger); err != nil {
			logger.Errorf("Scheduled rebuild failed: %v", err)
		}
	})
	if err != nil {
		logger.Fatalf("Failed to schedule rebuild: %v", err)
	}

	c.Start()
	logger.Infof("tally indexer started with schedule %q", cfg.Search.RebuildSchedule)

	<-ctx.Done()
	logger.Info("Shutting down gracefully...")

	// waits for a running rebuild to return
	<-c.Stop().Done()
	logger.Info("Indexer stopped")
}

func rebuild(ctx context.Context, indexer *search.Indexer, be *backend.Backend, cfg *config.Config, logger *logrus.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, cfg.Search.RebuildTimeout)
	defer cancel()

	stats, err := indexer.RebuildAll(ctx)
	if errors.Is(err, search.ErrRebuildInProgress) {
		logger.Info("Rebuild already running elsewhere, skipping")
		return nil
	}
	if err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{
		"contacts": stats.Contacts,
		"projects": stats.Projects,
		"tasks":    stats.Tasks,
		"failed":   stats.Failed,
		"duration": stats.Duration.Round(time.Millisecond),
	}).Info("Index rebuilt")

	n, err := be.ExportSnapshot(ctx, cfg.Storage.SnapshotKey)
	if err != nil {
		logger.Warnf("Failed to export index snapshot: %v", err)
		return nil
	}
	if be.Snapshots != nil {
		logger.Infof("Exported snapshot of %d entries to %s", n, cfg.Storage.SnapshotKey)
	}
	return nil
}

func setupLogger(logLevel string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	return logger
}
