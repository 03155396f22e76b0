// Package backend opens the storage a tally process runs on: the index
// store selected by configuration plus the optional Redis lock and S3
// snapshot bucket.
package backend

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/tally/pkg/observability"
	"github.com/platinummonkey/tally/pkg/search"
	"github.com/platinummonkey/tally/pkg/storage"
	"github.com/platinummonkey/tally/pkg/storage/badger"
	"github.com/platinummonkey/tally/pkg/storage/postgres"
	"github.com/platinummonkey/tally/pkg/storage/snapshot"
)

// SnapshotStore is the object store index snapshots live in.
// *snapshot.S3Client satisfies it.
type SnapshotStore interface {
	snapshot.ObjectStore
	HealthCheck(ctx context.Context) error
}

// Backend bundles the opened storage. Locker, Redis and Snapshots are nil
// when not configured.
type Backend struct {
	Index     search.IndexStore
	Locker    search.Locker
	Redis     *redis.Client
	Snapshots SnapshotStore

	// Persistent reports whether the index survives a restart
	Persistent bool

	closers []io.Closer
}

// Open builds the backend described by cfg. db is required for the
// postgres index backend.
func Open(ctx context.Context, cfg storage.Config, db postgres.DB, logger *observability.Logger) (*Backend, error) {
	logger = logger.OrNop()
	b := &Backend{}

	switch cfg.IndexBackend {
	case storage.IndexBackendMemory, "":
		b.Index = search.NewMemoryStore()
	case storage.IndexBackendPostgres:
		if db == nil {
			return nil, fmt.Errorf("postgres index backend requires a database")
		}
		if err := postgres.MigrateIndex(ctx, db.Primary()); err != nil {
			return nil, err
		}
		b.Index = postgres.NewIndexStore(db)
		b.Persistent = true
	case storage.IndexBackendBadger:
		store, err := badger.Open(cfg.BadgerPath, logger)
		if err != nil {
			return nil, err
		}
		b.Index = store
		b.Persistent = true
		b.closers = append(b.closers, store)
	default:
		return nil, fmt.Errorf("invalid index backend: %s", cfg.IndexBackend)
	}
	logger.WithField("index_backend", string(cfg.IndexBackend)).Info("index store opened")

	if cfg.RedisEnabled() {
		client, err := postgres.NewRedisClient(cfg)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.Redis = client
		b.Locker = postgres.NewRedisLocker(client)
		b.closers = append(b.closers, client)
		logger.Info("distributed rebuild lock enabled")
	}

	if cfg.SnapshotsEnabled() {
		client, err := snapshot.NewS3Client(ctx, cfg)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.Snapshots = client
		logger.WithField("bucket", cfg.S3Bucket).Info("index snapshots enabled")
	}

	return b, nil
}

// Close releases everything Open acquired
func (b *Backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}

// Warm prepares the index at startup. A persistent index that already has
// entries is used as is. Otherwise the snapshot is restored when restore is
// set and one exists, and failing that the index is rebuilt from the entity
// stores when rebuild is set.
func (b *Backend) Warm(ctx context.Context, indexer *search.Indexer, snapshotKey string, restore, rebuild bool, logger *observability.Logger) error {
	logger = logger.OrNop()

	if b.Persistent {
		n, err := b.Index.Count(ctx)
		if err != nil {
			return fmt.Errorf("failed to count index entries: %w", err)
		}
		if n > 0 {
			logger.WithField("entries", n).Info("using existing index")
			return nil
		}
	}

	if restore && b.Snapshots != nil {
		n, err := snapshot.Restore(ctx, b.Index, b.Snapshots, snapshotKey)
		switch {
		case err == nil:
			logger.WithField("entries", n).Info("index restored from snapshot")
			return nil
		case errors.Is(err, snapshot.ErrNotFound):
			logger.Info("no index snapshot found")
		default:
			logger.WithError(err).Warn("failed to restore index snapshot")
		}
	}

	if !rebuild {
		return nil
	}
	stats, err := indexer.RebuildAll(ctx)
	if errors.Is(err, search.ErrRebuildInProgress) {
		logger.Info("index rebuild already running elsewhere")
		return nil
	}
	if err != nil {
		return fmt.Errorf("initial index rebuild failed: %w", err)
	}
	logger.WithFields(map[string]interface{}{
		"indexed": stats.Indexed(),
		"failed":  stats.Failed,
	}).Info("index built")
	return nil
}

// ExportSnapshot uploads the current index when snapshots are configured
func (b *Backend) ExportSnapshot(ctx context.Context, snapshotKey string) (int, error) {
	if b.Snapshots == nil {
		return 0, nil
	}
	return snapshot.Export(ctx, b.Index, b.Snapshots, snapshotKey)
}
