package search

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/tally/pkg/observability"
)

var indexerTracer = otel.Tracer("tally/search/indexer")

// RebuildLockKey is the distributed lock held for the duration of a rebuild
const RebuildLockKey = "tally:search:rebuild"

// DefaultRebuildLockTTL bounds how long a crashed rebuild can block others
const DefaultRebuildLockTTL = 10 * time.Minute

// Sources lists every record of each indexable type from the entity stores
type Sources interface {
	ListContacts(ctx context.Context) ([]Contact, error)
	ListProjects(ctx context.Context) ([]Project, error)
	ListTasks(ctx context.Context) ([]Task, error)
}

// Locker grants a best-effort exclusive lease across processes.
// TryLock returns acquired=false without error when another holder exists.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, acquired bool, err error)
}

// IndexerConfig holds the optional collaborators of an Indexer
type IndexerConfig struct {
	// Locker guards RebuildAll across processes; nil means in-process only
	Locker  Locker
	LockTTL time.Duration

	Logger  *observability.Logger
	Metrics *observability.Metrics

	// Now defaults to time.Now
	Now func() time.Time
}

// Indexer keeps the index store in step with the entity stores
type Indexer struct {
	store   IndexStore
	sources Sources
	locker  Locker
	lockTTL time.Duration
	logger  *observability.Logger
	metrics *observability.Metrics
	now     func() time.Time

	rebuilding atomic.Bool
}

// RebuildStats summarizes a full rebuild
type RebuildStats struct {
	Contacts  int           `json:"contacts"`
	Projects  int           `json:"projects"`
	Tasks     int           `json:"tasks"`
	Failed    int           `json:"failed"`
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`
}

// Indexed returns the number of entries written
func (s *RebuildStats) Indexed() int {
	return s.Contacts + s.Projects + s.Tasks
}

// NewIndexer creates an indexer over store. sources may be nil when the
// indexer is only used for incremental maintenance.
func NewIndexer(store IndexStore, sources Sources, cfg IndexerConfig) *Indexer {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = DefaultRebuildLockTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Indexer{
		store:   store,
		sources: sources,
		locker:  cfg.Locker,
		lockTTL: cfg.LockTTL,
		logger:  cfg.Logger.OrNop(),
		metrics: cfg.Metrics,
		now:     cfg.Now,
	}
}

// Index derives the entry for rec and upserts it
func (idx *Indexer) Index(ctx context.Context, rec Record) error {
	ctx, span := indexerTracer.Start(ctx, "Index")
	defer span.End()

	entry, err := BuildEntry(rec, idx.now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to build entry")
		return err
	}
	span.SetAttributes(
		attribute.String("entity_type", string(entry.EntityType)),
		attribute.String("entity_id", entry.EntityID),
		attribute.Int("keyword_count", len(entry.Keywords)),
	)

	err = idx.store.Upsert(ctx, entry)
	idx.metrics.ObserveIndexOperation("upsert", string(entry.EntityType), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to upsert entry")
		return fmt.Errorf("failed to index %s %s: %w", entry.EntityType, entry.EntityID, err)
	}
	return nil
}

// Remove deletes the entry for (entityType, entityID); absent entries are not an error
func (idx *Indexer) Remove(ctx context.Context, entityType EntityType, entityID string) error {
	ctx, span := indexerTracer.Start(ctx, "Remove",
		trace.WithAttributes(
			attribute.String("entity_type", string(entityType)),
			attribute.String("entity_id", entityID),
		),
	)
	defer span.End()

	err := idx.store.Remove(ctx, entityType, entityID)
	idx.metrics.ObserveIndexOperation("remove", string(entityType), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to remove entry")
		return fmt.Errorf("failed to remove %s %s from index: %w", entityType, entityID, err)
	}
	return nil
}

// Rebuilding reports whether this process is running a rebuild
func (idx *Indexer) Rebuilding() bool {
	return idx.rebuilding.Load()
}

// RebuildFunc runs a rebuild claimed by StartRebuild
type RebuildFunc func(ctx context.Context) (*RebuildStats, error)

// RebuildAll clears the index and re-derives it from the entity stores.
//
// All sources are read before the store is cleared, so a failing source
// leaves the existing index untouched. Unreadable source rows and individual
// upsert failures are logged and counted in the stats. Concurrent searches
// may observe a partially rebuilt index.
func (idx *Indexer) RebuildAll(ctx context.Context) (*RebuildStats, error) {
	run, err := idx.StartRebuild(ctx)
	if err != nil {
		_, span := indexerTracer.Start(ctx, "RebuildAll")
		span.RecordError(err)
		span.SetStatus(codes.Error, "rebuild not started")
		span.End()
		return nil, err
	}
	return run(ctx)
}

// StartRebuild claims the rebuild slot of this process and, when a Locker
// is configured, the distributed lock. It returns ErrRebuildInProgress when
// either is held. The returned function performs the rebuild and releases
// both; it must be called exactly once.
func (idx *Indexer) StartRebuild(ctx context.Context) (RebuildFunc, error) {
	if idx.sources == nil {
		return nil, fmt.Errorf("rebuild requires entity sources")
	}
	if !idx.rebuilding.CompareAndSwap(false, true) {
		return nil, ErrRebuildInProgress
	}

	release := func(context.Context) error { return nil }
	if idx.locker != nil {
		unlock, acquired, err := idx.locker.TryLock(ctx, RebuildLockKey, idx.lockTTL)
		if err != nil {
			idx.rebuilding.Store(false)
			return nil, fmt.Errorf("failed to acquire rebuild lock: %w", err)
		}
		if !acquired {
			idx.rebuilding.Store(false)
			return nil, ErrRebuildInProgress
		}
		release = unlock
	}

	var ran atomic.Bool
	return func(ctx context.Context) (*RebuildStats, error) {
		if !ran.CompareAndSwap(false, true) {
			return nil, ErrRebuildInProgress
		}
		defer idx.rebuilding.Store(false)
		defer func() {
			// release on a fresh context so a cancelled rebuild still unlocks
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := release(releaseCtx); err != nil {
				idx.logger.WithError(err).Warn("failed to release rebuild lock")
			}
		}()
		return idx.rebuild(ctx)
	}, nil
}

func (idx *Indexer) rebuild(ctx context.Context) (*RebuildStats, error) {
	ctx, span := indexerTracer.Start(ctx, "RebuildAll")
	defer span.End()

	stats := &RebuildStats{StartedAt: idx.now()}
	start := time.Now()
	logger := idx.logger.WithField("operation", "rebuild")
	logger.Info("starting search index rebuild")

	records, skipped, err := idx.fetchAll(ctx)
	if err != nil {
		idx.metrics.ObserveRebuild(0, time.Since(start), err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read entity stores")
		return nil, err
	}
	for _, rowErr := range skipped {
		stats.Failed++
		logger.WithError(rowErr).Warn("skipped unreadable source row during rebuild")
		span.AddEvent("skipped unreadable source row", trace.WithAttributes(attribute.String("error", rowErr.Error())))
	}

	if err := idx.store.Clear(ctx); err != nil {
		idx.metrics.ObserveRebuild(0, time.Since(start), err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to clear index")
		return nil, fmt.Errorf("failed to clear index: %w", err)
	}

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			idx.metrics.ObserveRebuild(stats.Indexed(), time.Since(start), err)
			span.RecordError(err)
			span.SetStatus(codes.Error, "rebuild cancelled")
			return stats, err
		}

		key := rec.IndexKey()
		if err := idx.Index(ctx, rec); err != nil {
			stats.Failed++
			logger.WithFields(map[string]interface{}{
				"entity_type": string(key.Type),
				"entity_id":   key.ID,
			}).WithError(err).Warn("failed to index record during rebuild")
			span.AddEvent("failed to index record",
				trace.WithAttributes(
					attribute.String("entity_type", string(key.Type)),
					attribute.String("entity_id", key.ID),
				),
			)
			continue
		}

		switch key.Type {
		case EntityTypeContact:
			stats.Contacts++
		case EntityTypeProject:
			stats.Projects++
		case EntityTypeTask:
			stats.Tasks++
		}
	}

	stats.Duration = time.Since(start)
	idx.metrics.ObserveRebuild(stats.Indexed(), stats.Duration, nil)
	idx.metrics.SetIndexEntries(stats.Indexed())

	logger.WithFields(map[string]interface{}{
		"contacts":    stats.Contacts,
		"projects":    stats.Projects,
		"tasks":       stats.Tasks,
		"failed":      stats.Failed,
		"duration_ms": stats.Duration.Milliseconds(),
	}).Info("search index rebuild complete")

	span.SetAttributes(
		attribute.Int("indexed", stats.Indexed()),
		attribute.Int("failed", stats.Failed),
	)
	span.SetStatus(codes.Ok, fmt.Sprintf("rebuilt %d entries", stats.Indexed()))
	return stats, nil
}

// fetchAll reads the three entity stores concurrently and returns the
// records in contact, project, task order, plus the errors of source rows
// that could not be read.
func (idx *Indexer) fetchAll(ctx context.Context) ([]Record, []error, error) {
	var (
		contacts []Contact
		projects []Project
		tasks    []Task

		contactSkips, projectSkips, taskSkips []error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		contacts, err = idx.sources.ListContacts(gctx)
		if contactSkips, err = splitRowErrors(err); err != nil {
			return fmt.Errorf("failed to list contacts: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		projects, err = idx.sources.ListProjects(gctx)
		if projectSkips, err = splitRowErrors(err); err != nil {
			return fmt.Errorf("failed to list projects: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		tasks, err = idx.sources.ListTasks(gctx)
		if taskSkips, err = splitRowErrors(err); err != nil {
			return fmt.Errorf("failed to list tasks: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	records := make([]Record, 0, len(contacts)+len(projects)+len(tasks))
	for _, c := range contacts {
		records = append(records, c)
	}
	for _, p := range projects {
		records = append(records, p)
	}
	for _, t := range tasks {
		records = append(records, t)
	}
	return records, slices.Concat(contactSkips, projectSkips, taskSkips), nil
}

// splitRowErrors separates per-row read failures, which a rebuild skips,
// from errors that abort it.
func splitRowErrors(err error) ([]error, error) {
	var rowErrs *RowErrors
	if errors.As(err, &rowErrs) {
		return rowErrs.Errs, nil
	}
	return nil, err
}
