package search

import (
	"context"
	"errors"
	"time"

	"github.com/platinummonkey/tally/pkg/async"
	"github.com/platinummonkey/tally/pkg/observability"
)

// DispatcherConfig sizes the background index maintenance pool
type DispatcherConfig struct {
	Workers     int
	TaskTimeout time.Duration
	Logger      *observability.Logger
	Metrics     *observability.Metrics
}

// Dispatcher decouples entity writes from index maintenance. Upserted and
// Deleted return immediately; the index is updated on a worker pool and
// failures are only logged. RebuildAll repairs any drift.
type Dispatcher struct {
	indexer *Indexer
	pool    *async.Pool
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewDispatcher starts a worker pool feeding indexer
func NewDispatcher(indexer *Indexer, cfg DispatcherConfig) (*Dispatcher, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = 30 * time.Second
	}
	logger := cfg.Logger.OrNop()

	pool, err := async.NewPool("search index dispatch", cfg.Workers, cfg.TaskTimeout, logger)
	if err != nil {
		return nil, err
	}
	return &Dispatcher{
		indexer: indexer,
		pool:    pool,
		logger:  logger,
		metrics: cfg.Metrics,
	}, nil
}

// Upserted schedules (re)indexing of rec
func (d *Dispatcher) Upserted(rec Record) {
	if rec == nil {
		return
	}
	key := rec.IndexKey()
	d.submit("upsert", key, func(ctx context.Context) error {
		return d.indexer.Index(ctx, rec)
	})
}

// Deleted schedules removal of the entry for (entityType, entityID)
func (d *Dispatcher) Deleted(entityType EntityType, entityID string) {
	key := EntryKey{Type: entityType, ID: entityID}
	d.submit("remove", key, func(ctx context.Context) error {
		return d.indexer.Remove(ctx, entityType, entityID)
	})
}

func (d *Dispatcher) submit(op string, key EntryKey, task func(context.Context) error) {
	err := d.pool.Submit(task)
	if err == nil {
		return
	}

	logger := d.logger.WithFields(map[string]interface{}{
		"operation":   op,
		"entity_type": string(key.Type),
		"entity_id":   key.ID,
	}).WithError(err)

	if errors.Is(err, async.ErrPoolSaturated) {
		d.metrics.ObserveDispatchDropped()
		logger.Warn("index update dropped, pool saturated")
		return
	}
	logger.Error("failed to dispatch index update")
}

// Wait blocks until all dispatched updates have been applied or failed
func (d *Dispatcher) Wait() {
	d.pool.Wait()
}

// Close stops accepting updates and drains in-flight ones
func (d *Dispatcher) Close(timeout time.Duration) error {
	return d.pool.Shutdown(timeout)
}
