package async

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/platinummonkey/tally/pkg/observability"
)

var (
	// ErrPoolSaturated is returned by Submit when every worker is busy
	ErrPoolSaturated = errors.New("worker pool saturated")

	// ErrPoolClosed is returned by Submit after Shutdown
	ErrPoolClosed = errors.New("worker pool shut down")
)

// SafeGo executes fn in a goroutine with a timeout, panic recovery and error
// logging. Use this instead of a bare `go func()` for fire-and-forget work.
//
//	SafeGo(ctx, logger, 5*time.Second, "history append", func(ctx context.Context) error {
//	    return history.Record(ctx, entry)
//	})
func SafeGo(parentCtx context.Context, logger *observability.Logger, timeout time.Duration, taskName string, fn func(context.Context) error) {
	logger = logger.OrNop()
	go func() {
		ctx, cancel := context.WithTimeout(parentCtx, timeout)
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				logger.WithFields(map[string]interface{}{
					"task":  taskName,
					"panic": fmt.Sprint(r),
					"stack": string(debug.Stack()),
				}).Error("background task panicked")
			}
		}()

		if err := fn(ctx); err != nil {
			logger.WithField("task", taskName).WithError(err).Warn("background task failed")
		}
	}()
}

// Pool runs tasks on a bounded set of goroutines. Submit never blocks: when
// all workers are busy the task is rejected with ErrPoolSaturated.
type Pool struct {
	name    string
	timeout time.Duration
	logger  *observability.Logger

	pool   *ants.Pool
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool creates a pool of size workers. Each task gets its own context
// bounded by timeout and detached from the submitter's request.
//
//	pool, err := NewPool("index dispatch", 8, 30*time.Second, logger)
//	defer pool.Shutdown(5 * time.Second)
func NewPool(name string, size int, timeout time.Duration, logger *observability.Logger) (*Pool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("worker pool %q: size must be positive, got %d", name, size)
	}

	p, err := ants.NewPool(size, ants.WithNonblocking(true))
	if err != nil {
		return nil, fmt.Errorf("worker pool %q: %w", name, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		name:    name,
		timeout: timeout,
		logger:  logger.OrNop().WithField("pool", name),
		pool:    p,
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Submit schedules fn. Errors returned by fn are logged, never propagated.
func (p *Pool) Submit(fn func(context.Context) error) error {
	p.wg.Add(1)
	err := p.pool.Submit(func() {
		defer p.wg.Done()
		p.run(fn)
	})
	if err == nil {
		return nil
	}

	p.wg.Done()
	switch {
	case errors.Is(err, ants.ErrPoolOverload):
		return ErrPoolSaturated
	case errors.Is(err, ants.ErrPoolClosed):
		return ErrPoolClosed
	default:
		return err
	}
}

func (p *Pool) run(fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(p.ctx, p.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			p.logger.WithFields(map[string]interface{}{
				"panic": fmt.Sprint(r),
				"stack": string(debug.Stack()),
			}).Error("pool task panicked")
		}
	}()

	if err := fn(ctx); err != nil {
		p.logger.WithError(err).Warn("pool task failed")
	}
}

// Running returns the number of tasks currently executing
func (p *Pool) Running() int {
	return p.pool.Running()
}

// Wait blocks until every submitted task has finished
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Shutdown stops accepting tasks and waits up to timeout for running ones.
// Tasks still running at the deadline see their context cancelled.
func (p *Pool) Shutdown(timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	var shutdownErr error
	select {
	case <-done:
	case <-time.After(timeout):
		shutdownErr = fmt.Errorf("worker pool %q shutdown timed out after %v", p.name, timeout)
	}

	p.cancel()
	p.pool.Release()
	return shutdownErr
}
