// Package async provides safe concurrent execution primitives for background tasks.
//
// SafeGo runs a single fire-and-forget task with a timeout and panic recovery.
// Pool wraps an ants worker pool with per-task contexts, logging of failures
// and a Wait barrier; it backs the index change dispatcher.
//
//	pool, err := async.NewPool("index dispatch", 8, 30*time.Second, logger)
//	if err != nil {
//		return err
//	}
//	if err := pool.Submit(task); errors.Is(err, async.ErrPoolSaturated) {
//		// dropped
//	}
package async
