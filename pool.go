package jobqueue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/avenlane/jobqueue/internal"
)

// WorkerPool manages a fixed-size group of independent Workers sharing
// one Queue. Unlike the per-Worker internal dispatch pool (which bounds
// concurrency within a single poll/lease loop), WorkerPool runs
// multiple complete poll/lease/handle loops side by side, each with its
// own WorkerConfig-derived pool. This is the unit operators scale
// horizontally within one process.
type WorkerPool struct {
	lcBase
	workers []*Worker
	log     *slog.Logger
}

// NewWorkerPool creates size independent Workers over the given Queue,
// each configured identically from config.
func NewWorkerPool(q *Queue, handler ProcessorFunc, config *WorkerConfig, size int, log *slog.Logger) *WorkerPool {
	workers := make([]*Worker, size)
	for i := range workers {
		workers[i] = NewWorker(q, handler, config, log)
	}
	return &WorkerPool{workers: workers, log: log}
}

// Start starts every Worker in the pool. If any Worker fails to start,
// Start stops the ones already started and returns the error.
func (wp *WorkerPool) Start(ctx context.Context) error {
	if err := wp.tryStart(); err != nil {
		return err
	}
	for i, w := range wp.workers {
		if err := w.Start(ctx); err != nil {
			for j := 0; j < i; j++ {
				_ = wp.workers[j].Stop(0)
			}
			return fmt.Errorf("worker %d: %w", i, err)
		}
	}
	return nil
}

// doStop stops every worker concurrently, each bounded by timeout, so
// the pool's overall shutdown time does not grow with worker count.
func (wp *WorkerPool) doStop(timeout time.Duration) internal.DoneChan {
	done := make(internal.DoneChan)
	go func() {
		defer close(done)
		var wg sync.WaitGroup
		wg.Add(len(wp.workers))
		for i, w := range wp.workers {
			go func(i int, w *Worker) {
				defer wg.Done()
				if err := w.Stop(timeout); err != nil {
					wp.log.Error("worker stop failed", "index", i, "err", err)
				}
			}(i, w)
		}
		wg.Wait()
	}()
	return done
}

// Stop gracefully stops every Worker in the pool, each allotted up to
// timeout to finish in-flight handlers.
func (wp *WorkerPool) Stop(timeout time.Duration) error {
	return wp.tryStop(timeout, func() internal.DoneChan {
		return wp.doStop(timeout)
	})
}
