package jobqueue

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/avenlane/jobqueue/internal"
	"github.com/avenlane/jobqueue/job"
)

// ProcessorFunc is the user-provided function that executes a leased
// job.
//
// The provided context is canceled when the worker is shutting down.
// It is not canceled when the job's lease expires: the lease is never
// extended, so a handler running longer than LeaseTTL may see its job
// reaped and leased again by another worker while it still runs.
//
// The handler must be idempotent: jobqueue provides at-least-once
// delivery, and a job may be executed more than once if a worker
// crashes or fails to acknowledge it before the visibility timeout
// expires.
//
// If the handler returns nil, the job is marked COMPLETED.
// If it returns ErrAbandon, the job is moved straight to DLQ, skipping
// any remaining retry budget.
// Any other non-nil error records a FAILED attempt and either
// reschedules the job (PENDING, immediately eligible again) or moves
// it to DLQ once the retry budget is exhausted.
type ProcessorFunc func(ctx context.Context, j *job.Job) error

// ErrAbandon, returned by a ProcessorFunc, signals that a job should be
// archived to the dead-letter queue immediately rather than consuming
// its remaining retry budget. Useful for errors a processor knows are
// not transient (e.g. payload validation failures).
var ErrAbandon = errors.New("jobqueue: abandon job")

type errChan chan error

// WorkerConfig defines runtime behavior of a Worker.
//
// Concurrency specifies the number of concurrent job handlers.
//
// Queue specifies the internal buffering capacity between leasing jobs
// from the Queue and dispatching them to handlers.
//
// BatchSize is reserved for future batched leasing; LeaseOne currently
// leases one job per poll, so values above 1 have no effect.
//
// PollInterval defines how often the worker polls the Queue for
// eligible jobs.
//
// LeaseTTL defines the visibility timeout assigned to each leased job.
type WorkerConfig struct {
	Concurrency  int
	Queue        int
	BatchSize    int
	PollInterval time.Duration
	LeaseTTL     time.Duration
}

// Worker coordinates leasing, dispatching, retrying and acknowledging
// jobs for a single queue.
//
// Worker implements an at-least-once processing model:
//
//  1. Periodically lease the next eligible job for LeaseTTL.
//  2. Dispatch it to the user-provided ProcessorFunc.
//  3. On success, acknowledge the job as COMPLETED.
//  4. On failure, record FAILED and either retry (PENDING) or archive
//     (DLQ), depending on remaining retry budget.
//
// The lease is not extended while the handler runs.
//
// Worker does not guarantee exactly-once delivery. Handlers must be
// idempotent.
//
// Worker has a strict lifecycle:
//   - Start may only be called once.
//   - Stop gracefully shuts down the poll loop and in-flight handlers.
//   - Stop waits until all in-flight handlers finish or the timeout
//     expires.
type Worker struct {
	lcBase
	queue     *Queue
	pollTask  internal.TimerTask
	pool      *internal.WorkerPool[*job.Job]
	log       *slog.Logger
	handler   ProcessorFunc
	batchSize int
	interval  time.Duration
	lease     time.Duration
	halfLease time.Duration
}

// NewWorker creates a new Worker over the given Queue.
//
// The worker is not started automatically. Call Start to begin
// processing.
func NewWorker(q *Queue, handler ProcessorFunc, config *WorkerConfig, log *slog.Logger) *Worker {
	return &Worker{
		queue:     q,
		pool:      internal.NewWorkerPool[*job.Job](config.Concurrency, config.Queue, log),
		log:       log,
		handler:   handler,
		batchSize: config.BatchSize,
		interval:  config.PollInterval,
		lease:     config.LeaseTTL,
		halfLease: config.LeaseTTL / 2,
	}
}

func (w *Worker) poll(ctx context.Context) {
	jb, err := w.queue.Lease(ctx, w.lease)
	if err != nil {
		w.log.Error("lease failed", "err", err)
		return
	}
	if jb == nil {
		return
	}
	if !w.pool.Push(jb) {
		w.log.Debug("job push interrupted via shutdown", "id", jb.Id)
	}
}

func do(handler ProcessorFunc, ctx context.Context, jb *job.Job) errChan {
	ret := make(errChan, 1)
	go func() {
		ret <- handler(ctx, jb)
	}()
	return ret
}

// handleOrExtend runs the handler to completion and returns its error.
// A timer fires at every half of the lease TTL while the handler runs,
// but it only re-arms itself: store.Store has no operation to extend a
// lease, so the job's lease is not extended and expires LeaseTTL after
// it was taken, whether or not the handler has finished.
func (w *Worker) handleOrExtend(ctx context.Context, jb *job.Job) error {
	wrapped, cancel := context.WithCancel(ctx)
	defer cancel()
	errCh := do(w.handler, wrapped, jb)
	timer := time.NewTimer(w.halfLease)
	defer timer.Stop()
	for {
		select {
		case <-timer.C:
			timer.Reset(w.halfLease)
		case err := <-errCh:
			return err
		}
	}
}

func (w *Worker) handle(ctx context.Context, jb *job.Job) {
	err := w.handleOrExtend(ctx, jb)
	if err == nil {
		if err := w.queue.Complete(ctx, jb.Id); err != nil {
			w.log.Error("cannot complete job", "id", jb.Id, "err", err)
		}
		return
	}
	if errors.Is(err, ErrAbandon) {
		if err := w.queue.Abandon(ctx, jb.Id, err); err != nil {
			w.log.Error("cannot abandon job", "id", jb.Id, "err", err)
		}
		return
	}
	if err := w.queue.Fail(ctx, jb, err); err != nil {
		w.log.Error("cannot fail job", "id", jb.Id, "err", err)
	}
}

// Start begins background polling and processing of jobs.
//
// Start returns ErrDoubleStarted if the worker has already been
// started.
//
// The provided context controls cancellation of the worker. When ctx
// is canceled, polling stops and in-flight handlers receive a canceled
// context.
func (w *Worker) Start(ctx context.Context) error {
	if err := w.tryStart(); err != nil {
		return err
	}
	w.pool.Start(ctx, w.handle)
	w.pollTask.Start(ctx, w.poll, w.interval)
	return nil
}

func (w *Worker) doStop() internal.DoneChan {
	first := w.pollTask.Stop()
	second := w.pool.Stop()
	return internal.Combine(first, second)
}

// Stop initiates graceful shutdown of the worker.
//
// Stop performs the following steps:
//
//  1. Stops periodic polling for new jobs.
//  2. Cancels the internal worker pool.
//  3. Waits for all in-flight handlers to complete.
//
// If shutdown does not complete within the specified timeout,
// ErrStopTimeout is returned. In this case, background goroutines may
// still be terminating.
//
// Stop returns ErrDoubleStopped if the worker is not running.
func (w *Worker) Stop(timeout time.Duration) error {
	return w.tryStop(timeout, w.doStop)
}
