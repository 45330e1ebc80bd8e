package jobqueue

import (
	"context"
	"log/slog"
	"time"

	"github.com/avenlane/jobqueue/internal"
)

// ReaperConfig defines the scheduling parameters for a Reaper.
//
// Interval defines how often the reaper scans for expired leases.
type ReaperConfig struct {
	Interval time.Duration
}

// Reaper periodically demotes RUNNING jobs whose lease has expired back
// to PENDING (if their retry budget remains) or DLQ (if it is
// exhausted), exactly mirroring the failure branch a Worker takes when
// a handler returns an error. This closes the gap left when a worker
// process crashes or is killed mid-handler without ever calling
// Acknowledge.
//
// Reaper does not participate in normal job processing and does not
// affect jobs that are not currently RUNNING.
//
// Reaper has a strict lifecycle:
//   - Start may only be called once.
//   - Stop must be called to terminate the reaper.
//   - Stop waits for the in-flight scan to finish or until the timeout
//     expires.
type Reaper struct {
	lcBase
	queue    *Queue
	task     internal.TimerTask
	log      *slog.Logger
	interval time.Duration
}

// NewReaper creates a new Reaper over the given Queue.
//
// The reaper is not started automatically. Call Start to begin periodic
// scanning.
func NewReaper(q *Queue, config *ReaperConfig, log *slog.Logger) *Reaper {
	return &Reaper{
		queue:    q,
		log:      log,
		interval: config.Interval,
	}
}

func (r *Reaper) reap(ctx context.Context) {
	count, err := r.queue.ReapExpired(ctx)
	if err != nil {
		r.log.Error("error while reaping expired leases", "err", err)
		return
	}
	if count > 0 {
		r.log.Info("reaped expired leases", "count", count)
	}
}

// Start begins periodic execution of the reaping task.
//
// Start returns ErrDoubleStarted if the reaper has already been
// started.
func (r *Reaper) Start(ctx context.Context) error {
	if err := r.tryStart(); err != nil {
		return err
	}
	r.task.Start(ctx, r.reap, r.interval)
	return nil
}

// Stop terminates the background reaping task.
//
// Stop waits until the task finishes or the specified timeout expires.
// If shutdown does not complete within the timeout, ErrStopTimeout is
// returned.
//
// Stop returns ErrDoubleStopped if the reaper is not running.
func (r *Reaper) Stop(timeout time.Duration) error {
	return r.tryStop(timeout, r.task.Stop)
}
