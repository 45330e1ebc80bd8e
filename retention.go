package jobqueue

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/avenlane/jobqueue/internal"
	"github.com/avenlane/jobqueue/job"
	"github.com/avenlane/jobqueue/store"
)

// ErrBadStatus indicates that a non-terminal status was supplied to a
// Cleaner. Only job.Completed and job.DLQ rows may be purged.
var ErrBadStatus = errors.New("jobqueue: bad job status")

// Cleaner provides a mechanism for permanently removing terminal jobs
// from storage. It is intended for administrative and retention
// management use and must not affect PENDING or RUNNING jobs.
type Cleaner interface {
	// Clean deletes jobs matching status, restricted to terminal states.
	// If status is job.Unknown, implementations delete both Completed
	// and DLQ jobs. If before is nil, no time-based filtering is
	// applied. Clean returns the number of deleted jobs.
	Clean(ctx context.Context, status job.Status, before *time.Time) (int64, error)
}

type storeCleaner struct {
	store store.Store
}

// NewCleaner adapts a store.Store into a Cleaner.
func NewCleaner(s store.Store) Cleaner {
	return &storeCleaner{store: s}
}

func (c *storeCleaner) Clean(ctx context.Context, status job.Status, before *time.Time) (int64, error) {
	if status == job.Unknown {
		completed, err := c.store.Clean(ctx, job.Completed, before)
		if err != nil {
			return completed, err
		}
		dead, err := c.store.Clean(ctx, job.DLQ, before)
		return completed + dead, err
	}
	if !status.IsTerminal() {
		return 0, ErrBadStatus
	}
	return c.store.Clean(ctx, status, before)
}

// RetentionConfig defines the scheduling and filtering parameters for a
// RetentionWorker.
//
// Status specifies which terminal job state should be targeted for
// deletion. job.Unknown targets both COMPLETED and DLQ.
//
// Interval defines how often the worker runs.
//
// If Before is true, deletion is restricted to jobs whose CompletedAt
// is older than now - Delta.
type RetentionConfig struct {
	Status   job.Status
	Interval time.Duration
	Before   bool
	Delta    time.Duration
}

// RetentionWorker periodically invokes a Cleaner according to the
// provided configuration. It is intended for background retention
// management, such as removing completed or dead-lettered jobs after a
// configurable period of time.
//
// RetentionWorker does not participate in job processing and does not
// affect visibility timeouts.
//
// RetentionWorker has a strict lifecycle:
//   - Start may only be called once.
//   - Stop must be called to terminate the worker.
//   - Stop waits for the internal task to finish or until the timeout
//     expires.
type RetentionWorker struct {
	lcBase
	cleaner  Cleaner
	task     internal.TimerTask
	log      *slog.Logger
	status   job.Status
	interval time.Duration
	before   bool
	delta    time.Duration
}

// NewRetentionWorker creates a new RetentionWorker using the provided
// Cleaner and configuration.
//
// The worker is not started automatically. Call Start to begin periodic
// cleaning.
func NewRetentionWorker(cleaner Cleaner, config *RetentionConfig, log *slog.Logger) *RetentionWorker {
	return &RetentionWorker{
		cleaner:  cleaner,
		log:      log,
		status:   config.Status,
		interval: config.Interval,
		before:   config.Before,
		delta:    config.Delta,
	}
}

func (rw *RetentionWorker) beforeStamp() *time.Time {
	if !rw.before {
		return nil
	}
	ret := time.Now()
	if rw.delta != 0 {
		ret = ret.Add(-rw.delta)
	}
	return &ret
}

func (rw *RetentionWorker) clean(ctx context.Context) {
	before := rw.beforeStamp()
	count, err := rw.cleaner.Clean(ctx, rw.status, before)
	if err != nil {
		rw.log.Error("error while cleaning", "err", err)
		return
	}
	rw.log.Info("cleaned jobs", "count", count)
}

// Start begins periodic execution of the cleaning task.
//
// Start returns ErrDoubleStarted if the worker has already been
// started.
func (rw *RetentionWorker) Start(ctx context.Context) error {
	if err := rw.tryStart(); err != nil {
		return err
	}
	rw.task.Start(ctx, rw.clean, rw.interval)
	return nil
}

// Stop terminates the background cleaning task.
//
// Stop waits until the task finishes or the specified timeout expires.
// If shutdown does not complete within the timeout, ErrStopTimeout is
// returned.
//
// Stop returns ErrDoubleStopped if the worker is not running.
func (rw *RetentionWorker) Stop(timeout time.Duration) error {
	return rw.tryStop(timeout, rw.task.Stop)
}
