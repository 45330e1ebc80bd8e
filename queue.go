package jobqueue

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/avenlane/jobqueue/eventbus"
	"github.com/avenlane/jobqueue/job"
	"github.com/avenlane/jobqueue/store"
)

// Queue wraps a store.Store with the narrow set of operations a Worker
// needs to run its poll loop: leasing, acknowledging and retry/DLQ
// branching. It does not apply admission policy — that happens once, at
// submission time, in package admission.
//
// If Bus is non-nil, every transition is published to the corresponding
// eventbus topic after the store write succeeds.
type Queue struct {
	store store.Store
	bus   *eventbus.Bus
}

// NewQueue builds a Queue over the given Store, with no event bus
// wiring.
func NewQueue(s store.Store) *Queue {
	return &Queue{store: s}
}

// NewQueueWithBus builds a Queue over the given Store that publishes
// lifecycle events to bus.
func NewQueueWithBus(s store.Store, bus *eventbus.Bus) *Queue {
	return &Queue{store: s, bus: bus}
}

func (q *Queue) publish(ctx context.Context, topic string, payload any) {
	if q.bus != nil {
		q.bus.Publish(ctx, topic, payload)
	}
}

// Lease attempts to lease the single oldest eligible job, transitioning
// it to RUNNING with a visibility timeout of ttl. Returns (nil, nil) if
// no job is currently eligible.
func (q *Queue) Lease(ctx context.Context, ttl time.Duration) (*job.Job, error) {
	jb, err := q.store.LeaseOne(ctx, time.Now(), ttl)
	if err != nil || jb == nil {
		return jb, err
	}
	q.publish(ctx, eventbus.TopicJobStarted, jb)
	return jb, nil
}

// Complete acknowledges a successful attempt, transitioning the job to
// COMPLETED.
func (q *Queue) Complete(ctx context.Context, id uuid.UUID) error {
	if err := q.store.Acknowledge(ctx, id, true, ""); err != nil {
		return err
	}
	q.publish(ctx, eventbus.TopicJobCompleted, id)
	return nil
}

// Fail durably records a failed attempt (transition to FAILED), re-reads
// the job, and then decides, based on its retry budget, whether to bump
// it immediately back to PENDING or archive it to the dead-letter queue.
// The two steps are kept separate so the FAILED state is never lost
// even if the process crashes between recording the failure and
// branching on it. A job left in FAILED that way stays FAILED: neither
// LeaseOne nor ReapExpired selects FAILED rows.
func (q *Queue) Fail(ctx context.Context, j *job.Job, cause error) error {
	errMsg := ""
	if cause != nil {
		errMsg = cause.Error()
	}
	if err := q.store.Acknowledge(ctx, j.Id, false, errMsg); err != nil {
		return err
	}
	q.publish(ctx, eventbus.TopicJobFailed, j.Id)
	cur, err := q.store.GetJob(ctx, j.Id)
	if err != nil {
		return err
	}
	if cur == nil {
		return store.ErrNotFound
	}
	if cur.CanRetry() {
		if err := q.store.BumpRetry(ctx, j.Id); err != nil {
			return err
		}
		q.publish(ctx, eventbus.TopicJobRetry, j.Id)
		return nil
	}
	if err := q.store.MoveToDLQ(ctx, j.Id, errMsg); err != nil {
		return err
	}
	q.publish(ctx, eventbus.TopicJobDLQ, j.Id)
	return nil
}

// Abandon archives a job straight to the dead-letter queue, bypassing
// its remaining retry budget. Used when a ProcessorFunc returns
// ErrAbandon.
func (q *Queue) Abandon(ctx context.Context, id uuid.UUID, cause error) error {
	errMsg := ""
	if cause != nil {
		errMsg = cause.Error()
	}
	if err := q.store.Acknowledge(ctx, id, false, errMsg); err != nil {
		return err
	}
	q.publish(ctx, eventbus.TopicJobFailed, id)
	if err := q.store.MoveToDLQ(ctx, id, errMsg); err != nil {
		return err
	}
	q.publish(ctx, eventbus.TopicJobDLQ, id)
	return nil
}

// Get returns a job by id, or nil if it does not exist.
func (q *Queue) Get(ctx context.Context, id uuid.UUID) (*job.Job, error) {
	return q.store.GetJob(ctx, id)
}

// ReapExpired demotes RUNNING jobs whose lease has expired back to
// PENDING, or to DLQ if their retry budget is exhausted. It returns the
// number of jobs reaped.
func (q *Queue) ReapExpired(ctx context.Context) (int, error) {
	return q.store.ReapExpired(ctx, time.Now())
}
