// Package store defines the durable persistence contract the jobqueue
// engine is built on: atomic lease acquisition, idempotent insertion,
// and the status-count reads admission control and metrics rely on.
//
// Store is intentionally storage-agnostic — package store/pg provides a
// bun-backed relational implementation, but any implementation that
// honors the atomicity contract of LeaseOne may be substituted.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/avenlane/jobqueue/dlq"
	"github.com/avenlane/jobqueue/job"
	"github.com/avenlane/jobqueue/tenant"
)

// Store is the durable persistence boundary for Jobs, DLQ entries and
// Tenants. All operations are transactional from the caller's
// perspective: a Store implementation must not expose partial writes.
type Store interface {
	// InsertJob writes a new PENDING job. If j.IdempotencyKey is
	// non-empty and a job already exists for (j.TenantId,
	// j.IdempotencyKey), implementations must return
	// ErrDuplicateIdempotency without writing a second row.
	InsertJob(ctx context.Context, j *job.Job) error

	// GetJob returns the job by id, or (nil, nil) if it does not
	// exist.
	GetJob(ctx context.Context, id uuid.UUID) (*job.Job, error)

	// GetByIdempotency returns the job previously inserted for
	// (tenantID, key), or (nil, nil) if none exists.
	GetByIdempotency(ctx context.Context, tenantID, key string) (*job.Job, error)

	// CountByStatus counts jobs in the given status. If tenantID is
	// non-empty, the count is scoped to that tenant.
	CountByStatus(ctx context.Context, status job.Status, tenantID string) (int64, error)

	// CountRunning is the specialization of CountByStatus used by
	// admission's concurrency quota check.
	CountRunning(ctx context.Context, tenantID string) (int64, error)

	// ListByStatus returns up to limit jobs in the given status,
	// newest first by CreatedAt. If tenantID is non-empty, results are
	// scoped to that tenant. status == job.Unknown means no status
	// filter.
	ListByStatus(ctx context.Context, status job.Status, tenantID string, limit int) ([]*job.Job, error)

	// LeaseOne atomically selects the single oldest job with
	// status = PENDING, skipping rows concurrently locked by other
	// workers, and transitions it to RUNNING with
	// lease_expires_at = now + ttl. Returns (nil, nil) if no job is
	// eligible.
	//
	// Contract: no two callers ever receive the same job from this
	// method while it remains leased.
	LeaseOne(ctx context.Context, now time.Time, ttl time.Duration) (*job.Job, error)

	// Acknowledge marks the outcome of a RUNNING job's attempt: success
	// transitions to COMPLETED, failure transitions to FAILED with
	// errMsg recorded. Both set completed_at = now. Idempotent on
	// repeated calls with the same outcome.
	Acknowledge(ctx context.Context, id uuid.UUID, success bool, errMsg string) error

	// BumpRetry transitions a FAILED job immediately back to PENDING
	// (eligible for the very next LeaseOne), incrementing RetryCount
	// and clearing LeaseExpiresAt, StartedAt and CompletedAt, while
	// preserving CreatedAt.
	BumpRetry(ctx context.Context, id uuid.UUID) error

	// MoveToDLQ inserts a dlq.Entry and sets the job's status to DLQ
	// with completed_at = now and the given error message, in one
	// transaction.
	MoveToDLQ(ctx context.Context, id uuid.UUID, errMsg string) error

	// ListDLQ returns up to limit dlq archive rows, newest first. If
	// tenantID is non-empty, results are scoped to that tenant.
	ListDLQ(ctx context.Context, tenantID string, limit int) ([]*dlq.Entry, error)

	// ReapExpired finds RUNNING jobs whose lease has expired and
	// transitions each to PENDING (retry budget remains) or DLQ
	// (budget exhausted), exactly as the worker's failure branch does.
	// It returns the number of jobs reaped.
	ReapExpired(ctx context.Context, now time.Time) (int, error)

	// GetTenant returns the tenant by id, or (nil, nil) if it does not
	// exist.
	GetTenant(ctx context.Context, id string) (*tenant.Tenant, error)

	// Clean permanently deletes jobs matching status, restricted to
	// terminal states (job.Completed or job.DLQ). If before is non-nil,
	// only jobs whose CompletedAt is at or before before are deleted.
	// Clean returns the number of deleted rows.
	Clean(ctx context.Context, status job.Status, before *time.Time) (int64, error)
}
