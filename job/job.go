package job

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Job is the unit of work managed by the queue storage.
//
// Job instances should be treated as snapshots of storage state.
// Mutating fields directly does not change the underlying queue state;
// transitions must be performed through the store.Store interface.
type Job struct {
	Id uuid.UUID `json:"id"`

	// TenantId scopes the job for quota, rate-limiting and ownership
	// checks. Foreign key to a tenant.Tenant.
	TenantId string `json:"tenant_id"`

	Status Status `json:"status"`

	// Payload is an opaque JSON document. The core never inspects it;
	// it is handed verbatim to the processor.
	Payload json.RawMessage `json:"payload"`

	// IdempotencyKey, when non-empty, is unique per tenant. A second
	// submission with the same (TenantId, IdempotencyKey) returns the
	// original job instead of enqueuing new work.
	IdempotencyKey string `json:"idempotency_key,omitempty"`

	MaxRetries uint32 `json:"max_retries"`
	RetryCount uint32 `json:"retry_count"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	ErrorMessage string `json:"error_message,omitempty"`

	// LeaseExpiresAt is non-nil iff the job is actively leased
	// (Status == Running). A worker owns the job only while this is in
	// the future.
	LeaseExpiresAt *time.Time `json:"-"`

	// TraceId correlates a job's lifecycle across logs and events. It
	// is generated at submission and never changes.
	TraceId string `json:"trace_id"`
}

// Leased reports whether the job is currently under an unexpired lease.
func (j *Job) Leased(now time.Time) bool {
	return j.LeaseExpiresAt != nil && j.LeaseExpiresAt.After(now)
}

// CanRetry reports whether RetryCount has not yet reached MaxRetries.
func (j *Job) CanRetry() bool {
	return j.RetryCount < j.MaxRetries
}
