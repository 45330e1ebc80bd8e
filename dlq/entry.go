// Package dlq defines the append-only dead-letter archive entry.
package dlq

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Entry is an archive row created when a Job exhausts its retry budget.
// Entries are never mutated after insertion; the originating Job row is
// kept too (with Status == job.DLQ), Entry is a durable copy for
// retention and inspection independent of the live jobs table.
type Entry struct {
	Id             uuid.UUID       `json:"id"`
	OriginalJobId  uuid.UUID       `json:"original_job_id"`
	TenantId       string          `json:"tenant_id"`
	Payload        json.RawMessage `json:"payload"`
	ErrorMessage   string          `json:"error_message"`
	RetryCount     uint32          `json:"retry_count"`
	FailedAt       time.Time       `json:"failed_at"`
	TraceId        string          `json:"trace_id"`
}
