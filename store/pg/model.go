package pg

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/avenlane/jobqueue/dlq"
	"github.com/avenlane/jobqueue/job"
	"github.com/avenlane/jobqueue/tenant"
)

type jobModel struct {
	bun.BaseModel `bun:"table:jobs"`

	Id uuid.UUID `bun:"id,pk,type:uuid"`

	TenantId       string     `bun:"tenant_id,notnull"`
	Status         job.Status `bun:"status,notnull,default:1"`
	Payload        []byte     `bun:"payload,type:blob"`
	IdempotencyKey string     `bun:"idempotency_key,nullzero"`
	MaxRetries     uint32     `bun:"max_retries,notnull,default:0"`
	RetryCount     uint32     `bun:"retry_count,notnull,default:0"`

	CreatedAt   time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	StartedAt   *time.Time `bun:"started_at,nullzero"`
	CompletedAt *time.Time `bun:"completed_at,nullzero"`

	ErrorMessage string `bun:"error_message,nullzero"`

	LeaseExpiresAt *time.Time `bun:"lease_expires_at,nullzero"`

	TraceId string `bun:"trace_id,nullzero"`
}

func (jm *jobModel) toJob() *job.Job {
	return &job.Job{
		Id:             jm.Id,
		TenantId:       jm.TenantId,
		Status:         jm.Status,
		Payload:        json.RawMessage(jm.Payload),
		IdempotencyKey: jm.IdempotencyKey,
		MaxRetries:     jm.MaxRetries,
		RetryCount:     jm.RetryCount,
		CreatedAt:      jm.CreatedAt,
		StartedAt:      jm.StartedAt,
		CompletedAt:    jm.CompletedAt,
		ErrorMessage:   jm.ErrorMessage,
		LeaseExpiresAt: jm.LeaseExpiresAt,
		TraceId:        jm.TraceId,
	}
}

func fromJob(j *job.Job) *jobModel {
	return &jobModel{
		Id:             j.Id,
		TenantId:       j.TenantId,
		Status:         j.Status,
		Payload:        []byte(j.Payload),
		IdempotencyKey: j.IdempotencyKey,
		MaxRetries:     j.MaxRetries,
		RetryCount:     j.RetryCount,
		CreatedAt:      j.CreatedAt,
		StartedAt:      j.StartedAt,
		CompletedAt:    j.CompletedAt,
		ErrorMessage:   j.ErrorMessage,
		LeaseExpiresAt: j.LeaseExpiresAt,
		TraceId:        j.TraceId,
	}
}

type dlqModel struct {
	bun.BaseModel `bun:"table:dlq_entries"`

	Id            uuid.UUID `bun:"id,pk,type:uuid"`
	OriginalJobId uuid.UUID `bun:"original_job_id,notnull"`
	TenantId      string    `bun:"tenant_id,notnull"`
	Payload       []byte    `bun:"payload,type:blob"`
	ErrorMessage  string    `bun:"error_message,nullzero"`
	RetryCount    uint32    `bun:"retry_count,notnull,default:0"`
	FailedAt      time.Time `bun:"failed_at,nullzero,notnull,default:current_timestamp"`
	TraceId       string    `bun:"trace_id,nullzero"`
}

func (dm *dlqModel) toEntry() *dlq.Entry {
	return &dlq.Entry{
		Id:            dm.Id,
		OriginalJobId: dm.OriginalJobId,
		TenantId:      dm.TenantId,
		Payload:       json.RawMessage(dm.Payload),
		ErrorMessage:  dm.ErrorMessage,
		RetryCount:    dm.RetryCount,
		FailedAt:      dm.FailedAt,
		TraceId:       dm.TraceId,
	}
}

type tenantModel struct {
	bun.BaseModel `bun:"table:tenants"`

	Id                    string `bun:"id,pk"`
	CredentialFingerprint string `bun:"credential_fingerprint,nullzero"`
	MaxConcurrentJobs     int    `bun:"max_concurrent_jobs,notnull,default:5"`
	RateLimitPerMinute    int    `bun:"rate_limit_per_minute,notnull,default:10"`
	DisplayName           string `bun:"display_name,nullzero"`
}

func (tm *tenantModel) toTenant() *tenant.Tenant {
	return &tenant.Tenant{
		Id:                    tm.Id,
		CredentialFingerprint: tm.CredentialFingerprint,
		MaxConcurrentJobs:     tm.MaxConcurrentJobs,
		RateLimitPerMinute:    tm.RateLimitPerMinute,
		DisplayName:           tm.DisplayName,
	}
}
