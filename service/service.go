// Package service provides the JobService facade: the orchestration
// layer the API handlers call into, wiring admission control, durable
// storage and event publication behind a single entry point.
package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/avenlane/jobqueue/admission"
	"github.com/avenlane/jobqueue/dlq"
	"github.com/avenlane/jobqueue/eventbus"
	"github.com/avenlane/jobqueue/job"
	"github.com/avenlane/jobqueue/store"
)

// ErrJobNotFound is returned by GetJob when no job exists for the given
// id, or it exists but is not owned by the requesting tenant.
var ErrJobNotFound = errors.New("service: job not found")

// JobService is the orchestration layer between the API facade and the
// engine's core components. It does not implement queue semantics
// itself — those live in admission.Admission and store.Store — it only
// sequences the calls and publishes the submission event.
type JobService struct {
	admission *admission.Admission
	store     store.Store
	bus       *eventbus.Bus
}

// New creates a JobService.
func New(a *admission.Admission, s store.Store, bus *eventbus.Bus) *JobService {
	return &JobService{admission: a, store: s, bus: bus}
}

// SubmitJob admits and (if admitted) durably inserts a new job on
// behalf of tenantID. See admission.Admission.SubmitJob for the
// idempotency/quota/rate-limit contract this delegates to.
func (s *JobService) SubmitJob(ctx context.Context, tenantID string, payload []byte, idempotencyKey string, maxRetries uint32) (*job.Job, error) {
	j := &job.Job{
		Id:             uuid.New(),
		TenantId:       tenantID,
		Payload:        payload,
		IdempotencyKey: idempotencyKey,
		MaxRetries:     maxRetries,
		TraceId:        uuid.NewString(),
	}
	accepted, err := s.admission.SubmitJob(ctx, j)
	if err != nil {
		return nil, err
	}
	if s.bus != nil {
		s.bus.Publish(ctx, eventbus.TopicJobSubmitted, accepted)
	}
	return accepted, nil
}

// GetJob returns the job by id, scoped to tenantID. If the job does not
// exist, or belongs to a different tenant, ErrJobNotFound is returned.
func (s *JobService) GetJob(ctx context.Context, tenantID string, id uuid.UUID) (*job.Job, error) {
	j, err := s.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if j == nil || j.TenantId != tenantID {
		return nil, ErrJobNotFound
	}
	return j, nil
}

// ListByStatus returns up to limit jobs owned by tenantID in the given
// status. status == job.Unknown means no status filter.
func (s *JobService) ListByStatus(ctx context.Context, tenantID string, status job.Status, limit int) ([]*job.Job, error) {
	return s.store.ListByStatus(ctx, status, tenantID, limit)
}

// ListDLQ returns up to limit dead-letter archive entries owned by
// tenantID, newest first.
func (s *JobService) ListDLQ(ctx context.Context, tenantID string, limit int) ([]*dlq.Entry, error) {
	return s.store.ListDLQ(ctx, tenantID, limit)
}
