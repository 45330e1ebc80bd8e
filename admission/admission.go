// Package admission applies per-tenant policy to job submissions
// before they ever reach storage: idempotency short-circuiting, a
// concurrency quota, and a token-bucket rate limit.
//
// Admission never mutates job state itself — SubmitJob delegates the
// actual insert to a store.Store and only vetoes or short-circuits the
// call before that happens.
package admission

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/avenlane/jobqueue/job"
	"github.com/avenlane/jobqueue/store"
	"github.com/avenlane/jobqueue/tenant"
)

// Admission gates job submission per tenant.
type Admission struct {
	store    store.Store
	limiters sync.Map // tenantID string -> *rate.Limiter
}

// New creates an Admission over the given Store.
func New(s store.Store) *Admission {
	return &Admission{store: s}
}

func (a *Admission) limiterFor(t *tenant.Tenant) *rate.Limiter {
	if l, ok := a.limiters.Load(t.Id); ok {
		return l.(*rate.Limiter)
	}
	perMinute := t.RateLimitPerMinute
	if perMinute <= 0 {
		perMinute = tenant.DefaultRateLimitPerMinute
	}
	limiter := rate.NewLimiter(rate.Limit(float64(perMinute)/60), perMinute)
	actual, _ := a.limiters.LoadOrStore(t.Id, limiter)
	return actual.(*rate.Limiter)
}

// SubmitJob applies idempotency, concurrency-quota and rate-limit
// checks in that order and, if all pass, inserts j via the Store.
//
//   - If j.IdempotencyKey is non-empty and a job already exists for
//     (j.TenantId, j.IdempotencyKey), the existing job is returned with
//     a nil error and j is not inserted.
//   - If the tenant already has MaxConcurrentJobs jobs RUNNING,
//     ErrQuotaExceeded is returned.
//   - If the tenant's token bucket has no tokens available,
//     ErrRateLimited is returned.
//
// SubmitJob returns ErrUnknownTenant if j.TenantId does not resolve to
// a provisioned tenant.Tenant.
func (a *Admission) SubmitJob(ctx context.Context, j *job.Job) (*job.Job, error) {
	t, err := a.store.GetTenant(ctx, j.TenantId)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrUnknownTenant
	}

	if j.IdempotencyKey != "" {
		existing, err := a.store.GetByIdempotency(ctx, j.TenantId, j.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}

	maxConcurrent := t.MaxConcurrentJobs
	if maxConcurrent <= 0 {
		maxConcurrent = tenant.DefaultMaxConcurrentJobs
	}
	running, err := a.store.CountRunning(ctx, j.TenantId)
	if err != nil {
		return nil, err
	}
	if running >= int64(maxConcurrent) {
		return nil, ErrQuotaExceeded
	}

	if !a.limiterFor(t).Allow() {
		return nil, ErrRateLimited
	}

	if err := a.store.InsertJob(ctx, j); err != nil {
		return nil, err
	}
	return j, nil
}
