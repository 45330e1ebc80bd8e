package admission

import "errors"

var (
	// ErrQuotaExceeded indicates the tenant already has
	// MaxConcurrentJobs jobs RUNNING.
	ErrQuotaExceeded = errors.New("admission: concurrency quota exceeded")

	// ErrRateLimited indicates the tenant's token bucket has no tokens
	// available.
	ErrRateLimited = errors.New("admission: rate limited")

	// ErrUnknownTenant indicates the job's TenantId does not resolve to
	// a provisioned tenant.Tenant.
	ErrUnknownTenant = errors.New("admission: unknown tenant")
)
