package jobqueue

import (
	"errors"

	"github.com/avenlane/jobqueue/admission"
	"github.com/avenlane/jobqueue/store"
)

// Sentinel errors implementing the caller-facing error taxonomy. The
// API facade (package api) answers QuotaExceeded/RateLimited with 429,
// TransientStore (after the store's internal retries) with 503, and
// UnknownTenant with 404; a missing or foreign job is a 404 via
// service.ErrJobNotFound, and a duplicate idempotency key returns the
// existing job with 201. No handler maps InvalidState, NotFound or
// DuplicateIdempotency to a status code of its own.
//
// ErrNotFound, ErrDuplicateIdempotency, ErrInvalidState and
// ErrTransientStore alias the canonical values defined in package
// store, so callers can compare against either package's name with
// errors.Is.
var (
	ErrNotFound             = store.ErrNotFound
	ErrDuplicateIdempotency = store.ErrDuplicateIdempotency
	ErrInvalidState         = store.ErrInvalidState
	ErrTransientStore       = store.ErrTransientStore
	ErrQuotaExceeded        = admission.ErrQuotaExceeded
	ErrRateLimited          = admission.ErrRateLimited
	ErrUnknownTenant        = admission.ErrUnknownTenant

	// ErrJobLost indicates the referenced job no longer exists in
	// storage, or cannot be found in its expected state — it was
	// concurrently removed or transitioned by another actor.
	ErrJobLost = errors.New("jobqueue: job lost")

	// ErrLockLost indicates the caller no longer owns the job's lease,
	// typically because the visibility timeout expired and the job was
	// leased by another worker before completion.
	ErrLockLost = errors.New("jobqueue: lock lost")
)
