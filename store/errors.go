package store

import "errors"

// Sentinel errors returned by Store implementations. These live in
// package store (rather than the root jobqueue package) because
// jobqueue imports store — defining them here and aliasing them from
// jobqueue avoids an import cycle while keeping one canonical error
// value for errors.Is comparisons on either side of the boundary.
var (
	// ErrNotFound indicates a lookup found no matching row.
	ErrNotFound = errors.New("store: not found")

	// ErrDuplicateIdempotency indicates InsertJob hit the unique
	// (tenant_id, idempotency_key) constraint. Callers should look up
	// the existing job via GetByIdempotency rather than treat this as
	// fatal.
	ErrDuplicateIdempotency = errors.New("store: duplicate idempotency key")

	// ErrInvalidState indicates a transition was attempted against a
	// job that is not currently in the state the transition requires
	// (e.g. Acknowledge on a job that is not RUNNING).
	ErrInvalidState = errors.New("store: invalid state transition")

	// ErrTransientStore indicates a timeout, deadlock or serialization
	// failure that is expected to succeed if retried.
	ErrTransientStore = errors.New("store: transient error")
)
