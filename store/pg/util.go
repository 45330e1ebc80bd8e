package pg

import (
	"context"
	"database/sql"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/avenlane/jobqueue/store"
)

func isAffected(res sql.Result) bool {
	rows, err := res.RowsAffected()
	if err != nil {
		return true
	}
	return rows != 0
}

func getAffected(res sql.Result) int64 {
	ret, err := res.RowsAffected()
	if err != nil {
		return -1
	}
	return ret
}

// transientRetry is a fixed, small jittered-backoff policy (initial
// interval, multiplier, randomization, cap) kept local to this
// package — store/pg only needs a fixed retry budget for lock
// contention, not a caller-tunable policy.
var transientRetry = struct {
	maxAttempts     int
	initialInterval time.Duration
	multiplier      float64
	maxInterval     time.Duration
}{
	maxAttempts:     3,
	initialInterval: 25 * time.Millisecond,
	multiplier:      2,
	maxInterval:     200 * time.Millisecond,
}

// isTransient reports whether err represents a timeout, lock
// contention or serialization conflict that is safe to retry without
// side effects, per store.ErrTransientStore's contract: the statements
// it guards (LeaseOne, Acknowledge, BumpRetry, MoveToDLQ, InsertJob)
// are all idempotent no-ops on failure, since none of them partially
// apply outside of a single UPDATE/transaction.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "database is locked"):
		return true
	case strings.Contains(msg, "busy"):
		return true
	case strings.Contains(msg, "deadlock detected"):
		return true
	case strings.Contains(msg, "serialization failure"):
		return true
	case strings.Contains(msg, "could not serialize access"):
		return true
	default:
		return false
	}
}

// withTransientRetry runs fn, retrying with jittered exponential
// backoff while isTransient(err) holds, and wraps the final failure in
// store.ErrTransientStore so callers (admission, service, api) can
// branch on a single sentinel rather than driver-specific error text.
func withTransientRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= transientRetry.maxAttempts; attempt++ {
		err = fn()
		if err == nil || !isTransient(err) {
			return err
		}
		if attempt == transientRetry.maxAttempts {
			break
		}
		delay := backoffDelay(attempt)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return errWrap(store.ErrTransientStore, err)
}

func backoffDelay(attempt int) time.Duration {
	exp := float64(transientRetry.initialInterval) * math.Pow(transientRetry.multiplier, float64(attempt-1))
	if exp > float64(transientRetry.maxInterval) {
		exp = float64(transientRetry.maxInterval)
	}
	jitter := 0.2 * exp
	exp = exp - jitter + rand.Float64()*(2*jitter)
	return time.Duration(exp)
}

func errWrap(sentinel, cause error) error {
	if cause == nil {
		return sentinel
	}
	return &transientError{sentinel: sentinel, cause: cause}
}

type transientError struct {
	sentinel error
	cause    error
}

func (e *transientError) Error() string {
	return e.sentinel.Error() + ": " + e.cause.Error()
}

func (e *transientError) Unwrap() []error {
	return []error{e.sentinel, e.cause}
}
