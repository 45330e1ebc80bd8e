// Package job defines the stateful representation of a unit of work
// within the jobqueue lifecycle.
//
// Job carries both the caller-supplied payload and the delivery metadata
// maintained by the queue storage and worker logic: Status, RetryCount,
// lease information, and scheduling timestamps.
//
// Job values are typically returned by store.Store operations and passed
// back to the storage layer for state transitions (Acknowledge,
// BumpRetry, MoveToDLQ, etc.).
//
// Job is not intended to be constructed manually by user code outside of
// submission; its fields reflect the authoritative state stored by the
// queue backend.
package job
