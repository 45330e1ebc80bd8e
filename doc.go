// Package jobqueue provides a multi-tenant, storage-agnostic job queue
// with at-least-once delivery semantics and lease-based visibility
// timeout behavior.
//
// # Overview
//
// jobqueue models a durable job queue with explicit per-tenant state
// transitions. It separates the persistence contract (store.Store) from
// queue semantics (Queue), admission policy (admission.Admission), and
// worker execution (Worker, WorkerPool), and fans out every lifecycle
// transition through an in-process event bus (eventbus.Bus).
//
// The package does not mandate any particular storage backend.
// Implementations may use PostgreSQL, SQLite, or any other durable
// relational store — see store/pg for the reference implementation.
//
// # Delivery Semantics
//
// jobqueue provides at-least-once processing guarantees.
//
// A job may be delivered more than once if:
//
//   - a worker crashes before acknowledging it
//   - the lease expires before completion
//   - the lease is lost to concurrent re-leasing
//
// Processors must therefore be idempotent.
//
// # Visibility Timeout (Lease Model)
//
// When a job is leased, it transitions from PENDING to RUNNING and
// receives a visibility timeout (LeaseExpiresAt). While the lease is
// valid, the job is not eligible for leasing by other workers. If the
// lease expires before completion, a Reaper demotes the job back to
// PENDING (or DLQ, if its retry budget is exhausted).
//
// # State Machine
//
//	PENDING -> RUNNING -> COMPLETED            (terminal)
//	PENDING -> RUNNING -> FAILED -> PENDING     (retry budget remains)
//	PENDING -> RUNNING -> FAILED -> DLQ         (terminal, archived)
//	RUNNING -> PENDING                          (reaped, expired lease)
//	RUNNING -> DLQ                              (reaped, expired lease, budget exhausted)
//
// # Retry Policy
//
// When a processor returns an error, the failure is durably recorded
// (FAILED) before a separate decision either bumps the job immediately
// back to PENDING (RetryCount < MaxRetries) or moves it to DLQ once the
// retry budget is exhausted. Scheduled or delayed re-leasing is out of
// scope; a retried job is eligible for the very next LeaseOne.
//
// # Admission
//
// Before a job is enqueued, admission.Admission applies idempotency
// short-circuiting, a per-tenant concurrency quota, and a per-tenant
// token-bucket rate limit. See package admission.
//
// # Concurrency Model
//
// Each Worker polls the Queue and dispatches leased jobs to a bounded
// internal worker pool. Leases are not extended while handlers execute;
// a handler that outlives its lease may see its job reaped and leased
// again.
// WorkerPool runs a fixed-size group of independent Workers sharing one
// Store. Shutdown is graceful: in-flight handlers are allowed to finish,
// subject to a configurable timeout.
//
// # Storage Expectations
//
// Implementations of store.Store must ensure atomic lease transitions,
// durable persistence and correct visibility timeout handling. jobqueue
// assumes the store provides reliable write semantics; behavior under
// concurrent writers depends on the chosen backend's isolation level and
// its SKIP LOCKED (or equivalent) support.
package jobqueue
