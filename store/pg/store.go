// Package pg provides a bun-based relational implementation of
// store.Store, compatible with both SQLite (embedded/test deployments,
// via modernc.org/sqlite) and PostgreSQL (production, via bun's own
// pgdialect/pgdriver) through the same query surface.
//
// # Concurrency Model
//
// LeaseOne is implemented as a single atomic UPDATE ... WHERE id IN
// (subquery) ... RETURNING statement, so selection and state
// transition happen in one round trip and no two concurrent callers
// ever receive the same row. On PostgreSQL the subquery selects FOR
// UPDATE SKIP LOCKED, so concurrent callers pass over a row another
// caller is leasing instead of waiting on it.
//
// SQLite deployments should enable WAL mode and a busy_timeout, and
// should keep MaxOpenConns at 1 — SQLite serializes writers regardless,
// and a higher pool size only produces spurious SQLITE_BUSY errors
// under contention.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"

	"github.com/avenlane/jobqueue/dlq"
	"github.com/avenlane/jobqueue/job"
	"github.com/avenlane/jobqueue/store"
	"github.com/avenlane/jobqueue/tenant"
)

// Store implements store.Store using a *bun.DB.
type Store struct {
	db *bun.DB
}

// NewStore creates a new pg-backed Store.
//
// The provided *bun.DB must be properly configured and connected.
// Call InitDB before using Store.
func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

var _ store.Store = (*Store)(nil)

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate key")
}

// InsertJob writes a new PENDING job, relying on the unique
// (tenant_id, idempotency_key) partial index to reject duplicates
// atomically.
func (s *Store) InsertJob(ctx context.Context, j *job.Job) error {
	if j.Status == job.Unknown {
		j.Status = job.Pending
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now()
	}
	model := fromJob(j)
	err := withTransientRetry(ctx, func() error {
		_, err := s.db.NewInsert().Model(model).Exec(ctx)
		return err
	})
	if err != nil {
		if j.IdempotencyKey != "" && isUniqueViolation(err) {
			return store.ErrDuplicateIdempotency
		}
		return err
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, id uuid.UUID) (*job.Job, error) {
	var ret jobModel
	err := s.db.NewSelect().Model(&ret).Where("id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return ret.toJob(), nil
}

func (s *Store) GetByIdempotency(ctx context.Context, tenantID, key string) (*job.Job, error) {
	if key == "" {
		return nil, nil
	}
	var ret jobModel
	err := s.db.NewSelect().
		Model(&ret).
		Where("tenant_id = ? AND idempotency_key = ?", tenantID, key).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return ret.toJob(), nil
}

func (s *Store) CountByStatus(ctx context.Context, status job.Status, tenantID string) (int64, error) {
	query := s.db.NewSelect().Model((*jobModel)(nil)).Where("status = ?", status)
	if tenantID != "" {
		query.Where("tenant_id = ?", tenantID)
	}
	count, err := query.Count(ctx)
	return int64(count), err
}

func (s *Store) CountRunning(ctx context.Context, tenantID string) (int64, error) {
	return s.CountByStatus(ctx, job.Running, tenantID)
}

func (s *Store) ListByStatus(ctx context.Context, status job.Status, tenantID string, limit int) ([]*job.Job, error) {
	var models []*jobModel
	query := s.db.NewSelect().Model(&models).Order("created_at DESC")
	if status != job.Unknown {
		query.Where("status = ?", status)
	}
	if tenantID != "" {
		query.Where("tenant_id = ?", tenantID)
	}
	if limit > 0 {
		query.Limit(limit)
	}
	if err := query.Scan(ctx); err != nil {
		return nil, err
	}
	ret := make([]*job.Job, len(models))
	for i, m := range models {
		ret[i] = m.toJob()
	}
	return ret, nil
}

// LeaseOne atomically selects the oldest PENDING job eligible for
// leasing and transitions it to RUNNING in a single UPDATE ...
// RETURNING statement.
func (s *Store) LeaseOne(ctx context.Context, now time.Time, ttl time.Duration) (*job.Job, error) {
	leaseUntil := now.Add(ttl)
	subQuery := s.db.NewSelect().
		Model((*jobModel)(nil)).
		Column("id").
		Where("status = ?", job.Pending).
		Where("lease_expires_at IS NULL OR lease_expires_at < ?", now).
		Order("created_at ASC").
		Limit(1)
	if s.db.Dialect().Name() == dialect.PG {
		subQuery.For("UPDATE SKIP LOCKED")
	}
	var models []*jobModel
	err := withTransientRetry(ctx, func() error {
		return s.db.NewUpdate().
			Model((*jobModel)(nil)).
			Set("status = ?", job.Running).
			Set("started_at = ?", now).
			Set("lease_expires_at = ?", leaseUntil).
			Where("id IN (?)", subQuery).
			Returning("*").
			Scan(ctx, &models)
	})
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, nil
	}
	return models[0].toJob(), nil
}

// Acknowledge transitions a RUNNING job to COMPLETED (success) or
// FAILED (failure), setting completed_at = now. The update is scoped
// to status = RUNNING, so a job that was reaped back to PENDING or DLQ
// is not acknowledged by a stale worker. A repeated call on a job that
// already has the status this outcome sets returns nil.
func (s *Store) Acknowledge(ctx context.Context, id uuid.UUID, success bool, errMsg string) error {
	now := time.Now()
	next := job.Completed
	if !success {
		next = job.Failed
	}
	var res sql.Result
	err := withTransientRetry(ctx, func() error {
		var err error
		res, err = s.db.NewUpdate().
			Model((*jobModel)(nil)).
			Set("status = ?", next).
			Set("completed_at = ?", now).
			Set("error_message = ?", errMsg).
			Set("lease_expires_at = NULL").
			Where("id = ?", id).
			Where("status = ?", job.Running).
			Exec(ctx)
		return err
	})
	if err != nil {
		return err
	}
	if !isAffected(res) {
		cur, err := s.GetJob(ctx, id)
		if err != nil {
			return err
		}
		if cur != nil && cur.Status == next {
			return nil
		}
		return store.ErrInvalidState
	}
	return nil
}

// BumpRetry transitions a FAILED job back to PENDING, immediately
// eligible for the next LeaseOne, incrementing retry_count.
func (s *Store) BumpRetry(ctx context.Context, id uuid.UUID) error {
	var res sql.Result
	err := withTransientRetry(ctx, func() error {
		var err error
		res, err = s.db.NewUpdate().
			Model((*jobModel)(nil)).
			Set("status = ?", job.Pending).
			Set("retry_count = retry_count + 1").
			Set("lease_expires_at = NULL").
			Set("started_at = NULL").
			Set("completed_at = NULL").
			Where("id = ?", id).
			Where("status = ?", job.Failed).
			Exec(ctx)
		return err
	})
	if err != nil {
		return err
	}
	if !isAffected(res) {
		return store.ErrInvalidState
	}
	return nil
}

// MoveToDLQ archives the job to dlq_entries and sets its status to DLQ,
// in one transaction.
func (s *Store) MoveToDLQ(ctx context.Context, id uuid.UUID, errMsg string) error {
	return withTransientRetry(ctx, func() error {
		return s.moveToDLQOnce(ctx, id, errMsg)
	})
}

func (s *Store) moveToDLQOnce(ctx context.Context, id uuid.UUID, errMsg string) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var jm jobModel
		if err := tx.NewSelect().Model(&jm).Where("id = ?", id).Scan(ctx); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrNotFound
			}
			return err
		}
		now := time.Now()
		entry := &dlqModel{
			Id:            uuid.New(),
			OriginalJobId: jm.Id,
			TenantId:      jm.TenantId,
			Payload:       jm.Payload,
			ErrorMessage:  errMsg,
			RetryCount:    jm.RetryCount,
			FailedAt:      now,
			TraceId:       jm.TraceId,
		}
		if _, err := tx.NewInsert().Model(entry).Exec(ctx); err != nil {
			return err
		}
		res, err := tx.NewUpdate().
			Model((*jobModel)(nil)).
			Set("status = ?", job.DLQ).
			Set("completed_at = ?", now).
			Set("error_message = ?", errMsg).
			Set("lease_expires_at = NULL").
			Where("id = ?", id).
			Exec(ctx)
		if err != nil {
			return err
		}
		if !isAffected(res) {
			return store.ErrInvalidState
		}
		return nil
	})
}

func (s *Store) ListDLQ(ctx context.Context, tenantID string, limit int) ([]*dlq.Entry, error) {
	var models []*dlqModel
	query := s.db.NewSelect().Model(&models).Order("failed_at DESC")
	if tenantID != "" {
		query.Where("tenant_id = ?", tenantID)
	}
	if limit > 0 {
		query.Limit(limit)
	}
	if err := query.Scan(ctx); err != nil {
		return nil, err
	}
	ret := make([]*dlq.Entry, len(models))
	for i, m := range models {
		ret[i] = m.toEntry()
	}
	return ret, nil
}

// ReapExpired demotes RUNNING jobs whose lease has expired, mirroring
// the Worker's own failure branch: jobs with retry budget remaining go
// back to PENDING, immediately eligible again, jobs without it go to
// DLQ.
func (s *Store) ReapExpired(ctx context.Context, now time.Time) (int, error) {
	var expired []*jobModel
	err := s.db.NewSelect().
		Model(&expired).
		Where("status = ?", job.Running).
		Where("lease_expires_at IS NOT NULL AND lease_expires_at < ?", now).
		Scan(ctx)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, jm := range expired {
		j := jm.toJob()
		var txErr error
		if j.CanRetry() {
			txErr = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
				res, err := tx.NewUpdate().
					Model((*jobModel)(nil)).
					Set("status = ?", job.Pending).
					Set("retry_count = retry_count + 1").
					Set("lease_expires_at = NULL").
					Set("started_at = NULL").
					Where("id = ?", j.Id).
					Where("status = ?", job.Running).
					Exec(ctx)
				if err != nil {
					return err
				}
				if isAffected(res) {
					count++
				}
				return nil
			})
		} else {
			txErr = s.MoveToDLQ(ctx, j.Id, "lease expired, retry budget exhausted")
			if txErr == nil {
				count++
			}
		}
		if txErr != nil {
			return count, txErr
		}
	}
	return count, nil
}

func (s *Store) GetTenant(ctx context.Context, id string) (*tenant.Tenant, error) {
	var ret tenantModel
	err := s.db.NewSelect().Model(&ret).Where("id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return ret.toTenant(), nil
}

// Clean permanently deletes jobs in a terminal status, optionally
// restricted to rows completed at or before before.
func (s *Store) Clean(ctx context.Context, status job.Status, before *time.Time) (int64, error) {
	query := s.db.NewDelete().Model((*jobModel)(nil))
	if status != job.Unknown {
		if !status.IsTerminal() {
			return 0, store.ErrInvalidState
		}
		query.Where("status = ?", status)
	} else {
		query.Where("status IN (?, ?)", job.Completed, job.DLQ)
	}
	if before != nil {
		query.Where("completed_at <= ?", *before)
	}
	res, err := query.Exec(ctx)
	if err != nil {
		return 0, err
	}
	return getAffected(res), nil
}
