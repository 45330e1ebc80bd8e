package pg

import (
	"context"
	"errors"

	"github.com/uptrace/bun"
)

func createJobsTable(ctx context.Context, db bun.IDB) error {
	_, err := db.NewCreateTable().
		Model((*jobModel)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}

func createDLQTable(ctx context.Context, db bun.IDB) error {
	_, err := db.NewCreateTable().
		Model((*dlqModel)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}

func createTenantsTable(ctx context.Context, db bun.IDB) error {
	_, err := db.NewCreateTable().
		Model((*tenantModel)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}

func createLeaseIndex(ctx context.Context, db bun.IDB) error {
	_, err := db.NewCreateIndex().
		Model((*jobModel)(nil)).
		Index("idx_jobs_status_created").
		Column("status", "created_at").
		IfNotExists().
		Exec(ctx)
	return err
}

func createRunningIndex(ctx context.Context, db bun.IDB) error {
	_, err := db.NewCreateIndex().
		Model((*jobModel)(nil)).
		Index("idx_jobs_status_lease").
		Column("status", "lease_expires_at").
		IfNotExists().
		Exec(ctx)
	return err
}

func createTenantStatusIndex(ctx context.Context, db bun.IDB) error {
	_, err := db.NewCreateIndex().
		Model((*jobModel)(nil)).
		Index("idx_jobs_tenant_status").
		Column("tenant_id", "status").
		IfNotExists().
		Exec(ctx)
	return err
}

func createIdempotencyIndex(ctx context.Context, db bun.IDB) error {
	_, err := db.NewCreateIndex().
		Model((*jobModel)(nil)).
		Index("idx_jobs_tenant_idempotency").
		Column("tenant_id", "idempotency_key").
		Unique().
		Where("idempotency_key IS NOT NULL AND idempotency_key != ''").
		IfNotExists().
		Exec(ctx)
	return err
}

func createDLQTenantIndex(ctx context.Context, db bun.IDB) error {
	_, err := db.NewCreateIndex().
		Model((*dlqModel)(nil)).
		Index("idx_dlq_tenant_failed").
		Column("tenant_id", "failed_at").
		IfNotExists().
		Exec(ctx)
	return err
}

func initDB(ctx context.Context, db *bun.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	steps := []func(context.Context, bun.IDB) error{
		createJobsTable,
		createDLQTable,
		createTenantsTable,
		createLeaseIndex,
		createRunningIndex,
		createTenantStatusIndex,
		createIdempotencyIndex,
		createDLQTenantIndex,
	}
	for _, step := range steps {
		if err := step(ctx, tx); err != nil {
			return errors.Join(err, tx.Rollback())
		}
	}
	return tx.Commit()
}

// InitDB initializes the database schema required by the pg backend.
//
// It creates the jobs, dlq_entries and tenants tables, and the indexes
// LeaseOne, ReapExpired, and the admission layer rely on, all inside a
// single transaction. If any step fails, the transaction is rolled
// back.
//
// InitDB is idempotent and may be safely called multiple times. It
// does not drop or modify existing tables beyond creating missing
// objects. Schema evolution beyond additive index/table creation must
// be handled externally.
//
// The caller is responsible for providing a properly configured
// *bun.DB, and for running InitDB before any Store method is used.
func InitDB(ctx context.Context, db *bun.DB) error {
	return initDB(ctx, db)
}

// MustInitDB behaves like InitDB but panics if initialization fails.
// Intended for application bootstrap code where failure to initialize
// schema is considered unrecoverable.
func MustInitDB(ctx context.Context, db *bun.DB) {
	if err := initDB(ctx, db); err != nil {
		panic(err)
	}
}
