package admission_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/avenlane/jobqueue/admission"
	"github.com/avenlane/jobqueue/job"
	"github.com/avenlane/jobqueue/store/pg"

	_ "modernc.org/sqlite"
)

func newTestStoreAndDB(t *testing.T) (*pg.Store, *bun.DB) {
	t.Helper()
	sqlDB, err := sql.Open("sqlite", "file::memory:?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		t.Fatal(err)
	}
	sqlDB.SetMaxOpenConns(1)
	db := bun.NewDB(sqlDB, sqlitedialect.New())
	if err := pg.InitDB(context.Background(), db); err != nil {
		t.Fatal(err)
	}
	return pg.NewStore(db), db
}

func seedTenant(t *testing.T, db *bun.DB, id string, maxConcurrent, rateLimit int) {
	t.Helper()
	_, err := db.ExecContext(context.Background(),
		"INSERT INTO tenants (id, max_concurrent_jobs, rate_limit_per_minute) VALUES (?, ?, ?)",
		id, maxConcurrent, rateLimit)
	if err != nil {
		t.Fatal(err)
	}
}

func newTestJob(tenantID string) *job.Job {
	return &job.Job{Id: uuid.New(), TenantId: tenantID, Payload: []byte("{}"), MaxRetries: 1}
}

func TestSubmitJobUnknownTenant(t *testing.T) {
	s, _ := newTestStoreAndDB(t)
	a := admission.New(s)

	j := newTestJob("ghost")
	if _, err := a.SubmitJob(context.Background(), j); err != admission.ErrUnknownTenant {
		t.Fatalf("expected ErrUnknownTenant, got %v", err)
	}
}

func TestSubmitJobInsertsAndReturnsJob(t *testing.T) {
	s, db := newTestStoreAndDB(t)
	seedTenant(t, db, "tenant-a", 5, 100)
	a := admission.New(s)

	j := newTestJob("tenant-a")
	got, err := a.SubmitJob(context.Background(), j)
	if err != nil {
		t.Fatal(err)
	}
	if got.Id != j.Id {
		t.Fatal("expected the submitted job back")
	}

	stored, err := s.GetJob(context.Background(), j.Id)
	if err != nil {
		t.Fatal(err)
	}
	if stored == nil || stored.Status != job.Pending {
		t.Fatal("expected job to be durably inserted as Pending")
	}
}

func TestSubmitJobIdempotentShortCircuit(t *testing.T) {
	s, db := newTestStoreAndDB(t)
	seedTenant(t, db, "tenant-a", 5, 100)
	a := admission.New(s)
	ctx := context.Background()

	first := newTestJob("tenant-a")
	first.IdempotencyKey = "checkout-7"
	if _, err := a.SubmitJob(ctx, first); err != nil {
		t.Fatal(err)
	}

	second := newTestJob("tenant-a")
	second.IdempotencyKey = "checkout-7"
	got, err := a.SubmitJob(ctx, second)
	if err != nil {
		t.Fatal(err)
	}
	if got.Id != first.Id {
		t.Fatal("expected the original job to be returned for a duplicate idempotency key")
	}
}

func TestSubmitJobQuotaExceeded(t *testing.T) {
	s, db := newTestStoreAndDB(t)
	seedTenant(t, db, "tenant-a", 1, 100)
	a := admission.New(s)
	ctx := context.Background()

	first := newTestJob("tenant-a")
	if _, err := a.SubmitJob(ctx, first); err != nil {
		t.Fatal(err)
	}
	if _, err := s.LeaseOne(ctx, time.Now(), time.Minute); err != nil {
		t.Fatal(err)
	}

	second := newTestJob("tenant-a")
	if _, err := a.SubmitJob(ctx, second); err != admission.ErrQuotaExceeded {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
}

func TestSubmitJobRateLimited(t *testing.T) {
	s, db := newTestStoreAndDB(t)
	seedTenant(t, db, "tenant-a", 100, 1)
	a := admission.New(s)
	ctx := context.Background()

	if _, err := a.SubmitJob(ctx, newTestJob("tenant-a")); err != nil {
		t.Fatal(err)
	}
	if _, err := a.SubmitJob(ctx, newTestJob("tenant-a")); err != admission.ErrRateLimited {
		t.Fatalf("expected ErrRateLimited on the second burst submission, got %v", err)
	}
}
