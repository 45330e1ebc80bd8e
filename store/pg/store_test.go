package pg_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/avenlane/jobqueue/job"
	"github.com/avenlane/jobqueue/store"
	"github.com/avenlane/jobqueue/store/pg"
)

func newJob(tenantID string) *job.Job {
	return &job.Job{
		Id:         uuid.New(),
		TenantId:   tenantID,
		Payload:    []byte(`{"n":1}`),
		MaxRetries: 3,
		TraceId:    uuid.NewString(),
	}
}

func TestInsertAndLease(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	s := pg.NewStore(db)

	j := newJob("tenant-a")
	if err := s.InsertJob(ctx, j); err != nil {
		t.Fatal(err)
	}

	leased, err := s.LeaseOne(ctx, time.Now(), time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if leased == nil {
		t.Fatal("expected a leased job")
	}
	if leased.Status != job.Running {
		t.Fatalf("expected Running, got %v", leased.Status)
	}

	second, err := s.LeaseOne(ctx, time.Now(), time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if second != nil {
		t.Fatal("expected no job eligible for a second lease")
	}
}

func TestAcknowledgeSuccess(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	s := pg.NewStore(db)

	j := newJob("tenant-a")
	_ = s.InsertJob(ctx, j)
	leased, _ := s.LeaseOne(ctx, time.Now(), time.Second)

	if err := s.Acknowledge(ctx, leased.Id, true, ""); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetJob(ctx, leased.Id)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != job.Completed {
		t.Fatalf("expected Completed, got %v", got.Status)
	}
}

func TestAcknowledgeThenBumpRetry(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	s := pg.NewStore(db)

	j := newJob("tenant-a")
	_ = s.InsertJob(ctx, j)
	leased, _ := s.LeaseOne(ctx, time.Now(), time.Second)

	if err := s.Acknowledge(ctx, leased.Id, false, "boom"); err != nil {
		t.Fatal(err)
	}
	failed, _ := s.GetJob(ctx, leased.Id)
	if failed.Status != job.Failed {
		t.Fatalf("expected Failed, got %v", failed.Status)
	}

	if err := s.BumpRetry(ctx, leased.Id); err != nil {
		t.Fatal(err)
	}
	retried, _ := s.GetJob(ctx, leased.Id)
	if retried.Status != job.Pending {
		t.Fatalf("expected Pending, got %v", retried.Status)
	}
	if retried.RetryCount != 1 {
		t.Fatalf("expected retry_count 1, got %d", retried.RetryCount)
	}

	if leased, _ := s.LeaseOne(ctx, time.Now(), time.Second); leased == nil {
		t.Fatal("expected retried job to be immediately eligible for lease")
	}
}

func TestMoveToDLQ(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	s := pg.NewStore(db)

	j := newJob("tenant-a")
	j.MaxRetries = 0
	_ = s.InsertJob(ctx, j)
	leased, _ := s.LeaseOne(ctx, time.Now(), time.Second)
	_ = s.Acknowledge(ctx, leased.Id, false, "fatal")

	if err := s.MoveToDLQ(ctx, leased.Id, "fatal"); err != nil {
		t.Fatal(err)
	}

	got, _ := s.GetJob(ctx, leased.Id)
	if got.Status != job.DLQ {
		t.Fatalf("expected DLQ, got %v", got.Status)
	}

	entries, err := s.ListDLQ(ctx, "tenant-a", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 dlq entry, got %d", len(entries))
	}
	if entries[0].OriginalJobId != leased.Id {
		t.Fatal("dlq entry references the wrong job")
	}
}

func TestIdempotentInsertReturnsDuplicate(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	s := pg.NewStore(db)

	first := newJob("tenant-a")
	first.IdempotencyKey = "order-42"
	if err := s.InsertJob(ctx, first); err != nil {
		t.Fatal(err)
	}

	second := newJob("tenant-a")
	second.IdempotencyKey = "order-42"
	err := s.InsertJob(ctx, second)
	if err == nil {
		t.Fatal("expected duplicate idempotency error")
	}
	if err != store.ErrDuplicateIdempotency {
		t.Fatalf("expected ErrDuplicateIdempotency, got %v", err)
	}

	existing, err := s.GetByIdempotency(ctx, "tenant-a", "order-42")
	if err != nil {
		t.Fatal(err)
	}
	if existing.Id != first.Id {
		t.Fatal("GetByIdempotency returned the wrong job")
	}
}

func TestReapExpiredRetriesThenDLQs(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	s := pg.NewStore(db)

	j := newJob("tenant-a")
	j.MaxRetries = 1
	_ = s.InsertJob(ctx, j)

	leased, err := s.LeaseOne(ctx, time.Now(), time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}

	time.Sleep(5 * time.Millisecond)

	count, err := s.ReapExpired(ctx, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("expected 1 reaped job, got %d", count)
	}

	reaped, _ := s.GetJob(ctx, leased.Id)
	if reaped.Status != job.Pending {
		t.Fatalf("expected Pending after first reap, got %v", reaped.Status)
	}

	leasedAgain, err := s.LeaseOne(ctx, time.Now(), time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if leasedAgain == nil {
		t.Fatal("expected job to be leasable after reap")
	}

	time.Sleep(5 * time.Millisecond)
	count, err = s.ReapExpired(ctx, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("expected 1 reaped job on second pass, got %d", count)
	}

	dead, _ := s.GetJob(ctx, leased.Id)
	if dead.Status != job.DLQ {
		t.Fatalf("expected DLQ after retry budget exhausted, got %v", dead.Status)
	}
}

func TestCleanRejectsNonTerminalStatus(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	s := pg.NewStore(db)

	if _, err := s.Clean(ctx, job.Pending, nil); err != store.ErrInvalidState {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestCleanDeletesTerminalJobs(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	s := pg.NewStore(db)

	j := newJob("tenant-a")
	_ = s.InsertJob(ctx, j)
	leased, _ := s.LeaseOne(ctx, time.Now(), time.Second)
	_ = s.Acknowledge(ctx, leased.Id, true, "")

	count, err := s.Clean(ctx, job.Completed, nil)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("expected 1 deleted job, got %d", count)
	}

	got, _ := s.GetJob(ctx, leased.Id)
	if got != nil {
		t.Fatal("expected job to be deleted")
	}
}
