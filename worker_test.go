package jobqueue_test

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/avenlane/jobqueue"
	"github.com/avenlane/jobqueue/job"
	"github.com/avenlane/jobqueue/store/pg"

	_ "modernc.org/sqlite"
)

func newID() uuid.UUID {
	return uuid.New()
}

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()
	sqlDB, err := sql.Open("sqlite", "file::memory:?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		t.Fatal(err)
	}
	sqlDB.SetMaxOpenConns(1)
	db := bun.NewDB(sqlDB, sqlitedialect.New())
	ctx := context.Background()
	if err := pg.InitDB(ctx, db); err != nil {
		t.Fatal(err)
	}
	return db
}

func TestWorkerProcessesJob(t *testing.T) {
	db := newTestDB(t)
	store := pg.NewStore(db)
	queue := jobqueue.NewQueue(store)

	logger := slog.Default()
	handlerCalled := make(chan struct{}, 1)

	handler := func(ctx context.Context, j *job.Job) error {
		handlerCalled <- struct{}{}
		return nil
	}

	cfg := &jobqueue.WorkerConfig{
		Concurrency:  1,
		Queue:        10,
		BatchSize:    1,
		PollInterval: 20 * time.Millisecond,
		LeaseTTL:     200 * time.Millisecond,
	}

	worker := jobqueue.NewWorker(queue, handler, cfg, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := worker.Start(ctx); err != nil {
		t.Fatal(err)
	}

	jb := &job.Job{Id: newID(), TenantId: "t1", Payload: []byte("{}")}
	if err := store.InsertJob(ctx, jb); err != nil {
		t.Fatal(err)
	}

	select {
	case <-handlerCalled:
	case <-time.After(time.Second):
		t.Fatal("handler not called")
	}

	time.Sleep(100 * time.Millisecond)

	got, err := store.GetJob(ctx, jb.Id)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != job.Completed {
		t.Fatalf("expected Completed, got %v", got.Status)
	}

	if err := worker.Stop(time.Second); err != nil {
		t.Fatal(err)
	}
}

func TestWorkerRetry(t *testing.T) {
	db := newTestDB(t)
	store := pg.NewStore(db)
	queue := jobqueue.NewQueue(store)

	logger := slog.Default()
	var calls atomic.Int32

	handler := func(ctx context.Context, j *job.Job) error {
		if calls.Add(1) < 2 {
			return errors.New("fail once")
		}
		return nil
	}

	cfg := &jobqueue.WorkerConfig{
		Concurrency:  1,
		Queue:        10,
		BatchSize:    1,
		PollInterval: 20 * time.Millisecond,
		LeaseTTL:     200 * time.Millisecond,
	}

	worker := jobqueue.NewWorker(queue, handler, cfg, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_ = worker.Start(ctx)

	jb := &job.Job{Id: newID(), TenantId: "t1", Payload: []byte("{}"), MaxRetries: 3}
	_ = store.InsertJob(ctx, jb)

	time.Sleep(400 * time.Millisecond)

	got, _ := store.GetJob(ctx, jb.Id)
	if got.Status != job.Completed {
		t.Fatalf("expected Completed after retry, got %v", got.Status)
	}
	if got.RetryCount != 1 {
		t.Fatalf("expected exactly one retry, got %d", got.RetryCount)
	}

	_ = worker.Stop(time.Second)
}

func TestWorkerAbandonShortcut(t *testing.T) {
	db := newTestDB(t)
	store := pg.NewStore(db)
	queue := jobqueue.NewQueue(store)

	logger := slog.Default()
	handler := func(ctx context.Context, j *job.Job) error {
		return jobqueue.ErrAbandon
	}

	cfg := &jobqueue.WorkerConfig{
		Concurrency:  1,
		Queue:        10,
		BatchSize:    1,
		PollInterval: 20 * time.Millisecond,
		LeaseTTL:     200 * time.Millisecond,
	}

	worker := jobqueue.NewWorker(queue, handler, cfg, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_ = worker.Start(ctx)

	jb := &job.Job{Id: newID(), TenantId: "t1", Payload: []byte("{}"), MaxRetries: 5}
	_ = store.InsertJob(ctx, jb)

	time.Sleep(200 * time.Millisecond)

	got, _ := store.GetJob(ctx, jb.Id)
	if got.Status != job.DLQ {
		t.Fatalf("expected DLQ, got %v", got.Status)
	}

	_ = worker.Stop(time.Second)
}
