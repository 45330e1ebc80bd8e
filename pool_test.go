package jobqueue_test

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/avenlane/jobqueue"
	"github.com/avenlane/jobqueue/job"
	"github.com/avenlane/jobqueue/store/pg"
)

func TestWorkerPoolProcessesAcrossWorkers(t *testing.T) {
	db := newTestDB(t)
	store := pg.NewStore(db)
	queue := jobqueue.NewQueue(store)
	logger := slog.Default()

	var handled atomic.Int32
	handler := func(ctx context.Context, j *job.Job) error {
		handled.Add(1)
		return nil
	}

	cfg := &jobqueue.WorkerConfig{
		Concurrency:  1,
		Queue:        5,
		BatchSize:    1,
		PollInterval: 10 * time.Millisecond,
		LeaseTTL:     time.Second,
	}

	pool := jobqueue.NewWorkerPool(queue, handler, cfg, 3, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := pool.Start(ctx); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 5; i++ {
		jb := &job.Job{Id: newID(), TenantId: "t1", Payload: []byte("{}")}
		if err := store.InsertJob(context.Background(), jb); err != nil {
			t.Fatal(err)
		}
	}

	deadline := time.Now().Add(time.Second)
	for handled.Load() < 5 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if handled.Load() < 5 {
		t.Fatalf("expected 5 jobs handled, got %d", handled.Load())
	}

	if err := pool.Stop(time.Second); err != nil {
		t.Fatal(err)
	}
}

func TestWorkerPoolLifecycleErrors(t *testing.T) {
	db := newTestDB(t)
	store := pg.NewStore(db)
	queue := jobqueue.NewQueue(store)
	logger := slog.Default()

	handler := func(ctx context.Context, j *job.Job) error { return nil }
	cfg := &jobqueue.WorkerConfig{Concurrency: 1, Queue: 1, BatchSize: 1, PollInterval: time.Second, LeaseTTL: time.Second}

	pool := jobqueue.NewWorkerPool(queue, handler, cfg, 2, logger)

	ctx := context.Background()
	if err := pool.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := pool.Start(ctx); err == nil {
		t.Fatal("expected ErrDoubleStarted")
	}
	if err := pool.Stop(time.Second); err != nil {
		t.Fatal(err)
	}
	if err := pool.Stop(time.Second); err == nil {
		t.Fatal("expected ErrDoubleStopped")
	}
}
