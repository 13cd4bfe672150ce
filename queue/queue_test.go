package queue_test

import (
	"context"
	"database/sql"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pipevision/pipevision/dbopen"
	"github.com/pipevision/pipevision/queue"
)

func newQueue(t *testing.T, db *sql.DB, opts queue.Options) *queue.Queue {
	t.Helper()
	q := queue.New(db, opts)
	if err := q.EnsureSchema(context.Background()); err != nil {
		t.Fatal(err)
	}
	return q
}

func TestPublishAndClaim(t *testing.T) {
	db := dbopen.OpenMemory(t)
	q := newQueue(t, db, queue.Options{Topic: "ingest", Visibility: time.Second})
	ctx := context.Background()

	if err := q.Publish(ctx, "job_1", []byte(`{"project_id":"prj_1"}`)); err != nil {
		t.Fatal(err)
	}

	job, err := q.Claim(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if job == nil {
		t.Fatal("expected a job")
	}
	if job.ID != "job_1" || job.Topic != "ingest" {
		t.Fatalf("got %q on %q", job.ID, job.Topic)
	}
	if job.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", job.Attempts)
	}

	// Claimed job is invisible.
	job2, err := q.Claim(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if job2 != nil {
		t.Fatal("job should be invisible while claimed")
	}
}

func TestTopicsIsolated(t *testing.T) {
	db := dbopen.OpenMemory(t)
	ingest := newQueue(t, db, queue.Options{Topic: "ingest"})
	export := newQueue(t, db, queue.Options{Topic: "export"})
	ctx := context.Background()

	ingest.Publish(ctx, "job_i", nil)

	job, err := export.Claim(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if job != nil {
		t.Fatal("export topic should not see ingest jobs")
	}
}

func TestAckRemoves(t *testing.T) {
	db := dbopen.OpenMemory(t)
	q := newQueue(t, db, queue.Options{Topic: "ingest", Visibility: time.Second})
	ctx := context.Background()

	q.Publish(ctx, "job_1", nil)
	job, _ := q.Claim(ctx)
	if err := q.Ack(ctx, job.ID); err != nil {
		t.Fatal(err)
	}
	n, _ := q.Len(ctx)
	if n != 0 {
		t.Fatalf("len = %d after ack, want 0", n)
	}
}

func TestNackRedelivers(t *testing.T) {
	db := dbopen.OpenMemory(t)
	q := newQueue(t, db, queue.Options{Topic: "ingest", Visibility: 10 * time.Second})
	ctx := context.Background()

	q.Publish(ctx, "job_1", nil)
	job, _ := q.Claim(ctx)
	if err := q.Nack(ctx, job.ID); err != nil {
		t.Fatal(err)
	}

	job2, err := q.Claim(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if job2 == nil {
		t.Fatal("expected redelivery after nack")
	}
	if job2.Attempts != 2 {
		t.Fatalf("attempts = %d, want 2", job2.Attempts)
	}
}

func TestVisibilityTimeoutExpires(t *testing.T) {
	db := dbopen.OpenMemory(t)
	q := newQueue(t, db, queue.Options{Topic: "ingest", Visibility: 50 * time.Millisecond})
	ctx := context.Background()

	q.Publish(ctx, "job_1", nil)
	q.Claim(ctx)

	if job, _ := q.Claim(ctx); job != nil {
		t.Fatal("should be invisible right after claim")
	}

	time.Sleep(80 * time.Millisecond)
	job, err := q.Claim(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if job == nil {
		t.Fatal("job should reappear after visibility lapses")
	}
}

func TestExtendKeepsClaim(t *testing.T) {
	db := dbopen.OpenMemory(t)
	q := newQueue(t, db, queue.Options{Topic: "ingest", Visibility: 50 * time.Millisecond})
	ctx := context.Background()

	q.Publish(ctx, "job_1", nil)
	job, _ := q.Claim(ctx)
	if err := q.Extend(ctx, job.ID, time.Minute); err != nil {
		t.Fatal(err)
	}

	time.Sleep(80 * time.Millisecond)
	if job2, _ := q.Claim(ctx); job2 != nil {
		t.Fatal("extended job must stay invisible past original timeout")
	}
}

func TestRunAcksOnSuccess(t *testing.T) {
	db := dbopen.OpenMemory(t)
	q := newQueue(t, db, queue.Options{
		Topic:        "ingest",
		Visibility:   time.Second,
		PollInterval: 10 * time.Millisecond,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q.Publish(ctx, "job_1", []byte("payload"))

	var handled atomic.Int32
	done := make(chan struct{})
	go func() {
		defer close(done)
		q.Run(ctx, func(ctx context.Context, job *queue.Job) error {
			handled.Add(1)
			return nil
		})
	}()

	deadline := time.After(2 * time.Second)
	for handled.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("handler never ran")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	<-done

	n, _ := q.Len(context.Background())
	if n != 0 {
		t.Fatalf("len = %d after successful handling, want 0", n)
	}
}

func TestRunDiscardsAfterMaxAttempts(t *testing.T) {
	db := dbopen.OpenMemory(t)
	q := newQueue(t, db, queue.Options{
		Topic:        "ingest",
		Visibility:   10 * time.Millisecond,
		PollInterval: 5 * time.Millisecond,
		MaxAttempts:  2,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q.Publish(ctx, "job_bad", nil)

	var attempts atomic.Int32
	done := make(chan struct{})
	go func() {
		defer close(done)
		q.Run(ctx, func(ctx context.Context, job *queue.Job) error {
			attempts.Add(1)
			return errors.New("permanent failure")
		})
	}()

	deadline := time.After(3 * time.Second)
	for {
		n, _ := q.Len(context.Background())
		if n == 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("poison job never discarded")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	<-done

	if got := attempts.Load(); got > 2 {
		t.Fatalf("handler ran %d times, want at most MaxAttempts", got)
	}
}
