// Package queue implements a visibility-timeout job queue backed by SQLite.
//
// A claimed job stays invisible to other consumers for a configurable
// duration. Consumers ack jobs they finished and nack jobs they failed;
// a crashed consumer simply lets the timeout lapse and the job reappears.
// Long-running jobs (drawing ingestion can take minutes) call Extend to
// keep their claim alive.
//
// Topics partition the table: the service runs one consumer per topic
// ("ingest", "export") against the same database.
package queue

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"
)

// Job is one unit of work.
type Job struct {
	ID        string
	Topic     string
	Payload   []byte
	VisibleAt time.Time
	CreatedAt time.Time
	Attempts  int
}

// Options configures a Queue.
type Options struct {
	// Topic is the logical partition this handle publishes to and consumes
	// from. Default: "" (the default topic).
	Topic string
	// Visibility is how long a claimed job stays invisible. Default: 30s.
	Visibility time.Duration
	// PollInterval is the delay between claim attempts in Run. Default: 1s.
	PollInterval time.Duration
	// MaxAttempts discards a job after this many deliveries. 0 = unlimited.
	MaxAttempts int
	// Logger overrides slog.Default.
	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.Visibility <= 0 {
		o.Visibility = 30 * time.Second
	}
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Queue is a handle bound to one topic.
type Queue struct {
	db   *sql.DB
	opts Options
}

// New creates a queue handle. Call EnsureSchema once at startup.
func New(db *sql.DB, opts Options) *Queue {
	opts.defaults()
	return &Queue{db: db, opts: opts}
}

// EnsureSchema creates the jobs table and index if missing. Timestamps are
// milliseconds since epoch.
func (q *Queue) EnsureSchema(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS jobs (
			id          TEXT PRIMARY KEY,
			topic       TEXT NOT NULL DEFAULT '',
			payload     BLOB,
			visible_at  INTEGER NOT NULL DEFAULT 0,
			created_at  INTEGER NOT NULL,
			attempts    INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_jobs_visible ON jobs (topic, visible_at);
	`)
	return err
}

// Publish inserts a job that is immediately visible.
func (q *Queue) Publish(ctx context.Context, id string, payload []byte) error {
	now := time.Now().UnixMilli()
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO jobs (id, topic, payload, visible_at, created_at) VALUES (?,?,?,?,?)`,
		id, q.opts.Topic, payload, now, now,
	)
	return err
}

// Claim atomically picks the oldest visible job on the topic, hides it for
// the visibility duration and returns it. Returns nil, nil when the topic
// is empty.
func (q *Queue) Claim(ctx context.Context) (*Job, error) {
	now := time.Now()
	hideUntil := now.Add(q.opts.Visibility).UnixMilli()

	row := q.db.QueryRowContext(ctx, `
		UPDATE jobs
		SET visible_at = ?, attempts = attempts + 1
		WHERE id = (
			SELECT id FROM jobs
			WHERE topic = ? AND visible_at <= ?
			ORDER BY visible_at ASC
			LIMIT 1
		)
		RETURNING id, topic, payload, visible_at, created_at, attempts`,
		hideUntil, q.opts.Topic, now.UnixMilli(),
	)

	var j Job
	var visAt, creAt int64
	err := row.Scan(&j.ID, &j.Topic, &j.Payload, &visAt, &creAt, &j.Attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	j.VisibleAt = time.UnixMilli(visAt)
	j.CreatedAt = time.UnixMilli(creAt)
	return &j, nil
}

// Ack deletes a finished job.
func (q *Queue) Ack(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx,
		`DELETE FROM jobs WHERE id = ? AND topic = ?`, id, q.opts.Topic,
	)
	return err
}

// Nack makes a job immediately visible again.
func (q *Queue) Nack(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE jobs SET visible_at = 0 WHERE id = ? AND topic = ?`, id, q.opts.Topic,
	)
	return err
}

// Extend pushes the claim deadline forward for a job that needs more time.
func (q *Queue) Extend(ctx context.Context, id string, extra time.Duration) error {
	hideUntil := time.Now().Add(extra).UnixMilli()
	_, err := q.db.ExecContext(ctx,
		`UPDATE jobs SET visible_at = ? WHERE id = ? AND topic = ?`,
		hideUntil, id, q.opts.Topic,
	)
	return err
}

// Len counts jobs on the topic, visible or not.
func (q *Queue) Len(ctx context.Context) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM jobs WHERE topic = ?`, q.opts.Topic,
	).Scan(&n)
	return n, err
}

// Handler processes a claimed job. Return nil to ack, non-nil to nack.
type Handler func(ctx context.Context, job *Job) error

// Run polls for jobs and hands each one to handler. Blocks until ctx is
// cancelled.
func (q *Queue) Run(ctx context.Context, handler Handler) {
	log := q.opts.Logger
	log.Info("queue: consumer started",
		"topic", q.opts.Topic, "visibility", q.opts.Visibility, "poll", q.opts.PollInterval)

	ticker := time.NewTicker(q.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("queue: consumer stopped", "topic", q.opts.Topic)
			return
		case <-ticker.C:
			q.drain(ctx, handler, log)
		}
	}
}

func (q *Queue) drain(ctx context.Context, handler Handler, log *slog.Logger) {
	for {
		job, err := q.Claim(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Warn("queue: claim failed", "error", err, "topic", q.opts.Topic)
			}
			return
		}
		if job == nil {
			return
		}

		if q.opts.MaxAttempts > 0 && job.Attempts > q.opts.MaxAttempts {
			log.Warn("queue: job exceeded max attempts, discarding",
				"id", job.ID, "attempts", job.Attempts, "topic", q.opts.Topic)
			_ = q.Ack(ctx, job.ID)
			continue
		}

		if err := handler(ctx, job); err != nil {
			log.Warn("queue: handler failed, nacking",
				"id", job.ID, "error", err, "topic", q.opts.Topic)
			_ = q.Nack(context.Background(), job.ID)
		} else {
			_ = q.Ack(context.Background(), job.ID)
		}
	}
}
