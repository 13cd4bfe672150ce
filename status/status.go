// Package status records pipeline phase transitions and events.
//
// Phases are advisory labels for UI polling ("parsing", "storing", ...);
// they carry no control-flow meaning. Writes are best-effort: a failing
// status store logs via slog and never blocks the pipeline.
package status

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/pipevision/pipevision/idgen"
)

// Phase labels emitted by the workers, in pipeline order.
const (
	PhaseParsing    = "parsing"
	PhasePreview    = "generating preview"
	PhaseStoring    = "storing"
	PhaseLoading    = "loading"
	PhaseExporting  = "exporting"
)

// Reporter writes phase and event rows for a subject (project or export).
type Reporter struct {
	db     *sql.DB
	logger *slog.Logger
	newID  idgen.Generator
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithIDGenerator overrides the event ID generator.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(r *Reporter) { r.newID = gen }
}

// WithLogger overrides slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reporter) { r.logger = l }
}

// New creates a Reporter on db. Call EnsureSchema once at startup.
func New(db *sql.DB, opts ...Option) *Reporter {
	r := &Reporter{
		db:     db,
		logger: slog.Default(),
		newID:  idgen.Prefixed("evt_", idgen.Default),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// EnsureSchema creates the status tables if missing.
func (r *Reporter) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS status_events (
			event_id    TEXT PRIMARY KEY,
			subject_id  TEXT NOT NULL,
			kind        TEXT NOT NULL,
			phase       TEXT NOT NULL DEFAULT '',
			message     TEXT NOT NULL DEFAULT '',
			created_at  INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_status_subject ON status_events (subject_id, created_at);
	`)
	return err
}

// Phase records a phase transition for subjectID and logs it.
func (r *Reporter) Phase(ctx context.Context, subjectID, phase string) {
	r.logger.Info("phase", "subject_id", subjectID, "phase", phase)
	r.insert(ctx, subjectID, "phase", phase, "")
}

// Event records a free-form event (warnings, degraded outputs).
func (r *Reporter) Event(ctx context.Context, subjectID, message string) {
	r.logger.Info("event", "subject_id", subjectID, "message", message)
	r.insert(ctx, subjectID, "event", "", message)
}

func (r *Reporter) insert(ctx context.Context, subjectID, kind, phase, message string) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO status_events (event_id, subject_id, kind, phase, message, created_at)
		VALUES (?,?,?,?,?,?)`,
		r.newID(), subjectID, kind, phase, message, time.Now().UnixMilli())
	if err != nil {
		r.logger.Warn("status write failed", "subject_id", subjectID, "error", err)
	}
}

// LatestPhase returns the most recent phase label for subjectID, or "" when
// none was recorded.
func (r *Reporter) LatestPhase(ctx context.Context, subjectID string) (string, error) {
	var phase string
	err := r.db.QueryRowContext(ctx, `
		SELECT phase FROM status_events
		WHERE subject_id = ? AND kind = 'phase'
		ORDER BY created_at DESC, rowid DESC LIMIT 1`, subjectID).Scan(&phase)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return phase, err
}

// History returns all events for subjectID in chronological order.
type Entry struct {
	Kind      string `json:"kind"`
	Phase     string `json:"phase,omitempty"`
	Message   string `json:"message,omitempty"`
	CreatedAt int64  `json:"created_at"`
}

func (r *Reporter) History(ctx context.Context, subjectID string) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT kind, phase, message, created_at FROM status_events
		WHERE subject_id = ? ORDER BY created_at ASC, rowid ASC`, subjectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Kind, &e.Phase, &e.Message, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
