package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// Export statuses.
const (
	ExportPending = "pending"
	ExportReady   = "ready"
	ExportFailed  = "failed"
)

// Export is one generated output file for a project.
type Export struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Format    string `json:"format"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`

	FilePath      string `json:"-"`
	FileSizeBytes int64  `json:"file_size_bytes"`

	// Options is the export-options JSON the job ran with, kept for
	// reproducing the output.
	Options json.RawMessage `json:"options,omitempty"`

	DownloadCount int    `json:"download_count"`
	CreatedAt     int64  `json:"created_at"`
	CompletedAt   *int64 `json:"completed_at,omitempty"`
	ExpiresAt     *int64 `json:"expires_at,omitempty"`
}

// CreateExport inserts a pending export record.
func (s *Store) CreateExport(ctx context.Context, e *Export) error {
	if e.CreatedAt == 0 {
		e.CreatedAt = time.Now().UnixMilli()
	}
	if e.Status == "" {
		e.Status = ExportPending
	}
	opts := string(e.Options)
	if opts == "" {
		opts = "{}"
	}
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO exports
			(id, project_id, format, status, error, file_path, file_size_bytes,
			 options, download_count, created_at, completed_at, expires_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		e.ID, e.ProjectID, e.Format, e.Status, e.Error, e.FilePath, e.FileSizeBytes,
		opts, e.DownloadCount, e.CreatedAt, e.CompletedAt, e.ExpiresAt,
	)
	return err
}

// GetExport retrieves an export by ID. Returns nil, nil when absent.
func (s *Store) GetExport(ctx context.Context, id string) (*Export, error) {
	e := &Export{}
	var opts string
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, project_id, format, status, error, file_path, file_size_bytes,
		       options, download_count, created_at, completed_at, expires_at
		FROM exports WHERE id = ?`, id).Scan(
		&e.ID, &e.ProjectID, &e.Format, &e.Status, &e.Error, &e.FilePath, &e.FileSizeBytes,
		&opts, &e.DownloadCount, &e.CreatedAt, &e.CompletedAt, &e.ExpiresAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	e.Options = json.RawMessage(opts)
	return e, nil
}

// ListExports returns a project's exports, newest first.
func (s *Store) ListExports(ctx context.Context, projectID string) ([]*Export, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, project_id, format, status, error, file_path, file_size_bytes,
		       options, download_count, created_at, completed_at, expires_at
		FROM exports WHERE project_id = ? ORDER BY created_at DESC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Export
	for rows.Next() {
		e := &Export{}
		var opts string
		if err := rows.Scan(
			&e.ID, &e.ProjectID, &e.Format, &e.Status, &e.Error, &e.FilePath, &e.FileSizeBytes,
			&opts, &e.DownloadCount, &e.CreatedAt, &e.CompletedAt, &e.ExpiresAt,
		); err != nil {
			return nil, err
		}
		e.Options = json.RawMessage(opts)
		out = append(out, e)
	}
	return out, rows.Err()
}

// FinishExport marks an export ready and records its output file.
func (s *Store) FinishExport(ctx context.Context, id, filePath string, sizeBytes int64) error {
	now := time.Now().UnixMilli()
	_, err := s.DB.ExecContext(ctx, `
		UPDATE exports SET status = ?, error = '', file_path = ?, file_size_bytes = ?, completed_at = ?
		WHERE id = ?`,
		ExportReady, filePath, sizeBytes, now, id,
	)
	return err
}

// FailExport marks an export failed with the adapter's error message.
func (s *Store) FailExport(ctx context.Context, id, errMsg string) error {
	now := time.Now().UnixMilli()
	_, err := s.DB.ExecContext(ctx, `
		UPDATE exports SET status = ?, error = ?, completed_at = ? WHERE id = ?`,
		ExportFailed, errMsg, now, id,
	)
	return err
}

// RecordDownload increments the export's download counter.
func (s *Store) RecordDownload(ctx context.Context, id string) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE exports SET download_count = download_count + 1 WHERE id = ?`, id)
	return err
}
