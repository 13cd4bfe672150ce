package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// Project statuses, in lifecycle order. A project is "awaiting_input" when
// analysis finished but required metadata (depth, CRS, ...) is missing.
const (
	StatusPending       = "pending"
	StatusProcessing    = "processing"
	StatusAwaitingInput = "awaiting_input"
	StatusReady         = "ready"
	StatusFailed        = "failed"
)

// Project is one uploaded drawing and its analysis results.
type Project struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`

	OriginalFilename string `json:"original_filename"`
	FilePath         string `json:"-"`
	FileSizeBytes    int64  `json:"file_size_bytes"`
	ThumbnailPath    string `json:"-"`

	MetadataComplete bool     `json:"metadata_complete"`
	MissingFields    []string `json:"missing_fields"`

	SourceCRS       string  `json:"source_crs,omitempty"`
	TargetCRS       string  `json:"target_crs"`
	RotationDegrees float64 `json:"rotation_degrees"`
	Units           string  `json:"units,omitempty"`

	// Bounding box in drawing units; all nil when no entity had points.
	MinX *float64 `json:"min_x,omitempty"`
	MinY *float64 `json:"min_y,omitempty"`
	MaxX *float64 `json:"max_x,omitempty"`
	MaxY *float64 `json:"max_y,omitempty"`

	LayerCount     int      `json:"layer_count"`
	EntityCount    int      `json:"entity_count"`
	DetectedLayers []string `json:"detected_layers"`

	CreatedAt   int64  `json:"created_at"`
	UpdatedAt   int64  `json:"updated_at"`
	ProcessedAt *int64 `json:"processed_at,omitempty"`
}

const projectCols = `id, name, description, status, error,
	original_filename, file_path, file_size_bytes, thumbnail_path,
	metadata_complete, missing_fields,
	source_crs, target_crs, rotation_degrees, units,
	min_x, min_y, max_x, max_y,
	layer_count, entity_count, detected_layers,
	created_at, updated_at, processed_at`

// CreateProject inserts a new project. Status defaults to pending.
func (s *Store) CreateProject(ctx context.Context, p *Project) error {
	now := time.Now().UnixMilli()
	if p.CreatedAt == 0 {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	if p.Status == "" {
		p.Status = StatusPending
	}
	if p.TargetCRS == "" {
		p.TargetCRS = "EPSG:4326"
	}

	missing, _ := json.Marshal(emptyList(p.MissingFields))
	layers, _ := json.Marshal(emptyList(p.DetectedLayers))

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO projects (`+projectCols+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.Name, p.Description, p.Status, p.Error,
		p.OriginalFilename, p.FilePath, p.FileSizeBytes, p.ThumbnailPath,
		p.MetadataComplete, string(missing),
		p.SourceCRS, p.TargetCRS, p.RotationDegrees, p.Units,
		p.MinX, p.MinY, p.MaxX, p.MaxY,
		p.LayerCount, p.EntityCount, string(layers),
		p.CreatedAt, p.UpdatedAt, p.ProcessedAt,
	)
	return err
}

// GetProject retrieves a project by ID. Returns nil, nil when absent.
func (s *Store) GetProject(ctx context.Context, id string) (*Project, error) {
	p := &Project{}
	var missing, layers string

	err := s.DB.QueryRowContext(ctx,
		`SELECT `+projectCols+` FROM projects WHERE id = ?`, id).Scan(
		&p.ID, &p.Name, &p.Description, &p.Status, &p.Error,
		&p.OriginalFilename, &p.FilePath, &p.FileSizeBytes, &p.ThumbnailPath,
		&p.MetadataComplete, &missing,
		&p.SourceCRS, &p.TargetCRS, &p.RotationDegrees, &p.Units,
		&p.MinX, &p.MinY, &p.MaxX, &p.MaxY,
		&p.LayerCount, &p.EntityCount, &layers,
		&p.CreatedAt, &p.UpdatedAt, &p.ProcessedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	json.Unmarshal([]byte(missing), &p.MissingFields)
	json.Unmarshal([]byte(layers), &p.DetectedLayers)
	return p, nil
}

// SetProjectStatus transitions a project. errMsg is stored only for failed.
func (s *Store) SetProjectStatus(ctx context.Context, id, status, errMsg string) error {
	if status != StatusFailed {
		errMsg = ""
	}
	_, err := s.DB.ExecContext(ctx,
		`UPDATE projects SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		status, errMsg, time.Now().UnixMilli(), id,
	)
	return err
}

// SaveAnalysis writes the analysis-derived columns of p (missing fields,
// CRS, rotation, units, bounds, counts, layers, thumbnail) plus status, and
// stamps processed_at.
func (s *Store) SaveAnalysis(ctx context.Context, p *Project) error {
	now := time.Now().UnixMilli()
	p.UpdatedAt = now
	if p.ProcessedAt == nil {
		p.ProcessedAt = &now
	}

	missing, _ := json.Marshal(emptyList(p.MissingFields))
	layers, _ := json.Marshal(emptyList(p.DetectedLayers))

	res, err := s.DB.ExecContext(ctx, `
		UPDATE projects SET
			status = ?, error = ?,
			thumbnail_path = ?,
			metadata_complete = ?, missing_fields = ?,
			source_crs = ?, rotation_degrees = ?, units = ?,
			min_x = ?, min_y = ?, max_x = ?, max_y = ?,
			layer_count = ?, entity_count = ?, detected_layers = ?,
			updated_at = ?, processed_at = ?
		WHERE id = ?`,
		p.Status, p.Error,
		p.ThumbnailPath,
		p.MetadataComplete, string(missing),
		p.SourceCRS, p.RotationDegrees, p.Units,
		p.MinX, p.MinY, p.MaxX, p.MaxY,
		p.LayerCount, p.EntityCount, string(layers),
		p.UpdatedAt, p.ProcessedAt,
		p.ID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.New("store: project not found")
	}
	return nil
}

func emptyList(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
