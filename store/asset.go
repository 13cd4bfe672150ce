package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pipevision/pipevision/asset"
)

// ReplaceAssets swaps the full asset set of a project in one transaction.
// Re-ingesting a drawing replaces prior results rather than accumulating.
func (s *Store) ReplaceAssets(ctx context.Context, projectID string, assets []*asset.Asset) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM assets WHERE project_id = ?`, projectID); err != nil {
		return err
	}

	now := time.Now().UnixMilli()
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO assets
			(id, project_id, asset_type, label, layer_name, coordinates,
			 depth_start, depth_end, depth_unit, diameter, diameter_unit,
			 material, color, handle, properties, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, a := range assets {
		coords, err := json.Marshal(a.Coordinates)
		if err != nil {
			return fmt.Errorf("store: marshal coordinates of %s: %w", a.ID, err)
		}
		props, err := json.Marshal(a.Properties)
		if err != nil {
			return fmt.Errorf("store: marshal properties of %s: %w", a.ID, err)
		}
		if _, err := stmt.ExecContext(ctx,
			a.ID, projectID, string(a.Type), a.Label, a.LayerName, string(coords),
			a.DepthStart, a.DepthEnd, a.DepthUnit, a.Diameter, a.DiameterUnit,
			a.Material, a.Color, a.Handle, string(props), now,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ListAssets returns all assets of a project in insertion order.
func (s *Store) ListAssets(ctx context.Context, projectID string) ([]*asset.Asset, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, project_id, asset_type, label, layer_name, coordinates,
		       depth_start, depth_end, depth_unit, diameter, diameter_unit,
		       material, color, handle, properties
		FROM assets WHERE project_id = ? ORDER BY rowid`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*asset.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CountAssets returns the number of stored assets for a project.
func (s *Store) CountAssets(ctx context.Context, projectID string) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM assets WHERE project_id = ?`, projectID).Scan(&n)
	return n, err
}

func scanAsset(rows *sql.Rows) (*asset.Asset, error) {
	a := &asset.Asset{}
	var typ, coords, props string
	if err := rows.Scan(
		&a.ID, &a.ProjectID, &typ, &a.Label, &a.LayerName, &coords,
		&a.DepthStart, &a.DepthEnd, &a.DepthUnit, &a.Diameter, &a.DiameterUnit,
		&a.Material, &a.Color, &a.Handle, &props,
	); err != nil {
		return nil, err
	}
	a.Type = asset.Type(typ)
	json.Unmarshal([]byte(coords), &a.Coordinates)
	json.Unmarshal([]byte(props), &a.Properties)
	return a, nil
}
