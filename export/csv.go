package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/pipevision/pipevision/asset"
	"github.com/pipevision/pipevision/geo"
)

// csvHeader is the fixed column order of the tabular export.
var csvHeader = []string{
	"id", "type", "label", "layer",
	"start_lat", "start_lon", "start_depth",
	"end_lat", "end_lon", "end_depth",
	"diameter", "material", "color",
}

// CSV exports one row per asset with start/end coordinate pairs. Missing
// numeric attributes become empty cells, not zeros, so "no data" stays
// distinguishable from a stored zero.
type CSV struct {
	Options Options
	Logger  *slog.Logger
}

// NewCSV creates the adapter.
func NewCSV(opts Options, logger *slog.Logger) *CSV {
	if logger == nil {
		logger = slog.Default()
	}
	return &CSV{Options: opts, Logger: logger}
}

func (c *CSV) Format() string { return "csv" }

// Export writes the table. Assets without coordinates are skipped.
func (c *CSV) Export(ctx context.Context, assets []*asset.Asset, outputPath string) (Result, error) {
	tr, err := geo.NewTransformer(c.Options.SourceCRS, c.Options.TargetCRS)
	if err != nil {
		return Result{}, fmt.Errorf("csv export: %w", err)
	}

	if err := ensureParent(outputPath); err != nil {
		return Result{}, err
	}
	f, err := os.Create(outputPath)
	if err != nil {
		return Result{}, fmt.Errorf("csv export: create: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return Result{}, fmt.Errorf("csv export: header: %w", err)
	}

	rows := 0
	for _, a := range assets {
		coords := a.CoordinateList()
		if len(coords) == 0 {
			continue
		}
		start := tr.TransformCoord(coords[0])
		end := start
		if len(coords) > 1 {
			end = tr.TransformCoord(coords[len(coords)-1])
		}

		if err := w.Write(c.row(a, start, end)); err != nil {
			return Result{}, fmt.Errorf("csv export: row: %w", err)
		}
		rows++
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return Result{}, fmt.Errorf("csv export: flush: %w", err)
	}

	c.Logger.Info("exported csv", "rows", rows, "path", outputPath)
	return Result{Path: outputPath}, nil
}

func (c *CSV) row(a *asset.Asset, start, end []float64) []string {
	typ := a.Type
	if typ == "" {
		typ = asset.TypeUnknown
	}

	return []string{
		a.ID,
		string(typ),
		a.Label,
		a.LayerName,
		c.num(start[1]), // lat before lon in output order
		c.num(start[0]),
		c.num(c.depthOf(start, a.DepthStart)),
		c.num(end[1]),
		c.num(end[0]),
		c.num(c.depthOf(end, a.DepthEnd)),
		optional(a.Diameter),
		a.Material,
		a.Color,
	}
}

// depthOf prefers the coordinate's own z, then the stored attribute, then 0.
func (c *CSV) depthOf(coord []float64, stored *float64) float64 {
	if len(coord) > 2 {
		return coord[2]
	}
	if stored != nil {
		return *stored
	}
	return 0
}

func (c *CSV) num(v float64) string {
	return strconv.FormatFloat(geo.Round(v, c.Options.Precision), 'f', -1, 64)
}

// optional formats a possibly-absent numeric attribute; nil is the empty
// cell.
func optional(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
