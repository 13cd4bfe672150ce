package export

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/pipevision/pipevision/asset"
	"github.com/pipevision/pipevision/geo"
)

// GeoJSON exports assets as a feature collection: Point features for
// single-coordinate assets, LineString for the rest. Assets with no usable
// coordinates are silently omitted.
type GeoJSON struct {
	Options Options
	Logger  *slog.Logger
}

// NewGeoJSON creates the adapter.
func NewGeoJSON(opts Options, logger *slog.Logger) *GeoJSON {
	if logger == nil {
		logger = slog.Default()
	}
	return &GeoJSON{Options: opts, Logger: logger}
}

func (g *GeoJSON) Format() string { return "geojson" }

type geoJSONGeometry struct {
	Type        string `json:"type"`
	Coordinates any    `json:"coordinates"`
}

type geoJSONFeature struct {
	Type       string          `json:"type"`
	Geometry   geoJSONGeometry `json:"geometry"`
	Properties map[string]any  `json:"properties"`
}

type geoJSONCollection struct {
	Type     string           `json:"type"`
	Features []geoJSONFeature `json:"features"`
	Metadata map[string]any   `json:"metadata"`
}

// Export writes the feature collection. Per-asset conversion failures are
// logged and skipped; only file-level problems fail the run.
func (g *GeoJSON) Export(ctx context.Context, assets []*asset.Asset, outputPath string) (Result, error) {
	tr, err := geo.NewTransformer(g.Options.SourceCRS, g.Options.TargetCRS)
	if err != nil {
		return Result{}, fmt.Errorf("geojson export: %w", err)
	}

	features := make([]geoJSONFeature, 0, len(assets))
	for _, a := range assets {
		f, ok := g.feature(a, tr)
		if !ok {
			continue
		}
		features = append(features, f)
	}

	fc := geoJSONCollection{
		Type:     "FeatureCollection",
		Features: features,
		Metadata: map[string]any{
			"generator":   "pipevision",
			"crs":         g.Options.TargetCRS,
			"asset_count": len(features),
		},
	}

	if err := ensureParent(outputPath); err != nil {
		return Result{}, err
	}
	data, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return Result{}, fmt.Errorf("geojson export: marshal: %w", err)
	}
	if err := os.WriteFile(outputPath, data, 0o644); err != nil {
		return Result{}, fmt.Errorf("geojson export: write: %w", err)
	}

	g.Logger.Info("exported geojson", "assets", len(features), "path", outputPath)
	return Result{Path: outputPath}, nil
}

func (g *GeoJSON) feature(a *asset.Asset, tr *geo.Transformer) (geoJSONFeature, bool) {
	coords := a.CoordinateList()
	if len(coords) == 0 {
		return geoJSONFeature{}, false
	}

	out := make([][]float64, 0, len(coords))
	for _, c := range coords {
		c = tr.TransformCoord(c)
		if len(c) == 2 {
			c = append(c, 0)
		}
		out = append(out, geo.RoundCoord(c, g.Options.Precision))
	}

	var geom geoJSONGeometry
	if len(out) == 1 {
		geom = geoJSONGeometry{Type: "Point", Coordinates: out[0]}
	} else {
		geom = geoJSONGeometry{Type: "LineString", Coordinates: out}
	}

	typ := a.Type
	if typ == "" {
		typ = asset.TypeUnknown
	}
	props := map[string]any{
		"id":    a.ID,
		"type":  string(typ),
		"label": a.Label,
		"layer": a.LayerName,
		"color": a.DisplayColor(),
	}
	if g.Options.IncludeDepth {
		props["depth_start"] = g.Options.depthStart(a)
		props["depth_end"] = g.Options.depthEnd(a)
		props["depth_unit"] = orDefault(a.DepthUnit, "meters")
	}
	if g.Options.IncludeProperties {
		props["diameter"] = g.Options.diameter(a)
		props["diameter_unit"] = orDefault(a.DiameterUnit, "meters")
		props["material"] = a.Material
	}

	return geoJSONFeature{Type: "Feature", Geometry: geom, Properties: props}, true
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
