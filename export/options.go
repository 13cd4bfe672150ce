// Package export turns asset records into deliverable files: GeoJSON
// feature collections, CSV tables, GLB triangle meshes, and Blender-mediated
// FBX with a graceful-degradation chain. Adapters share one signature and
// absorb their own failures: a returned error is a recoverable per-job
// outcome, never a panic across the boundary.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pipevision/pipevision/asset"
)

// Options configures one export run. Immutable per run; pass it explicitly
// rather than through ambient configuration so concurrent export jobs stay
// deterministic.
type Options struct {
	SourceCRS string `json:"source_crs" yaml:"source_crs"`
	TargetCRS string `json:"target_crs" yaml:"target_crs"`

	IncludeProperties bool `json:"include_properties" yaml:"include_properties"`
	IncludeDepth      bool `json:"include_depth" yaml:"include_depth"`

	// DefaultDepth (meters) is used when an asset lacks depth attributes.
	DefaultDepth float64 `json:"default_depth" yaml:"default_depth"`
	// DefaultDiameter (meters) is used when an asset lacks a diameter.
	DefaultDiameter float64 `json:"default_diameter" yaml:"default_diameter"`

	// Precision is the number of decimal places for output coordinates.
	// Rounding happens after reprojection, never before.
	Precision int `json:"precision" yaml:"precision"`
}

// DefaultOptions returns the standard export configuration: WGS84 on both
// sides, all properties included.
func DefaultOptions() Options {
	return Options{
		SourceCRS:         "EPSG:4326",
		TargetCRS:         "EPSG:4326",
		IncludeProperties: true,
		IncludeDepth:      true,
		DefaultDepth:      1.5,
		DefaultDiameter:   0.15,
		Precision:         8,
	}
}

// depthStart returns the asset's start depth or the configured default.
func (o Options) depthStart(a *asset.Asset) float64 {
	if a.DepthStart != nil {
		return *a.DepthStart
	}
	return o.DefaultDepth
}

func (o Options) depthEnd(a *asset.Asset) float64 {
	if a.DepthEnd != nil {
		return *a.DepthEnd
	}
	return o.DefaultDepth
}

func (o Options) diameter(a *asset.Asset) float64 {
	if a.Diameter != nil {
		return *a.Diameter
	}
	return o.DefaultDiameter
}

// Result describes the file an adapter actually produced. Path may differ
// from the requested output path when the degradation chain switched formats
// (FBX falling back to OBJ); callers must record Path, not their request.
type Result struct {
	Path string
	// Degraded marks a deliverable written in a fallback format.
	Degraded bool
}

// Adapter is one output format. Export writes the deliverable for the given
// assets to outputPath, creating parent directories and overwriting any
// prior file, and reports the path it actually wrote.
type Adapter interface {
	Format() string
	Export(ctx context.Context, assets []*asset.Asset, outputPath string) (Result, error)
}

// ensureParent creates the destination's parent directories.
func ensureParent(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("export: create output dir: %w", err)
	}
	return nil
}
