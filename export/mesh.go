package export

import (
	"log/slog"

	"github.com/pipevision/pipevision/asset"
	"github.com/pipevision/pipevision/solid"
)

// buildSolid generates and concatenates one pipe solid per asset. Assets
// contributing zero valid segments are logged and skipped. The returned mesh
// may be empty; callers decide whether that is a failure.
func buildSolid(assets []*asset.Asset, opts Options, sections int, logger *slog.Logger) *solid.Mesh {
	combined := &solid.Mesh{}
	for _, a := range assets {
		coords := a.CoordinateList()
		if len(coords) < 2 {
			continue
		}
		m := solid.Build(solid.Pipe{
			Coordinates: coords,
			Diameter:    opts.diameter(a),
			DepthStart:  opts.depthStart(a),
			DepthEnd:    opts.depthEnd(a),
			Color:       asset.ParseHexColor(a.DisplayColor()),
			Sections:    sections,
		}, logger)
		if m == nil {
			logger.Warn("asset produced no solid, skipping", "asset", a.ID)
			continue
		}
		combined.Append(m)
	}
	return combined
}
