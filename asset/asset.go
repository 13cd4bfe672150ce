// Package asset defines the export-facing utility asset record.
//
// An Asset is a classified, geo-referenceable underground utility (pipe,
// conduit, duct) derived from one or more drawing entities. The export
// adapters read assets and never mutate them; persistence lives in store.
package asset

// Type is an underground utility category.
type Type string

const (
	TypeSewer    Type = "sewer"
	TypeStorm    Type = "storm"
	TypePotable  Type = "potable"
	TypeGas      Type = "gas"
	TypeElectric Type = "electric"
	TypeTelecom  Type = "telecom"
	TypeFiber    Type = "fiber"
	TypeUnknown  Type = "unknown"
)

// Colors maps each utility type to its display colour (hex RGB).
// Shared by the UI and every export format.
var Colors = map[Type]string{
	TypeSewer:    "#8B4513",
	TypeStorm:    "#4169E1",
	TypePotable:  "#00CED1",
	TypeGas:      "#FFD700",
	TypeElectric: "#FF4500",
	TypeTelecom:  "#9370DB",
	TypeFiber:    "#32CD32",
	TypeUnknown:  "#808080",
}

// ColorFor returns the display colour for a type, falling back to the
// unknown-type grey for unmapped values.
func ColorFor(t Type) string {
	if c, ok := Colors[t]; ok {
		return c
	}
	return Colors[TypeUnknown]
}

// Asset is one utility record scoped to a project. Numeric attributes that
// may legitimately be absent (depth, diameter) are pointers so "no data" is
// distinguishable from a stored zero.
type Asset struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`

	Type      Type   `json:"type"`
	Label     string `json:"label"`
	LayerName string `json:"layer_name"`

	// Coordinates is the ordered coordinate list, each entry 2 or 3
	// components (x, y[, z]).
	Coordinates [][]float64 `json:"coordinates"`

	DepthStart *float64 `json:"depth_start,omitempty"`
	DepthEnd   *float64 `json:"depth_end,omitempty"`
	DepthUnit  string   `json:"depth_unit,omitempty"`

	Diameter     *float64 `json:"diameter,omitempty"`
	DiameterUnit string   `json:"diameter_unit,omitempty"`
	Material     string   `json:"material,omitempty"`

	Color string `json:"color,omitempty"`

	// Handle is the source drawing entity handle this asset came from.
	Handle string `json:"handle,omitempty"`
	// Properties is the free-form original-properties bag carried over from
	// the drawing (radius, angles, closed flag, sometimes a "points" list).
	Properties map[string]any `json:"properties,omitempty"`
}

// CoordinateList returns the asset's coordinates, preferring the geometry
// field and falling back to a "points" list in the properties bag. First
// present source wins; an empty result means the asset has no usable
// geometry and should be skipped by adapters.
func (a *Asset) CoordinateList() [][]float64 {
	if len(a.Coordinates) > 0 {
		return a.Coordinates
	}
	if a.Properties != nil {
		if pts, ok := a.Properties["points"]; ok {
			return coerceCoords(pts)
		}
	}
	return nil
}

// DisplayColor returns the asset's own colour or the type default.
func (a *Asset) DisplayColor() string {
	if a.Color != "" {
		return a.Color
	}
	return ColorFor(a.Type)
}

// coerceCoords converts a coordinate list that may have been through a JSON
// round trip ([]any of []any of float64) back to [][]float64.
func coerceCoords(v any) [][]float64 {
	switch pts := v.(type) {
	case [][]float64:
		return pts
	case []any:
		out := make([][]float64, 0, len(pts))
		for _, p := range pts {
			row, ok := p.([]any)
			if !ok {
				continue
			}
			coord := make([]float64, 0, len(row))
			for _, c := range row {
				f, ok := c.(float64)
				if !ok {
					coord = nil
					break
				}
				coord = append(coord, f)
			}
			if len(coord) >= 2 {
				out = append(out, coord)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return nil
}
