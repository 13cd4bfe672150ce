package ingest

import (
	"github.com/pipevision/pipevision/asset"
	"github.com/pipevision/pipevision/drawing"
)

// Kind identifies a normalized entity's geometric kind.
type Kind string

const (
	KindLine     Kind = "LINE"
	KindPolyline Kind = "POLYLINE"
	KindCircle   Kind = "CIRCLE"
	KindArc      Kind = "ARC"
)

// NormalizedEntity is one drawing primitive after normalization. Line and
// Polyline kinds carry at least one point; Circle and Arc carry exactly the
// center, with radius (and angles) in Properties.
type NormalizedEntity struct {
	Handle string          `json:"handle"`
	Kind   Kind            `json:"kind"`
	Layer  string          `json:"layer"`
	Points []drawing.Point `json:"points"`

	// Properties holds kind-specific attributes: radius, start_angle,
	// end_angle, closed.
	Properties map[string]any `json:"properties,omitempty"`

	// SuggestedType is the advisory utility-type label assigned by
	// classification; empty while unclassified.
	SuggestedType asset.Type `json:"suggested_type,omitempty"`

	// HasDepth is true iff any point has |z| above the depth epsilon.
	HasDepth bool `json:"has_depth"`
	// DepthValues are the non-zero z values observed, kept for the
	// completeness analysis.
	DepthValues []float64 `json:"depth_values,omitempty"`
}

// Bounds is an axis-aligned bounding box over (x, y).
type Bounds struct {
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
}

// Summary holds aggregate facts about one parsed drawing. Built once per
// ingestion run and immutable afterwards.
type Summary struct {
	Version string `json:"version"`
	Units   string `json:"units"`

	// Bounds is nil when no entity yielded any points; downstream steps
	// treat that as insufficient data, not an error.
	Bounds *Bounds `json:"bounds,omitempty"`

	HasCRS      bool   `json:"has_crs"`
	DetectedCRS string `json:"detected_crs,omitempty"`

	HasRotation     bool    `json:"has_rotation"`
	RotationDegrees float64 `json:"rotation_degrees"`

	HasDepth bool `json:"has_depth"`

	// MissingFields lists the metadata categories not detected
	// automatically, in fixed order: depth, crs, rotation, labels.
	MissingFields []string `json:"missing_fields"`

	Layers []drawing.Layer `json:"layers"`
}

// Result is the outcome of one ingestion run. Success is false only for
// whole-file failures; per-entity problems land in Warnings and never abort
// the run.
type Result struct {
	Success  bool   `json:"success"`
	Filename string `json:"filename"`

	Summary  Summary             `json:"summary"`
	Entities []*NormalizedEntity `json:"entities"`

	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// ClassifiedCount returns how many entities received a suggested type.
func (r *Result) ClassifiedCount() int {
	n := 0
	for _, e := range r.Entities {
		if e.SuggestedType != "" {
			n++
		}
	}
	return n
}
