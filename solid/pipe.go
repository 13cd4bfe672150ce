package solid

import (
	"log/slog"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

const (
	// DefaultSections is the circumferential resolution of pipe cylinders.
	DefaultSections = 8

	// minSegmentLength: shorter segments are degenerate and skipped.
	minSegmentLength = 0.001
	// parallelEpsilon: below this cross-product norm the segment direction
	// is treated as parallel to the reference axis and no rotation is
	// applied, avoiding a NaN rotation axis.
	parallelEpsilon = 0.001
)

// Pipe describes one asset's solid: an ordered coordinate list (2- or
// 3-component entries), a diameter, the depth range, and a display colour.
type Pipe struct {
	Coordinates [][]float64
	Diameter    float64
	DepthStart  float64
	DepthEnd    float64
	Color       [4]uint8
	Sections    int
}

// Build converts a pipe into one concatenated solid. Returns nil when the
// pipe contributed no valid segments (fewer than two points, or every
// segment degenerate) — the caller logs and skips, it is not an error.
func Build(p Pipe, logger *slog.Logger) *Mesh {
	if logger == nil {
		logger = slog.Default()
	}
	if len(p.Coordinates) < 2 {
		return nil
	}
	sections := p.Sections
	if sections <= 0 {
		sections = DefaultSections
	}
	radius := p.Diameter / 2

	combined := &Mesh{}
	for i := 0; i < len(p.Coordinates)-1; i++ {
		start := pointAt(p.Coordinates[i], p.DepthStart)
		end := pointAt(p.Coordinates[i+1], p.DepthEnd)

		seg := SegmentCylinder(start, end, radius, sections)
		if seg == nil {
			logger.Debug("skipping degenerate pipe segment", "index", i)
			continue
		}
		seg.SetColor(p.Color)
		combined.Append(seg)
	}
	if combined.Empty() {
		return nil
	}
	return combined
}

// pointAt lifts a coordinate to 3-D. A 2-component entry gets z = -depth:
// the frame is surface-relative with z=0 at grade, so below ground is
// negative.
func pointAt(coord []float64, depth float64) r3.Vec {
	v := r3.Vec{X: coord[0], Y: coord[1]}
	if len(coord) > 2 {
		v.Z = coord[2]
	} else {
		v.Z = -depth
	}
	return v
}

// SegmentCylinder builds a cylinder spanning start to end. The unit cylinder
// is generated along +Z, rotated onto the segment direction (rotation axis =
// cross product, angle = arccos of the dot product), then translated to the
// segment midpoint. Rotation is skipped entirely for directions already
// parallel to +Z. Returns nil for segments shorter than the degeneracy
// threshold.
func SegmentCylinder(start, end r3.Vec, radius float64, sections int) *Mesh {
	dir := r3.Sub(end, start)
	length := r3.Norm(dir)
	if length < minSegmentLength {
		return nil
	}

	cyl := Cylinder(radius, length, sections)

	unit := r3.Scale(1/length, dir)
	zAxis := r3.Vec{Z: 1}
	axis := r3.Cross(zAxis, unit)
	axisNorm := r3.Norm(axis)
	if axisNorm > parallelEpsilon {
		angle := math.Acos(clamp(r3.Dot(zAxis, unit), -1, 1))
		cyl.rotate(r3.NewRotation(angle, r3.Scale(1/axisNorm, axis)))
	}

	mid := r3.Scale(0.5, r3.Add(start, end))
	cyl.translate(mid)
	return cyl
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
