// Package solid generates 3-D pipe solids from polylines plus diameter and
// depth attributes. A pipe is a chain of cylinder segments: each consecutive
// point pair becomes one cylinder oriented along the segment, translated to
// its midpoint, and coloured per asset. Segments are concatenated into one
// triangle mesh per asset, and assets into one exportable solid.
package solid

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Mesh is an indexed triangle mesh with per-vertex colours.
type Mesh struct {
	Vertices []r3.Vec
	Faces    [][3]uint32
	Colors   [][4]uint8
}

// Empty reports whether the mesh has no geometry.
func (m *Mesh) Empty() bool { return m == nil || len(m.Faces) == 0 }

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int {
	if m == nil {
		return 0
	}
	return len(m.Vertices)
}

// Append concatenates other onto m, offsetting face indices.
func (m *Mesh) Append(other *Mesh) {
	if other.Empty() {
		return
	}
	offset := uint32(len(m.Vertices))
	m.Vertices = append(m.Vertices, other.Vertices...)
	m.Colors = append(m.Colors, other.Colors...)
	for _, f := range other.Faces {
		m.Faces = append(m.Faces, [3]uint32{f[0] + offset, f[1] + offset, f[2] + offset})
	}
}

// SetColor assigns one colour to every vertex.
func (m *Mesh) SetColor(c [4]uint8) {
	m.Colors = make([][4]uint8, len(m.Vertices))
	for i := range m.Colors {
		m.Colors[i] = c
	}
}

// translate moves every vertex by d.
func (m *Mesh) translate(d r3.Vec) {
	for i := range m.Vertices {
		m.Vertices[i] = r3.Add(m.Vertices[i], d)
	}
}

// rotate applies rot to every vertex.
func (m *Mesh) rotate(rot r3.Rotation) {
	for i := range m.Vertices {
		m.Vertices[i] = rot.Rotate(m.Vertices[i])
	}
}

// Cylinder builds a closed cylinder of the given radius and height with the
// given number of circumferential sections, centered at the origin with its
// axis along +Z.
func Cylinder(radius, height float64, sections int) *Mesh {
	if sections < 3 {
		sections = 3
	}
	m := &Mesh{}
	half := height / 2

	// Ring vertices: bottom ring [0,n), top ring [n,2n), then the two cap
	// centers.
	for _, z := range []float64{-half, half} {
		for i := 0; i < sections; i++ {
			a := 2 * math.Pi * float64(i) / float64(sections)
			m.Vertices = append(m.Vertices, r3.Vec{
				X: radius * math.Cos(a),
				Y: radius * math.Sin(a),
				Z: z,
			})
		}
	}
	bottomCenter := uint32(len(m.Vertices))
	m.Vertices = append(m.Vertices, r3.Vec{Z: -half})
	topCenter := uint32(len(m.Vertices))
	m.Vertices = append(m.Vertices, r3.Vec{Z: half})

	n := uint32(sections)
	for i := uint32(0); i < n; i++ {
		j := (i + 1) % n
		// Side quad as two triangles, outward winding.
		m.Faces = append(m.Faces,
			[3]uint32{i, j, n + i},
			[3]uint32{j, n + j, n + i},
		)
		// Caps.
		m.Faces = append(m.Faces,
			[3]uint32{bottomCenter, j, i},
			[3]uint32{topCenter, n + i, n + j},
		)
	}
	return m
}
