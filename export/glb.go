package export

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"github.com/pipevision/pipevision/asset"
	"github.com/pipevision/pipevision/solid"
)

// GLB is the direct mesh adapter: one pipe solid per asset, concatenated
// into a single glTF document. It fails when the whole asset set yields zero
// solids — an empty-but-successful mesh file is never produced.
type GLB struct {
	Options Options
	Logger  *slog.Logger
}

// NewGLB creates the adapter.
func NewGLB(opts Options, logger *slog.Logger) *GLB {
	if logger == nil {
		logger = slog.Default()
	}
	return &GLB{Options: opts, Logger: logger}
}

func (g *GLB) Format() string { return "glb" }

// Export builds the combined solid and writes it as .glb (binary) or .gltf
// (JSON) depending on the output extension.
func (g *GLB) Export(ctx context.Context, assets []*asset.Asset, outputPath string) (Result, error) {
	combined := buildSolid(assets, g.Options, solid.DefaultSections, g.Logger)
	if combined.Empty() {
		return Result{}, fmt.Errorf("glb export: no solids generated from %d assets", len(assets))
	}

	if err := ensureParent(outputPath); err != nil {
		return Result{}, err
	}
	doc := meshDocument(combined)
	var err error
	if strings.EqualFold(filepath.Ext(outputPath), ".gltf") {
		err = gltf.Save(doc, outputPath)
	} else {
		err = gltf.SaveBinary(doc, outputPath)
	}
	if err != nil {
		return Result{}, fmt.Errorf("glb export: write: %w", err)
	}

	g.Logger.Info("exported mesh", "vertices", combined.VertexCount(),
		"faces", len(combined.Faces), "path", outputPath)
	return Result{Path: outputPath}, nil
}

// meshDocument packs a solid mesh into a single-primitive glTF document with
// positions, per-vertex colours, and triangle indices.
func meshDocument(m *solid.Mesh) *gltf.Document {
	positions := make([][3]float32, len(m.Vertices))
	for i, v := range m.Vertices {
		positions[i] = [3]float32{float32(v.X), float32(v.Y), float32(v.Z)}
	}
	colors := make([][4]uint8, len(m.Colors))
	copy(colors, m.Colors)
	indices := make([]uint32, 0, len(m.Faces)*3)
	for _, f := range m.Faces {
		indices = append(indices, f[0], f[1], f[2])
	}

	doc := gltf.NewDocument()
	posAccessor := modeler.WritePosition(doc, positions)
	idxAccessor := modeler.WriteIndices(doc, indices)
	attributes := map[string]uint32{gltf.POSITION: posAccessor}
	if len(colors) == len(positions) {
		attributes[gltf.COLOR_0] = modeler.WriteColor(doc, colors)
	}

	doc.Meshes = append(doc.Meshes, &gltf.Mesh{
		Name: "pipes",
		Primitives: []*gltf.Primitive{{
			Indices:    gltf.Index(idxAccessor),
			Attributes: attributes,
		}},
	})
	doc.Nodes = append(doc.Nodes, &gltf.Node{
		Name: "pipes",
		Mesh: gltf.Index(uint32(len(doc.Meshes) - 1)),
	})
	doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, uint32(len(doc.Nodes)-1))
	return doc
}
