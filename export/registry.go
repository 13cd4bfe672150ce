package export

import (
	"fmt"
	"log/slog"

	"github.com/pipevision/pipevision/convert"
)

// Formats lists the supported export format names.
func Formats() []string {
	return []string{"geojson", "csv", "glb", "gltf", "fbx"}
}

// ForFormat returns the adapter for a format name. The blender handle is
// only used by the FBX adapter and may be nil (the degradation chain then
// starts at the direct solid build).
func ForFormat(format string, opts Options, blender *convert.Blender, logger *slog.Logger) (Adapter, error) {
	switch format {
	case "geojson":
		return NewGeoJSON(opts, logger), nil
	case "csv":
		return NewCSV(opts, logger), nil
	case "glb", "gltf":
		return NewGLB(opts, logger), nil
	case "fbx":
		return NewFBX(opts, blender, logger), nil
	default:
		return nil, fmt.Errorf("export: unsupported format %q", format)
	}
}

// Extension returns the file extension for a format, without the dot.
func Extension(format string) string {
	switch format {
	case "gltf":
		return "gltf"
	case "glb":
		return "glb"
	case "fbx":
		return "fbx"
	case "csv":
		return "csv"
	default:
		return "geojson"
	}
}
