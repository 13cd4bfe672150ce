package export

import (
	"bufio"
	"fmt"
	"os"

	"github.com/pipevision/pipevision/solid"
)

// writeOBJ emits a Wavefront OBJ file for a solid mesh. OBJ is the
// universally-supported interchange format used as the last resort of the
// FBX degradation chain; it carries geometry only (no per-vertex colour).
func writeOBJ(m *solid.Mesh, outputPath string) error {
	if err := ensureParent(outputPath); err != nil {
		return err
	}
	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("obj export: create: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintln(w, "# pipevision pipe solids")
	for _, v := range m.Vertices {
		fmt.Fprintf(w, "v %g %g %g\n", v.X, v.Y, v.Z)
	}
	for _, face := range m.Faces {
		// OBJ indices are 1-based.
		fmt.Fprintf(w, "f %d %d %d\n", face[0]+1, face[1]+1, face[2]+1)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("obj export: write: %w", err)
	}
	return nil
}
