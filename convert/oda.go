package convert

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"context"
)

// ODAConverter converts proprietary DWG files to the DXF interchange format
// using the ODA File Converter. Files already in the target format pass
// through untouched.
type ODAConverter struct {
	// Path to the ODAFileConverter binary.
	Path   string
	Runner Runner
	Logger *slog.Logger
}

func (c *ODAConverter) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

// EnsureDXF returns a DXF path for the given drawing file. Non-DWG input is
// passed through. For DWG input the converter runs under its timeout; when
// the tool is missing, a sibling .dxf next to the input is accepted as a
// fallback. The returned cleanup removes any temporary output (no-op for
// pass-through).
func (c *ODAConverter) EnsureDXF(ctx context.Context, path string) (string, func(), error) {
	noop := func() {}
	if strings.ToLower(filepath.Ext(path)) != ".dwg" {
		return path, noop, nil
	}

	if _, err := os.Stat(c.Path); err != nil {
		c.logger().Warn("converter not found, checking for sibling dxf", "path", c.Path)
		sibling := strings.TrimSuffix(path, filepath.Ext(path)) + ".dxf"
		if _, err := os.Stat(sibling); err == nil {
			return sibling, noop, nil
		}
		return "", noop, fmt.Errorf("%w: %s", ErrToolNotFound, c.Path)
	}

	outDir, err := os.MkdirTemp("", "pv_oda_*")
	if err != nil {
		return "", noop, fmt.Errorf("convert: temp dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	// ODAFileConverter <in_dir> <out_dir> <version> <type> <recurse> <audit>
	_, err = c.Runner.Run(ctx, c.Path,
		filepath.Dir(path), outDir, "ACAD2018", "DXF", "0", "1")
	if err != nil {
		return "", noop, fmt.Errorf("dwg conversion: %w", err)
	}

	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	produced := filepath.Join(outDir, stem+".dxf")
	if _, err := os.Stat(produced); err != nil {
		return "", noop, fmt.Errorf("dwg conversion produced no output for %s", path)
	}

	// Move out of the doomed temp dir to a persistent temp location.
	final := filepath.Join(os.TempDir(), "pv_"+stem+".dxf")
	if err := os.Rename(produced, final); err != nil {
		// Rename can fail across filesystems; fall back to copy.
		data, rerr := os.ReadFile(produced)
		if rerr != nil {
			return "", noop, fmt.Errorf("convert: move output: %w", err)
		}
		if werr := os.WriteFile(final, data, 0o644); werr != nil {
			return "", noop, fmt.Errorf("convert: move output: %w", werr)
		}
	}
	cleanup := func() { os.Remove(final) }
	return final, cleanup, nil
}
