package convert

import (
	"context"
	"log/slog"
	"os/exec"
	"time"
)

// blenderCandidates are the usual install locations, probed in order.
var blenderCandidates = []string{
	"blender",
	"/usr/bin/blender",
	"/usr/local/bin/blender",
	"/snap/bin/blender",
	"/Applications/Blender.app/Contents/MacOS/Blender",
}

// Blender drives the headless 3-D content tool for mesh generation.
type Blender struct {
	// Path to the blender binary; empty means not found.
	Path   string
	Runner Runner
	Logger *slog.Logger
}

// FindBlender probes the candidate locations and returns the first working
// binary path, or "" when none responds.
func FindBlender(logger *slog.Logger) string {
	if logger == nil {
		logger = slog.Default()
	}
	for _, candidate := range blenderCandidates {
		path, err := exec.LookPath(candidate)
		if err != nil {
			continue
		}
		probe := Runner{Timeout: 5 * time.Second, Logger: logger}
		if _, err := probe.Run(context.Background(), path, "--version"); err != nil {
			continue
		}
		logger.Info("found blender", "path", path)
		return path
	}
	logger.Warn("blender not found, mesh export will use fallback")
	return ""
}

// Available reports whether a binary path is configured.
func (b *Blender) Available() bool { return b.Path != "" }

// RunScript executes a Python generation script in background mode, passing
// dataPath and outputPath as script arguments. The script is expected to
// write the target file itself.
func (b *Blender) RunScript(ctx context.Context, scriptPath, dataPath, outputPath string) error {
	if !b.Available() {
		return ErrToolNotFound
	}
	_, err := b.Runner.Run(ctx, b.Path,
		"--background", "--python", scriptPath, "--", dataPath, outputPath)
	return err
}
