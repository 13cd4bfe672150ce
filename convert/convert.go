// Package convert wraps the external CAD batch converter (ODA File
// Converter) and the headless 3-D content tool (Blender) as subprocess
// collaborators. Both run under a hard wall-clock limit and classify their
// failures so callers can apply the degradation chain: tool missing →
// timeout → nonzero exit → fallback.
package convert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"
)

// DefaultTimeout bounds each tool invocation.
const DefaultTimeout = 120 * time.Second

var (
	// ErrToolNotFound reports that the tool binary is absent.
	ErrToolNotFound = errors.New("convert: tool not found")
	// ErrTimeout reports that the tool exceeded its wall-clock limit and
	// was killed.
	ErrTimeout = errors.New("convert: tool timed out")
)

// Runner executes one external tool with a bounded timeout.
type Runner struct {
	// Timeout per invocation. Defaults to DefaultTimeout.
	Timeout time.Duration
	// Logger for invocation diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

func (r *Runner) timeout() time.Duration {
	if r.Timeout <= 0 {
		return DefaultTimeout
	}
	return r.Timeout
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

// Run executes name with args. The returned error is ErrToolNotFound,
// ErrTimeout, or a wrapped exit error carrying the tool's stderr tail.
// Combined output is returned for diagnostics either way.
func (r *Runner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if _, err := exec.LookPath(name); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout())
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(ctx, name, args...)
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	elapsed := time.Since(start)

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			r.logger().Error("tool timed out", "tool", name, "timeout", r.timeout())
			return buf.Bytes(), fmt.Errorf("%w: %s after %s", ErrTimeout, name, r.timeout())
		}
		r.logger().Error("tool failed", "tool", name, "error", err,
			"output", tail(buf.Bytes(), 512))
		return buf.Bytes(), fmt.Errorf("convert: %s: %w", name, err)
	}

	r.logger().Debug("tool finished", "tool", name, "elapsed", elapsed)
	return buf.Bytes(), nil
}

// tail returns the last n bytes of b as a string.
func tail(b []byte, n int) string {
	if len(b) > n {
		b = b[len(b)-n:]
	}
	return string(b)
}
