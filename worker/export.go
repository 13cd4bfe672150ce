package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pipevision/pipevision/export"
	"github.com/pipevision/pipevision/status"
)

// HandleExport runs one export unit of work: load the project's assets,
// run the format adapter, record the output file. Adapter failures mark the
// export row failed and are not retried; a cancelled context propagates so
// the queue redelivers.
func (w *Worker) HandleExport(ctx context.Context, job ExportJob) error {
	log := w.cfg.Logger.With("export_id", job.ExportID)

	w.cfg.Status.Phase(ctx, job.ExportID, status.PhaseLoading)

	exp, err := w.cfg.Store.GetExport(ctx, job.ExportID)
	if err != nil {
		return fmt.Errorf("export: load record: %w", err)
	}
	if exp == nil {
		log.Error("export record missing, dropping job")
		return nil
	}

	assets, err := w.cfg.Store.ListAssets(ctx, exp.ProjectID)
	if err != nil {
		return w.failExport(ctx, job.ExportID, fmt.Errorf("load assets: %w", err))
	}

	adapter, err := export.ForFormat(exp.Format, job.Options, w.cfg.Blender, w.cfg.Logger)
	if err != nil {
		return w.failExport(ctx, job.ExportID, err)
	}

	outPath := filepath.Join(w.cfg.OutputDir, exp.ID+"."+export.Extension(exp.Format))

	w.cfg.Status.Phase(ctx, job.ExportID, status.PhaseExporting)
	res, err := adapter.Export(ctx, assets, outPath)
	if err != nil {
		return w.failExport(ctx, job.ExportID, err)
	}
	if res.Degraded {
		log.Warn("export degraded to fallback format", "path", res.Path)
		w.cfg.Status.Event(ctx, job.ExportID, "output degraded to "+filepath.Ext(res.Path))
	}

	// The record points at what the adapter actually wrote, which the
	// degradation chain may have placed under a different extension.
	info, err := os.Stat(res.Path)
	if err != nil {
		return w.failExport(ctx, job.ExportID, fmt.Errorf("output file missing: %w", err))
	}
	if err := w.cfg.Store.FinishExport(ctx, job.ExportID, res.Path, info.Size()); err != nil {
		return fmt.Errorf("export: record result: %w", err)
	}

	log.Info("export complete", "format", exp.Format, "path", res.Path,
		"size_bytes", info.Size(), "degraded", res.Degraded, "assets", len(assets))
	return nil
}

func (w *Worker) failExport(ctx context.Context, exportID string, cause error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	w.cfg.Logger.Error("export failed", "export_id", exportID, "error", cause)
	if err := w.cfg.Store.FailExport(context.Background(), exportID, cause.Error()); err != nil {
		w.cfg.Logger.Error("export: mark failed", "export_id", exportID, "error", err)
	}
	return nil
}
