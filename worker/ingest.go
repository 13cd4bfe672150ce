package worker

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pipevision/pipevision/asset"
	"github.com/pipevision/pipevision/ingest"
	"github.com/pipevision/pipevision/status"
	"github.com/pipevision/pipevision/store"
)

// HandleIngest runs one ingestion unit of work: convert the upload to a
// parseable form, parse, analyze, optionally render a preview, and persist
// the results. Whole-file failures mark the project failed and are not
// retried; a cancelled context propagates so the job is redelivered.
func (w *Worker) HandleIngest(ctx context.Context, job IngestJob) error {
	log := w.cfg.Logger.With("project_id", job.ProjectID)

	if err := w.cfg.Store.SetProjectStatus(ctx, job.ProjectID, store.StatusProcessing, ""); err != nil {
		return fmt.Errorf("ingest: mark processing: %w", err)
	}
	w.cfg.Status.Phase(ctx, job.ProjectID, status.PhaseParsing)

	dxfPath, cleanup, err := w.cfg.Converter.EnsureDXF(ctx, job.FilePath)
	if err != nil {
		return w.failProject(ctx, job.ProjectID, fmt.Errorf("convert: %w", err))
	}
	defer cleanup()

	doc, err := w.cfg.Parser.Parse(ctx, dxfPath)
	if err != nil {
		return w.failProject(ctx, job.ProjectID, fmt.Errorf("parse: %w", err))
	}

	res := w.analyzer.Analyze(doc, filepath.Base(job.FilePath))
	if !res.Success {
		return w.failProject(ctx, job.ProjectID,
			fmt.Errorf("analyze: %s", strings.Join(res.Errors, "; ")))
	}
	for _, warn := range res.Warnings {
		w.cfg.Status.Event(ctx, job.ProjectID, warn)
	}

	thumbPath := ""
	if w.cfg.Previewer != nil {
		w.cfg.Status.Phase(ctx, job.ProjectID, status.PhasePreview)
		thumb := filepath.Join(w.cfg.OutputDir, job.ProjectID+"_thumb.png")
		if err := w.cfg.Previewer.Render(ctx, dxfPath, thumb); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn("preview failed, continuing without thumbnail", "error", err)
			w.cfg.Status.Event(ctx, job.ProjectID, "preview rendering failed")
		} else {
			thumbPath = thumb
		}
	}

	w.cfg.Status.Phase(ctx, job.ProjectID, status.PhaseStoring)

	assets := w.assetsFromEntities(job.ProjectID, res.Entities)
	if err := w.cfg.Store.ReplaceAssets(ctx, job.ProjectID, assets); err != nil {
		return w.failProject(ctx, job.ProjectID, fmt.Errorf("store assets: %w", err))
	}

	p, err := w.cfg.Store.GetProject(ctx, job.ProjectID)
	if err != nil || p == nil {
		return w.failProject(ctx, job.ProjectID, fmt.Errorf("load project: %w", err))
	}
	applySummary(p, &res.Summary)
	p.EntityCount = len(res.Entities)
	p.ThumbnailPath = thumbPath
	p.Status = store.StatusReady
	if len(res.Summary.MissingFields) > 0 {
		p.Status = store.StatusAwaitingInput
	}
	if err := w.cfg.Store.SaveAnalysis(ctx, p); err != nil {
		return w.failProject(ctx, job.ProjectID, fmt.Errorf("save analysis: %w", err))
	}

	log.Info("ingest complete",
		"status", p.Status,
		"entities", p.EntityCount,
		"assets", len(assets),
		"classified", res.ClassifiedCount(),
		"missing_fields", p.MissingFields,
	)
	return nil
}

// failProject records a whole-file failure and acks the job. Cancellation
// propagates instead so the queue redelivers.
func (w *Worker) failProject(ctx context.Context, projectID string, cause error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	w.cfg.Logger.Error("ingest failed", "project_id", projectID, "error", cause)
	if err := w.cfg.Store.SetProjectStatus(context.Background(), projectID, store.StatusFailed, cause.Error()); err != nil {
		w.cfg.Logger.Error("ingest: mark failed", "project_id", projectID, "error", err)
	}
	return nil
}

func applySummary(p *store.Project, sum *ingest.Summary) {
	p.Units = sum.Units
	if sum.HasCRS {
		p.SourceCRS = sum.DetectedCRS
	}
	p.RotationDegrees = sum.RotationDegrees
	if b := sum.Bounds; b != nil {
		p.MinX, p.MinY = &b.MinX, &b.MinY
		p.MaxX, p.MaxY = &b.MaxX, &b.MaxY
	} else {
		p.MinX, p.MinY, p.MaxX, p.MaxY = nil, nil, nil, nil
	}
	p.LayerCount = len(sum.Layers)
	p.DetectedLayers = make([]string, 0, len(sum.Layers))
	for _, l := range sum.Layers {
		p.DetectedLayers = append(p.DetectedLayers, l.Name)
	}
	p.MissingFields = sum.MissingFields
	p.MetadataComplete = len(sum.MissingFields) == 0
}

// assetsFromEntities converts the line-like normalized entities into asset
// records. Circles and arcs stay in the drawing summary only; pipes are
// linear features.
func (w *Worker) assetsFromEntities(projectID string, entities []*ingest.NormalizedEntity) []*asset.Asset {
	var out []*asset.Asset
	for _, e := range entities {
		if e.Kind != ingest.KindLine && e.Kind != ingest.KindPolyline {
			continue
		}
		if len(e.Points) == 0 {
			continue
		}

		a := &asset.Asset{
			ID:        w.cfg.NewAssetID(),
			ProjectID: projectID,
			Type:      asset.TypeUnknown,
			LayerName: e.Layer,
			Handle:    e.Handle,
		}
		if e.SuggestedType != "" {
			a.Type = e.SuggestedType
		}
		if len(e.Properties) > 0 {
			a.Properties = e.Properties
		}

		// Depth-bearing entities keep their z; flat ones store 2D and
		// leave depth to export-time defaults.
		for _, pt := range e.Points {
			if e.HasDepth {
				a.Coordinates = append(a.Coordinates, []float64{pt.X, pt.Y, pt.Z})
			} else {
				a.Coordinates = append(a.Coordinates, []float64{pt.X, pt.Y})
			}
		}
		out = append(out, a)
	}
	return out
}
