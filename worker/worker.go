// Package worker executes the queued units of work: ingesting an uploaded
// drawing (convert, parse, normalize, classify, persist) and generating an
// export file. Jobs arrive as JSON payloads from the queue; outcomes land in
// the store, phase transitions in the status reporter.
//
// A failed unit of work is recorded on its subject (project or export) and
// acked; retry means submitting a fresh unit, which overwrites prior output.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/pipevision/pipevision/convert"
	"github.com/pipevision/pipevision/drawing"
	"github.com/pipevision/pipevision/export"
	"github.com/pipevision/pipevision/idgen"
	"github.com/pipevision/pipevision/ingest"
	"github.com/pipevision/pipevision/queue"
	"github.com/pipevision/pipevision/status"
	"github.com/pipevision/pipevision/store"
)

// IngestJob is the payload of one ingestion unit of work.
type IngestJob struct {
	ProjectID string `json:"project_id"`
	FilePath  string `json:"file_path"`
}

// ExportJob is the payload of one export unit of work.
type ExportJob struct {
	ExportID string         `json:"export_id"`
	Options  export.Options `json:"options"`
}

// DocumentParser turns a drawing file on disk into the normalized document
// structure. The CAD grammar itself lives outside this service; the default
// parser reads the JSON interchange form produced by the external extractor.
type DocumentParser interface {
	Parse(ctx context.Context, path string) (*drawing.Document, error)
}

// ParserFunc adapts a function to DocumentParser.
type ParserFunc func(ctx context.Context, path string) (*drawing.Document, error)

func (f ParserFunc) Parse(ctx context.Context, path string) (*drawing.Document, error) {
	return f(ctx, path)
}

// JSONParser reads documents in the JSON interchange format.
func JSONParser() DocumentParser {
	return ParserFunc(func(ctx context.Context, path string) (*drawing.Document, error) {
		return drawing.Load(path)
	})
}

// Previewer renders a thumbnail for a drawing. Optional: a nil Previewer
// skips the preview phase, and a failing one only degrades the project
// (thumbnail missing), never fails it.
type Previewer interface {
	Render(ctx context.Context, drawingPath, outputPath string) error
}

// Config wires a Worker.
type Config struct {
	Store     *store.Store
	Status    *status.Reporter
	Parser    DocumentParser
	Converter *convert.ODAConverter
	Blender   *convert.Blender
	Previewer Previewer

	// OutputDir receives thumbnails and export files.
	OutputDir string

	// IngestTimeout bounds one ingestion unit of work. Default: 600s.
	IngestTimeout time.Duration
	// ExportTimeout bounds one export unit of work. Default: 600s.
	ExportTimeout time.Duration

	NewAssetID idgen.Generator
	Logger     *slog.Logger
}

func (c *Config) defaults() {
	if c.Parser == nil {
		c.Parser = JSONParser()
	}
	if c.Converter == nil {
		c.Converter = &convert.ODAConverter{}
	}
	if c.Blender == nil {
		c.Blender = &convert.Blender{}
	}
	if c.IngestTimeout <= 0 {
		c.IngestTimeout = 600 * time.Second
	}
	if c.ExportTimeout <= 0 {
		c.ExportTimeout = 600 * time.Second
	}
	if c.NewAssetID == nil {
		c.NewAssetID = idgen.Prefixed("ast_", idgen.Default)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Worker executes ingest and export jobs.
type Worker struct {
	cfg      Config
	analyzer *ingest.Analyzer
}

// New creates a Worker. Store and Status are required.
func New(cfg Config) (*Worker, error) {
	if cfg.Store == nil || cfg.Status == nil {
		return nil, fmt.Errorf("worker: store and status are required")
	}
	cfg.defaults()
	return &Worker{
		cfg:      cfg,
		analyzer: ingest.New(ingest.Config{Logger: cfg.Logger}),
	}, nil
}

// IngestHandler returns the queue handler for the ingest topic.
func (w *Worker) IngestHandler() queue.Handler {
	return func(ctx context.Context, job *queue.Job) error {
		var j IngestJob
		if err := json.Unmarshal(job.Payload, &j); err != nil {
			w.cfg.Logger.Error("ingest: malformed payload, dropping", "job_id", job.ID, "error", err)
			return nil
		}
		ctx, cancel := context.WithTimeout(ctx, w.cfg.IngestTimeout)
		defer cancel()
		return w.guard(func() error { return w.HandleIngest(ctx, j) })
	}
}

// ExportHandler returns the queue handler for the export topic.
func (w *Worker) ExportHandler() queue.Handler {
	return func(ctx context.Context, job *queue.Job) error {
		var j ExportJob
		if err := json.Unmarshal(job.Payload, &j); err != nil {
			w.cfg.Logger.Error("export: malformed payload, dropping", "job_id", job.ID, "error", err)
			return nil
		}
		ctx, cancel := context.WithTimeout(ctx, w.cfg.ExportTimeout)
		defer cancel()
		return w.guard(func() error { return w.HandleExport(ctx, j) })
	}
}

// guard keeps a panicking job from taking the consumer loop down.
func (w *Worker) guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			w.cfg.Logger.Error("worker: job panicked", "panic", r)
			err = fmt.Errorf("worker: job panicked: %v", r)
		}
	}()
	return fn()
}
