package worker

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/pipevision/pipevision/asset"
	"github.com/pipevision/pipevision/export"
	"github.com/pipevision/pipevision/queue"
	"github.com/pipevision/pipevision/status"
	"github.com/pipevision/pipevision/store"
)

const sampleDrawing = `{
	"version": "AC1032",
	"header": {"$INSUNITS": 6, "$PROJCRS": "EPSG:3857"},
	"layers": [
		{"name": "STORM_MAIN"},
		{"name": "GAS_LINE"},
		{"name": "TEXT"}
	],
	"entities": [
		{"type": "LINE", "handle": "A1", "layer": "STORM_MAIN",
		 "start": {"x": 0, "y": 0, "z": -1.5}, "end": {"x": 10, "y": 0, "z": -1.5}},
		{"type": "POLYLINE", "handle": "A2", "layer": "GAS_LINE",
		 "vertices": [{"x": 0, "y": 5}, {"x": 5, "y": 5}, {"x": 5, "y": 10}]},
		{"type": "CIRCLE", "handle": "A3", "layer": "STORM_MAIN",
		 "center": {"x": 2, "y": 2}, "radius": 0.5},
		{"type": "INSERT", "handle": "A4", "layer": "0", "name": "TITLE"}
	]
}`

type testEnv struct {
	worker *Worker
	store  *store.Store
	status *status.Reporter
	dir    string
}

func newEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()
	dir := t.TempDir()

	s, err := store.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })

	rep := status.New(s.DB)
	if err := rep.EnsureSchema(context.Background()); err != nil {
		t.Fatal(err)
	}

	cfg.Store = s
	cfg.Status = rep
	cfg.OutputDir = dir
	w, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return &testEnv{worker: w, store: s, status: rep, dir: dir}
}

func (e *testEnv) writeDrawing(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(e.dir, "site.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func (e *testEnv) createProject(t *testing.T, id, filePath string) {
	t.Helper()
	err := e.store.CreateProject(context.Background(), &store.Project{
		ID: id, Name: "test", OriginalFilename: filepath.Base(filePath), FilePath: filePath,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestHandleIngest(t *testing.T) {
	env := newEnv(t, Config{})
	ctx := context.Background()

	path := env.writeDrawing(t, sampleDrawing)
	env.createProject(t, "prj_1", path)

	if err := env.worker.HandleIngest(ctx, IngestJob{ProjectID: "prj_1", FilePath: path}); err != nil {
		t.Fatal(err)
	}

	p, _ := env.store.GetProject(ctx, "prj_1")
	// CRS detected, depth present on the line, layers classified, but no
	// rotation source: metadata incomplete.
	if p.Status != store.StatusAwaitingInput {
		t.Errorf("status = %q, want awaiting_input", p.Status)
	}
	if p.SourceCRS != "EPSG:3857" {
		t.Errorf("source_crs = %q", p.SourceCRS)
	}
	if p.Units != "meters" {
		t.Errorf("units = %q", p.Units)
	}
	if p.LayerCount != 3 || p.EntityCount == 0 {
		t.Errorf("counts = %d layers / %d entities", p.LayerCount, p.EntityCount)
	}
	if p.MinX == nil || *p.MinX != 0 || *p.MaxX != 10 {
		t.Errorf("bounds wrong: %+v", p)
	}

	// Line and polyline become assets; circle and insert do not.
	assets, _ := env.store.ListAssets(ctx, "prj_1")
	if len(assets) != 2 {
		t.Fatalf("assets = %d, want 2", len(assets))
	}
	if assets[0].Type != asset.TypeStorm {
		t.Errorf("line asset type = %q, want storm", assets[0].Type)
	}
	if assets[1].Type != asset.TypeGas {
		t.Errorf("polyline asset type = %q, want gas", assets[1].Type)
	}
	if len(assets[0].Coordinates[0]) != 3 {
		t.Error("depth-bearing asset should keep z components")
	}
	if len(assets[1].Coordinates[0]) != 2 {
		t.Error("flat asset should store 2D coordinates")
	}

	phase, _ := env.status.LatestPhase(ctx, "prj_1")
	if phase != status.PhaseStoring {
		t.Errorf("latest phase = %q, want storing", phase)
	}
}

func TestHandleIngestParseFailure(t *testing.T) {
	env := newEnv(t, Config{})
	ctx := context.Background()

	path := env.writeDrawing(t, "{not json")
	env.createProject(t, "prj_1", path)

	// Whole-file failure: recorded on the project, job acked.
	if err := env.worker.HandleIngest(ctx, IngestJob{ProjectID: "prj_1", FilePath: path}); err != nil {
		t.Fatalf("parse failure should not propagate: %v", err)
	}
	p, _ := env.store.GetProject(ctx, "prj_1")
	if p.Status != store.StatusFailed {
		t.Errorf("status = %q, want failed", p.Status)
	}
	if p.Error == "" {
		t.Error("failure reason not recorded")
	}
}

type fakePreviewer struct {
	err    error
	called bool
}

func (f *fakePreviewer) Render(ctx context.Context, drawingPath, outputPath string) error {
	f.called = true
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(outputPath, []byte("png"), 0o644)
}

func TestHandleIngestPreview(t *testing.T) {
	prev := &fakePreviewer{}
	env := newEnv(t, Config{Previewer: prev})
	ctx := context.Background()

	path := env.writeDrawing(t, sampleDrawing)
	env.createProject(t, "prj_1", path)

	if err := env.worker.HandleIngest(ctx, IngestJob{ProjectID: "prj_1", FilePath: path}); err != nil {
		t.Fatal(err)
	}
	if !prev.called {
		t.Fatal("previewer not invoked")
	}
	p, _ := env.store.GetProject(ctx, "prj_1")
	if p.ThumbnailPath == "" {
		t.Error("thumbnail path not recorded")
	}
}

func TestHandleIngestPreviewFailureNonFatal(t *testing.T) {
	prev := &fakePreviewer{err: errors.New("renderer crashed")}
	env := newEnv(t, Config{Previewer: prev})
	ctx := context.Background()

	path := env.writeDrawing(t, sampleDrawing)
	env.createProject(t, "prj_1", path)

	if err := env.worker.HandleIngest(ctx, IngestJob{ProjectID: "prj_1", FilePath: path}); err != nil {
		t.Fatal(err)
	}
	p, _ := env.store.GetProject(ctx, "prj_1")
	if p.Status == store.StatusFailed {
		t.Error("preview failure must not fail the project")
	}
	if p.ThumbnailPath != "" {
		t.Error("no thumbnail should be recorded on preview failure")
	}
}

func TestHandleExport(t *testing.T) {
	env := newEnv(t, Config{})
	ctx := context.Background()

	env.createProject(t, "prj_1", "site.json")
	env.store.ReplaceAssets(ctx, "prj_1", []*asset.Asset{{
		ID: "ast_1", ProjectID: "prj_1", Type: asset.TypeStorm,
		Coordinates: [][]float64{{-122.4194, 37.7749}, {-122.4180, 37.7755}},
	}})
	env.store.CreateExport(ctx, &store.Export{ID: "exp_1", ProjectID: "prj_1", Format: "geojson"})

	job := ExportJob{ExportID: "exp_1", Options: export.DefaultOptions()}
	if err := env.worker.HandleExport(ctx, job); err != nil {
		t.Fatal(err)
	}

	e, _ := env.store.GetExport(ctx, "exp_1")
	if e.Status != store.ExportReady {
		t.Fatalf("status = %q (%s)", e.Status, e.Error)
	}
	if e.FileSizeBytes == 0 {
		t.Error("file size not recorded")
	}
	if _, err := os.Stat(e.FilePath); err != nil {
		t.Errorf("output file missing: %v", err)
	}
	phase, _ := env.status.LatestPhase(ctx, "exp_1")
	if phase != status.PhaseExporting {
		t.Errorf("latest phase = %q", phase)
	}
}

func TestHandleExportDegradedFBX(t *testing.T) {
	env := newEnv(t, Config{})
	ctx := context.Background()

	env.createProject(t, "prj_1", "site.json")
	env.store.ReplaceAssets(ctx, "prj_1", []*asset.Asset{{
		ID: "ast_1", ProjectID: "prj_1", Type: asset.TypeStorm,
		Coordinates: [][]float64{{0, 0}, {10, 0}},
	}})
	env.store.CreateExport(ctx, &store.Export{ID: "exp_1", ProjectID: "prj_1", Format: "fbx"})

	// No blender binary: the chain degrades to OBJ. The record must point at
	// the file that was actually written, not the requested .fbx path.
	job := ExportJob{ExportID: "exp_1", Options: export.DefaultOptions()}
	if err := env.worker.HandleExport(ctx, job); err != nil {
		t.Fatal(err)
	}

	e, _ := env.store.GetExport(ctx, "exp_1")
	if e.Status != store.ExportReady {
		t.Fatalf("status = %q (%s)", e.Status, e.Error)
	}
	if filepath.Ext(e.FilePath) != ".obj" {
		t.Errorf("file_path = %q, want the .obj fallback", e.FilePath)
	}
	info, err := os.Stat(e.FilePath)
	if err != nil {
		t.Fatalf("recorded file missing: %v", err)
	}
	if e.FileSizeBytes == 0 || e.FileSizeBytes != info.Size() {
		t.Errorf("size = %d, file on disk = %d", e.FileSizeBytes, info.Size())
	}

	entries, _ := env.status.History(ctx, "exp_1")
	degraded := false
	for _, ent := range entries {
		if ent.Kind == "event" && strings.Contains(ent.Message, "degraded") {
			degraded = true
		}
	}
	if !degraded {
		t.Error("no degraded-output event recorded")
	}
}

func TestHandleExportAdapterFailure(t *testing.T) {
	env := newEnv(t, Config{})
	ctx := context.Background()

	// No geometry at all: the GLB adapter fails with zero solids.
	env.createProject(t, "prj_1", "site.json")
	env.store.CreateExport(ctx, &store.Export{ID: "exp_1", ProjectID: "prj_1", Format: "glb"})

	job := ExportJob{ExportID: "exp_1", Options: export.DefaultOptions()}
	if err := env.worker.HandleExport(ctx, job); err != nil {
		t.Fatalf("adapter failure should not propagate: %v", err)
	}
	e, _ := env.store.GetExport(ctx, "exp_1")
	if e.Status != store.ExportFailed || e.Error == "" {
		t.Errorf("after adapter failure: %+v", e)
	}
}

func TestHandleExportUnknownFormat(t *testing.T) {
	env := newEnv(t, Config{})
	ctx := context.Background()

	env.createProject(t, "prj_1", "site.json")
	env.store.CreateExport(ctx, &store.Export{ID: "exp_1", ProjectID: "prj_1", Format: "shp"})

	if err := env.worker.HandleExport(ctx, ExportJob{ExportID: "exp_1", Options: export.DefaultOptions()}); err != nil {
		t.Fatal(err)
	}
	e, _ := env.store.GetExport(ctx, "exp_1")
	if e.Status != store.ExportFailed {
		t.Errorf("status = %q, want failed", e.Status)
	}
}

func TestIngestHandlerEndToEnd(t *testing.T) {
	env := newEnv(t, Config{})
	ctx := context.Background()

	path := env.writeDrawing(t, sampleDrawing)
	env.createProject(t, "prj_1", path)

	payload, _ := json.Marshal(IngestJob{ProjectID: "prj_1", FilePath: path})
	handler := env.worker.IngestHandler()
	if err := handler(ctx, &queue.Job{ID: "job_1", Payload: payload}); err != nil {
		t.Fatal(err)
	}
	p, _ := env.store.GetProject(ctx, "prj_1")
	if p.Status == store.StatusPending {
		t.Error("handler did not process the project")
	}
}

func TestHandlerDropsMalformedPayload(t *testing.T) {
	env := newEnv(t, Config{})
	handler := env.worker.IngestHandler()
	if err := handler(context.Background(), &queue.Job{ID: "job_1", Payload: []byte("not json")}); err != nil {
		t.Errorf("malformed payload must be dropped, not retried: %v", err)
	}
}
