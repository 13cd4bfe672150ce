package store

import (
	"context"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/pipevision/pipevision/asset"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "pipevision.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func f64(v float64) *float64 { return &v }

func TestProjectLifecycle(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	p := &Project{
		ID:               "prj_1",
		Name:             "site plan",
		OriginalFilename: "site.dwg",
		FilePath:         "/data/uploads/site.dwg",
		FileSizeBytes:    1024,
	}
	if err := s.CreateProject(ctx, p); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetProject(ctx, "prj_1")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("project not found")
	}
	if got.Status != StatusPending {
		t.Errorf("status = %q, want pending", got.Status)
	}
	if got.TargetCRS != "EPSG:4326" {
		t.Errorf("target_crs = %q, want default EPSG:4326", got.TargetCRS)
	}
	if got.MissingFields == nil || got.DetectedLayers == nil {
		t.Error("list fields must round-trip as empty, not nil")
	}

	if err := s.SetProjectStatus(ctx, "prj_1", StatusProcessing, ""); err != nil {
		t.Fatal(err)
	}

	got.Status = StatusAwaitingInput
	got.MissingFields = []string{"depth", "crs"}
	got.SourceCRS = "EPSG:3857"
	got.Units = "meters"
	got.RotationDegrees = 12.5
	got.MinX, got.MinY = f64(0), f64(0)
	got.MaxX, got.MaxY = f64(100), f64(50)
	got.LayerCount = 3
	got.EntityCount = 42
	got.DetectedLayers = []string{"SEWER_MAIN", "STORM", "TEXT"}
	if err := s.SaveAnalysis(ctx, got); err != nil {
		t.Fatal(err)
	}

	again, _ := s.GetProject(ctx, "prj_1")
	if again.Status != StatusAwaitingInput {
		t.Errorf("status = %q, want awaiting_input", again.Status)
	}
	if len(again.MissingFields) != 2 || again.MissingFields[0] != "depth" {
		t.Errorf("missing_fields = %v", again.MissingFields)
	}
	if again.ProcessedAt == nil {
		t.Error("processed_at not stamped")
	}
	if again.MaxX == nil || *again.MaxX != 100 {
		t.Errorf("bounds not persisted: %v", again.MaxX)
	}
	if len(again.DetectedLayers) != 3 {
		t.Errorf("detected_layers = %v", again.DetectedLayers)
	}
}

func TestGetProjectAbsent(t *testing.T) {
	s := openStore(t)
	p, err := s.GetProject(context.Background(), "prj_nope")
	if err != nil {
		t.Fatal(err)
	}
	if p != nil {
		t.Error("expected nil for absent project")
	}
}

func TestSetProjectStatusClearsErrorOutsideFailed(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	s.CreateProject(ctx, &Project{ID: "prj_1", Name: "p"})
	s.SetProjectStatus(ctx, "prj_1", StatusFailed, "parse blew up")
	p, _ := s.GetProject(ctx, "prj_1")
	if p.Error != "parse blew up" {
		t.Errorf("error = %q", p.Error)
	}

	s.SetProjectStatus(ctx, "prj_1", StatusProcessing, "stale")
	p, _ = s.GetProject(ctx, "prj_1")
	if p.Error != "" {
		t.Errorf("error should clear on non-failed transition, got %q", p.Error)
	}
}

func TestSaveAnalysisMissingProject(t *testing.T) {
	s := openStore(t)
	err := s.SaveAnalysis(context.Background(), &Project{ID: "prj_ghost", Status: StatusReady})
	if err == nil {
		t.Error("expected error for unknown project")
	}
}

func TestReplaceAssets(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	s.CreateProject(ctx, &Project{ID: "prj_1", Name: "p"})

	first := []*asset.Asset{
		{
			ID: "ast_1", ProjectID: "prj_1", Type: asset.TypeStorm,
			LayerName:   "STORM_MAIN",
			Coordinates: [][]float64{{0, 0}, {10, 5}},
			DepthStart:  f64(1.2), Diameter: f64(0.3),
			Properties: map[string]any{"closed": false},
		},
		{ID: "ast_2", ProjectID: "prj_1", Type: asset.TypeUnknown, Handle: "1A2B"},
	}
	if err := s.ReplaceAssets(ctx, "prj_1", first); err != nil {
		t.Fatal(err)
	}

	got, err := s.ListAssets(ctx, "prj_1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("assets = %d, want 2", len(got))
	}
	if got[0].Type != asset.TypeStorm || len(got[0].Coordinates) != 2 {
		t.Errorf("first asset did not round-trip: %+v", got[0])
	}
	if got[0].DepthStart == nil || *got[0].DepthStart != 1.2 {
		t.Error("depth pointer lost")
	}
	if got[1].DepthStart != nil {
		t.Error("absent depth must stay nil")
	}

	// Re-ingest replaces, never accumulates.
	second := []*asset.Asset{{ID: "ast_3", ProjectID: "prj_1"}}
	if err := s.ReplaceAssets(ctx, "prj_1", second); err != nil {
		t.Fatal(err)
	}
	n, _ := s.CountAssets(ctx, "prj_1")
	if n != 1 {
		t.Fatalf("assets after replace = %d, want 1", n)
	}
}

func TestExportLifecycle(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	s.CreateProject(ctx, &Project{ID: "prj_1", Name: "p"})

	e := &Export{
		ID:        "exp_1",
		ProjectID: "prj_1",
		Format:    "geojson",
		Options:   []byte(`{"precision":8}`),
	}
	if err := s.CreateExport(ctx, e); err != nil {
		t.Fatal(err)
	}

	got, _ := s.GetExport(ctx, "exp_1")
	if got.Status != ExportPending {
		t.Errorf("status = %q, want pending", got.Status)
	}

	if err := s.FinishExport(ctx, "exp_1", "/data/exports/exp_1.geojson", 2048); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetExport(ctx, "exp_1")
	if got.Status != ExportReady || got.FileSizeBytes != 2048 {
		t.Errorf("after finish: %+v", got)
	}
	if got.CompletedAt == nil {
		t.Error("completed_at not stamped")
	}

	s.RecordDownload(ctx, "exp_1")
	s.RecordDownload(ctx, "exp_1")
	got, _ = s.GetExport(ctx, "exp_1")
	if got.DownloadCount != 2 {
		t.Errorf("download_count = %d, want 2", got.DownloadCount)
	}
}

func TestFailExport(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	s.CreateProject(ctx, &Project{ID: "prj_1", Name: "p"})
	s.CreateExport(ctx, &Export{ID: "exp_1", ProjectID: "prj_1", Format: "glb"})

	if err := s.FailExport(ctx, "exp_1", "no solids generated"); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetExport(ctx, "exp_1")
	if got.Status != ExportFailed || got.Error != "no solids generated" {
		t.Errorf("after fail: %+v", got)
	}
}

func TestListExportsNewestFirst(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	s.CreateProject(ctx, &Project{ID: "prj_1", Name: "p"})
	s.CreateExport(ctx, &Export{ID: "exp_a", ProjectID: "prj_1", Format: "csv", CreatedAt: 100})
	s.CreateExport(ctx, &Export{ID: "exp_b", ProjectID: "prj_1", Format: "glb", CreatedAt: 200})

	list, err := s.ListExports(ctx, "prj_1")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != "exp_b" {
		t.Errorf("order wrong: %v", list)
	}
}
