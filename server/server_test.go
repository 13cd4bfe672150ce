package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/pipevision/pipevision/queue"
	"github.com/pipevision/pipevision/status"
	"github.com/pipevision/pipevision/store"
)

type testServer struct {
	srv     *Server
	handler http.Handler
	store   *store.Store
	ingestQ *queue.Queue
	exportQ *queue.Queue
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dir := t.TempDir()

	st, err := store.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	rep := status.New(st.DB)
	if err := rep.EnsureSchema(context.Background()); err != nil {
		t.Fatal(err)
	}

	ingestQ := queue.New(st.DB, queue.Options{Topic: "ingest"})
	exportQ := queue.New(st.DB, queue.Options{Topic: "export"})
	if err := ingestQ.EnsureSchema(context.Background()); err != nil {
		t.Fatal(err)
	}

	cfg := DefaultConfig()
	cfg.UploadDir = filepath.Join(dir, "uploads")
	cfg.OutputDir = filepath.Join(dir, "outputs")

	s := New(cfg, st, rep, ingestQ, exportQ, nil)
	return &testServer{
		srv:     s,
		handler: s.Router(),
		store:   st,
		ingestQ: ingestQ,
		exportQ: exportQ,
	}
}

func multipartUpload(t *testing.T, fields map[string]string, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	io.Copy(fw, strings.NewReader(content))
	mw.Close()
	return buf, mw.FormDataContentType()
}

func TestCreateProject(t *testing.T) {
	ts := newTestServer(t)

	body, contentType := multipartUpload(t, map[string]string{
		"name":       "downtown sewers",
		"source_crs": "EPSG:3857",
	}, "site.dwg", "dwg bytes")

	req := httptest.NewRequest("POST", "/api/projects", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var p store.Project
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(p.ID, "prj_") {
		t.Errorf("project id = %q", p.ID)
	}
	if p.Name != "downtown sewers" || p.SourceCRS != "EPSG:3857" {
		t.Errorf("project = %+v", p)
	}
	if p.Status != store.StatusPending {
		t.Errorf("status = %q, want pending", p.Status)
	}

	// Upload stored and ingest enqueued.
	stored, _ := ts.store.GetProject(context.Background(), p.ID)
	if stored == nil {
		t.Fatal("project not persisted")
	}
	if _, err := os.Stat(stored.FilePath); err != nil {
		t.Errorf("upload not stored: %v", err)
	}
	n, _ := ts.ingestQ.Len(context.Background())
	if n != 1 {
		t.Errorf("ingest queue = %d, want 1", n)
	}
}

func TestCreateProjectMissingFile(t *testing.T) {
	ts := newTestServer(t)

	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	mw.WriteField("name", "no file")
	mw.Close()

	req := httptest.NewRequest("POST", "/api/projects", buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestGetProject(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	ts.store.CreateProject(ctx, &store.Project{ID: "prj_1", Name: "p"})
	ts.srv.status.Phase(ctx, "prj_1", status.PhaseParsing)

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/projects/prj_1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got map[string]any
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got["phase"] != status.PhaseParsing {
		t.Errorf("phase = %v", got["phase"])
	}

	rec = httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/projects/prj_nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestCreateExport(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	ts.store.CreateProject(ctx, &store.Project{
		ID: "prj_1", Name: "p", SourceCRS: "EPSG:3857", TargetCRS: "EPSG:4326",
	})

	body := strings.NewReader(`{"format":"geojson","options":{"precision":6}}`)
	req := httptest.NewRequest("POST", "/api/projects/prj_1/exports", body)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var e store.Export
	json.Unmarshal(rec.Body.Bytes(), &e)
	if !strings.HasPrefix(e.ID, "exp_") || e.Format != "geojson" {
		t.Errorf("export = %+v", e)
	}

	stored, _ := ts.store.GetExport(ctx, e.ID)
	if stored == nil {
		t.Fatal("export not persisted")
	}
	// Project CRS and the body override both land in the stored options.
	opts := string(stored.Options)
	if !strings.Contains(opts, "EPSG:3857") || !strings.Contains(opts, `"precision":6`) {
		t.Errorf("options = %s", opts)
	}

	n, _ := ts.exportQ.Len(ctx)
	if n != 1 {
		t.Errorf("export queue = %d, want 1", n)
	}
}

func TestCreateExportRejectsUnknownFormat(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	ts.store.CreateProject(ctx, &store.Project{ID: "prj_1", Name: "p"})

	req := httptest.NewRequest("POST", "/api/projects/prj_1/exports",
		strings.NewReader(`{"format":"shp"}`))
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestDownload(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	dir := t.TempDir()

	outPath := filepath.Join(dir, "exp_1.geojson")
	os.WriteFile(outPath, []byte(`{"type":"FeatureCollection"}`), 0o644)

	ts.store.CreateProject(ctx, &store.Project{ID: "prj_1", Name: "p"})
	ts.store.CreateExport(ctx, &store.Export{ID: "exp_1", ProjectID: "prj_1", Format: "geojson"})

	// Pending export: not downloadable yet.
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/exports/exp_1/download", nil))
	if rec.Code != http.StatusConflict {
		t.Errorf("pending download status = %d, want 409", rec.Code)
	}

	ts.store.FinishExport(ctx, "exp_1", outPath, 28)

	rec = httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/exports/exp_1/download", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("download status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "FeatureCollection") {
		t.Error("download body wrong")
	}

	e, _ := ts.store.GetExport(ctx, "exp_1")
	if e.DownloadCount != 1 {
		t.Errorf("download_count = %d, want 1", e.DownloadCount)
	}
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got map[string]any
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got["status"] != "ok" {
		t.Errorf("body = %v", got)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		wantOK bool
	}{
		{"defaults", func(c *Config) {}, true},
		{"missing db_path", func(c *Config) { c.DBPath = "" }, false},
		{"missing upload_dir", func(c *Config) { c.UploadDir = "" }, false},
		{"missing output_dir", func(c *Config) { c.OutputDir = "" }, false},
		{"zero upload limit", func(c *Config) { c.MaxUploadMB = 0 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err == nil) != tt.wantOK {
				t.Errorf("Validate() = %v, wantOK=%v", err, tt.wantOK)
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("listen: \":9090\"\nmax_upload_mb: 50\n"), 0o644)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Listen != ":9090" || cfg.MaxUploadMB != 50 {
		t.Errorf("cfg = %+v", cfg)
	}
	// Unset fields keep defaults.
	if cfg.DBPath != "data/pipevision.db" {
		t.Errorf("db_path = %q", cfg.DBPath)
	}

	if _, err := LoadConfig(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
