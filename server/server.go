// Package server is the HTTP surface: upload intake, status polling, export
// requests and downloads. Handlers stay CRUD-thin; all processing happens in
// the queued workers.
package server

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pipevision/pipevision/export"
	"github.com/pipevision/pipevision/idgen"
	"github.com/pipevision/pipevision/queue"
	"github.com/pipevision/pipevision/status"
	"github.com/pipevision/pipevision/store"
)

// Server handles the HTTP API.
type Server struct {
	cfg     *Config
	store   *store.Store
	status  *status.Reporter
	ingestQ *queue.Queue
	exportQ *queue.Queue
	logger  *slog.Logger

	newProjectID idgen.Generator
	newExportID  idgen.Generator
	newJobID     idgen.Generator
}

// New creates a Server.
func New(cfg *Config, st *store.Store, rep *status.Reporter, ingestQ, exportQ *queue.Queue, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:          cfg,
		store:        st,
		status:       rep,
		ingestQ:      ingestQ,
		exportQ:      exportQ,
		logger:       logger,
		newProjectID: idgen.Prefixed("prj_", idgen.Default),
		newExportID:  idgen.Prefixed("exp_", idgen.Default),
		newJobID:     idgen.Prefixed("job_", idgen.Default),
	}
}

// Router builds the chi router.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Post("/projects", s.handleCreateProject)
		r.Get("/projects/{id}", s.handleGetProject)
		r.Get("/projects/{id}/assets", s.handleListAssets)
		r.Get("/projects/{id}/exports", s.handleListExports)
		r.Post("/projects/{id}/exports", s.handleCreateExport)
		r.Get("/exports/{id}", s.handleGetExport)
		r.Get("/exports/{id}/download", s.handleDownload)
	})
	return r
}

// handleCreateProject accepts a multipart upload, stores the file and
// enqueues an ingest job.
// POST /api/projects
func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes())
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, "invalid multipart body", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file field is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	name := r.FormValue("name")
	if name == "" {
		name = strings.TrimSuffix(header.Filename, filepath.Ext(header.Filename))
	}

	projectID := s.newProjectID()
	dstPath := filepath.Join(s.cfg.UploadDir, projectID+strings.ToLower(filepath.Ext(header.Filename)))
	size, err := s.saveUpload(file, dstPath)
	if err != nil {
		s.logger.Error("upload save failed", "error", err)
		http.Error(w, "failed to store upload", http.StatusInternalServerError)
		return
	}

	p := &store.Project{
		ID:               projectID,
		Name:             name,
		Description:      r.FormValue("description"),
		OriginalFilename: header.Filename,
		FilePath:         dstPath,
		FileSizeBytes:    size,
		SourceCRS:        r.FormValue("source_crs"),
		TargetCRS:        s.cfg.TargetCRS,
	}
	if crs := r.FormValue("target_crs"); crs != "" {
		p.TargetCRS = crs
	}
	if err := s.store.CreateProject(r.Context(), p); err != nil {
		s.logger.Error("create project failed", "error", err)
		http.Error(w, "failed to create project", http.StatusInternalServerError)
		return
	}

	payload, _ := json.Marshal(map[string]string{
		"project_id": projectID,
		"file_path":  dstPath,
	})
	if err := s.ingestQ.Publish(r.Context(), s.newJobID(), payload); err != nil {
		s.logger.Error("enqueue ingest failed", "project_id", projectID, "error", err)
		http.Error(w, "failed to enqueue processing", http.StatusInternalServerError)
		return
	}

	s.logger.Info("project created", "project_id", projectID, "filename", header.Filename, "size_bytes", size)
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) saveUpload(src io.Reader, dstPath string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return 0, err
	}
	dst, err := os.Create(dstPath)
	if err != nil {
		return 0, err
	}
	defer dst.Close()
	return io.Copy(dst, src)
}

// handleGetProject returns the project with its latest pipeline phase.
// GET /api/projects/{id}
func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, err := s.store.GetProject(r.Context(), id)
	if err != nil {
		s.logger.Error("get project failed", "project_id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if p == nil {
		http.Error(w, "project not found", http.StatusNotFound)
		return
	}

	phase, _ := s.status.LatestPhase(r.Context(), id)
	writeJSON(w, http.StatusOK, struct {
		*store.Project
		Phase string `json:"phase,omitempty"`
	}{p, phase})
}

// GET /api/projects/{id}/assets
func (s *Server) handleListAssets(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, err := s.store.GetProject(r.Context(), id)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if p == nil {
		http.Error(w, "project not found", http.StatusNotFound)
		return
	}
	assets, err := s.store.ListAssets(r.Context(), id)
	if err != nil {
		s.logger.Error("list assets failed", "project_id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"assets": assets, "count": len(assets)})
}

// GET /api/projects/{id}/exports
func (s *Server) handleListExports(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	exports, err := s.store.ListExports(r.Context(), id)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"exports": exports})
}

// ExportRequest is the body for POST /api/projects/{id}/exports.
type ExportRequest struct {
	Format  string          `json:"format"`
	Options json.RawMessage `json:"options,omitempty"`
}

// handleCreateExport records an export and enqueues the job. Options default
// from the project's CRS settings; the request body overrides field by field.
// POST /api/projects/{id}/exports
func (s *Server) handleCreateExport(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "id")
	p, err := s.store.GetProject(r.Context(), projectID)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if p == nil {
		http.Error(w, "project not found", http.StatusNotFound)
		return
	}

	var req ExportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if !slices.Contains(export.Formats(), req.Format) {
		http.Error(w, fmt.Sprintf("unsupported format %q", req.Format), http.StatusBadRequest)
		return
	}

	opts := export.DefaultOptions()
	opts.SourceCRS = p.SourceCRS
	if opts.SourceCRS == "" {
		opts.SourceCRS = p.TargetCRS
	}
	opts.TargetCRS = p.TargetCRS
	if len(req.Options) > 0 {
		if err := json.Unmarshal(req.Options, &opts); err != nil {
			http.Error(w, "invalid options", http.StatusBadRequest)
			return
		}
	}
	optsJSON, _ := json.Marshal(opts)

	e := &store.Export{
		ID:        s.newExportID(),
		ProjectID: projectID,
		Format:    req.Format,
		Options:   optsJSON,
	}
	if err := s.store.CreateExport(r.Context(), e); err != nil {
		s.logger.Error("create export failed", "project_id", projectID, "error", err)
		http.Error(w, "failed to create export", http.StatusInternalServerError)
		return
	}

	payload, _ := json.Marshal(map[string]any{
		"export_id": e.ID,
		"options":   opts,
	})
	if err := s.exportQ.Publish(r.Context(), s.newJobID(), payload); err != nil {
		s.logger.Error("enqueue export failed", "export_id", e.ID, "error", err)
		http.Error(w, "failed to enqueue export", http.StatusInternalServerError)
		return
	}

	s.logger.Info("export requested", "export_id", e.ID, "project_id", projectID, "format", req.Format)
	writeJSON(w, http.StatusAccepted, e)
}

// GET /api/exports/{id}
func (s *Server) handleGetExport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	e, err := s.store.GetExport(r.Context(), id)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if e == nil {
		http.Error(w, "export not found", http.StatusNotFound)
		return
	}
	phase, _ := s.status.LatestPhase(r.Context(), id)
	writeJSON(w, http.StatusOK, struct {
		*store.Export
		Phase string `json:"phase,omitempty"`
	}{e, phase})
}

// GET /api/exports/{id}/download
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	e, err := s.store.GetExport(r.Context(), id)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if e == nil {
		http.Error(w, "export not found", http.StatusNotFound)
		return
	}
	if e.Status != store.ExportReady {
		http.Error(w, fmt.Sprintf("export is %s", e.Status), http.StatusConflict)
		return
	}

	f, err := os.Open(e.FilePath)
	if err != nil {
		s.logger.Error("export file missing", "export_id", id, "path", e.FilePath, "error", err)
		http.Error(w, "export file missing", http.StatusGone)
		return
	}
	defer f.Close()

	_ = s.store.RecordDownload(r.Context(), id)
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", filepath.Base(e.FilePath)))
	io.Copy(w, f)
}

// GET /healthz
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ingestLen, _ := s.ingestQ.Len(r.Context())
	exportLen, _ := s.exportQ.Len(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"ingest_queue":  ingestLen,
		"export_queue":  exportLen,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
