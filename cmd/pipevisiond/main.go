// Entry point for the pipevision service: drawing ingestion, classification
// and geometry export over HTTP with SQLite-queued workers.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pipevision/pipevision/convert"
	"github.com/pipevision/pipevision/queue"
	"github.com/pipevision/pipevision/server"
	"github.com/pipevision/pipevision/status"
	"github.com/pipevision/pipevision/store"
	"github.com/pipevision/pipevision/worker"
)

func main() {
	cfg := server.DefaultConfig()
	if path := env("CONFIG", ""); path != "" {
		loaded, err := server.LoadConfig(path)
		if err != nil {
			slog.Error("config", "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	cfg.Listen = ":" + env("PORT", trimColon(cfg.Listen))
	cfg.DBPath = env("DB_PATH", cfg.DBPath)
	cfg.UploadDir = env("UPLOAD_DIR", cfg.UploadDir)
	cfg.OutputDir = env("OUTPUT_DIR", cfg.OutputDir)
	cfg.ODAPath = env("ODA_PATH", cfg.ODAPath)
	cfg.BlenderPath = env("BLENDER_PATH", cfg.BlenderPath)
	cfg.LogLevel = env("LOG_LEVEL", cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}

	// Logging.
	var lvl slog.Level
	switch cfg.LogLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	// Signal context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Database: store, status events and both job topics share one file.
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		slog.Error("open db", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	reporter := status.New(st.DB, status.WithLogger(logger))
	if err := reporter.EnsureSchema(ctx); err != nil {
		slog.Error("status schema", "error", err)
		os.Exit(1)
	}

	ingestQ := queue.New(st.DB, queue.Options{
		Topic:       "ingest",
		Visibility:  10 * time.Minute,
		MaxAttempts: 3,
		Logger:      logger,
	})
	exportQ := queue.New(st.DB, queue.Options{
		Topic:       "export",
		Visibility:  10 * time.Minute,
		MaxAttempts: 3,
		Logger:      logger,
	})
	if err := ingestQ.EnsureSchema(ctx); err != nil {
		slog.Error("queue schema", "error", err)
		os.Exit(1)
	}

	// External tools. Blender is optional; its absence degrades FBX exports.
	blenderPath := cfg.BlenderPath
	if blenderPath == "" {
		blenderPath = convert.FindBlender(logger)
	}
	blender := &convert.Blender{Path: blenderPath, Logger: logger}
	oda := &convert.ODAConverter{Path: cfg.ODAPath, Logger: logger}

	w, err := worker.New(worker.Config{
		Store:     st,
		Status:    reporter,
		Converter: oda,
		Blender:   blender,
		OutputDir: cfg.OutputDir,
		Logger:    logger,
	})
	if err != nil {
		slog.Error("worker", "error", err)
		os.Exit(1)
	}
	go ingestQ.Run(ctx, w.IngestHandler())
	go exportQ.Run(ctx, w.ExportHandler())

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           server.New(cfg, st, reporter, ingestQ, exportQ, logger).Router(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "listen", cfg.Listen, "blender", blender.Available())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	slog.Info("server stopped")
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func trimColon(listen string) string {
	if len(listen) > 0 && listen[0] == ':' {
		return listen[1:]
	}
	return listen
}
