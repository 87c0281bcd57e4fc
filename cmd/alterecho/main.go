package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Elytride/AlterEcho/internal/api"
	"github.com/Elytride/AlterEcho/internal/archive"
	"github.com/Elytride/AlterEcho/internal/audit"
	"github.com/Elytride/AlterEcho/internal/config"
	"github.com/Elytride/AlterEcho/internal/corpus"
	"github.com/Elytride/AlterEcho/internal/events"
	"github.com/Elytride/AlterEcho/internal/ingest"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	slog.Info("alterecho starting", "port", cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Corpus store
	store, err := corpus.New(cfg.UploadDir, slog.Default())
	if err != nil {
		slog.Error("failed to open corpus store", "error", err)
		os.Exit(1)
	}
	slog.Info("corpus store ready", "dir", cfg.UploadDir)

	// Archive extractor
	extractor, err := archive.NewExtractor(cfg.TempZipDir)
	if err != nil {
		slog.Error("failed to prepare extraction dir", "error", err)
		os.Exit(1)
	}

	// Audit trail (optional — ingestion works without Postgres, just no history)
	var auditStore *audit.Store
	if cfg.DatabaseURL != "" {
		auditStore, err = audit.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Warn("audit database unavailable — continuing without audit trail", "error", err)
			auditStore = nil
		} else {
			defer auditStore.Close()
			slog.Info("audit database connected")
		}
	} else {
		slog.Warn("DATABASE_URL not set — running without audit trail")
	}

	// Event publisher (optional — no broker means no downstream notifications)
	var publisher *events.Publisher
	if cfg.NatsURL != "" {
		publisher, err = events.Connect(cfg.NatsURL, cfg.NatsToken, slog.Default())
		if err != nil {
			slog.Warn("NATS unavailable — continuing without events", "error", err)
			publisher = nil
		} else {
			defer publisher.Close()
			slog.Info("NATS connected", "url", cfg.NatsURL)
		}
	} else {
		slog.Warn("NATS_URL not set — running without events")
	}

	// Ingestion pipeline
	pipeline := ingest.New(store, extractor, archive.NewMemoryPendingStore(),
		publisher, auditStore, slog.Default())

	// HTTP API
	srv := api.NewServer(cfg.Port, pipeline, store, auditStore, slog.Default())
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("alterecho ready", "port", cfg.Port)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutting down")
	cancel()
	slog.Info("alterecho stopped")
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
