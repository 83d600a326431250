package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"docsum/internal/config"
	"docsum/internal/database"
	"docsum/internal/ocr"
	"docsum/internal/ocr/tesseract"
	"docsum/internal/pipeline"
	"docsum/internal/ratelimiter"
	"docsum/internal/scheduler"
	"docsum/internal/server"
	"docsum/internal/summarizer"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 30 * time.Second
)

func main() {
	start := time.Now()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).ErrorContext(ctx, "Failed to load config",
			"error", err)

		return
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(log)

	db, err := database.New(ctx, cfg.DBDSN, log)
	if err != nil {
		log.ErrorContext(ctx, "Failed to initialize db",
			"error", err,
			"driver", database.DriverFor(cfg.DBDSN))

		return
	}
	defer func() {
		if err = db.Close(); err != nil {
			log.ErrorContext(ctx, "Failed to close db",
				"error", err)
		}
	}()
	log.InfoContext(ctx, "DB is initialized",
		"driver", database.DriverFor(cfg.DBDSN))

	backend := initBackend(ctx, cfg, log)
	if cfg.Summarizer.MinInterval > 0 {
		limiter := ratelimiter.New(backend, cfg.Summarizer.MinInterval, log)
		defer limiter.Stop()

		backend = limiter
		log.InfoContext(ctx, "Summarizer rate limit is enabled",
			"minInterval", cfg.Summarizer.MinInterval.String())
	}
	client := summarizer.NewClient(backend, cfg.RetryConfig(), log)
	cached := summarizer.NewCachingSummarizer(client, cfg.Summarizer.CacheEntries, cfg.Summarizer.CacheTTL)
	docs := pipeline.New(cached, cfg.PipelineConfig(), log)

	engine := initOCREngine(ctx, cfg, log)

	if cfg.Batch.Enabled {
		batch := scheduler.NewBatch(db, docs, cfg.Batch.Limit, cfg.Batch.MaxAttempts, log)
		sched := scheduler.New(ctx, cfg.Batch.Spec, cfg.Batch.Timeout, batch, log)

		if err = sched.Start(); err != nil {
			log.ErrorContext(ctx, "Failed to start scheduler",
				"error", err,
				"spec", cfg.Batch.Spec)

			return
		}
		defer sched.Stop()
		log.InfoContext(ctx, "Scheduler is started",
			"spec", cfg.Batch.Spec,
			"limit", cfg.Batch.Limit,
			"maxAttempts", cfg.Batch.MaxAttempts,
			"timeout", cfg.Batch.Timeout.String())
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.New(docs, engine, db, cfg.OCR.MaxUploadBytes, log).Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe()
	}()
	log.InfoContext(ctx, "Server is started",
		"addr", cfg.Addr,
		"provider", backend.Name(),
		"ocrEngine", engine.Name())

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-c:
		log.InfoContext(ctx, "Shutdown signal is received",
			"signal", sig.String())
	case err = <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			log.ErrorContext(ctx, "Failed to serve",
				"error", err,
				"addr", cfg.Addr)
		}
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err = srv.Shutdown(shutdownCtx); err != nil {
		log.ErrorContext(shutdownCtx, "Failed to shutdown server",
			"error", err)
	}

	log.InfoContext(shutdownCtx, "Exiting...",
		"uptimeSeconds", time.Since(start).Seconds())
}

func initBackend(ctx context.Context, cfg config.Config, log *slog.Logger) summarizer.Backend {
	if cfg.Summarizer.Provider == config.ProviderOpenAI {
		log.InfoContext(ctx, "OpenAI summarizer is initialized",
			"provider", config.ProviderOpenAI,
			"model", cfg.OpenAI.Model)

		return summarizer.NewOpenAI(cfg.OpenAI.APIKey, cfg.OpenAI.Model, cfg.OpenAI.BaseURL)
	}

	if strings.TrimSpace(cfg.HuggingFace.APIKey) == "" {
		log.WarnContext(ctx, "HF_API_KEY is missing so requests will be unauthenticated",
			"envVar", "HF_API_KEY")
	}

	log.InfoContext(ctx, "Hugging Face summarizer is initialized",
		"provider", config.ProviderHuggingFace,
		"url", cfg.HuggingFace.APIURL)

	return summarizer.NewHuggingFace(cfg.HuggingFace.APIURL, cfg.HuggingFace.APIKey, nil)
}

func initOCREngine(ctx context.Context, cfg config.Config, log *slog.Logger) ocr.Engine {
	if cfg.OCR.Engine == config.EngineRemote {
		log.InfoContext(ctx, "Remote OCR engine is initialized",
			"url", cfg.OCR.ServiceURL)

		return ocr.NewRemoteEngine(cfg.OCR.ServiceURL, nil)
	}

	log.InfoContext(ctx, "Tesseract OCR engine is initialized",
		"languages", cfg.OCR.Languages)

	return tesseract.New(cfg.OCR.Languages...)
}
