// Package main provides the kindred ingestion and matching server.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kindredhq/kindred/internal/config"
	"github.com/kindredhq/kindred/internal/db"
	"github.com/kindredhq/kindred/internal/extract"
	"github.com/kindredhq/kindred/internal/metrics"
	"github.com/kindredhq/kindred/internal/ner"
	"github.com/kindredhq/kindred/internal/research"
	"github.com/kindredhq/kindred/internal/scraper"
	"github.com/kindredhq/kindred/internal/server"
	"github.com/kindredhq/kindred/internal/service"
	"github.com/kindredhq/kindred/internal/stt"
	"github.com/kindredhq/kindred/internal/vision"
)

func main() {
	wipeDB := flag.Bool("wipe", false, "wipe all data from database on startup (testing only)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, closeLog := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer func() {
		if err := closeLog(); err != nil {
			slog.Error("failed to close log file", "error", err)
		}
	}()
	slog.SetDefault(logger)

	slog.Info("starting kindred-server", "port", cfg.ServerPort)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	dbClient, err := db.NewClient(ctx, db.Config{
		URL:       cfg.SurrealDBURL,
		Namespace: cfg.SurrealDBNamespace,
		Database:  cfg.SurrealDBDatabase,
		Username:  cfg.SurrealDBUser,
		Password:  cfg.SurrealDBPass,
		AuthLevel: cfg.SurrealDBAuthLevel,
	}, logger)
	if err != nil {
		cancel()
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(context.Background()); err != nil {
			slog.Error("failed to close database", "error", err)
		}
	}()

	if err := dbClient.InitSchema(ctx); err != nil {
		cancel()
		slog.Error("failed to initialize schema", "error", err)
		os.Exit(1)
	}
	if *wipeDB || os.Getenv("KINDRED_WIPE_DB") == "true" {
		if err := dbClient.WipeData(ctx); err != nil {
			cancel()
			slog.Error("failed to wipe database", "error", err)
			os.Exit(1)
		}
	}

	// Jobs left queued or processing by a previous process can never make
	// progress again; fail them so clients stop polling.
	swept, err := dbClient.FailAbandonedJobs(ctx)
	if err != nil {
		slog.Error("abandoned job sweep failed", "error", err)
	} else if swept > 0 {
		slog.Info("failed abandoned jobs from previous run", "count", swept)
	}
	cancel()

	visionClient, err := vision.New(vision.Config{
		Provider:   cfg.VisionProvider,
		Model:      cfg.VisionModel,
		APIKey:     cfg.VisionAPIKey,
		OllamaHost: cfg.OllamaHost,
	})
	if err != nil {
		slog.Error("failed to create vision client", "error", err)
		os.Exit(1)
	}

	var fallback extract.Extractor
	if cfg.BedrockRegion != "" && cfg.BedrockModel != "" {
		initCtx, initCancel := context.WithTimeout(context.Background(), 10*time.Second)
		bedrock, err := ner.New(initCtx, cfg.BedrockRegion, cfg.BedrockModel)
		initCancel()
		if err != nil {
			slog.Error("failed to create bedrock extractor", "error", err)
			os.Exit(1)
		}
		fallback = bedrock
	} else {
		slog.Warn("no bedrock config, extraction runs without fallback")
	}

	coordinator, err := extract.NewCoordinator(visionClient, fallback, visionClient, cfg.ImageConcurrency, logger)
	if err != nil {
		slog.Error("failed to create extraction coordinator", "error", err)
		os.Exit(1)
	}
	defer coordinator.Close()

	scrapeClient := scraper.New(cfg.ScraperURL, cfg.ScraperAPIKey, cfg.APITimeout)
	sttClient := stt.New(cfg.STTBaseURL, cfg.STTAPIKey, cfg.APITimeout, cfg.MaxRetries)
	researchClient := research.New(cfg.ResearchBaseURL, cfg.ResearchAPIKey, cfg.APITimeout, research.RetryConfig{
		MaxRetries: cfg.MaxRetries,
		Multiplier: cfg.RetryMultiplier,
		MaxWait:    cfg.RetryMaxWait,
	})

	webhookURL := ""
	if cfg.WebhookBaseURL != "" {
		webhookURL = cfg.WebhookBaseURL + "/api/webhooks/research"
	}

	collector := metrics.NewCollector()

	orchestrator := service.NewOrchestrator(
		dbClient, dbClient, dbClient,
		scrapeClient, sttClient, coordinator, researchClient,
		service.OrchestratorConfig{
			TopInterests:   cfg.TopInterests,
			WebhookBaseURL: webhookURL,
			Metrics:        collector,
		},
		logger,
	)

	jobManager, err := service.NewJobManager(dbClient, orchestrator, cfg.JobWorkers, cfg.IngestCooldown, logger)
	if err != nil {
		slog.Error("failed to create job manager", "error", err)
		os.Exit(1)
	}
	defer jobManager.Close()

	reconciler := service.NewReconciler(
		dbClient, dbClient, researchClient, coordinator,
		cfg.PollInterval, cfg.StaleThreshold, logger,
	).WithMetrics(collector)
	matcher := service.NewMatcher(dbClient, visionClient, logger)

	pollCtx, stopPoll := context.WithCancel(context.Background())
	go reconciler.Run(pollCtx)

	srv := server.New(jobManager, dbClient, reconciler, matcher, server.Config{
		Port:              cfg.ServerPort,
		MaxPostsDefault:   cfg.MaxPostsDefault,
		MaxPostsHardLimit: cfg.MaxPostsHardLimit,
		Stats:             collector,
	}, logger)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		slog.Error("server error", "error", err)
	}

	stopPoll()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", "error", err)
	}
}
