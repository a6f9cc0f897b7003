// Package control wires the application together and manages its lifecycle.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/querl369/adobe-stock-uploader-sub000/internal/api"
	"github.com/querl369/adobe-stock-uploader-sub000/internal/core/config"
	"github.com/querl369/adobe-stock-uploader-sub000/internal/core/worker"
	"github.com/querl369/adobe-stock-uploader-sub000/internal/infra/metadata"
	"github.com/querl369/adobe-stock-uploader-sub000/internal/infra/metadata/gemini"
	redisclient "github.com/querl369/adobe-stock-uploader-sub000/internal/infra/redis"
	"github.com/querl369/adobe-stock-uploader-sub000/internal/infra/storage"
	"github.com/querl369/adobe-stock-uploader-sub000/internal/infra/storage/memory"
	"github.com/querl369/adobe-stock-uploader-sub000/internal/processing/batch"
	"github.com/querl369/adobe-stock-uploader-sub000/internal/processing/intake"
	"github.com/querl369/adobe-stock-uploader-sub000/internal/quota"
)

// App is the assembled application: stores, registry, orchestration,
// the HTTP server, and the background janitor.
type App struct {
	cfg         *config.AppConfig
	server      *api.Server
	janitor     *worker.Janitor
	gemini      *gemini.Client
	redisClient *redisclient.Client
	log         *slog.Logger
}

// New initializes all dependencies from the configuration. The Gemini API
// key is read from the GEMINI_API_KEY environment variable.
func New(cfg *config.AppConfig) (*App, error) {
	log := slog.Default()

	// 1. Storage. Redis when configured, in-process memory otherwise.
	// Batches always live in memory; only sessions and rate counters are
	// worth sharing across instances.
	var (
		sessionRepo storage.SessionRepository
		rateRepo    storage.RateRepository
		redisClient *redisclient.Client
	)
	store := memory.NewStore()
	batchRepo := memory.NewBatchRepo(store)

	if cfg.Redis.URL != "" {
		var err error
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		sessionRepo = redisclient.NewSessionRepo(redisClient, cfg.Quota.InactivityWindow.Std())
		rateRepo = redisclient.NewRateRepo(redisClient)
		log.Info("Using Redis storage for sessions and rate counters")
	} else {
		sessionRepo = memory.NewSessionRepo(store)
		rateRepo = memory.NewRateRepo(store)
		log.Info("Using memory storage")
	}

	// 2. Quota registry and batch store.
	registry := quota.NewRegistry(quota.Config{
		SessionLimit:     cfg.Quota.SessionLimit,
		InactivityWindow: cfg.Quota.InactivityWindow.Std(),
		RateWindow:       cfg.Quota.RateWindow.Std(),
		RateCap:          cfg.Quota.RateCap,
	}, sessionRepo, rateRepo, log)

	batches := batch.NewStore(batchRepo, cfg.Retention.BatchTTL.Std(), log)

	// 3. Metadata provider.
	geminiClient, err := gemini.New(context.Background(), gemini.Config{
		APIKey:      os.Getenv("GEMINI_API_KEY"),
		Model:       cfg.Gemini.Model,
		Temperature: cfg.Gemini.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init gemini: %w", err)
	}
	var provider metadata.Provider = geminiClient

	// 4. Intake service.
	svc := intake.NewService(registry, batches, provider, intake.Options{
		Concurrency:   cfg.Orchestrator.Concurrency,
		AbortOnError:  cfg.Orchestrator.AbortOnError,
		ItemTimeout:   cfg.Orchestrator.ItemTimeout.Std(),
		RetryAttempts: cfg.Orchestrator.RetryAttempts,
	}, log)

	// 5. HTTP server and janitor.
	server := api.NewServer(svc, registry, cfg.Server.Port, log)

	janitor := worker.NewJanitor(cfg.Retention.SweepInterval.Std(), []worker.Target{
		{Name: "sessions", Sweep: registry.Sweep},
		{Name: "batches", Sweep: batches.Sweep},
	}, log)

	return &App{
		cfg:         cfg,
		server:      server,
		janitor:     janitor,
		gemini:      geminiClient,
		redisClient: redisClient,
		log:         log,
	}, nil
}

// Start starts the HTTP server and the janitor.
func (a *App) Start(ctx context.Context) error {
	go a.janitor.Start(ctx)

	a.log.Info("Starting server", "port", a.cfg.Server.Port)
	go func() {
		if err := a.server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("Server failed", "error", err)
		}
	}()
	return nil
}

// Stop shuts the application down gracefully.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("Stopping...")

	a.janitor.Stop()

	if err := a.gemini.Close(); err != nil {
		a.log.Warn("Failed to close gemini client", "error", err)
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.log.Warn("Failed to close Redis", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return a.server.Stop(shutdownCtx)
}
