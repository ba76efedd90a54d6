package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/saturnino-fabrica-de-software/facetag/internal/api"
	"github.com/saturnino-fabrica-de-software/facetag/internal/api/handler"
	"github.com/saturnino-fabrica-de-software/facetag/internal/app"
	"github.com/saturnino-fabrica-de-software/facetag/internal/audit"
	"github.com/saturnino-fabrica-de-software/facetag/internal/auth"
	"github.com/saturnino-fabrica-de-software/facetag/internal/config"
	"github.com/saturnino-fabrica-de-software/facetag/internal/events"
	"github.com/saturnino-fabrica-de-software/facetag/internal/face"
	"github.com/saturnino-fabrica-de-software/facetag/internal/metrics"
	"github.com/saturnino-fabrica-de-software/facetag/internal/service"
	"github.com/saturnino-fabrica-de-software/facetag/internal/worker"
	"github.com/saturnino-fabrica-de-software/facetag/internal/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	logger := config.NewLogger(cfg.Environment)
	slog.SetDefault(logger)

	logger.Info("starting FaceTag API",
		slog.String("environment", cfg.Environment),
		slog.Int("port", cfg.Port),
		slog.String("store", cfg.StoreBackend),
		slog.String("embedding_provider", cfg.EmbeddingProvider),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	users, photos, closeStores, err := app.OpenStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStores()

	images, err := app.OpenImageStore(ctx, cfg)
	if err != nil {
		return err
	}

	source, err := face.NewEmbeddingSource(cfg)
	if err != nil {
		return fmt.Errorf("failed to create embedding source: %w", err)
	}
	defer func() { _ = source.Close() }()

	matcher, err := app.NewMatcher(cfg)
	if err != nil {
		return err
	}

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	pipelineMetrics := metrics.New(registry)

	// Services
	orchestrator := service.NewOrchestrator(photos, users, images, source, matcher, logger, app.OrchestratorConfig(cfg)).
		WithMetrics(pipelineMetrics)

	profileService := service.NewProfileService(users, images, source, logger, service.ProfileConfig{
		EmbeddingTimeout: cfg.EmbeddingTimeout,
		Dimension:        cfg.EmbeddingDimension,
		MaxUploadSize:    cfg.MaxUploadSize,
	})
	photoService := service.NewPhotoService(photos, images, orchestrator, logger, cfg.MaxUploadSize)

	jwtService := auth.NewJWTService(cfg.JWTSecret, "facetag", cfg.JWTTTL)
	userService := service.NewUserService(users, jwtService, logger)

	// Background work
	var wg sync.WaitGroup
	spawn := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	hub := ws.NewHub(logger)
	rematchWorker := worker.NewRematchWorker(orchestrator, photos, logger, cfg.RematchWorkers)
	reaper := worker.NewReaper(orchestrator, logger, cfg.ReaperInterval, cfg.StaleProcessingAfter)

	readyChecks := map[string]handler.Pinger{
		"users":  users,
		"photos": photos,
		"images": images,
	}

	// Events: hub and audit trail always, NATS when configured
	sinks := events.Multi{hub, audit.NewTrail(audit.NewSlogLogger(logger), cfg.EmbeddingProvider)}
	var consumer *events.Consumer
	if cfg.NATSURL != "" {
		publisher, err := events.NewPublisher(cfg.NATSURL, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to nats: %w", err)
		}
		defer publisher.Close()

		if err := publisher.EnsureStream(ctx); err != nil {
			return fmt.Errorf("failed to ensure stream: %w", err)
		}
		sinks = append(sinks, publisher)
		readyChecks["nats"] = pingFunc(func(context.Context) error { return publisher.Ping() })

		if cfg.AutoRematch {
			consumer, err = events.NewConsumer(cfg.NATSURL, logger)
			if err != nil {
				return fmt.Errorf("failed to create consumer: %w", err)
			}
			defer consumer.Close()
		}
	} else if cfg.AutoRematch {
		sinks = append(sinks, rematchWorker)
	}

	orchestrator.WithEvents(sinks)
	profileService.WithEvents(sinks)

	spawn(func() { hub.Run(ctx) })
	spawn(func() { reaper.Run(ctx) })
	if cfg.AutoRematch {
		spawn(func() { rematchWorker.Run(ctx) })
	}
	if consumer != nil {
		spawn(func() {
			err := consumer.ConsumeProfileUpdates(ctx, "facetag-rematch", rematchWorker.HandleProfileUpdated)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("profile consumer stopped", slog.Any("error", err))
			}
		})
	}

	// Setup router
	httpMetrics := metrics.NewHTTP(registry)
	router := api.NewRouter(logger, &api.Dependencies{
		Accounts:        userService,
		Profiles:        profileService,
		Groups:          photoService,
		Photos:          photoService,
		Tokens:          jwtService,
		Hub:             hub,
		ReadyChecks:     readyChecks,
		HTTPMetrics:     httpMetrics,
		Gatherer:        registry,
		MaxUploadSize:   cfg.MaxUploadSize,
		UploadRateLimit: cfg.UploadRateLimit,
		PublicHost:      fmt.Sprintf("localhost:%d", cfg.Port),
	})
	router.Setup()

	// Start server in goroutine
	errChan := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		logger.Info("server listening", slog.String("addr", addr))
		if err := router.Listen(addr); err != nil {
			errChan <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errChan:
		stop()
		wg.Wait()
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("shutting down server...")
	if err := router.Shutdown(); err != nil {
		logger.Error("shutdown error", slog.Any("error", err))
	}

	// Background loops stop with ctx; give them a bounded time to return
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		logger.Warn("background workers did not stop in time")
	}

	logger.Info("server stopped")
	return nil
}
