package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/clinic-queue/internal/app"
	"github.com/jwalitptl/clinic-queue/internal/config"
	"github.com/jwalitptl/clinic-queue/internal/handler/health"
	prometheusHandler "github.com/jwalitptl/clinic-queue/internal/handler/prometheus"
	"github.com/jwalitptl/clinic-queue/internal/middleware"
	"github.com/jwalitptl/clinic-queue/internal/repository/postgres"
	"github.com/jwalitptl/clinic-queue/internal/worker"
)

func setupHealthCheck(deps *app.Deps, port int, logger zerolog.Logger) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(middleware.Recovery(logger))

	health.NewHandler(map[string]health.Checker{
		"database": health.CheckFunc(deps.DB.PingContext),
		"channel":  deps.Channel,
	}).RegisterRoutes(engine)
	prometheusHandler.New(deps.Registry, prometheus.Gatherers{deps.Registry}).RegisterRoutes(engine)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("health check server failed")
			os.Exit(1)
		}
	}()
	return srv
}

func main() {
	cfg, err := config.Load(os.Getenv("QUEUE_CONFIG_FILE"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	deps, err := app.New(ctx, cfg, "worker")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize dependencies")
	}
	defer deps.Close()
	logger := deps.Logger

	if cfg.Channel.Backend == config.BackendMemory {
		logger.Warn().Msg("the in-process channel is private to this worker; nothing will be archived")
	}

	archiver, err := worker.NewArchiver(
		deps.Channel,
		postgres.NewCallHistoryRepository(deps.Base),
		worker.ArchiverConfig{
			BatchSize:     cfg.Worker.BatchSize,
			PollInterval:  cfg.Worker.ArchiveInterval,
			RetryAttempts: cfg.Worker.RetryAttempts,
			RetryDelay:    cfg.Worker.RetryDelay,
			RetentionDays: cfg.Worker.RetentionDays,
			HistoryDays:   cfg.Worker.HistoryDays,
		},
		deps.Metrics,
		logger,
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create archiver")
	}

	srv := setupHealthCheck(deps, cfg.Worker.HealthPort, logger)

	archiver.Start(ctx)

	shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("health check server forced to shutdown")
	}
	logger.Info().Msg("worker exited")
}
