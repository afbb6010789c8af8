package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/clinic-queue/internal/app"
	"github.com/jwalitptl/clinic-queue/internal/config"
	"github.com/jwalitptl/clinic-queue/internal/email"
	appointmentHandler "github.com/jwalitptl/clinic-queue/internal/handler/appointment"
	authHandler "github.com/jwalitptl/clinic-queue/internal/handler/auth"
	broadcastHandler "github.com/jwalitptl/clinic-queue/internal/handler/broadcast"
	clinicHandler "github.com/jwalitptl/clinic-queue/internal/handler/clinic"
	"github.com/jwalitptl/clinic-queue/internal/handler/control"
	directoryHandler "github.com/jwalitptl/clinic-queue/internal/handler/directory"
	"github.com/jwalitptl/clinic-queue/internal/handler/health"
	prometheusHandler "github.com/jwalitptl/clinic-queue/internal/handler/prometheus"
	realtimeHandler "github.com/jwalitptl/clinic-queue/internal/handler/realtime"
	statsHandler "github.com/jwalitptl/clinic-queue/internal/handler/stats"
	"github.com/jwalitptl/clinic-queue/internal/middleware"
	"github.com/jwalitptl/clinic-queue/internal/realtime"
	"github.com/jwalitptl/clinic-queue/internal/repository/postgres"
	"github.com/jwalitptl/clinic-queue/internal/router"
	appointmentService "github.com/jwalitptl/clinic-queue/internal/service/appointment"
	broadcastService "github.com/jwalitptl/clinic-queue/internal/service/broadcast"
	"github.com/jwalitptl/clinic-queue/internal/service/caller"
	clinicService "github.com/jwalitptl/clinic-queue/internal/service/clinic"
	directoryService "github.com/jwalitptl/clinic-queue/internal/service/directory"
	statsService "github.com/jwalitptl/clinic-queue/internal/service/stats"
	"github.com/jwalitptl/clinic-queue/pkg/auth"
	"github.com/jwalitptl/clinic-queue/pkg/security"
)

func main() {
	cfg, err := config.Load(os.Getenv("QUEUE_CONFIG_FILE"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := app.New(ctx, cfg, "api")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize dependencies")
	}
	defer deps.Close()
	logger := deps.Logger

	// Repositories
	base := deps.Base
	clinicRepo := postgres.NewClinicRepository(base)
	historyRepo := postgres.NewCallHistoryRepository(base)

	// Services
	hasher := security.NewBcryptHasher(cfg.Security.BcryptCost)
	tokens := auth.NewTokenManager(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.Expiry())
	mailer := email.NewService(cfg.SMTP, logger)

	clinicSvc := clinicService.NewService(clinicRepo, deps.Channel, hasher, clinicService.Config{
		CacheTTL:        cfg.Cache.ClinicTTL,
		CleanupInterval: cfg.Cache.CleanupInterval,
	}, logger)
	callerSvc := caller.NewService(clinicSvc, deps.Channel, hasher, deps.Metrics, logger)
	directorySvc := directoryService.NewService(directoryService.Repos{
		Doctors:    postgres.NewDoctorRepository(base),
		Screens:    postgres.NewScreenRepository(base),
		Videos:     postgres.NewVideoLinkRepository(base),
		Settings:   postgres.NewSettingsRepository(base),
		Complaints: postgres.NewComplaintRepository(base),
	}, clinicSvc, logger)
	appointmentSvc := appointmentService.NewService(postgres.NewAppointmentRepository(base), clinicSvc, mailer, logger)
	broadcastSvc := broadcastService.NewService(deps.Channel, deps.Metrics, logger)
	statsSvc := statsService.NewService(historyRepo, clinicSvc, logger)

	hub := realtime.NewHub(deps.Channel, realtime.Config{
		AllowedOrigins: cfg.Security.AllowedOrigins,
	}, deps.Metrics, logger)
	go func() {
		if err := hub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("realtime hub stopped")
			stop()
		}
	}()

	// Handlers
	gin.SetMode(gin.ReleaseMode)
	handlers := router.Handlers{
		Auth:        authHandler.NewHandler(callerSvc, tokens, hasher, cfg.Admin, logger),
		Control:     control.NewHandler(callerSvc),
		Clinic:      clinicHandler.NewHandler(clinicSvc),
		Directory:   directoryHandler.NewHandler(directorySvc),
		Appointment: appointmentHandler.NewHandler(appointmentSvc),
		Broadcast:   broadcastHandler.NewHandler(broadcastSvc),
		Stats:       statsHandler.NewHandler(statsSvc),
		Realtime:    realtimeHandler.NewHandler(hub, logger),
		Health: health.NewHandler(map[string]health.Checker{
			"database": health.CheckFunc(deps.DB.PingContext),
			"channel":  deps.Channel,
		}),
		Metrics: prometheusHandler.New(deps.Registry, prometheus.Gatherers{deps.Registry}),
	}

	sizeLimit := middleware.DefaultSizeLimitConfig()
	if cfg.Security.MaxBodyBytes > 0 {
		sizeLimit.MaxBodySize = cfg.Security.MaxBodyBytes
	}

	r := router.NewRouter(middleware.NewAuthMiddleware(tokens), handlers, router.RouterConfig{
		ServiceName:      cfg.Telemetry.ServiceName,
		RequestTimeout:   cfg.Server.RequestTimeout,
		CORS:             middleware.DefaultCORSConfig(cfg.Security.AllowedOrigins),
		Security:         middleware.DefaultSecurityConfig(),
		SizeLimit:        sizeLimit,
		RateLimitEnabled: cfg.RateLimit.Enabled,
		RateLimit:        rate.Limit(cfg.RateLimit.RequestsPerSecond),
		RateBurst:        cfg.RateLimit.Burst,
		LoginPerMinute:   cfg.RateLimit.LoginPerMinute,
	}, logger)
	r.Setup()

	srv := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        r.Engine(),
		ReadTimeout:    cfg.Server.ReadTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Str("channel", cfg.Channel.Backend).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server exited properly")
}
