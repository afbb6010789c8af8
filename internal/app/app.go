// Package app builds the dependencies the api and worker binaries share.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/clinic-queue/internal/channel"
	"github.com/jwalitptl/clinic-queue/internal/channel/memory"
	channelRedis "github.com/jwalitptl/clinic-queue/internal/channel/redis"
	"github.com/jwalitptl/clinic-queue/internal/config"
	"github.com/jwalitptl/clinic-queue/internal/repository/postgres"
	"github.com/jwalitptl/clinic-queue/internal/telemetry"
	"github.com/jwalitptl/clinic-queue/pkg/logger"
	"github.com/jwalitptl/clinic-queue/pkg/metrics"
)

// Deps owns every long-lived handle. Close releases them in reverse order.
type Deps struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	DB       *sqlx.DB
	Base     postgres.BaseRepository
	Channel  channel.Channel

	shutdownTracing telemetry.ShutdownFunc
}

// New loads nothing itself: cfg comes from config.Load. component names the
// binary in logs, metrics and traces.
func New(ctx context.Context, cfg *config.Config, component string) (*Deps, error) {
	log := logger.Component(logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	}), component)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics("clinic_queue", component, reg)

	d := &Deps{
		Config:   cfg,
		Logger:   log,
		Registry: reg,
		Metrics:  m,
	}

	tcfg := cfg.Telemetry
	tcfg.ServiceName = cfg.Telemetry.ServiceName + "-" + component
	shutdown, err := telemetry.Setup(ctx, tcfg)
	if err != nil {
		log.Warn().Err(err).Msg("tracing disabled")
	}
	d.shutdownTracing = shutdown

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		d.Close()
		return nil, err
	}
	d.DB = db
	d.Base = postgres.NewBaseRepository(db, m)

	if cfg.Database.Migrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			d.Close()
			return nil, err
		}
		log.Info().Msg("database schema applied")
	}

	ch, err := NewChannel(cfg, log, m)
	if err != nil {
		d.Close()
		return nil, err
	}
	d.Channel = ch

	return d, nil
}

// NewChannel opens the configured channel backend.
func NewChannel(cfg *config.Config, log zerolog.Logger, m *metrics.Metrics) (channel.Channel, error) {
	switch cfg.Channel.Backend {
	case config.BackendMemory:
		log.Warn().Msg("using the in-process channel; displays must connect through this api")
		return memory.New(), nil
	case config.BackendRedis:
		ch, err := channelRedis.New(channelRedis.Config{
			URL:          cfg.Redis.URL,
			MaxRetries:   cfg.Redis.MaxRetries,
			RetryBackoff: cfg.Redis.RetryBackoff,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			KeyPrefix:    cfg.Redis.KeyPrefix,
			StreamMaxLen: cfg.Channel.StreamMaxLen,
			BlockTimeout: cfg.Channel.BlockTimeout,
		}, log, m)
		if err != nil {
			return nil, err
		}
		return ch, nil
	default:
		return nil, fmt.Errorf("unknown channel backend %q", cfg.Channel.Backend)
	}
}

func (d *Deps) Close() error {
	var errs []error
	if d.Channel != nil {
		errs = append(errs, d.Channel.Close())
	}
	if d.DB != nil {
		errs = append(errs, d.DB.Close())
	}
	if d.shutdownTracing != nil {
		errs = append(errs, d.shutdownTracing(context.Background()))
	}
	return errors.Join(errs...)
}
