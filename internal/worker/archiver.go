// Package worker copies the call log into call history and keeps both the
// channel streams and the history table within their retention windows.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/clinic-queue/internal/channel"
	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/internal/repository"
	"github.com/jwalitptl/clinic-queue/pkg/metrics"
)

type ArchiverConfig struct {
	BatchSize       int
	PollInterval    time.Duration
	RetryAttempts   int
	RetryDelay      time.Duration
	CleanupInterval time.Duration
	// RetentionDays is how long call and announcement entries stay in the channel.
	RetentionDays int
	// HistoryDays is how long archived calls stay in call history; 0 keeps them.
	HistoryDays int
}

func (c ArchiverConfig) validate() error {
	var errs []error
	if c.BatchSize <= 0 {
		errs = append(errs, errors.New("batch size must be greater than 0"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("poll interval must be greater than 0"))
	}
	if c.RetryAttempts <= 0 {
		errs = append(errs, errors.New("retry attempts must be greater than 0"))
	}
	if c.RetryDelay < 0 {
		errs = append(errs, errors.New("retry delay must not be negative"))
	}
	if c.RetentionDays <= 0 {
		errs = append(errs, errors.New("retention days must be greater than 0"))
	}
	return errors.Join(errs...)
}

// Archiver follows the call log from the last archived entry. It is the only
// writer of call history, so one archiver runs per deployment.
type Archiver struct {
	ch      channel.Channel
	history repository.CallHistoryRepository
	config  ArchiverConfig
	metrics *metrics.Metrics
	logger  zerolog.Logger
	now     func() time.Time

	mu           sync.Mutex
	lastID       string
	lastArchived time.Time
	resumed      bool
}

func NewArchiver(
	ch channel.Channel,
	history repository.CallHistoryRepository,
	config ArchiverConfig,
	m *metrics.Metrics,
	logger zerolog.Logger,
) (*Archiver, error) {
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid archiver config: %w", err)
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = time.Hour
	}
	return &Archiver{
		ch:      ch,
		history: history,
		config:  config,
		metrics: m,
		logger:  logger.With().Str("component", "archiver").Logger(),
		now:     time.Now,
	}, nil
}

// Start archives on every poll and cleans up on every cleanup tick until ctx
// is done.
func (a *Archiver) Start(ctx context.Context) {
	poll := time.NewTicker(a.config.PollInterval)
	defer poll.Stop()
	cleanup := time.NewTicker(a.config.CleanupInterval)
	defer cleanup.Stop()

	a.logger.Info().
		Int("batch_size", a.config.BatchSize).
		Dur("poll_interval", a.config.PollInterval).
		Msg("starting call archiver")

	a.drain(ctx)
	for {
		select {
		case <-ctx.Done():
			a.logger.Info().Msg("shutting down call archiver")
			return
		case <-poll.C:
			a.drain(ctx)
		case <-cleanup.C:
			if err := a.Cleanup(ctx); err != nil {
				a.logger.Error().Err(err).Msg("retention cleanup failed")
			}
		}
	}
}

// drain archives batches until one comes back short.
func (a *Archiver) drain(ctx context.Context) {
	for ctx.Err() == nil {
		n, err := a.ArchiveOnce(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				a.logger.Error().Err(err).Msg("failed to archive calls")
			}
			return
		}
		if n < a.config.BatchSize {
			return
		}
	}
}

// ArchiveOnce copies the next batch of call events into history and returns
// how many it copied. The position only advances after the insert succeeds,
// so a failed batch is read again next time.
func (a *Archiver) ArchiveOnce(ctx context.Context) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	timer := prometheus.NewTimer(a.metrics.ArchiveLatency)
	defer timer.ObserveDuration()

	if !a.resumed {
		var last string
		err := retry(ctx, a.config.RetryAttempts, a.config.RetryDelay, func() error {
			var err error
			last, err = a.history.LastStreamID(ctx)
			return err
		})
		if err != nil {
			a.metrics.DatabaseOperations.WithLabelValues("last_stream_id", "error").Inc()
			a.metrics.ArchiveFailures.Inc()
			return 0, fmt.Errorf("failed to load archive position: %w", err)
		}
		a.metrics.DatabaseOperations.WithLabelValues("last_stream_id", "success").Inc()
		a.lastID = last
		a.resumed = true
		a.logger.Info().Str("after", last).Msg("resuming archive")
	}

	events, err := a.ch.CallsSince(ctx, a.lastID, a.config.BatchSize)
	if err != nil {
		a.metrics.ArchiveFailures.Inc()
		return 0, fmt.Errorf("failed to read call log: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	archivedAt := a.now().UTC()
	records := make([]model.CallRecord, 0, len(events))
	for _, e := range events {
		records = append(records, model.NewCallRecord(e, archivedAt))
	}

	var inserted int64
	err = retry(ctx, a.config.RetryAttempts, a.config.RetryDelay, func() error {
		var err error
		inserted, err = a.history.InsertBatch(ctx, records)
		return err
	})
	if err != nil {
		a.metrics.DatabaseOperations.WithLabelValues("insert_call_history", "error").Inc()
		a.metrics.ArchiveFailures.Inc()
		return 0, fmt.Errorf("failed to insert call history: %w", err)
	}
	a.metrics.DatabaseOperations.WithLabelValues("insert_call_history", "success").Inc()

	last := events[len(events)-1]
	a.lastID = last.ID
	a.lastArchived = model.TimeOf(last.Timestamp)
	a.metrics.CallsArchived.Add(float64(inserted))

	a.logger.Debug().
		Int("read", len(events)).
		Int64("inserted", inserted).
		Str("last_id", last.ID).
		Msg("archived call batch")
	return len(events), nil
}

// watermark is the time of the newest archived entry, zero before the first batch.
func (a *Archiver) watermark() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastArchived
}

func retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay * time.Duration(i+1)):
			}
		}
	}
	return err
}
