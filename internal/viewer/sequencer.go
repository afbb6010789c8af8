package viewer

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jwalitptl/clinic-queue/pkg/metrics"
)

const (
	DefaultBacklog  = 5
	DefaultAudioGap = 500 * time.Millisecond
)

// AudioPlayer plays one asset and returns when playback has finished.
type AudioPlayer interface {
	Play(ctx context.Context, a Asset) error
}

// Job is one announcement. Done, if set, runs after the last stage finished
// or when the job is dropped from the backlog.
type Job struct {
	Key    string
	Stages []Asset
	Done   func(played bool)
}

type SequencerConfig struct {
	Backlog int
	Gap     time.Duration
}

// Sequencer plays jobs one at a time, stage after stage. Jobs waiting behind
// the one playing are held in a bounded FIFO; when it is full the oldest
// waiting job is dropped so the newest call is always announced.
type Sequencer struct {
	player  AudioPlayer
	backlog int
	gap     time.Duration
	metrics *metrics.Metrics
	logger  zerolog.Logger

	mu      sync.Mutex
	queue   []Job
	playing bool
	signal  chan struct{}
}

func NewSequencer(player AudioPlayer, cfg SequencerConfig, m *metrics.Metrics, logger zerolog.Logger) *Sequencer {
	if cfg.Backlog <= 0 {
		cfg.Backlog = DefaultBacklog
	}
	if cfg.Gap < 0 {
		cfg.Gap = 0
	}
	return &Sequencer{
		player:  player,
		backlog: cfg.Backlog,
		gap:     cfg.Gap,
		metrics: m,
		logger:  logger.With().Str("component", "sequencer").Logger(),
		signal:  make(chan struct{}, 1),
	}
}

// Enqueue adds j behind everything already waiting and reports whether an
// older job had to be dropped to make room.
func (s *Sequencer) Enqueue(j Job) bool {
	s.mu.Lock()
	var dropped *Job
	if len(s.queue) >= s.backlog {
		d := s.queue[0]
		dropped = &d
		s.queue = append(s.queue[:0], s.queue[1:]...)
	}
	s.queue = append(s.queue, j)
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}

	if dropped == nil {
		return false
	}
	s.logger.Warn().Str("key", dropped.Key).Str("kept", j.Key).Msg("announcement backlog full, dropped oldest")
	if s.metrics != nil {
		s.metrics.AnnouncementsDropped.Inc()
	}
	if dropped.Done != nil {
		dropped.Done(false)
	}
	return true
}

// Pending is the number of jobs waiting, not counting the one playing.
func (s *Sequencer) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Idle reports whether nothing is playing or waiting.
func (s *Sequencer) Idle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.playing && len(s.queue) == 0
}

// Flush drops every waiting job. The job playing, if any, finishes.
func (s *Sequencer) Flush() {
	s.mu.Lock()
	dropped := s.queue
	s.queue = nil
	s.mu.Unlock()

	for _, j := range dropped {
		if j.Done != nil {
			j.Done(false)
		}
	}
}

// Run plays queued jobs until ctx is done.
func (s *Sequencer) Run(ctx context.Context) {
	for {
		j, ok := s.next()
		if !ok {
			select {
			case <-s.signal:
				continue
			case <-ctx.Done():
				s.Flush()
				return
			}
		}

		played := s.play(ctx, j)
		s.mu.Lock()
		s.playing = false
		s.mu.Unlock()
		if j.Done != nil {
			j.Done(played)
		}
		if !played {
			s.Flush()
			return
		}
		if s.metrics != nil {
			s.metrics.AnnouncementsPlayed.Inc()
		}
		if !s.wait(ctx, s.gap) {
			s.Flush()
			return
		}
	}
}

func (s *Sequencer) next() (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return Job{}, false
	}
	j := s.queue[0]
	s.queue = append(s.queue[:0], s.queue[1:]...)
	s.playing = true
	return j, true
}

// play runs every stage of j in order. A stage that fails to play is logged and
// skipped; only cancellation stops the job.
func (s *Sequencer) play(ctx context.Context, j Job) bool {
	for i, a := range j.Stages {
		if i > 0 && !s.wait(ctx, s.gap) {
			return false
		}
		if err := s.player.Play(ctx, a); err != nil {
			if ctx.Err() != nil {
				return false
			}
			s.logger.Warn().Err(err).Str("key", j.Key).Str("asset", a.String()).Msg("stage failed to play")
		}
	}
	return ctx.Err() == nil
}

func (s *Sequencer) wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// LogPlayer "plays" an asset by logging it and holding for Duration. The
// display command uses it when no audio device is wired.
type LogPlayer struct {
	Logger   zerolog.Logger
	Duration time.Duration
}

func (p LogPlayer) Play(ctx context.Context, a Asset) error {
	p.Logger.Info().Str("asset", a.String()).Msg("playing")
	if p.Duration <= 0 {
		return nil
	}
	t := time.NewTimer(p.Duration)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
