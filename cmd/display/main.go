package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jwalitptl/clinic-queue/internal/channel"
	channelRedis "github.com/jwalitptl/clinic-queue/internal/channel/redis"
	"github.com/jwalitptl/clinic-queue/internal/config"
	"github.com/jwalitptl/clinic-queue/internal/display"
	"github.com/jwalitptl/clinic-queue/internal/realtime"
	"github.com/jwalitptl/clinic-queue/internal/viewer"
	"github.com/jwalitptl/clinic-queue/pkg/logger"
	"github.com/jwalitptl/clinic-queue/pkg/metrics"
)

type options struct {
	configFile string
	apiURL     string
	redisURL   string
	keyPrefix  string
	screen     int
	clinics    []int
	tickets    map[string]int
	logLevel   string
	logFormat  string
	audioPath  string
	audioGap   time.Duration
	clipLength time.Duration
	backlog    int
	maxNumber  int
	maxClinic  int
	viewer     viewer.Config

	// noticeSet keeps an explicit --notice over the center's alertDuration.
	noticeSet bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{viewer: viewer.DefaultConfig()}

	cmd := &cobra.Command{
		Use:   "display",
		Short: "Headless waiting-room display",
		Long: "display follows one screen or a set of clinics and logs what a waiting-room\n" +
			"screen would show: queue numbers, calls, announcements and video commands.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.configFile != "" {
				if err := opts.applyConfig(cmd.Flags(), opts.configFile); err != nil {
					return err
				}
			}
			opts.noticeSet = cmd.Flags().Changed("notice")
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.configFile, "config", "", "shared config file; its viewer and redis sections become the defaults")
	f.StringVar(&opts.apiURL, "api", "http://localhost:8080", "API base URL")
	f.StringVar(&opts.redisURL, "redis", "", "read the channel from Redis directly instead of the realtime gateway")
	f.StringVar(&opts.keyPrefix, "key-prefix", "queue", "Redis key prefix")
	f.IntVar(&opts.screen, "screen", 0, "screen number to follow")
	f.IntSliceVar(&opts.clinics, "clinic", nil, "clinic numbers to follow (ignored with --screen)")
	f.StringToIntVar(&opts.tickets, "ticket", nil, "tickets held, as clinic=number")
	f.StringVar(&opts.logLevel, "log-level", "info", "log level")
	f.StringVar(&opts.logFormat, "log-format", "console", "log format (console or json)")
	f.StringVar(&opts.audioPath, "audio-path", "audio", "directory of announcement clips")
	f.DurationVar(&opts.audioGap, "audio-gap", viewer.DefaultAudioGap, "pause between announcements")
	f.DurationVar(&opts.clipLength, "clip-length", time.Second, "how long each clip is held")
	f.IntVar(&opts.backlog, "backlog", viewer.DefaultBacklog, "announcements allowed to wait")
	f.DurationVar(&opts.viewer.Highlight, "highlight", opts.viewer.Highlight, "how long a called clinic stays highlighted")
	f.DurationVar(&opts.viewer.Notice, "notice", opts.viewer.Notice, "how long the call bar stays up")
	f.DurationVar(&opts.viewer.DoctorRotation, "doctor-rotation", opts.viewer.DoctorRotation, "doctor card rotation interval")

	return cmd
}

// applyConfig fills every option the command line did not set from the
// shared config file.
func (o *options) applyConfig(flags *pflag.FlagSet, file string) error {
	cfg, err := config.Load(file)
	if err != nil {
		return err
	}
	v := cfg.Viewer
	set := func(name string, apply func()) {
		if !flags.Changed(name) {
			apply()
		}
	}
	set("log-level", func() { o.logLevel = cfg.Log.Level })
	set("log-format", func() { o.logFormat = cfg.Log.Format })
	set("key-prefix", func() { o.keyPrefix = cfg.Redis.KeyPrefix })
	set("audio-path", func() { o.audioPath = v.AudioPath })
	set("audio-gap", func() { o.audioGap = v.AudioGap })
	set("backlog", func() { o.backlog = v.AnnouncementBacklog })
	set("highlight", func() { o.viewer.Highlight = v.Highlight })
	set("notice", func() { o.viewer.Notice = v.Notice })
	set("doctor-rotation", func() { o.viewer.DoctorRotation = v.DoctorRotation })
	o.viewer.EmergencyOverlay = v.EmergencyOverlay
	o.viewer.TextOverlay = v.TextOverlay
	o.maxNumber = v.MaxNumberAsset
	o.maxClinic = v.MaxClinicAsset
	return nil
}

func openSource(ctx context.Context, opts *options, m *metrics.Metrics, log zerolog.Logger) (channel.Source, io.Closer, error) {
	if opts.redisURL != "" {
		ch, err := channelRedis.New(channelRedis.Config{URL: opts.redisURL, KeyPrefix: opts.keyPrefix}, log, m)
		if err != nil {
			return nil, nil, err
		}
		return ch, ch, nil
	}

	wsURL, err := realtime.WebSocketURL(opts.apiURL)
	if err != nil {
		return nil, nil, err
	}
	remote, err := realtime.Dial(ctx, wsURL, log)
	if err != nil {
		return nil, nil, err
	}
	return remote, remote, nil
}

func run(ctx context.Context, opts *options) error {
	log := logger.Component(logger.New(logger.Config{
		Level:  opts.logLevel,
		Format: opts.logFormat,
	}), "display")

	if opts.screen <= 0 && len(opts.clinics) == 0 {
		return fmt.Errorf("either --screen or --clinic is required")
	}

	m := metrics.NewMetrics("clinic_queue", "display", prometheus.NewRegistry())

	src, closer, err := openSource(ctx, opts, m, log)
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer closer.Close()

	seq := viewer.NewSequencer(
		viewer.LogPlayer{Logger: log, Duration: opts.clipLength},
		viewer.SequencerConfig{Backlog: opts.backlog, Gap: opts.audioGap},
		m, log,
	)
	go seq.Run(ctx)

	api := display.NewAPI(opts.apiURL)
	sess := viewer.NewSession(src, display.NewLogRenderer(log), viewer.Options{
		Config:    opts.viewer,
		Assets:    viewer.NewAssetResolver(opts.audioPath, opts.maxNumber, opts.maxClinic),
		Screens:   api,
		Sequencer: seq,
		Logger:    log,
	})

	if !opts.noticeSet {
		settings, err := display.ApplySettings(ctx, api, sess)
		if err != nil {
			log.Warn().Err(err).Dur("notice", sess.NoticeDuration()).Msg("center settings unavailable, keeping default call bar duration")
		} else {
			log.Info().Str("center", settings.CenterName).Dur("notice", sess.NoticeDuration()).Msg("center settings loaded")
		}
	}

	if opts.screen > 0 {
		err = sess.SelectScreen(ctx, opts.screen)
	} else {
		err = sess.Select(opts.clinics...)
	}
	if err != nil {
		return err
	}

	for clinic, number := range opts.tickets {
		n, err := strconv.Atoi(clinic)
		if err != nil {
			return fmt.Errorf("invalid ticket clinic %q", clinic)
		}
		if err := sess.SetTicket(n, number); err != nil {
			return err
		}
	}

	if err := sess.Subscribe(ctx); err != nil {
		return err
	}
	log.Info().Msg("display running")

	<-ctx.Done()
	sess.Clear()
	log.Info().Msg("display stopped")
	return nil
}
