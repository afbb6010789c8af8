// Package broadcast sends center-wide announcements and video playlist
// commands on behalf of an administrator.
package broadcast

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/jwalitptl/clinic-queue/internal/channel"
	"github.com/jwalitptl/clinic-queue/internal/model"
	apperrors "github.com/jwalitptl/clinic-queue/pkg/errors"
	"github.com/jwalitptl/clinic-queue/pkg/metrics"
)

const audioDataPrefix = "data:audio/"

type Service struct {
	ch      channel.Channel
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

func NewService(ch channel.Channel, m *metrics.Metrics, logger zerolog.Logger) *Service {
	return &Service{
		ch:      ch,
		metrics: m,
		logger:  logger.With().Str("component", "broadcast").Logger(),
	}
}

// Announce appends a to the announcement stream. Recorded audio must be a
// base64 data URL.
func (s *Service) Announce(ctx context.Context, a model.Announcement) (model.Announcement, error) {
	a.Message = strings.TrimSpace(a.Message)
	if a.Type == model.AnnouncementAudio && a.AudioData != "" && !strings.HasPrefix(a.AudioData, audioDataPrefix) {
		return model.Announcement{}, apperrors.BadRequest("audioData must be an audio data URL", nil)
	}
	if err := a.Validate(); err != nil {
		return model.Announcement{}, apperrors.BadRequest(strings.ReplaceAll(err.Error(), "\n", ": "), err)
	}
	a.ID = ""
	a.Timestamp = 0

	stored, err := s.ch.Announce(ctx, a)
	if err != nil {
		s.logger.Error().Err(err).Str("type", string(a.Type)).Msg("announcement failed")
		if s.metrics != nil {
			s.metrics.ChannelWriteFailure.WithLabelValues("announce").Inc()
		}
		return model.Announcement{}, unavailable("announcement", err)
	}
	if s.metrics != nil {
		s.metrics.AnnouncementsSent.WithLabelValues(string(a.Type)).Inc()
	}
	s.logger.Info().Str("type", string(a.Type)).Str("id", stored.ID).Msg("announcement sent")
	return stored, nil
}

// Control forwards a playlist command to every display.
func (s *Service) Control(ctx context.Context, action model.VideoAction) (model.VideoControl, error) {
	if !action.Valid() {
		return model.VideoControl{}, apperrors.BadRequest("action must be one of play, pause, stop, next", nil)
	}
	v, err := s.ch.Control(ctx, model.VideoControl{Action: action})
	if err != nil {
		s.logger.Error().Err(err).Str("action", string(action)).Msg("video control failed")
		if s.metrics != nil {
			s.metrics.ChannelWriteFailure.WithLabelValues("video_control").Inc()
		}
		return model.VideoControl{}, unavailable("video control", err)
	}
	return v, nil
}

func unavailable(what string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return apperrors.Unavailable("could not send "+what+", try again", err)
}
