// Package display holds what the headless display command needs around a
// viewer session: a renderer that logs what a screen would show and a
// screen directory read from the public API.
package display

import (
	"github.com/rs/zerolog"

	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/internal/viewer"
	"github.com/jwalitptl/clinic-queue/pkg/numerals"
)

// LogRenderer writes every render call as a structured log line.
type LogRenderer struct {
	logger zerolog.Logger
}

var _ viewer.Renderer = (*LogRenderer)(nil)

func NewLogRenderer(logger zerolog.Logger) *LogRenderer {
	return &LogRenderer{logger: logger.With().Str("component", "screen").Logger()}
}

func (r *LogRenderer) Phase(s viewer.State) {
	r.logger.Info().
		Str("phase", s.Phase.String()).
		Ints("clinics", s.Clinics).
		Interface("tickets", s.Tickets).
		Msg("viewer phase")
}

func (r *LogRenderer) Screen(view *model.ScreenView) {
	if view == nil {
		return
	}
	r.logger.Info().
		Int("screen", view.Screen.Number).
		Str("name", view.Screen.Name).
		Int("clinics", len(view.Clinics)).
		Int("doctors", len(view.Doctors)).
		Int("videos", len(view.Videos)).
		Msg("screen loaded")
}

func (r *LogRenderer) QueueState(clinic int, st model.QueueState, ticket *viewer.Ticket) {
	e := r.logger.Info().
		Int("clinic", clinic).
		Str("current", numerals.ToArabicIndic(st.Current)).
		Str("status", string(st.Status))
	if ticket != nil {
		e = e.Int("ticket", ticket.YourNumber).
			Int("waiting", ticket.WaitingCount).
			Int("progress", ticket.Progress).
			Int("estimated_minutes", ticket.EstimatedMinutes)
	}
	e.Msg("queue state")
}

func (r *LogRenderer) Highlight(clinic int, on bool) {
	r.logger.Debug().Int("clinic", clinic).Bool("on", on).Msg("highlight")
}

func (r *LogRenderer) Notice(ev *model.CallEvent) {
	if ev == nil {
		r.logger.Debug().Msg("notice hidden")
		return
	}
	e := r.logger.Info().
		Str("type", string(ev.Type)).
		Int("clinic", ev.ClinicNumber).
		Str("clinic_name", ev.ClinicName)
	if ev.ClientName != "" {
		e = e.Str("client", ev.ClientName)
	} else {
		e = e.Str("client", numerals.ToArabicIndic(ev.ClientNumber))
	}
	e.Msg("call")
}

func (r *LogRenderer) YourTurn(clinic int, ticket viewer.Ticket) {
	r.logger.Warn().Int("clinic", clinic).Int("ticket", ticket.YourNumber).Msg("your turn")
}

func (r *LogRenderer) Overlay(a *model.Announcement) {
	if a == nil {
		r.logger.Debug().Msg("overlay dismissed")
		return
	}
	r.logger.Warn().
		Str("type", string(a.Type)).
		Str("message", a.Message).
		Bool("audio", a.AudioData != "").
		Int("clinic", a.ClinicNumber).
		Msg("announcement")
}

func (r *LogRenderer) Doctor(d *model.Doctor) {
	if d == nil {
		return
	}
	r.logger.Info().Str("doctor", d.Name).Str("specialty", d.Specialty).Int("clinic", d.ClinicNumber).Msg("doctor")
}

func (r *LogRenderer) Video(v model.VideoControl) {
	r.logger.Info().Str("action", string(v.Action)).Msg("video")
}
