package caller

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/jwalitptl/clinic-queue/internal/channel"
	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/internal/repository"
	"github.com/jwalitptl/clinic-queue/pkg/metrics"
)

// Session holds one caller's local copy of the clinic state. Every action
// computes the next state from that copy and writes it whole; there is no
// compare-and-swap, so two sessions on the same clinic overwrite each other.
type Session struct {
	id      Identity
	ch      channel.Channel
	clinics ClinicDirectory
	metrics *metrics.Metrics
	logger  zerolog.Logger

	mu    sync.Mutex
	state model.QueueState
}

func (s *Session) Identity() Identity {
	return s.id
}

// State returns the local counter as last loaded or written.
func (s *Session) State() model.QueueState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Advance calls the next number. It is the only action blocked by a pause.
func (s *Session) Advance(ctx context.Context) (model.QueueState, *model.CallEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Status != model.QueueStatusActive {
		return s.state, nil, ErrPaused
	}

	next := s.state
	next.Current++
	return s.commitLocked(ctx, "advance", &next, s.event(model.CallTypeNormal, next.Current))
}

// Rewind steps back one number. At zero it does nothing; stepping back to
// zero only writes the state since there is nobody to announce.
func (s *Session) Rewind(ctx context.Context) (model.QueueState, *model.CallEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Current <= 0 {
		return s.state, nil, nil
	}
	next := s.state
	next.Current--
	var ev *model.CallEvent
	if next.Current > 0 {
		ev = s.event(model.CallTypeNormal, next.Current)
	}
	return s.commitLocked(ctx, "rewind", &next, ev)
}

// Repeat announces the current number again without touching the state.
func (s *Session) Repeat(ctx context.Context) (*model.CallEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Current <= 0 {
		return nil, invalid("current", "nobody has been called yet")
	}
	_, ev, err := s.commitLocked(ctx, "repeat", nil, s.event(model.CallTypeNormal, s.state.Current))
	return ev, err
}

// CallSpecific jumps the counter to n and announces it.
func (s *Session) CallSpecific(ctx context.Context, n int) (model.QueueState, *model.CallEvent, error) {
	if n <= 0 {
		return model.QueueState{}, nil, invalid("number", "must be a positive number")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state
	next.Current = n
	return s.commitLocked(ctx, "call_specific", &next, s.event(model.CallTypeSpecific, n))
}

func (s *Session) CallByName(ctx context.Context, name string) (*model.CallEvent, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalid("name", "is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ev := s.event(model.CallTypeByName, 0)
	ev.ClientName = name
	_, out, err := s.commitLocked(ctx, "call_by_name", nil, ev)
	return out, err
}

// Skip tells the displays the current client did not show up.
func (s *Session) Skip(ctx context.Context) (*model.CallEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ev, err := s.commitLocked(ctx, "skip", nil, s.event(model.CallTypeSkip, s.state.Current))
	return ev, err
}

// Transfer sends clientNumber to another clinic. The target's own counter is
// not touched.
func (s *Session) Transfer(ctx context.Context, clientNumber, targetClinic int) (*model.CallEvent, error) {
	if clientNumber <= 0 {
		return nil, invalid("clientNumber", "must be a positive number")
	}
	if targetClinic <= 0 {
		return nil, invalid("targetClinic", "must be a positive number")
	}
	if targetClinic == s.id.ClinicNumber {
		return nil, invalid("targetClinic", "must differ from the calling clinic")
	}

	target, err := s.clinics.GetClinicByNumber(ctx, targetClinic)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, invalid("targetClinic", "no such clinic")
	}
	if err != nil {
		return nil, &TransientWriteError{Op: "look up target clinic", Err: err}
	}
	if !target.Active {
		return nil, invalid("targetClinic", "no such clinic")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ev := s.event(model.CallTypeTransfer, clientNumber)
	ev.FromClinic = s.id.ClinicNumber
	ev.ToClinic = target.Number
	_, out, err := s.commitLocked(ctx, "transfer", nil, ev)
	return out, err
}

func (s *Session) Pause(ctx context.Context) (model.QueueState, error) {
	return s.setStatus(ctx, "pause", model.QueueStatusPaused)
}

func (s *Session) Resume(ctx context.Context) (model.QueueState, error) {
	return s.setStatus(ctx, "resume", model.QueueStatusActive)
}

func (s *Session) setStatus(ctx context.Context, op string, status model.QueueStatus) (model.QueueState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state
	next.Status = status
	state, _, err := s.commitLocked(ctx, op, &next, nil)
	return state, err
}

// Reset zeroes the counter and clears lastCalled. Status is kept.
func (s *Session) Reset(ctx context.Context) (model.QueueState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state
	next.Current = 0
	next.LastCalled = nil
	state, _, err := s.commitLocked(ctx, "reset", &next, nil)
	return state, err
}

func (s *Session) Emergency(ctx context.Context, message string) (model.Announcement, error) {
	return s.announce(ctx, model.AnnouncementEmergency, message)
}

func (s *Session) NotifyDoctor(ctx context.Context, message string) (model.Announcement, error) {
	return s.announce(ctx, model.AnnouncementDoctorNotification, message)
}

func (s *Session) announce(ctx context.Context, typ model.AnnouncementType, message string) (model.Announcement, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return model.Announcement{}, invalid("message", "is required")
	}

	a, err := s.ch.Announce(ctx, model.Announcement{
		Type:         typ,
		Message:      message,
		ClinicNumber: s.id.ClinicNumber,
		ClinicName:   s.id.ClinicName,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("type", string(typ)).Msg("announcement failed")
		return model.Announcement{}, &TransientWriteError{Op: "send announcement", Err: err}
	}
	if s.metrics != nil {
		s.metrics.AnnouncementsSent.WithLabelValues(string(typ)).Inc()
	}
	return a, nil
}

func (s *Session) event(typ model.CallType, number int) *model.CallEvent {
	return &model.CallEvent{
		ClientNumber: number,
		ClinicNumber: s.id.ClinicNumber,
		ClinicName:   s.id.ClinicName,
		Type:         typ,
	}
}

// commitLocked writes next and/or ev in one channel commit and, on success,
// makes the written state the new local copy. A failed write leaves the local
// copy as it was.
func (s *Session) commitLocked(ctx context.Context, op string, next *model.QueueState, ev *model.CallEvent) (model.QueueState, *model.CallEvent, error) {
	stored, err := s.ch.Commit(ctx, channel.Mutation{
		Clinic: s.id.ClinicNumber,
		State:  next,
		Event:  ev,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("op", op).Msg("queue write failed")
		if s.metrics != nil {
			s.metrics.ChannelWriteFailure.WithLabelValues(op).Inc()
		}
		return s.state, nil, &TransientWriteError{Op: strings.ReplaceAll(op, "_", " "), Err: err}
	}

	if next != nil {
		updated := *next
		if stored != nil {
			ts := stored.Timestamp
			updated.LastCalled = &ts
			updated.LastUpdated = ts
		} else if fresh, err := s.ch.State(ctx, s.id.ClinicNumber); err == nil {
			// picks up the lastUpdated stamp the channel assigned
			updated = fresh
		}
		s.state = updated
		if s.metrics != nil {
			s.metrics.StateWrites.WithLabelValues(op).Inc()
		}
	}
	if stored != nil {
		if s.metrics != nil {
			s.metrics.CallsCommitted.WithLabelValues(string(stored.Type)).Inc()
		}
		s.logger.Info().
			Str("op", op).
			Str("type", string(stored.Type)).
			Int("number", stored.ClientNumber).
			Str("event_id", stored.ID).
			Msg("call committed")
	}
	return s.state, stored, nil
}
