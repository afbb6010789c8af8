// Package caller implements the control panel: a clinic logs in and drives its
// own queue counter, appending call events for the displays to announce.
package caller

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/jwalitptl/clinic-queue/internal/channel"
	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/internal/repository"
	"github.com/jwalitptl/clinic-queue/pkg/metrics"
	"github.com/jwalitptl/clinic-queue/pkg/security"
)

// ClinicDirectory resolves clinics by their caller-facing number.
type ClinicDirectory interface {
	GetClinicByNumber(ctx context.Context, number int) (*model.Clinic, error)
}

// Identity is what a successful login binds the session to.
type Identity struct {
	ClinicNumber int    `json:"clinicNumber"`
	ClinicName   string `json:"clinicName"`
}

type Servicer interface {
	Authenticate(ctx context.Context, number int, password string) (*Identity, error)
	Session(ctx context.Context, id Identity) (*Session, error)
	Restore(ctx context.Context, number int) (*Session, error)
}

type Service struct {
	clinics ClinicDirectory
	ch      channel.Channel
	hasher  security.PasswordHasher
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

func NewService(clinics ClinicDirectory, ch channel.Channel, hasher security.PasswordHasher, m *metrics.Metrics, logger zerolog.Logger) *Service {
	return &Service{
		clinics: clinics,
		ch:      ch,
		hasher:  hasher,
		metrics: m,
		logger:  logger.With().Str("component", "caller").Logger(),
	}
}

func (s *Service) Authenticate(ctx context.Context, number int, password string) (*Identity, error) {
	if number <= 0 {
		return nil, invalid("clinicNumber", "must be a positive number")
	}
	if password == "" {
		return nil, invalid("password", "is required")
	}

	clinic, err := s.clinics.GetClinicByNumber(ctx, number)
	if errors.Is(err, repository.ErrNotFound) {
		s.logger.Warn().Int("clinic", number).Msg("login for unknown clinic")
		return nil, fmt.Errorf("%w: %w", ErrAuthFailed, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up clinic: %w", err)
	}
	if !clinic.Active {
		s.logger.Warn().Int("clinic", number).Msg("login for inactive clinic")
		return nil, fmt.Errorf("%w: %w", ErrAuthFailed, ErrNotFound)
	}

	if err := s.hasher.Compare(clinic.PasswordHash, password); err != nil {
		s.logger.Warn().Int("clinic", number).Msg("login with wrong password")
		return nil, fmt.Errorf("%w: %w", ErrAuthFailed, ErrInvalidCredential)
	}

	return &Identity{ClinicNumber: clinic.Number, ClinicName: clinic.Name}, nil
}

// Session loads the clinic's current state as the session's local counter.
func (s *Service) Session(ctx context.Context, id Identity) (*Session, error) {
	if id.ClinicNumber <= 0 {
		return nil, invalid("clinicNumber", "must be a positive number")
	}
	state, err := s.ch.State(ctx, id.ClinicNumber)
	if err != nil {
		return nil, &TransientWriteError{Op: "load queue state", Err: err}
	}
	return &Session{
		id:      id,
		state:   state,
		ch:      s.ch,
		clinics: s.clinics,
		metrics: s.metrics,
		logger:  s.logger.With().Int("clinic", id.ClinicNumber).Logger(),
	}, nil
}

// Restore opens a session for a clinic that already holds a caller token. The
// clinic is looked up again so a deactivated clinic loses access at once.
func (s *Service) Restore(ctx context.Context, number int) (*Session, error) {
	clinic, err := s.clinics.GetClinicByNumber(ctx, number)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %w", ErrAuthFailed, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up clinic: %w", err)
	}
	if !clinic.Active {
		return nil, fmt.Errorf("%w: %w", ErrAuthFailed, ErrNotFound)
	}
	return s.Session(ctx, Identity{ClinicNumber: clinic.Number, ClinicName: clinic.Name})
}
