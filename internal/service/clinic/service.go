package clinic

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/clinic-queue/internal/channel"
	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/internal/repository"
	"github.com/jwalitptl/clinic-queue/internal/service"
	apperrors "github.com/jwalitptl/clinic-queue/pkg/errors"
	"github.com/jwalitptl/clinic-queue/pkg/security"
)

type ClinicServicer interface {
	CreateClinic(ctx context.Context, clinic *model.Clinic, password string) error
	GetClinic(ctx context.Context, id uuid.UUID) (*model.Clinic, error)
	GetClinicByNumber(ctx context.Context, number int) (*model.Clinic, error)
	UpdateClinic(ctx context.Context, clinic *model.Clinic, password string) error
	DeleteClinic(ctx context.Context, id uuid.UUID) error
	ListClinics(ctx context.Context) ([]*model.Clinic, error)
	ListScreenClinics(ctx context.Context, screenNumber int) ([]*model.Clinic, error)
	QueueStates(ctx context.Context) ([]model.ClinicState, error)
	QueueState(ctx context.Context, number int) (model.QueueState, error)
	ResetAll(ctx context.Context) ([]int, error)
}

type Config struct {
	CacheTTL        time.Duration
	CleanupInterval time.Duration
}

type Service struct {
	repo   repository.ClinicRepository
	ch     channel.Channel
	hasher security.PasswordHasher
	cache  *cache.Cache
	logger zerolog.Logger
}

var _ ClinicServicer = (*Service)(nil)

func NewService(repo repository.ClinicRepository, ch channel.Channel, hasher security.PasswordHasher, cfg Config, logger zerolog.Logger) *Service {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Minute
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}
	return &Service{
		repo:   repo,
		ch:     ch,
		hasher: hasher,
		cache:  cache.New(cfg.CacheTTL, cfg.CleanupInterval),
		logger: logger.With().Str("component", "clinic").Logger(),
	}
}

func cacheKey(number int) string {
	return "clinic:" + strconv.Itoa(number)
}

func (s *Service) CreateClinic(ctx context.Context, clinic *model.Clinic, password string) error {
	if err := validateClinic(clinic); err != nil {
		return err
	}
	if password == "" {
		return apperrors.BadRequest("password is required", nil)
	}

	hash, err := s.hasher.Hash(password)
	if errors.Is(err, security.ErrPasswordTooShort) {
		return apperrors.BadRequest(fmt.Sprintf("password must be at least %d characters", security.MinPasswordLen), err)
	}
	if err != nil {
		return fmt.Errorf("failed to hash clinic password: %w", err)
	}
	clinic.PasswordHash = hash

	if err := s.repo.Create(ctx, clinic); err != nil {
		return service.RepoError("clinic", "create", err)
	}

	s.logger.Info().Int("clinic", clinic.Number).Str("name", clinic.Name).Msg("clinic created")
	return nil
}

func (s *Service) GetClinic(ctx context.Context, id uuid.UUID) (*model.Clinic, error) {
	clinic, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, service.RepoError("clinic", "get", err)
	}
	return clinic, nil
}

// GetClinicByNumber is on the caller login path and the display's screen
// lookup, so hits are served from cache. Misses are not cached.
func (s *Service) GetClinicByNumber(ctx context.Context, number int) (*model.Clinic, error) {
	if v, ok := s.cache.Get(cacheKey(number)); ok {
		return v.(*model.Clinic), nil
	}

	clinic, err := s.repo.GetByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	s.cache.SetDefault(cacheKey(number), clinic)
	return clinic, nil
}

// UpdateClinic replaces the password too when password is not empty.
func (s *Service) UpdateClinic(ctx context.Context, clinic *model.Clinic, password string) error {
	if err := validateClinic(clinic); err != nil {
		return err
	}

	existing, err := s.repo.Get(ctx, clinic.ID)
	if err != nil {
		return service.RepoError("clinic", "get", err)
	}

	if err := s.repo.Update(ctx, clinic); err != nil {
		return service.RepoError("clinic", "update", err)
	}

	if password != "" {
		hash, err := s.hasher.Hash(password)
		if errors.Is(err, security.ErrPasswordTooShort) {
			return apperrors.BadRequest(fmt.Sprintf("password must be at least %d characters", security.MinPasswordLen), err)
		}
		if err != nil {
			return fmt.Errorf("failed to hash clinic password: %w", err)
		}
		if err := s.repo.UpdatePassword(ctx, clinic.ID, hash); err != nil {
			return service.RepoError("clinic", "update", err)
		}
	}

	s.cache.Delete(cacheKey(existing.Number))
	s.cache.Delete(cacheKey(clinic.Number))
	return nil
}

func (s *Service) DeleteClinic(ctx context.Context, id uuid.UUID) error {
	clinic, err := s.repo.Get(ctx, id)
	if err != nil {
		return service.RepoError("clinic", "get", err)
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return service.RepoError("clinic", "delete", err)
	}

	s.cache.Delete(cacheKey(clinic.Number))
	s.logger.Info().Int("clinic", clinic.Number).Msg("clinic deleted")
	return nil
}

func (s *Service) ListClinics(ctx context.Context) ([]*model.Clinic, error) {
	clinics, err := s.repo.List(ctx)
	if err != nil {
		return nil, service.RepoError("clinics", "list", err)
	}
	return clinics, nil
}

func (s *Service) ListScreenClinics(ctx context.Context, screenNumber int) ([]*model.Clinic, error) {
	clinics, err := s.repo.ListByScreen(ctx, screenNumber)
	if err != nil {
		return nil, service.RepoError("clinics", "list", err)
	}
	return clinics, nil
}

// QueueStates reads the live state of every clinic for the admin overview.
func (s *Service) QueueStates(ctx context.Context) ([]model.ClinicState, error) {
	clinics, err := s.ListClinics(ctx)
	if err != nil {
		return nil, err
	}

	states := make([]model.ClinicState, 0, len(clinics))
	for _, c := range clinics {
		st, err := s.ch.State(ctx, c.Number)
		if err != nil {
			return nil, apperrors.Unavailable("queue state unavailable", err)
		}
		states = append(states, model.ClinicState{ClinicNumber: c.Number, State: st})
	}
	return states, nil
}

// QueueState reads one clinic's live state. Unknown clinics are NotFound
// rather than the zero state a fresh channel key would give.
func (s *Service) QueueState(ctx context.Context, number int) (model.QueueState, error) {
	if _, err := s.GetClinicByNumber(ctx, number); err != nil {
		return model.QueueState{}, service.RepoError("clinic", "get", err)
	}
	st, err := s.ch.State(ctx, number)
	if err != nil {
		return model.QueueState{}, apperrors.Unavailable("queue state unavailable", err)
	}
	return st, nil
}

// ResetAll zeroes every clinic's counter in one batch and returns the clinic
// numbers it reset. Status is left alone.
func (s *Service) ResetAll(ctx context.Context) ([]int, error) {
	clinics, err := s.ListClinics(ctx)
	if err != nil {
		return nil, err
	}

	numbers := make([]int, 0, len(clinics))
	for _, c := range clinics {
		numbers = append(numbers, c.Number)
	}
	if len(numbers) == 0 {
		return numbers, nil
	}

	if err := s.ch.ResetAll(ctx, numbers); err != nil {
		return nil, apperrors.Unavailable("failed to reset queues", err)
	}
	s.logger.Info().Ints("clinics", numbers).Msg("all queues reset")
	return numbers, nil
}

func validateClinic(clinic *model.Clinic) error {
	if clinic.Number <= 0 {
		return apperrors.BadRequest("clinic number must be a positive number", nil)
	}
	if strings.TrimSpace(clinic.Name) == "" {
		return apperrors.BadRequest("clinic name is required", nil)
	}
	if clinic.ScreenNumber < 0 {
		return apperrors.BadRequest("screen number must not be negative", nil)
	}
	clinic.Name = strings.TrimSpace(clinic.Name)
	return nil
}
