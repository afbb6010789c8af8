package appointment

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/clinic-queue/internal/email"
	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/internal/repository"
	"github.com/jwalitptl/clinic-queue/internal/service"
	apperrors "github.com/jwalitptl/clinic-queue/pkg/errors"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"

	MaxAdvanceBooking = 90 * 24 * time.Hour
)

var (
	ErrDuplicate = errors.New("an open appointment already exists for this national id on this date")
	ErrSlotTaken = errors.New("this time slot is already booked")

	nationalIDPattern = regexp.MustCompile(`^[0-9]{10,14}$`)
	phonePattern      = regexp.MustCompile(`^\+?[0-9]{8,15}$`)
)

// ClinicLookup resolves the clinic an appointment is booked at.
type ClinicLookup interface {
	GetClinicByNumber(ctx context.Context, number int) (*model.Clinic, error)
}

type Service struct {
	repo    repository.AppointmentRepository
	clinics ClinicLookup
	mailer  email.Service
	logger  zerolog.Logger
	now     func() time.Time
}

func NewService(repo repository.AppointmentRepository, clinics ClinicLookup, mailer email.Service, logger zerolog.Logger) *Service {
	return &Service{
		repo:    repo,
		clinics: clinics,
		mailer:  mailer,
		logger:  logger.With().Str("component", "appointment").Logger(),
		now:     time.Now,
	}
}

// Book creates a pending appointment. A patient may hold one open appointment
// per date, and a clinic slot (date, time, shift) holds one open appointment.
func (s *Service) Book(ctx context.Context, apt *model.Appointment) error {
	if err := s.validateAppointment(apt); err != nil {
		return err
	}

	clinic, err := s.clinics.GetClinicByNumber(ctx, apt.ClinicNumber)
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.BadRequest(fmt.Sprintf("clinic %d does not exist", apt.ClinicNumber), err)
	}
	if err != nil {
		return fmt.Errorf("failed to look up clinic: %w", err)
	}

	open, err := s.repo.HasOpen(ctx, apt.NationalID, apt.Date)
	if err != nil {
		return fmt.Errorf("failed to check existing appointments: %w", err)
	}
	if open {
		return apperrors.Conflict(ErrDuplicate.Error(), ErrDuplicate)
	}

	taken, err := s.repo.SlotTaken(ctx, apt.ClinicNumber, apt.Date, apt.Time, apt.Shift)
	if err != nil {
		return fmt.Errorf("failed to check slot: %w", err)
	}
	if taken {
		return apperrors.Conflict(ErrSlotTaken.Error(), ErrSlotTaken)
	}

	apt.ID = uuid.Nil
	apt.Status = model.AppointmentStatusPending
	if err := s.repo.Create(ctx, apt); err != nil {
		// lost a race for the slot against the partial unique index
		if errors.Is(err, repository.ErrConflict) {
			return apperrors.Conflict(ErrSlotTaken.Error(), ErrSlotTaken)
		}
		return fmt.Errorf("failed to create appointment: %w", err)
	}

	s.logger.Info().
		Str("appointment_id", apt.ID.String()).
		Int("clinic", apt.ClinicNumber).
		Str("date", apt.Date).
		Str("time", apt.Time).
		Msg("appointment booked")

	if err := s.mailer.SendAppointmentConfirmation(ctx, apt, clinic.Name); err != nil {
		s.logger.Warn().Err(err).Str("appointment_id", apt.ID.String()).Msg("confirmation email failed")
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	apt, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, service.RepoError("appointment", "get", err)
	}
	return apt, nil
}

// Lookup lists a patient's appointments by national id.
func (s *Service) Lookup(ctx context.Context, nationalID string) ([]*model.Appointment, error) {
	nationalID = strings.TrimSpace(nationalID)
	if !nationalIDPattern.MatchString(nationalID) {
		return nil, apperrors.BadRequest("invalid national id", nil)
	}
	apts, err := s.repo.List(ctx, &model.AppointmentFilters{NationalID: nationalID})
	if err != nil {
		return nil, service.RepoError("appointments", "list", err)
	}
	return apts, nil
}

// Cancel lets a patient cancel their own appointment; nationalID must match.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, nationalID string) (*model.Appointment, error) {
	apt, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, service.RepoError("appointment", "get", err)
	}
	if apt.NationalID != strings.TrimSpace(nationalID) {
		// same answer as a missing record
		return nil, apperrors.NotFound("appointment", nil)
	}
	return s.transition(ctx, apt, model.AppointmentStatusCancelled)
}

func (s *Service) List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error) {
	if filters != nil && filters.Date != "" {
		if _, err := time.Parse(DateLayout, filters.Date); err != nil {
			return nil, apperrors.BadRequest("date must be YYYY-MM-DD", err)
		}
	}
	apts, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, service.RepoError("appointments", "list", err)
	}
	return apts, nil
}

func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status model.AppointmentStatus) (*model.Appointment, error) {
	apt, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, service.RepoError("appointment", "get", err)
	}
	return s.transition(ctx, apt, status)
}

var transitions = map[model.AppointmentStatus][]model.AppointmentStatus{
	model.AppointmentStatusPending:   {model.AppointmentStatusConfirmed, model.AppointmentStatusCancelled},
	model.AppointmentStatusConfirmed: {model.AppointmentStatusCancelled},
}

func canTransition(from, to model.AppointmentStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (s *Service) transition(ctx context.Context, apt *model.Appointment, to model.AppointmentStatus) (*model.Appointment, error) {
	if !canTransition(apt.Status, to) {
		return nil, apperrors.Conflict(fmt.Sprintf("cannot change appointment from %s to %s", apt.Status, to), nil)
	}
	if err := s.repo.UpdateStatus(ctx, apt.ID, to); err != nil {
		return nil, service.RepoError("appointment", "update", err)
	}
	apt.Status = to
	apt.UpdatedAt = s.now()

	if to == model.AppointmentStatusCancelled {
		clinicName := fmt.Sprintf("%d", apt.ClinicNumber)
		if c, err := s.clinics.GetClinicByNumber(ctx, apt.ClinicNumber); err == nil {
			clinicName = c.Name
		}
		if err := s.mailer.SendAppointmentCancellation(ctx, apt, clinicName); err != nil {
			s.logger.Warn().Err(err).Str("appointment_id", apt.ID.String()).Msg("cancellation email failed")
		}
	}
	return apt, nil
}

// BookedSlots lists the times already held on a clinic's date and shift.
func (s *Service) BookedSlots(ctx context.Context, clinicNumber int, date string, shift model.Shift) ([]model.Slot, error) {
	if clinicNumber <= 0 {
		return nil, apperrors.BadRequest("clinic is required", nil)
	}
	if _, err := time.Parse(DateLayout, date); err != nil {
		return nil, apperrors.BadRequest("date must be YYYY-MM-DD", err)
	}
	if shift != model.ShiftMorning && shift != model.ShiftEvening {
		return nil, apperrors.BadRequest("shift must be morning or evening", nil)
	}
	slots, err := s.repo.BookedSlots(ctx, clinicNumber, date, shift)
	if err != nil {
		return nil, service.RepoError("slots", "list", err)
	}
	if slots == nil {
		slots = []model.Slot{}
	}
	return slots, nil
}

func (s *Service) validateAppointment(apt *model.Appointment) error {
	apt.PatientName = strings.TrimSpace(apt.PatientName)
	apt.NationalID = strings.TrimSpace(apt.NationalID)
	apt.Phone = strings.TrimSpace(apt.Phone)
	apt.Email = strings.TrimSpace(apt.Email)

	if apt.PatientName == "" {
		return apperrors.BadRequest("patient name is required", nil)
	}
	if !nationalIDPattern.MatchString(apt.NationalID) {
		return apperrors.BadRequest("invalid national id", nil)
	}
	if !phonePattern.MatchString(apt.Phone) {
		return apperrors.BadRequest("invalid phone number", nil)
	}
	if apt.Email != "" {
		if _, err := mail.ParseAddress(apt.Email); err != nil {
			return apperrors.BadRequest("invalid email address", err)
		}
	}
	if apt.ClinicNumber <= 0 {
		return apperrors.BadRequest("clinic is required", nil)
	}
	if apt.Shift != model.ShiftMorning && apt.Shift != model.ShiftEvening {
		return apperrors.BadRequest("shift must be morning or evening", nil)
	}
	if _, err := time.Parse(TimeLayout, apt.Time); err != nil {
		return apperrors.BadRequest("time must be HH:MM", err)
	}

	now := s.now()
	day, err := time.ParseInLocation(DateLayout, apt.Date, now.Location())
	if err != nil {
		return apperrors.BadRequest("date must be YYYY-MM-DD", err)
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if day.Before(today) {
		return apperrors.BadRequest("appointment date is in the past", nil)
	}
	if day.Sub(today) > MaxAdvanceBooking {
		return apperrors.BadRequest("appointment date is too far ahead", nil)
	}
	return nil
}
