package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-queue/internal/model"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrConflict is a unique constraint violation.
	ErrConflict = errors.New("record already exists")
)

// All repository interfaces in one file
type (
	ClinicRepository interface {
		Create(ctx context.Context, clinic *model.Clinic) error
		Get(ctx context.Context, id uuid.UUID) (*model.Clinic, error)
		GetByNumber(ctx context.Context, number int) (*model.Clinic, error)
		Update(ctx context.Context, clinic *model.Clinic) error
		UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error
		Delete(ctx context.Context, id uuid.UUID) error
		List(ctx context.Context) ([]*model.Clinic, error)
		ListByScreen(ctx context.Context, screenNumber int) ([]*model.Clinic, error)
	}

	DoctorRepository interface {
		Create(ctx context.Context, doctor *model.Doctor) error
		Get(ctx context.Context, id uuid.UUID) (*model.Doctor, error)
		Update(ctx context.Context, doctor *model.Doctor) error
		Delete(ctx context.Context, id uuid.UUID) error
		// List returns every doctor when clinicNumbers is empty.
		List(ctx context.Context, clinicNumbers []int) ([]*model.Doctor, error)
	}

	ScreenRepository interface {
		Create(ctx context.Context, screen *model.Screen) error
		Get(ctx context.Context, id uuid.UUID) (*model.Screen, error)
		GetByNumber(ctx context.Context, number int) (*model.Screen, error)
		Update(ctx context.Context, screen *model.Screen) error
		Delete(ctx context.Context, id uuid.UUID) error
		List(ctx context.Context) ([]*model.Screen, error)
	}

	VideoLinkRepository interface {
		Create(ctx context.Context, link *model.VideoLink) error
		Get(ctx context.Context, id uuid.UUID) (*model.VideoLink, error)
		Update(ctx context.Context, link *model.VideoLink) error
		Delete(ctx context.Context, id uuid.UUID) error
		List(ctx context.Context, activeOnly bool) ([]*model.VideoLink, error)
	}

	SettingsRepository interface {
		Get(ctx context.Context, key string) (*model.Settings, error)
		Upsert(ctx context.Context, key string, settings *model.Settings) error
	}

	ComplaintRepository interface {
		Create(ctx context.Context, complaint *model.Complaint) error
		List(ctx context.Context, page model.Pagination) ([]*model.Complaint, int, error)
		Delete(ctx context.Context, id uuid.UUID) error
	}

	AppointmentRepository interface {
		Create(ctx context.Context, appointment *model.Appointment) error
		Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
		UpdateStatus(ctx context.Context, id uuid.UUID, status model.AppointmentStatus) error
		List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error)
		// HasOpen reports a pending or confirmed appointment for nationalID on date.
		HasOpen(ctx context.Context, nationalID, date string) (bool, error)
		SlotTaken(ctx context.Context, clinicNumber int, date, slot string, shift model.Shift) (bool, error)
		BookedSlots(ctx context.Context, clinicNumber int, date string, shift model.Shift) ([]model.Slot, error)
	}

	CallHistoryRepository interface {
		// InsertBatch stores records, skipping stream ids already archived.
		InsertBatch(ctx context.Context, records []model.CallRecord) (int64, error)
		LastStreamID(ctx context.Context) (string, error)
		DailyStats(ctx context.Context, day time.Time) ([]model.ClinicCallStats, error)
		DeleteBefore(ctx context.Context, before time.Time) (int64, error)
	}
)
