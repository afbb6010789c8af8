package appointment

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/internal/repository"
	apperrors "github.com/jwalitptl/clinic-queue/pkg/errors"
	"github.com/jwalitptl/clinic-queue/pkg/logger"
)

type memRepo struct {
	items map[uuid.UUID]*model.Appointment
}

func newMemRepo() *memRepo {
	return &memRepo{items: map[uuid.UUID]*model.Appointment{}}
}

func (r *memRepo) Create(ctx context.Context, a *model.Appointment) error {
	a.Touch(time.Now())
	cp := *a
	r.items[a.ID] = &cp
	return nil
}

func (r *memRepo) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	a, ok := r.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *memRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status model.AppointmentStatus) error {
	a, ok := r.items[id]
	if !ok {
		return repository.ErrNotFound
	}
	a.Status = status
	return nil
}

func (r *memRepo) List(ctx context.Context, f *model.AppointmentFilters) ([]*model.Appointment, error) {
	var out []*model.Appointment
	for _, a := range r.items {
		if f.NationalID != "" && a.NationalID != f.NationalID {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (r *memRepo) HasOpen(ctx context.Context, nationalID, date string) (bool, error) {
	for _, a := range r.items {
		if a.NationalID == nationalID && a.Date == date && a.Status.Open() {
			return true, nil
		}
	}
	return false, nil
}

func (r *memRepo) SlotTaken(ctx context.Context, clinic int, date, slot string, shift model.Shift) (bool, error) {
	for _, a := range r.items {
		if a.ClinicNumber == clinic && a.Date == date && a.Time == slot && a.Shift == shift && a.Status.Open() {
			return true, nil
		}
	}
	return false, nil
}

func (r *memRepo) BookedSlots(ctx context.Context, clinic int, date string, shift model.Shift) ([]model.Slot, error) {
	return nil, nil
}

type fakeClinics struct{}

func (fakeClinics) GetClinicByNumber(ctx context.Context, number int) (*model.Clinic, error) {
	if number == 1 || number == 2 {
		return &model.Clinic{Number: number, Name: "Clinic"}, nil
	}
	return nil, repository.ErrNotFound
}

type fakeMailer struct {
	confirmations, cancellations int
}

func (m *fakeMailer) SendAppointmentConfirmation(ctx context.Context, apt *model.Appointment, clinicName string) error {
	m.confirmations++
	return nil
}

func (m *fakeMailer) SendAppointmentCancellation(ctx context.Context, apt *model.Appointment, clinicName string) error {
	m.cancellations++
	return nil
}

func (m *fakeMailer) SendCustom(ctx context.Context, to, subject, content string) error {
	return nil
}

var today = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func newTestService() (*Service, *memRepo, *fakeMailer) {
	repo := newMemRepo()
	mailer := &fakeMailer{}
	svc := NewService(repo, fakeClinics{}, mailer, logger.Nop())
	svc.now = func() time.Time { return today }
	return svc, repo, mailer
}

func booking() *model.Appointment {
	return &model.Appointment{
		PatientName:  "Layla Hassan",
		NationalID:   "29801011234567",
		Phone:        "01012345678",
		Email:        "layla@example.com",
		ClinicNumber: 1,
		Date:         "2026-03-02",
		Time:         "09:30",
		Shift:        model.ShiftMorning,
	}
}

func conflictCause(t *testing.T, err error, cause error) {
	t.Helper()
	appErr, ok := apperrors.As(err)
	require.True(t, ok, "expected AppError, got %v", err)
	assert.Equal(t, apperrors.ErrConflict, appErr.Code)
	assert.ErrorIs(t, err, cause)
}

func TestBookCreatesPendingAppointment(t *testing.T) {
	svc, repo, mailer := newTestService()

	apt := booking()
	require.NoError(t, svc.Book(context.Background(), apt))
	assert.NotEqual(t, uuid.Nil, apt.ID)
	assert.Equal(t, model.AppointmentStatusPending, apt.Status)
	assert.Len(t, repo.items, 1)
	assert.Equal(t, 1, mailer.confirmations)
}

func TestBookRejectsDuplicateBeforeCreating(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	require.NoError(t, svc.Book(ctx, booking()))

	second := booking()
	second.Time = "11:00"
	second.ClinicNumber = 2
	conflictCause(t, svc.Book(ctx, second), ErrDuplicate)
	assert.Len(t, repo.items, 1)

	// another day is fine
	third := booking()
	third.Date = "2026-03-03"
	require.NoError(t, svc.Book(ctx, third))
	assert.Len(t, repo.items, 2)
}

func TestBookAllowedAgainAfterCancel(t *testing.T) {
	svc, _, mailer := newTestService()
	ctx := context.Background()

	first := booking()
	require.NoError(t, svc.Book(ctx, first))
	_, err := svc.Cancel(ctx, first.ID, first.NationalID)
	require.NoError(t, err)
	assert.Equal(t, 1, mailer.cancellations)

	require.NoError(t, svc.Book(ctx, booking()))
}

func TestBookRejectsTakenSlot(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	require.NoError(t, svc.Book(ctx, booking()))

	other := booking()
	other.NationalID = "29901011234567"
	conflictCause(t, svc.Book(ctx, other), ErrSlotTaken)
}

func TestBookValidation(t *testing.T) {
	svc, _, _ := newTestService()

	tests := []struct {
		name   string
		mutate func(a *model.Appointment)
	}{
		{"missing name", func(a *model.Appointment) { a.PatientName = " " }},
		{"bad national id", func(a *model.Appointment) { a.NationalID = "12ab" }},
		{"bad phone", func(a *model.Appointment) { a.Phone = "call me" }},
		{"bad email", func(a *model.Appointment) { a.Email = "not-an-email" }},
		{"bad shift", func(a *model.Appointment) { a.Shift = "night" }},
		{"bad time", func(a *model.Appointment) { a.Time = "25:99" }},
		{"past date", func(a *model.Appointment) { a.Date = "2026-02-28" }},
		{"unknown clinic", func(a *model.Appointment) { a.ClinicNumber = 9 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apt := booking()
			tt.mutate(apt)
			err := svc.Book(context.Background(), apt)
			appErr, ok := apperrors.As(err)
			require.True(t, ok)
			assert.Equal(t, apperrors.ErrBadRequest, appErr.Code)
		})
	}
}

func TestCancelRequiresMatchingNationalID(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	apt := booking()
	require.NoError(t, svc.Book(ctx, apt))

	_, err := svc.Cancel(ctx, apt.ID, "11111111111111")
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrNotFound, appErr.Code)
}

func TestStatusTransitions(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	apt := booking()
	require.NoError(t, svc.Book(ctx, apt))

	updated, err := svc.UpdateStatus(ctx, apt.ID, model.AppointmentStatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusConfirmed, updated.Status)

	_, err = svc.UpdateStatus(ctx, apt.ID, model.AppointmentStatusPending)
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrConflict, appErr.Code)

	_, err = svc.UpdateStatus(ctx, apt.ID, model.AppointmentStatusCancelled)
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, apt.ID, model.AppointmentStatusConfirmed)
	assert.Error(t, err)
}
