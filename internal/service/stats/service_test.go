package stats

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-queue/internal/model"
	apperrors "github.com/jwalitptl/clinic-queue/pkg/errors"
	"github.com/jwalitptl/clinic-queue/pkg/logger"
)

type fakeHistory struct {
	day   time.Time
	stats []model.ClinicCallStats
	err   error
}

func (f *fakeHistory) InsertBatch(ctx context.Context, records []model.CallRecord) (int64, error) {
	return 0, nil
}

func (f *fakeHistory) LastStreamID(ctx context.Context) (string, error) { return "", nil }

func (f *fakeHistory) DailyStats(ctx context.Context, day time.Time) ([]model.ClinicCallStats, error) {
	f.day = day
	return f.stats, f.err
}

func (f *fakeHistory) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

type fakeClinics struct {
	clinics []*model.Clinic
	err     error
}

func (f fakeClinics) ListClinics(ctx context.Context) ([]*model.Clinic, error) {
	return f.clinics, f.err
}

func TestDailyGroupsByClinic(t *testing.T) {
	history := &fakeHistory{stats: []model.ClinicCallStats{
		{ClinicNumber: 1, Type: model.CallTypeNormal, Total: 10, LastClient: 10},
		{ClinicNumber: 1, Type: model.CallTypeSkip, Total: 2, LastClient: 7},
		{ClinicNumber: 3, Type: model.CallTypeTransfer, Total: 1, LastClient: 4},
	}}
	clinics := fakeClinics{clinics: []*model.Clinic{
		{Number: 1, Name: "Dental"},
		{Number: 2, Name: "Eyes"},
	}}
	svc := NewService(history, clinics, logger.Nop())

	report, err := svc.Daily(context.Background(), "2026-03-01")
	require.NoError(t, err)

	assert.Equal(t, "2026-03-01", report.Date)
	assert.Equal(t, 13, report.Total)
	require.Len(t, report.Clinics, 3)

	assert.Equal(t, "Dental", report.Clinics[0].ClinicName)
	assert.Equal(t, 12, report.Clinics[0].Total)
	assert.Equal(t, 2, report.Clinics[0].ByType[model.CallTypeSkip])
	assert.Equal(t, 10, report.Clinics[0].LastClient)

	assert.Equal(t, 2, report.Clinics[1].ClinicNumber)
	assert.Zero(t, report.Clinics[1].Total)

	assert.Equal(t, 3, report.Clinics[2].ClinicNumber)
	assert.Empty(t, report.Clinics[2].ClinicName)
}

func TestDailyDefaultsToToday(t *testing.T) {
	history := &fakeHistory{}
	svc := NewService(history, fakeClinics{}, logger.Nop())
	svc.now = func() time.Time { return time.Date(2026, 5, 9, 14, 0, 0, 0, time.UTC) }

	report, err := svc.Daily(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "2026-05-09", report.Date)
	assert.Equal(t, 9, history.day.Day())
	assert.Empty(t, report.Clinics)
}

func TestDailyErrors(t *testing.T) {
	svc := NewService(&fakeHistory{}, fakeClinics{}, logger.Nop())
	_, err := svc.Daily(context.Background(), "01/03/2026")
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrBadRequest, appErr.Code)

	svc = NewService(&fakeHistory{err: errors.New("db down")}, fakeClinics{}, logger.Nop())
	_, err = svc.Daily(context.Background(), "2026-03-01")
	assert.ErrorContains(t, err, "failed to load call stats")
}
