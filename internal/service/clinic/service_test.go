package clinic

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-queue/internal/channel"
	"github.com/jwalitptl/clinic-queue/internal/channel/memory"
	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/internal/repository"
	apperrors "github.com/jwalitptl/clinic-queue/pkg/errors"
	"github.com/jwalitptl/clinic-queue/pkg/logger"
	"github.com/jwalitptl/clinic-queue/pkg/security"
)

type fakeRepo struct {
	byID        map[uuid.UUID]*model.Clinic
	numberCalls int
}

func newFakeRepo(clinics ...*model.Clinic) *fakeRepo {
	r := &fakeRepo{byID: map[uuid.UUID]*model.Clinic{}}
	for _, c := range clinics {
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		r.byID[c.ID] = c
	}
	return r
}

func (r *fakeRepo) Create(ctx context.Context, clinic *model.Clinic) error {
	for _, c := range r.byID {
		if c.Number == clinic.Number {
			return repository.ErrConflict
		}
	}
	clinic.ID = uuid.New()
	cp := *clinic
	r.byID[clinic.ID] = &cp
	return nil
}

func (r *fakeRepo) Get(ctx context.Context, id uuid.UUID) (*model.Clinic, error) {
	c, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *fakeRepo) GetByNumber(ctx context.Context, number int) (*model.Clinic, error) {
	r.numberCalls++
	for _, c := range r.byID {
		if c.Number == number {
			cp := *c
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeRepo) Update(ctx context.Context, clinic *model.Clinic) error {
	c, ok := r.byID[clinic.ID]
	if !ok {
		return repository.ErrNotFound
	}
	hash := c.PasswordHash
	cp := *clinic
	cp.PasswordHash = hash
	r.byID[clinic.ID] = &cp
	return nil
}

func (r *fakeRepo) UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error {
	r.byID[id].PasswordHash = hash
	return nil
}

func (r *fakeRepo) Delete(ctx context.Context, id uuid.UUID) error {
	delete(r.byID, id)
	return nil
}

func (r *fakeRepo) List(ctx context.Context) ([]*model.Clinic, error) {
	var out []*model.Clinic
	for _, c := range r.byID {
		out = append(out, c)
	}
	return out, nil
}

func (r *fakeRepo) ListByScreen(ctx context.Context, screenNumber int) ([]*model.Clinic, error) {
	var out []*model.Clinic
	for _, c := range r.byID {
		if c.ScreenNumber == screenNumber {
			out = append(out, c)
		}
	}
	return out, nil
}

func newTestService(repo *fakeRepo, ch channel.Channel) *Service {
	return NewService(repo, ch, security.NewBcryptHasher(4), Config{}, logger.Nop())
}

func TestCreateClinicHashesPassword(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, memory.New())
	ctx := context.Background()

	clinic := &model.Clinic{Number: 4, Name: " Eye ", Active: true}
	require.NoError(t, svc.CreateClinic(ctx, clinic, "pass1234"))
	assert.Equal(t, "Eye", clinic.Name)
	assert.NotEqual(t, "pass1234", clinic.PasswordHash)
	assert.NoError(t, security.NewBcryptHasher(4).Compare(clinic.PasswordHash, "pass1234"))

	err := svc.CreateClinic(ctx, &model.Clinic{Number: 4, Name: "Other"}, "pass1234")
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrConflict, appErr.Code)
}

func TestCreateClinicValidation(t *testing.T) {
	svc := newTestService(newFakeRepo(), memory.New())

	tests := []struct {
		name     string
		clinic   *model.Clinic
		password string
	}{
		{"zero number", &model.Clinic{Name: "A"}, "pass1234"},
		{"empty name", &model.Clinic{Number: 1, Name: "  "}, "pass1234"},
		{"no password", &model.Clinic{Number: 1, Name: "A"}, ""},
		{"short password", &model.Clinic{Number: 1, Name: "A"}, "abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.CreateClinic(context.Background(), tt.clinic, tt.password)
			appErr, ok := apperrors.As(err)
			require.True(t, ok)
			assert.Equal(t, apperrors.ErrBadRequest, appErr.Code)
		})
	}
}

func TestGetClinicByNumberIsCached(t *testing.T) {
	repo := newFakeRepo(&model.Clinic{Number: 2, Name: "Dental"})
	svc := newTestService(repo, memory.New())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		c, err := svc.GetClinicByNumber(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, "Dental", c.Name)
	}
	assert.Equal(t, 1, repo.numberCalls)

	_, err := svc.GetClinicByNumber(ctx, 99)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestUpdateClinicInvalidatesCache(t *testing.T) {
	existing := &model.Clinic{Number: 2, Name: "Dental"}
	repo := newFakeRepo(existing)
	svc := newTestService(repo, memory.New())
	ctx := context.Background()

	_, err := svc.GetClinicByNumber(ctx, 2)
	require.NoError(t, err)

	updated := &model.Clinic{Base: model.Base{ID: existing.ID}, Number: 2, Name: "Dentistry", Active: true}
	require.NoError(t, svc.UpdateClinic(ctx, updated, ""))

	c, err := svc.GetClinicByNumber(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "Dentistry", c.Name)
	assert.Equal(t, 2, repo.numberCalls)
}

func TestResetAllZeroesEveryClinicAndKeepsStatus(t *testing.T) {
	repo := newFakeRepo(
		&model.Clinic{Number: 1, Name: "General"},
		&model.Clinic{Number: 2, Name: "Dental"},
		&model.Clinic{Number: 3, Name: "Eye"},
	)
	ch := memory.New()
	svc := newTestService(repo, ch)
	ctx := context.Background()

	_, err := ch.Commit(ctx, channel.Mutation{
		Clinic: 1,
		State:  &model.QueueState{Current: 14, Status: model.QueueStatusActive},
		Event:  &model.CallEvent{ClinicNumber: 1, ClientNumber: 14, Type: model.CallTypeNormal},
	})
	require.NoError(t, err)
	_, err = ch.Commit(ctx, channel.Mutation{
		Clinic: 2,
		State:  &model.QueueState{Current: 6, Status: model.QueueStatusPaused},
		Event:  &model.CallEvent{ClinicNumber: 2, ClientNumber: 6, Type: model.CallTypeNormal},
	})
	require.NoError(t, err)

	numbers, err := svc.ResetAll(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{1, 2, 3}, numbers)

	states, err := svc.QueueStates(ctx)
	require.NoError(t, err)
	require.Len(t, states, 3)
	for _, st := range states {
		assert.Equal(t, 0, st.State.Current)
		assert.Nil(t, st.State.LastCalled)
		if st.ClinicNumber == 2 {
			assert.Equal(t, model.QueueStatusPaused, st.State.Status)
		} else {
			assert.Equal(t, model.QueueStatusActive, st.State.Status)
		}
	}
}
