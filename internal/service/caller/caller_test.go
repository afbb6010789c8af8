package caller

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-queue/internal/channel"
	"github.com/jwalitptl/clinic-queue/internal/channel/memory"
	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/internal/repository"
	"github.com/jwalitptl/clinic-queue/pkg/logger"
	"github.com/jwalitptl/clinic-queue/pkg/metrics"
	"github.com/jwalitptl/clinic-queue/pkg/security"
)

type fakeDirectory struct {
	clinics map[int]*model.Clinic
}

func (f *fakeDirectory) GetClinicByNumber(ctx context.Context, number int) (*model.Clinic, error) {
	c, ok := f.clinics[number]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return c, nil
}

type failingChannel struct {
	*memory.Channel
	err error
}

func (f *failingChannel) Commit(ctx context.Context, m channel.Mutation) (*model.CallEvent, error) {
	return nil, f.err
}

func newTestService(t *testing.T, ch channel.Channel) *Service {
	t.Helper()
	hasher := security.NewBcryptHasher(4)
	hash, err := hasher.Hash("secret")
	require.NoError(t, err)

	dir := &fakeDirectory{clinics: map[int]*model.Clinic{
		1: {Number: 1, Name: "General", PasswordHash: hash, Active: true},
		2: {Number: 2, Name: "Dental", PasswordHash: hash, Active: true},
		3: {Number: 3, Name: "Closed", PasswordHash: hash, Active: false},
	}}
	return NewService(dir, ch, hasher, metrics.NewTestMetrics(), logger.Nop())
}

func newSession(t *testing.T, svc *Service, clinic int) *Session {
	t.Helper()
	sess, err := svc.Session(context.Background(), Identity{ClinicNumber: clinic, ClinicName: "General"})
	require.NoError(t, err)
	return sess
}

func TestAuthenticate(t *testing.T) {
	svc := newTestService(t, memory.New())
	ctx := context.Background()

	id, err := svc.Authenticate(ctx, 2, "secret")
	require.NoError(t, err)
	assert.Equal(t, Identity{ClinicNumber: 2, ClinicName: "Dental"}, *id)

	tests := []struct {
		name     string
		number   int
		password string
		cause    error
	}{
		{"unknown clinic", 9, "secret", ErrNotFound},
		{"wrong password", 1, "nope", ErrInvalidCredential},
		{"inactive clinic", 3, "secret", ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Authenticate(ctx, tt.number, tt.password)
			assert.ErrorIs(t, err, ErrAuthFailed)
			assert.ErrorIs(t, err, tt.cause)
		})
	}
}

func TestAuthenticateValidatesInput(t *testing.T) {
	svc := newTestService(t, memory.New())

	_, err := svc.Authenticate(context.Background(), 0, "secret")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "clinicNumber", verr.Field)

	_, err = svc.Authenticate(context.Background(), 1, "")
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "password", verr.Field)
}

func TestAdvanceIncrementsAndAppendsOneNormalEvent(t *testing.T) {
	ch := memory.New()
	svc := newTestService(t, ch)
	sess := newSession(t, svc, 1)
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		state, ev, err := sess.Advance(ctx)
		require.NoError(t, err)
		assert.Equal(t, i, state.Current)
		require.NotNil(t, ev)
		assert.Equal(t, model.CallTypeNormal, ev.Type)
		assert.Equal(t, i, ev.ClientNumber)
		require.NotNil(t, state.LastCalled)
		assert.Equal(t, ev.Timestamp, *state.LastCalled)
	}

	calls, err := ch.CallsSince(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, calls, 4)
	for i, c := range calls {
		assert.Equal(t, i+1, c.ClientNumber)
		assert.Equal(t, model.CallTypeNormal, c.Type)
	}
}

func TestAdvanceWhilePausedWritesNothing(t *testing.T) {
	ch := memory.New()
	svc := newTestService(t, ch)
	sess := newSession(t, svc, 1)
	ctx := context.Background()

	_, _, err := sess.Advance(ctx)
	require.NoError(t, err)
	paused, err := sess.Pause(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.QueueStatusPaused, paused.Status)

	_, ev, err := sess.Advance(ctx)
	assert.ErrorIs(t, err, ErrPaused)
	assert.Nil(t, ev)

	stored, err := ch.State(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Current)
	assert.Equal(t, paused.LastUpdated, stored.LastUpdated)

	calls, err := ch.CallsSince(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, calls, 1)

	_, err = sess.Resume(ctx)
	require.NoError(t, err)
	state, _, err := sess.Advance(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, state.Current)
}

func TestRewindIsNotGatedByPause(t *testing.T) {
	ch := memory.New()
	svc := newTestService(t, ch)
	sess := newSession(t, svc, 1)
	ctx := context.Background()

	_, _, err := sess.CallSpecific(ctx, 3)
	require.NoError(t, err)
	_, err = sess.Pause(ctx)
	require.NoError(t, err)

	state, ev, err := sess.Rewind(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, state.Current)
	assert.Equal(t, model.QueueStatusPaused, state.Status)
	require.NotNil(t, ev)
	assert.Equal(t, 2, ev.ClientNumber)
}

func TestRewindFloorsAtZero(t *testing.T) {
	ch := memory.New()
	svc := newTestService(t, ch)
	sess := newSession(t, svc, 1)
	ctx := context.Background()

	_, _, err := sess.Advance(ctx)
	require.NoError(t, err)

	state, ev, err := sess.Rewind(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, state.Current)
	assert.Nil(t, ev)
	atZero, _ := ch.State(ctx, 1)

	state, ev, err = sess.Rewind(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, state.Current)
	assert.Nil(t, ev)

	stored, _ := ch.State(ctx, 1)
	assert.Equal(t, atZero.LastUpdated, stored.LastUpdated, "rewinding at zero writes nothing")

	calls, _ := ch.CallsSince(ctx, "", 0)
	assert.Len(t, calls, 1)
}

func TestRepeatKeepsCurrent(t *testing.T) {
	ch := memory.New()
	svc := newTestService(t, ch)
	sess := newSession(t, svc, 1)
	ctx := context.Background()

	_, err := sess.Repeat(ctx)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)

	_, _, err = sess.CallSpecific(ctx, 8)
	require.NoError(t, err)
	ev, err := sess.Repeat(ctx)
	require.NoError(t, err)
	assert.Equal(t, 8, ev.ClientNumber)

	stored, _ := ch.State(ctx, 1)
	assert.Equal(t, 8, stored.Current)
	calls, _ := ch.CallsSince(ctx, "", 0)
	assert.Len(t, calls, 2)
}

func TestConcurrentCallersLastWriteWins(t *testing.T) {
	ch := memory.New()
	svc := newTestService(t, ch)
	first := newSession(t, svc, 1)
	second := newSession(t, svc, 1)
	ctx := context.Background()

	_, _, err := first.CallSpecific(ctx, 5)
	require.NoError(t, err)
	_, _, err = second.CallSpecific(ctx, 7)
	require.NoError(t, err)

	stored, err := ch.State(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 7, stored.Current)

	calls, err := ch.CallsSince(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, calls, 2)
	assert.Equal(t, 5, calls[0].ClientNumber)
	assert.Equal(t, 7, calls[1].ClientNumber)
	assert.Less(t, calls[0].Timestamp, calls[1].Timestamp)

	// the stale session overwrites from its own copy
	state, _, err := first.Advance(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, state.Current)
}

func TestCallByNameAndSkip(t *testing.T) {
	ch := memory.New()
	svc := newTestService(t, ch)
	sess := newSession(t, svc, 1)
	ctx := context.Background()

	_, err := sess.CallByName(ctx, "   ")
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)

	ev, err := sess.CallByName(ctx, "  Sara Ahmed ")
	require.NoError(t, err)
	assert.Equal(t, "Sara Ahmed", ev.ClientName)
	assert.Equal(t, model.CallTypeByName, ev.Type)

	ev, err = sess.Skip(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.CallTypeSkip, ev.Type)

	stored, _ := ch.State(ctx, 1)
	assert.Equal(t, 0, stored.Current)
}

func TestTransfer(t *testing.T) {
	ch := memory.New()
	svc := newTestService(t, ch)
	sess := newSession(t, svc, 1)
	ctx := context.Background()

	tests := []struct {
		name   string
		client int
		target int
		field  string
	}{
		{"missing client", 0, 2, "clientNumber"},
		{"same clinic", 4, 1, "targetClinic"},
		{"unknown clinic", 4, 42, "targetClinic"},
		{"inactive clinic", 4, 3, "targetClinic"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sess.Transfer(ctx, tt.client, tt.target)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
	calls, _ := ch.CallsSince(ctx, "", 0)
	assert.Empty(t, calls)

	ev, err := sess.Transfer(ctx, 4, 2)
	require.NoError(t, err)
	assert.Equal(t, model.CallTypeTransfer, ev.Type)
	assert.Equal(t, 1, ev.FromClinic)
	assert.Equal(t, 2, ev.ToClinic)
	assert.Equal(t, 2, ev.AnnounceClinic())

	target, _ := ch.State(ctx, 2)
	assert.Equal(t, 0, target.Current)
}

func TestResetKeepsStatus(t *testing.T) {
	ch := memory.New()
	svc := newTestService(t, ch)
	sess := newSession(t, svc, 1)
	ctx := context.Background()

	_, _, err := sess.CallSpecific(ctx, 12)
	require.NoError(t, err)
	_, err = sess.Pause(ctx)
	require.NoError(t, err)

	state, err := sess.Reset(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, state.Current)
	assert.Nil(t, state.LastCalled)
	assert.Equal(t, model.QueueStatusPaused, state.Status)
}

func TestWriteFailureIsTransientAndKeepsLocalState(t *testing.T) {
	ch := &failingChannel{Channel: memory.New(), err: errors.New("connection refused")}
	svc := newTestService(t, ch)
	sess := newSession(t, svc, 1)

	_, _, err := sess.Advance(context.Background())
	var terr *TransientWriteError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "advance", terr.Op)
	assert.Equal(t, 0, sess.State().Current)
}

func TestAnnouncementsNeedMessage(t *testing.T) {
	ch := memory.New()
	svc := newTestService(t, ch)
	sess := newSession(t, svc, 1)
	ctx := context.Background()

	_, err := sess.Emergency(ctx, "")
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)

	a, err := sess.NotifyDoctor(ctx, "please come to clinic 1")
	require.NoError(t, err)
	assert.Equal(t, model.AnnouncementDoctorNotification, a.Type)
	assert.Equal(t, 1, a.ClinicNumber)
}

func TestRestore(t *testing.T) {
	ch := memory.New()
	svc := newTestService(t, ch)
	ctx := context.Background()

	_, err := ch.Commit(ctx, channel.Mutation{Clinic: 2, State: &model.QueueState{Current: 7, Status: model.QueueStatusActive}})
	require.NoError(t, err)

	sess, err := svc.Restore(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, Identity{ClinicNumber: 2, ClinicName: "Dental"}, sess.Identity())
	assert.Equal(t, 7, sess.State().Current)

	_, err = svc.Restore(ctx, 3)
	assert.ErrorIs(t, err, ErrAuthFailed)
	_, err = svc.Restore(ctx, 9)
	assert.ErrorIs(t, err, ErrAuthFailed)
}
