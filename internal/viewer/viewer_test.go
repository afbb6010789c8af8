package viewer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-queue/internal/channel"
	"github.com/jwalitptl/clinic-queue/internal/channel/memory"
	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/pkg/logger"
	"github.com/jwalitptl/clinic-queue/pkg/metrics"
)

type recorder struct {
	mu         sync.Mutex
	phases     []Phase
	current    map[int]int
	tickets    map[int]Ticket
	yourTurns  []int
	highlights map[int]bool
	notice     *model.CallEvent
	notices    int
	overlay    *model.Announcement
	doctors    []string
	videos     []model.VideoAction
	screen     *model.ScreenView
}

func newRecorder() *recorder {
	return &recorder{current: map[int]int{}, tickets: map[int]Ticket{}, highlights: map[int]bool{}}
}

func (r *recorder) Phase(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.phases = append(r.phases, s.Phase)
}

func (r *recorder) Screen(view *model.ScreenView) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.screen = view
}

func (r *recorder) QueueState(clinic int, st model.QueueState, t *Ticket) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current[clinic] = st.Current
	if t != nil {
		r.tickets[clinic] = *t
	}
}

func (r *recorder) Highlight(clinic int, on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.highlights[clinic] = on
}

func (r *recorder) Notice(ev *model.CallEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notice = ev
	if ev != nil {
		r.notices++
	}
}

func (r *recorder) YourTurn(clinic int, t Ticket) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.yourTurns = append(r.yourTurns, t.YourNumber)
}

func (r *recorder) Overlay(a *model.Announcement) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overlay = a
}

func (r *recorder) Doctor(d *model.Doctor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.doctors = append(r.doctors, d.Name)
}

func (r *recorder) Video(v model.VideoControl) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.videos = append(r.videos, v.Action)
}

func (r *recorder) read(fn func(r *recorder) bool) func() bool {
	return func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		return fn(r)
	}
}

// orderedPlayer records every asset it plays, holding each for delay.
type orderedPlayer struct {
	mu     sync.Mutex
	delay  time.Duration
	played []string
	active int
	maxPar int
}

func (p *orderedPlayer) Play(ctx context.Context, a Asset) error {
	p.mu.Lock()
	p.active++
	if p.active > p.maxPar {
		p.maxPar = p.active
	}
	p.mu.Unlock()

	select {
	case <-time.After(p.delay):
	case <-ctx.Done():
	}

	p.mu.Lock()
	p.active--
	p.played = append(p.played, a.String())
	p.mu.Unlock()
	return ctx.Err()
}

func (p *orderedPlayer) snapshot() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.played...)
}

func testConfig() Config {
	return Config{
		Highlight:        30 * time.Millisecond,
		Notice:           30 * time.Millisecond,
		EmergencyOverlay: 40 * time.Millisecond,
		TextOverlay:      20 * time.Millisecond,
		DoctorRotation:   20 * time.Millisecond,
	}
}

func commit(t *testing.T, ch *memory.Channel, clinic, current int, withEvent bool) {
	t.Helper()
	m := channel.Mutation{Clinic: clinic, State: &model.QueueState{Current: current, Status: model.QueueStatusActive}}
	if withEvent {
		m.Event = &model.CallEvent{ClinicNumber: clinic, ClientNumber: current, Type: model.CallTypeNormal}
	}
	_, err := ch.Commit(context.Background(), m)
	require.NoError(t, err)
}

const waitFor = time.Second
const tick = 5 * time.Millisecond

func TestTransitions(t *testing.T) {
	ch := memory.New()
	s := NewSession(ch, newRecorder(), Options{Config: testConfig(), Logger: logger.Nop()})
	ctx := context.Background()

	assert.ErrorIs(t, s.Subscribe(ctx), ErrInvalidTransition)
	assert.ErrorIs(t, s.SetTicket(1, 4), ErrInvalidTransition)
	assert.ErrorIs(t, s.Select(0, -2), ErrNoClinics)

	require.NoError(t, s.Select(2, 1, 2))
	assert.Equal(t, []int{1, 2}, s.State().Clinics)
	assert.ErrorIs(t, s.Select(3), ErrInvalidTransition)
	assert.Error(t, s.SetTicket(3, 1))

	require.NoError(t, s.Subscribe(ctx))
	assert.Equal(t, PhaseSubscribed, s.State().Phase)
	assert.ErrorIs(t, s.Subscribe(ctx), ErrInvalidTransition)

	s.Clear()
	assert.Equal(t, PhaseUnselected, s.State().Phase)
	assert.Eventually(t, func() bool { return ch.Watchers() == 0 }, waitFor, tick)
	s.Clear()

	require.NoError(t, s.Select(5))
	assert.Equal(t, PhaseSelected, s.State().Phase)
}

func TestYourTurnFiresOncePerTransition(t *testing.T) {
	ch := memory.New()
	rec := newRecorder()
	s := NewSession(ch, rec, Options{Config: testConfig(), Logger: logger.Nop()})
	require.NoError(t, s.Select(1))
	require.NoError(t, s.SetTicket(1, 5))
	require.NoError(t, s.Subscribe(context.Background()))
	defer s.Clear()

	for _, n := range []int{3, 4, 5} {
		commit(t, ch, 1, n, true)
	}
	// a pause/resume rewrites the same number
	commit(t, ch, 1, 5, false)
	commit(t, ch, 1, 5, false)
	commit(t, ch, 1, 6, true)

	require.Eventually(t, rec.read(func(r *recorder) bool { return r.current[1] == 6 }), waitFor, tick)
	rec.mu.Lock()
	assert.Equal(t, []int{5}, rec.yourTurns)
	assert.Equal(t, 0, rec.tickets[1].WaitingCount)
	assert.True(t, rec.tickets[1].Passed)
	rec.mu.Unlock()
}

func TestYourTurnNotFiredWhenNumberSkipped(t *testing.T) {
	ch := memory.New()
	rec := newRecorder()
	s := NewSession(ch, rec, Options{Config: testConfig(), Logger: logger.Nop()})
	require.NoError(t, s.Select(1))
	require.NoError(t, s.Subscribe(context.Background()))
	defer s.Clear()
	require.NoError(t, s.SetTicket(1, 8))

	commit(t, ch, 1, 7, true)
	_, err := ch.Commit(context.Background(), channel.Mutation{
		Clinic: 1,
		State:  &model.QueueState{Current: 9, Status: model.QueueStatusActive},
		Event:  &model.CallEvent{ClinicNumber: 1, ClientNumber: 9, Type: model.CallTypeSpecific},
	})
	require.NoError(t, err)

	require.Eventually(t, rec.read(func(r *recorder) bool { return r.current[1] == 9 }), waitFor, tick)
	rec.mu.Lock()
	assert.Empty(t, rec.yourTurns)
	rec.mu.Unlock()
}

func TestCallsAnnouncedInOrderOneAtATime(t *testing.T) {
	ch := memory.New()
	rec := newRecorder()
	player := &orderedPlayer{delay: 5 * time.Millisecond}
	seq := NewSequencer(player, SequencerConfig{Backlog: 5, Gap: time.Millisecond}, metrics.NewTestMetrics(), logger.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go seq.Run(ctx)

	s := NewSession(ch, rec, Options{
		Config:    testConfig(),
		Assets:    NewAssetResolver("audio", 200, 20),
		Sequencer: seq,
		Logger:    logger.Nop(),
	})
	require.NoError(t, s.Select(1))
	require.NoError(t, s.Subscribe(ctx))
	defer s.Clear()

	commit(t, ch, 1, 1, true)
	commit(t, ch, 1, 2, true)
	// another clinic's call is not ours
	commit(t, ch, 2, 9, true)

	want := []string{
		"audio/ding.mp3", "audio/1.mp3", "audio/clinic1.mp3",
		"audio/ding.mp3", "audio/2.mp3", "audio/clinic1.mp3",
	}
	require.Eventually(t, func() bool { return len(player.snapshot()) >= len(want) }, waitFor, tick)
	assert.Equal(t, want, player.snapshot())

	player.mu.Lock()
	assert.Equal(t, 1, player.maxPar)
	player.mu.Unlock()

	assert.Eventually(t, rec.read(func(r *recorder) bool { return !r.highlights[1] && r.notice == nil }), waitFor, tick)
	rec.mu.Lock()
	assert.Equal(t, 2, rec.notices)
	_, other := rec.highlights[2]
	assert.False(t, other)
	rec.mu.Unlock()
}

func TestTransferHighlightsTargetClinic(t *testing.T) {
	ch := memory.New()
	rec := newRecorder()
	player := &orderedPlayer{}
	seq := NewSequencer(player, SequencerConfig{Gap: 0}, nil, logger.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go seq.Run(ctx)

	s := NewSession(ch, rec, Options{Config: testConfig(), Sequencer: seq, Logger: logger.Nop()})
	require.NoError(t, s.Select(4))
	require.NoError(t, s.Subscribe(ctx))
	defer s.Clear()

	_, err := ch.Commit(ctx, channel.Mutation{Clinic: 2, Event: &model.CallEvent{
		ClinicNumber: 2, FromClinic: 2, ToClinic: 4, ClientNumber: 12, Type: model.CallTypeTransfer,
	}})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(player.snapshot()) == 3 }, waitFor, tick)
	assert.Equal(t, "audio/clinic4.mp3", player.snapshot()[2])
}

func TestOverlaysDismiss(t *testing.T) {
	ch := memory.New()
	rec := newRecorder()
	s := NewSession(ch, rec, Options{Config: testConfig(), Logger: logger.Nop()})
	require.NoError(t, s.Select(1))
	require.NoError(t, s.Subscribe(context.Background()))
	defer s.Clear()

	_, err := ch.Announce(context.Background(), model.Announcement{Type: model.AnnouncementEmergency, Message: "evacuate"})
	require.NoError(t, err)
	require.Eventually(t, rec.read(func(r *recorder) bool { return r.overlay != nil }), waitFor, tick)

	// a newer overlay replaces the emergency one and dismisses on its own timer
	_, err = ch.Announce(context.Background(), model.Announcement{Type: model.AnnouncementText, Message: "welcome"})
	require.NoError(t, err)
	require.Eventually(t, rec.read(func(r *recorder) bool { return r.overlay != nil && r.overlay.Message == "welcome" }), waitFor, tick)
	assert.Eventually(t, rec.read(func(r *recorder) bool { return r.overlay == nil }), waitFor, tick)
}

func TestAudioAnnouncementDismissesAfterPlayback(t *testing.T) {
	ch := memory.New()
	rec := newRecorder()
	player := &orderedPlayer{delay: 10 * time.Millisecond}
	seq := NewSequencer(player, SequencerConfig{}, nil, logger.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go seq.Run(ctx)

	s := NewSession(ch, rec, Options{Config: testConfig(), Sequencer: seq, Logger: logger.Nop()})
	require.NoError(t, s.Select(1))
	require.NoError(t, s.Subscribe(ctx))
	defer s.Clear()

	_, err := ch.Announce(ctx, model.Announcement{Type: model.AnnouncementAudio, AudioData: "data:audio/webm;base64,AAAA"})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(player.snapshot()) == 1 }, waitFor, tick)
	assert.Equal(t, "clip", player.snapshot()[0])
	assert.Eventually(t, rec.read(func(r *recorder) bool { return r.overlay == nil }), waitFor, tick)
}

type screens struct {
	view *model.ScreenView
}

func (d screens) ScreenView(ctx context.Context, number int) (*model.ScreenView, error) {
	if d.view == nil || d.view.Screen.Number != number {
		return nil, errors.New("not found")
	}
	return d.view, nil
}

func TestSelectScreenRotatesDoctorsAndForwardsVideo(t *testing.T) {
	ch := memory.New()
	rec := newRecorder()
	dir := screens{view: &model.ScreenView{
		Screen:  model.Screen{Number: 2},
		Clinics: []model.ClinicSummary{{Number: 3, ScreenNumber: 2}, {Number: 1, ScreenNumber: 2}},
		Doctors: []*model.Doctor{{Name: "A"}, {Name: "B"}},
	}}
	s := NewSession(ch, rec, Options{Config: testConfig(), Screens: dir, Logger: logger.Nop()})

	assert.Error(t, s.SelectScreen(context.Background(), 7))
	require.NoError(t, s.SelectScreen(context.Background(), 2))
	assert.Equal(t, []int{1, 3}, s.State().Clinics)
	require.NoError(t, s.Subscribe(context.Background()))

	_, err := ch.Control(context.Background(), model.VideoControl{Action: model.VideoPause})
	require.NoError(t, err)

	assert.Eventually(t, rec.read(func(r *recorder) bool {
		return len(r.doctors) >= 3 && len(r.videos) == 1
	}), waitFor, tick)

	rec.mu.Lock()
	assert.Equal(t, []string{"A", "B", "A"}, rec.doctors[:3])
	assert.Equal(t, model.VideoPause, rec.videos[0])
	assert.NotNil(t, rec.screen)
	rec.mu.Unlock()

	s.Clear()
	assert.Eventually(t, func() bool { return ch.Watchers() == 0 }, waitFor, tick)
}

func TestClearStopsStaleCallbacks(t *testing.T) {
	ch := memory.New()
	rec := newRecorder()
	s := NewSession(ch, rec, Options{Config: testConfig(), Logger: logger.Nop()})
	require.NoError(t, s.Select(1))
	require.NoError(t, s.SetTicket(1, 1))
	require.NoError(t, s.Subscribe(context.Background()))
	require.Eventually(t, rec.read(func(r *recorder) bool { _, ok := r.current[1]; return ok }), waitFor, tick)

	s.Clear()
	commit(t, ch, 1, 1, true)
	time.Sleep(20 * time.Millisecond)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Empty(t, rec.yourTurns)
	assert.Zero(t, rec.notices)
}
