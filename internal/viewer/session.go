package viewer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jwalitptl/clinic-queue/internal/channel"
	"github.com/jwalitptl/clinic-queue/internal/model"
)

var ErrNoClinics = errors.New("no clinics to watch")

// Renderer draws a session. Calls are made one at a time with the session
// locked, so implementations must not call back into the Session.
type Renderer interface {
	Phase(s State)
	Screen(view *model.ScreenView)
	QueueState(clinic int, st model.QueueState, ticket *Ticket)
	Highlight(clinic int, on bool)
	// Notice shows the call bar for ev; nil hides it.
	Notice(ev *model.CallEvent)
	YourTurn(clinic int, ticket Ticket)
	// Overlay shows a; nil dismisses the current overlay.
	Overlay(a *model.Announcement)
	Doctor(d *model.Doctor)
	Video(v model.VideoControl)
}

// ScreenDirectory resolves a display screen to its clinics, doctors and videos.
type ScreenDirectory interface {
	ScreenView(ctx context.Context, number int) (*model.ScreenView, error)
}

type Config struct {
	Highlight        time.Duration
	Notice           time.Duration
	EmergencyOverlay time.Duration
	TextOverlay      time.Duration
	DoctorRotation   time.Duration
}

func DefaultConfig() Config {
	return Config{
		Highlight:        3 * time.Second,
		Notice:           5 * time.Second,
		EmergencyOverlay: 10 * time.Second,
		TextOverlay:      7 * time.Second,
		DoctorRotation:   20 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Highlight <= 0 {
		c.Highlight = d.Highlight
	}
	if c.Notice <= 0 {
		c.Notice = d.Notice
	}
	if c.EmergencyOverlay <= 0 {
		c.EmergencyOverlay = d.EmergencyOverlay
	}
	if c.TextOverlay <= 0 {
		c.TextOverlay = d.TextOverlay
	}
	if c.DoctorRotation <= 0 {
		c.DoctorRotation = d.DoctorRotation
	}
	return c
}

type Options struct {
	Config    Config
	Assets    AssetResolver
	Screens   ScreenDirectory
	Sequencer *Sequencer
	Logger    zerolog.Logger
}

// seenLimit bounds the per-session memory of delivered entry ids.
const seenLimit = 256

// Session is one viewer: Unselected until clinics are chosen, Selected until
// Subscribe opens the watches, Subscribed until Clear.
type Session struct {
	src     channel.Source
	render  Renderer
	seq     *Sequencer
	assets  AssetResolver
	screens ScreenDirectory
	logger  zerolog.Logger

	mu        sync.Mutex
	cfg       Config
	phase     Phase
	clinics   []int
	clinicSet map[int]struct{}
	tickets   map[int]*turnTracker
	states    map[int]model.QueueState
	view      *model.ScreenView

	gen       uint64
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	timers    map[*time.Timer]struct{}
	overlayID string
	noticeID  string
	highlight map[int]string
	doctorIdx int
	seen      map[string]struct{}
	seenOrder []string
}

func NewSession(src channel.Source, r Renderer, opts Options) *Session {
	assets := opts.Assets
	if assets.Base == "" {
		assets = NewAssetResolver("", 0, 0)
	}
	return &Session{
		src:     src,
		render:  r,
		seq:     opts.Sequencer,
		assets:  assets,
		screens: opts.Screens,
		logger:  opts.Logger.With().Str("component", "viewer").Logger(),
		cfg:     opts.Config.withDefaults(),
		phase:   PhaseUnselected,
	}
}

// State returns a copy of the session's phase, clinics and tickets.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() State {
	st := State{Phase: s.phase, Clinics: append([]int(nil), s.clinics...)}
	if len(s.tickets) > 0 {
		st.Tickets = make(map[int]int, len(s.tickets))
		for c, t := range s.tickets {
			st.Tickets[c] = t.ticket
		}
	}
	return st
}

// SetNoticeDuration overrides how long the call bar stays up, usually from the
// center's alertDuration setting.
func (s *Session) SetNoticeDuration(d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	s.cfg.Notice = d
	s.mu.Unlock()
}

// NoticeDuration is how long the call bar stays up.
func (s *Session) NoticeDuration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Notice
}

// Select chooses the clinics to watch.
func (s *Session) Select(clinics ...int) error {
	clinics = normalizeClinics(clinics)
	if len(clinics) == 0 {
		return ErrNoClinics
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseUnselected {
		return transitionError(s.phase, "select clinics")
	}
	s.selectLocked(clinics)
	return nil
}

// SelectScreen chooses every clinic shown on a display screen, together with
// the screen's doctors and videos.
func (s *Session) SelectScreen(ctx context.Context, screenNumber int) error {
	if s.screens == nil {
		return errors.New("no screen directory configured")
	}
	if phase := s.State().Phase; phase != PhaseUnselected {
		return transitionError(phase, "select a screen")
	}

	view, err := s.screens.ScreenView(ctx, screenNumber)
	if err != nil {
		return fmt.Errorf("failed to load screen %d: %w", screenNumber, err)
	}
	numbers := make([]int, 0, len(view.Clinics))
	for _, c := range view.Clinics {
		numbers = append(numbers, c.Number)
	}
	numbers = normalizeClinics(numbers)
	if len(numbers) == 0 {
		return fmt.Errorf("screen %d: %w", screenNumber, ErrNoClinics)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseUnselected {
		return transitionError(s.phase, "select a screen")
	}
	s.view = view
	s.render.Screen(view)
	s.selectLocked(numbers)
	return nil
}

func (s *Session) selectLocked(clinics []int) {
	s.clinics = clinics
	s.clinicSet = make(map[int]struct{}, len(clinics))
	for _, c := range clinics {
		s.clinicSet[c] = struct{}{}
	}
	s.tickets = make(map[int]*turnTracker)
	s.phase = PhaseSelected
	s.render.Phase(s.snapshotLocked())
}

// SetTicket remembers a ticket number for one of the selected clinics. While
// subscribed the clinic is re-rendered against the new ticket at once.
func (s *Session) SetTicket(clinic, number int) error {
	if number <= 0 {
		return fmt.Errorf("ticket number must be positive, got %d", number)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseUnselected {
		return transitionError(s.phase, "hold a ticket")
	}
	if _, ok := s.clinicSet[clinic]; !ok {
		return fmt.Errorf("clinic %d is not selected", clinic)
	}
	s.tickets[clinic] = &turnTracker{ticket: number}
	if st, ok := s.states[clinic]; ok && s.phase == PhaseSubscribed {
		s.applyStateLocked(clinic, st)
	}
	s.render.Phase(s.snapshotLocked())
	return nil
}

// Subscribe opens the watches for the selected clinics. The watches live
// until Clear or until ctx is done.
func (s *Session) Subscribe(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseSelected {
		return transitionError(s.phase, "subscribe")
	}

	s.gen++
	gen := s.gen
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.states = make(map[int]model.QueueState, len(s.clinics))
	s.highlight = make(map[int]string)
	s.seen = make(map[string]struct{})
	s.seenOrder = nil

	for _, clinic := range s.clinics {
		states, err := s.src.WatchState(ctx, clinic)
		if err != nil {
			s.logger.Warn().Err(err).Int("clinic", clinic).Msg("state subscription failed")
			continue
		}
		clinic := clinic
		spawnWatch(s, ctx, "state", states, func(st model.QueueState) { s.onState(gen, clinic, st) })
	}
	if calls, err := s.src.WatchCalls(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("call subscription failed")
	} else {
		spawnWatch(s, ctx, "calls", calls, func(ev model.CallEvent) { s.onCall(gen, ev) })
	}
	if anns, err := s.src.WatchAnnouncements(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("announcement subscription failed")
	} else {
		spawnWatch(s, ctx, "announcements", anns, func(a model.Announcement) { s.onAnnouncement(gen, a) })
	}
	if s.view != nil {
		if ctl, err := s.src.WatchControl(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("video control subscription failed")
		} else {
			spawnWatch(s, ctx, "video", ctl, func(v model.VideoControl) { s.onControl(gen, v) })
		}
		if len(s.view.Doctors) > 0 {
			s.render.Doctor(s.view.Doctors[0])
			s.wg.Add(1)
			go s.rotateDoctors(ctx, gen)
		}
	}

	s.phase = PhaseSubscribed
	s.render.Phase(s.snapshotLocked())
	return nil
}

func spawnWatch[T any](s *Session, ctx context.Context, name string, in <-chan T, fn func(T)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for v := range in {
			fn(v)
		}
		if ctx.Err() == nil {
			// keep showing the last known data
			s.logger.Warn().Str("watch", name).Msg("subscription ended")
		}
	}()
}

// Clear cancels every subscription and pending timer and returns the session to
// Unselected. Clearing an unselected session does nothing.
func (s *Session) Clear() {
	s.mu.Lock()
	if s.phase == PhaseUnselected {
		s.mu.Unlock()
		return
	}
	s.gen++
	cancel := s.cancel
	s.cancel = nil
	for t := range s.timers {
		t.Stop()
	}
	s.timers = nil
	s.phase = PhaseUnselected
	s.clinics = nil
	s.clinicSet = nil
	s.tickets = nil
	s.states = nil
	s.view = nil
	s.overlayID = ""
	s.noticeID = ""
	s.highlight = nil
	s.doctorIdx = 0
	s.render.Phase(s.snapshotLocked())
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	if s.seq != nil {
		s.seq.Flush()
	}
}

func (s *Session) onState(gen uint64, clinic int, st model.QueueState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return
	}
	s.states[clinic] = st
	s.applyStateLocked(clinic, st)
}

func (s *Session) applyStateLocked(clinic int, st model.QueueState) {
	tr, held := s.tickets[clinic]
	if !held {
		s.render.QueueState(clinic, st, nil)
		return
	}
	t := NewTicket(tr.ticket, st.Current)
	s.render.QueueState(clinic, st, &t)
	if tr.observe(st.Current) {
		s.logger.Info().Int("clinic", clinic).Int("ticket", tr.ticket).Msg("your turn")
		s.render.YourTurn(clinic, t)
	}
}

// markSeenLocked reports whether id is new to this session.
func (s *Session) markSeenLocked(id string) bool {
	if id == "" {
		return true
	}
	if _, dup := s.seen[id]; dup {
		return false
	}
	s.seen[id] = struct{}{}
	s.seenOrder = append(s.seenOrder, id)
	if len(s.seenOrder) > seenLimit {
		delete(s.seen, s.seenOrder[0])
		s.seenOrder = s.seenOrder[1:]
	}
	return true
}

// displayClinic picks which of the session's clinics an event lights up.
func (s *Session) displayClinic(ev model.CallEvent) (int, bool) {
	for _, c := range []int{ev.AnnounceClinic(), ev.ClinicNumber, ev.FromClinic} {
		if _, ok := s.clinicSet[c]; ok && c > 0 {
			return c, true
		}
	}
	return 0, false
}

func (s *Session) onCall(gen uint64, ev model.CallEvent) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	clinic, ok := s.displayClinic(ev)
	if !ok || !s.markSeenLocked(ev.ID) {
		s.mu.Unlock()
		return
	}

	s.highlight[clinic] = ev.ID
	s.render.Highlight(clinic, true)
	s.afterLocked(s.cfg.Highlight, gen, func() {
		if s.highlight[clinic] == ev.ID {
			delete(s.highlight, clinic)
			s.render.Highlight(clinic, false)
		}
	})

	notice := ev
	s.noticeID = ev.ID
	s.render.Notice(&notice)
	s.afterLocked(s.cfg.Notice, gen, func() {
		if s.noticeID == ev.ID {
			s.noticeID = ""
			s.render.Notice(nil)
		}
	})

	stages := s.assets.Stages(ev)
	s.mu.Unlock()

	if len(stages) > 0 && s.seq != nil {
		s.seq.Enqueue(Job{Key: "call:" + ev.ID, Stages: stages})
	}
}

func (s *Session) onAnnouncement(gen uint64, a model.Announcement) {
	s.mu.Lock()
	if gen != s.gen || !s.markSeenLocked("ann:"+a.ID) {
		s.mu.Unlock()
		return
	}

	id := a.ID
	s.overlayID = id
	s.render.Overlay(&a)

	dismiss := func() {
		if s.overlayID == id {
			s.overlayID = ""
			s.render.Overlay(nil)
		}
	}

	var job *Job
	switch a.Type {
	case model.AnnouncementEmergency:
		s.afterLocked(s.cfg.EmergencyOverlay, gen, dismiss)
	case model.AnnouncementAudio:
		if s.seq == nil {
			s.afterLocked(s.cfg.TextOverlay, gen, dismiss)
			break
		}
		job = &Job{
			Key:    "announcement:" + id,
			Stages: []Asset{{Data: a.AudioData}},
			Done: func(bool) {
				s.mu.Lock()
				defer s.mu.Unlock()
				if gen == s.gen {
					dismiss()
				}
			},
		}
	default:
		s.afterLocked(s.cfg.TextOverlay, gen, dismiss)
	}
	s.mu.Unlock()

	if job != nil {
		s.seq.Enqueue(*job)
	}
}

func (s *Session) onControl(gen uint64, v model.VideoControl) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || !s.markSeenLocked("video:"+v.ID) {
		return
	}
	s.render.Video(v)
}

func (s *Session) rotateDoctors(ctx context.Context, gen uint64) {
	defer s.wg.Done()

	s.mu.Lock()
	every := s.cfg.DoctorRotation
	s.mu.Unlock()

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			if gen != s.gen || s.view == nil || len(s.view.Doctors) == 0 {
				s.mu.Unlock()
				return
			}
			s.doctorIdx = (s.doctorIdx + 1) % len(s.view.Doctors)
			s.render.Doctor(s.view.Doctors[s.doctorIdx])
			s.mu.Unlock()
		}
	}
}

// afterLocked runs fn with the session locked after d, unless the session has
// been cleared or resubscribed by then.
func (s *Session) afterLocked(d time.Duration, gen uint64, fn func()) {
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.timers, t)
		if gen != s.gen {
			return
		}
		fn()
	})
	if s.timers == nil {
		s.timers = make(map[*time.Timer]struct{})
	}
	s.timers[t] = struct{}{}
}
