// Package memory is a single-process channel backend. It is what tests and
// single-node deployments use.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jwalitptl/clinic-queue/internal/channel"
	"github.com/jwalitptl/clinic-queue/internal/model"
)

type subscription struct {
	cancel context.CancelFunc
}

type Channel struct {
	mu     sync.Mutex
	now    func() time.Time
	lastTS int64
	closed bool

	states        map[int]model.QueueState
	calls         []model.CallEvent
	announcements []model.Announcement

	stateFeeds map[int]map[*channel.Feed[model.QueueState]]struct{}
	callFeeds  map[*channel.Feed[model.CallEvent]]struct{}
	annFeeds   map[*channel.Feed[model.Announcement]]struct{}
	ctlFeeds   map[*channel.Feed[model.VideoControl]]struct{}
	subs       map[*subscription]struct{}
}

var _ channel.Channel = (*Channel)(nil)

func New() *Channel {
	return NewWithClock(time.Now)
}

// NewWithClock lets tests pin the clock. Timestamps stay strictly increasing
// even when the clock does not move.
func NewWithClock(now func() time.Time) *Channel {
	return &Channel{
		now:        now,
		states:     make(map[int]model.QueueState),
		stateFeeds: make(map[int]map[*channel.Feed[model.QueueState]]struct{}),
		callFeeds:  make(map[*channel.Feed[model.CallEvent]]struct{}),
		annFeeds:   make(map[*channel.Feed[model.Announcement]]struct{}),
		ctlFeeds:   make(map[*channel.Feed[model.VideoControl]]struct{}),
		subs:       make(map[*subscription]struct{}),
	}
}

// tick must be called with mu held.
func (c *Channel) tick() int64 {
	ts := c.now().UnixMilli()
	if ts <= c.lastTS {
		ts = c.lastTS + 1
	}
	c.lastTS = ts
	return ts
}

func entryID(ts int64) string {
	return strconv.FormatInt(ts, 10) + "-0"
}

func entryTime(id string) (int64, error) {
	ms, _, _ := strings.Cut(id, "-")
	return strconv.ParseInt(ms, 10, 64)
}

func (c *Channel) State(ctx context.Context, clinic int) (model.QueueState, error) {
	if clinic <= 0 {
		return model.QueueState{}, channel.ErrInvalidClinic
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return model.QueueState{}, channel.ErrClosed
	}
	return c.stateLocked(clinic), nil
}

func (c *Channel) stateLocked(clinic int) model.QueueState {
	if s, ok := c.states[clinic]; ok {
		return s
	}
	return model.NewQueueState()
}

func (c *Channel) Commit(ctx context.Context, m channel.Mutation) (*model.CallEvent, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, channel.ErrClosed
	}

	ts := c.tick()

	if m.State != nil {
		s := *m.State
		s.LastUpdated = ts
		if m.Event != nil {
			s.LastCalled = &ts
		}
		c.states[m.Clinic] = s
		c.publishStateLocked(m.Clinic, s)
	}

	if m.Event == nil {
		return nil, nil
	}

	e := *m.Event
	e.ID = entryID(ts)
	e.Timestamp = ts
	c.calls = append(c.calls, e)
	for f := range c.callFeeds {
		f.Push(e)
	}
	return &e, nil
}

func (c *Channel) publishStateLocked(clinic int, s model.QueueState) {
	for f := range c.stateFeeds[clinic] {
		f.Push(s)
	}
}

func (c *Channel) Announce(ctx context.Context, a model.Announcement) (model.Announcement, error) {
	if err := a.Validate(); err != nil {
		return model.Announcement{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return model.Announcement{}, channel.ErrClosed
	}

	ts := c.tick()
	a.ID = entryID(ts)
	a.Timestamp = ts
	c.announcements = append(c.announcements, a)
	for f := range c.annFeeds {
		f.Push(a)
	}
	return a, nil
}

func (c *Channel) Control(ctx context.Context, v model.VideoControl) (model.VideoControl, error) {
	if !v.Action.Valid() {
		return model.VideoControl{}, fmt.Errorf("invalid video action %q", v.Action)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return model.VideoControl{}, channel.ErrClosed
	}

	ts := c.tick()
	v.ID = entryID(ts)
	v.Timestamp = ts
	for f := range c.ctlFeeds {
		f.Push(v)
	}
	return v, nil
}

func (c *Channel) ResetAll(ctx context.Context, clinics []int) error {
	for _, n := range clinics {
		if n <= 0 {
			return channel.ErrInvalidClinic
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return channel.ErrClosed
	}

	ts := c.tick()
	for _, n := range clinics {
		s := c.stateLocked(n)
		s.Current = 0
		s.LastCalled = nil
		s.LastUpdated = ts
		c.states[n] = s
		c.publishStateLocked(n, s)
	}
	return nil
}

func (c *Channel) CallsSince(ctx context.Context, afterID string, limit int) ([]model.CallEvent, error) {
	var after int64 = -1
	if afterID != "" {
		ms, err := entryTime(afterID)
		if err != nil {
			return nil, fmt.Errorf("invalid entry id %q: %w", afterID, err)
		}
		after = ms
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	i := sort.Search(len(c.calls), func(i int) bool { return c.calls[i].Timestamp > after })
	end := len(c.calls)
	if limit > 0 && i+limit < end {
		end = i + limit
	}
	out := make([]model.CallEvent, end-i)
	copy(out, c.calls[i:end])
	return out, nil
}

func (c *Channel) Trim(ctx context.Context, before time.Time) (int64, error) {
	cutoff := before.UnixMilli()

	c.mu.Lock()
	defer c.mu.Unlock()

	i := sort.Search(len(c.calls), func(i int) bool { return c.calls[i].Timestamp >= cutoff })
	c.calls = append([]model.CallEvent(nil), c.calls[i:]...)

	j := sort.Search(len(c.announcements), func(j int) bool { return c.announcements[j].Timestamp >= cutoff })
	c.announcements = append([]model.Announcement(nil), c.announcements[j:]...)

	return int64(i + j), nil
}

func (c *Channel) WatchState(ctx context.Context, clinic int) (<-chan model.QueueState, error) {
	if clinic <= 0 {
		return nil, channel.ErrInvalidClinic
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, channel.ErrClosed
	}

	ctx, sub := c.subscribeLocked(ctx)
	var f *channel.Feed[model.QueueState]
	f = channel.NewFeed[model.QueueState](ctx, func() {
		c.mu.Lock()
		delete(c.stateFeeds[clinic], f)
		if len(c.stateFeeds[clinic]) == 0 {
			delete(c.stateFeeds, clinic)
		}
		delete(c.subs, sub)
		c.mu.Unlock()
	})
	if c.stateFeeds[clinic] == nil {
		c.stateFeeds[clinic] = make(map[*channel.Feed[model.QueueState]]struct{})
	}
	c.stateFeeds[clinic][f] = struct{}{}
	f.Push(c.stateLocked(clinic))
	return f.Out(), nil
}

func (c *Channel) WatchCalls(ctx context.Context) (<-chan model.CallEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, channel.ErrClosed
	}

	ctx, sub := c.subscribeLocked(ctx)
	var f *channel.Feed[model.CallEvent]
	f = channel.NewFeed[model.CallEvent](ctx, func() {
		c.mu.Lock()
		delete(c.callFeeds, f)
		delete(c.subs, sub)
		c.mu.Unlock()
	})
	c.callFeeds[f] = struct{}{}
	return f.Out(), nil
}

func (c *Channel) WatchAnnouncements(ctx context.Context) (<-chan model.Announcement, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, channel.ErrClosed
	}

	ctx, sub := c.subscribeLocked(ctx)
	var f *channel.Feed[model.Announcement]
	f = channel.NewFeed[model.Announcement](ctx, func() {
		c.mu.Lock()
		delete(c.annFeeds, f)
		delete(c.subs, sub)
		c.mu.Unlock()
	})
	c.annFeeds[f] = struct{}{}
	return f.Out(), nil
}

func (c *Channel) WatchControl(ctx context.Context) (<-chan model.VideoControl, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, channel.ErrClosed
	}

	ctx, sub := c.subscribeLocked(ctx)
	var f *channel.Feed[model.VideoControl]
	f = channel.NewFeed[model.VideoControl](ctx, func() {
		c.mu.Lock()
		delete(c.ctlFeeds, f)
		delete(c.subs, sub)
		c.mu.Unlock()
	})
	c.ctlFeeds[f] = struct{}{}
	return f.Out(), nil
}

func (c *Channel) subscribeLocked(ctx context.Context) (context.Context, *subscription) {
	ctx, cancel := context.WithCancel(ctx)
	sub := &subscription{cancel: cancel}
	c.subs[sub] = struct{}{}
	return ctx, sub
}

// Watchers reports the number of live watches; tests use it to check that
// cancelled subscriptions are released.
func (c *Channel) Watchers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

func (c *Channel) Ping(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return channel.ErrClosed
	}
	return nil
}

func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	subs := make([]*subscription, 0, len(c.subs))
	for s := range c.subs {
		subs = append(subs, s)
	}
	c.mu.Unlock()

	for _, s := range subs {
		s.cancel()
	}
	return nil
}
