// Package channel carries the realtime queue data: one QueueState per clinic,
// the append-only call log, the announcement stream and video control commands.
//
// Ordering holds within one watch only. A viewer may see a clinic's new state
// before or after the call event that produced it, so announcements are driven by
// WatchCalls and never inferred from state deltas.
package channel

import (
	"context"
	"errors"
	"time"

	"github.com/jwalitptl/clinic-queue/internal/model"
)

var (
	ErrClosed        = errors.New("channel closed")
	ErrInvalidClinic = errors.New("invalid clinic number")
)

// Mutation is one caller action: an optional state write and an optional call
// event, committed together.
type Mutation struct {
	Clinic int
	State  *model.QueueState
	Event  *model.CallEvent
}

func (m Mutation) Validate() error {
	if m.Clinic <= 0 {
		return ErrInvalidClinic
	}
	if m.State != nil {
		if err := m.State.Validate(); err != nil {
			return err
		}
	}
	if m.Event != nil {
		if err := m.Event.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Source is the read side a viewer needs.
type Source interface {
	State(ctx context.Context, clinic int) (model.QueueState, error)
	// WatchState yields the current state first and then every change until ctx is done.
	WatchState(ctx context.Context, clinic int) (<-chan model.QueueState, error)
	// WatchCalls yields call events appended after the watch started.
	WatchCalls(ctx context.Context) (<-chan model.CallEvent, error)
	WatchAnnouncements(ctx context.Context) (<-chan model.Announcement, error)
	WatchControl(ctx context.Context) (<-chan model.VideoControl, error)
}

// Channel is the full read/write contract.
type Channel interface {
	Source

	// Commit writes m.State (last write wins, no compare-and-swap) and appends
	// m.Event atomically. Timestamps on both are assigned here. The stored event
	// is returned, or nil when m.Event is nil.
	Commit(ctx context.Context, m Mutation) (*model.CallEvent, error)
	Announce(ctx context.Context, a model.Announcement) (model.Announcement, error)
	Control(ctx context.Context, v model.VideoControl) (model.VideoControl, error)

	// ResetAll sets current=0 and clears lastCalled for every clinic in one batch.
	// Status is left as it is.
	ResetAll(ctx context.Context, clinics []int) error

	// CallsSince returns up to limit call events appended after afterID, oldest
	// first. An empty afterID starts from the beginning of the retained log.
	CallsSince(ctx context.Context, afterID string, limit int) ([]model.CallEvent, error)
	// Trim drops log entries older than before and returns how many were removed.
	Trim(ctx context.Context, before time.Time) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}
