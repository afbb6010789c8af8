package channel

import (
	"context"
	"sync"
	"sync/atomic"
)

// DefaultFeedBacklog is how many undelivered values a feed holds before it
// starts dropping the oldest.
const DefaultFeedBacklog = 1024

// Feed delivers pushed values to Out in push order without ever blocking the
// pusher. Backlog is held until the reader catches up or ctx ends; past the
// limit the oldest value is dropped and counted. Out is closed when the feed
// stops.
type Feed[T any] struct {
	mu      sync.Mutex
	pending []T
	limit   int
	dropped atomic.Uint64
	signal  chan struct{}
	out     chan T
}

// NewFeed starts the delivery goroutine with the default backlog. onStop, if
// set, runs after Out is closed.
func NewFeed[T any](ctx context.Context, onStop func()) *Feed[T] {
	return NewFeedSize[T](ctx, DefaultFeedBacklog, onStop)
}

// NewFeedSize is NewFeed with a backlog of limit values (at least one).
func NewFeedSize[T any](ctx context.Context, limit int, onStop func()) *Feed[T] {
	if limit < 1 {
		limit = 1
	}
	f := &Feed[T]{
		limit:  limit,
		signal: make(chan struct{}, 1),
		out:    make(chan T),
	}
	go f.run(ctx, onStop)
	return f
}

func (f *Feed[T]) Out() <-chan T {
	return f.out
}

// Dropped is the number of values discarded because the backlog was full.
func (f *Feed[T]) Dropped() uint64 {
	return f.dropped.Load()
}

func (f *Feed[T]) Push(v T) {
	f.mu.Lock()
	if len(f.pending) >= f.limit {
		var zero T
		f.pending[0] = zero
		f.pending = f.pending[1:]
		f.dropped.Add(1)
	}
	f.pending = append(f.pending, v)
	f.mu.Unlock()

	select {
	case f.signal <- struct{}{}:
	default:
	}
}

func (f *Feed[T]) next() (T, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var v T
	if len(f.pending) == 0 {
		return v, false
	}
	v = f.pending[0]
	var zero T
	f.pending[0] = zero
	f.pending = f.pending[1:]
	return v, true
}

func (f *Feed[T]) run(ctx context.Context, onStop func()) {
	defer func() {
		close(f.out)
		if onStop != nil {
			onStop()
		}
	}()

	for {
		v, ok := f.next()
		if !ok {
			select {
			case <-f.signal:
				continue
			case <-ctx.Done():
				return
			}
		}

		select {
		case f.out <- v:
		case <-ctx.Done():
			return
		}
	}
}
