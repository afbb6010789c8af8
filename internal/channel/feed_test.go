package channel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan int) int {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok, "feed closed early")
		return v
	case <-time.After(time.Second):
		t.Fatal("nothing delivered")
		return 0
	}
}

func TestFeedDeliversInOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := NewFeed[int](ctx, nil)
	for i := 1; i <= 3; i++ {
		f.Push(i)
	}

	assert.Equal(t, 1, receive(t, f.Out()))
	assert.Equal(t, 2, receive(t, f.Out()))
	assert.Equal(t, 3, receive(t, f.Out()))
	assert.Zero(t, f.Dropped())
}

func TestFeedDropsOldestWhenBacklogFull(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := NewFeedSize[int](ctx, 3, nil)
	f.Push(1)
	// the first value is taken by the delivery goroutine and waits on Out
	require.Eventually(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		return len(f.pending) == 0
	}, time.Second, time.Millisecond)

	for i := 2; i <= 6; i++ {
		f.Push(i)
	}

	assert.Equal(t, uint64(2), f.Dropped())
	got := []int{receive(t, f.Out()), receive(t, f.Out()), receive(t, f.Out()), receive(t, f.Out())}
	assert.Equal(t, []int{1, 4, 5, 6}, got)
}

func TestFeedClosesAndStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	f := NewFeed[int](ctx, func() { close(stopped) })

	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("onStop not called")
	}
	_, ok := <-f.Out()
	assert.False(t, ok)
}
