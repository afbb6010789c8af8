package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-queue/internal/channel/memory"
	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/pkg/logger"
)

func next[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok, "watch closed")
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}
	var zero T
	return zero
}

func TestWebSocketURL(t *testing.T) {
	got, err := WebSocketURL("https://queue.example/")
	require.NoError(t, err)
	assert.Equal(t, "wss://queue.example/api/v1/realtime/ws", got)

	got, err = WebSocketURL("http://localhost:8080")
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8080/api/v1/realtime/ws", got)
}

func TestRemoteSourceFollowsGateway(t *testing.T) {
	ch := memory.New()
	commitCall(t, ch, 2, 6)
	hub, srv := startHub(t, ch, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	remote, err := Dial(ctx, wsURL(srv), logger.Nop())
	require.NoError(t, err)
	defer remote.Close()

	calls, err := remote.WatchCalls(ctx)
	require.NoError(t, err)
	anns, err := remote.WatchAnnouncements(ctx)
	require.NoError(t, err)
	states, err := remote.WatchState(ctx, 2)
	require.NoError(t, err)

	assert.Equal(t, 6, next(t, states).Current)
	st, err := remote.State(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 6, st.Current)

	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		_, ok := hub.watches[2]
		return ok
	}, time.Second, 5*time.Millisecond)

	commitCall(t, ch, 2, 7)
	assert.Equal(t, 7, next(t, calls).ClientNumber)
	assert.Equal(t, 7, next(t, states).Current)

	_, err = ch.Announce(ctx, model.Announcement{Type: model.AnnouncementEmergency, Message: "now"})
	require.NoError(t, err)
	assert.Equal(t, "now", next(t, anns).Message)
}
