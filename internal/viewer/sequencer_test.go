package viewer

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-queue/pkg/logger"
	"github.com/jwalitptl/clinic-queue/pkg/metrics"
)

func stages(names ...string) []Asset {
	out := make([]Asset, len(names))
	for i, n := range names {
		out[i] = Asset{Path: n}
	}
	return out
}

func TestSequencerDropsOldestWhenFull(t *testing.T) {
	m := metrics.NewTestMetrics()
	seq := NewSequencer(&orderedPlayer{}, SequencerConfig{Backlog: 2}, m, logger.Nop())

	var dropped []string
	done := func(key string) func(bool) {
		return func(played bool) {
			if !played {
				dropped = append(dropped, key)
			}
		}
	}

	assert.False(t, seq.Enqueue(Job{Key: "a", Stages: stages("a"), Done: done("a")}))
	assert.False(t, seq.Enqueue(Job{Key: "b", Stages: stages("b"), Done: done("b")}))
	assert.True(t, seq.Enqueue(Job{Key: "c", Stages: stages("c"), Done: done("c")}))

	assert.Equal(t, 2, seq.Pending())
	assert.Equal(t, []string{"a"}, dropped)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AnnouncementsDropped))
}

func TestSequencerPlaysQueuedJobsInOrder(t *testing.T) {
	m := metrics.NewTestMetrics()
	player := &orderedPlayer{delay: 2 * time.Millisecond}
	seq := NewSequencer(player, SequencerConfig{Backlog: 5, Gap: time.Millisecond}, m, logger.Nop())

	// both jobs are queued before playback starts
	seq.Enqueue(Job{Key: "A", Stages: stages("A1", "A2", "A3")})
	seq.Enqueue(Job{Key: "B", Stages: stages("B1", "B2", "B3")})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go seq.Run(ctx)

	require.Eventually(t, seq.Idle, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"A1", "A2", "A3", "B1", "B2", "B3"}, player.snapshot())
	assert.Equal(t, 2.0, testutil.ToFloat64(m.AnnouncementsPlayed))
}

func TestSequencerStopsOnCancel(t *testing.T) {
	player := &orderedPlayer{delay: time.Hour}
	seq := NewSequencer(player, SequencerConfig{}, nil, logger.Nop())

	var played []bool
	finished := make(chan struct{})
	seq.Enqueue(Job{Key: "long", Stages: stages("x"), Done: func(p bool) { played = append(played, p) }})
	seq.Enqueue(Job{Key: "next", Stages: stages("y"), Done: func(p bool) { played = append(played, p) }})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		seq.Run(ctx)
		close(finished)
	}()
	require.Eventually(t, func() bool { return seq.Pending() == 1 }, time.Second, time.Millisecond)
	cancel()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("sequencer did not stop")
	}
	assert.Equal(t, []bool{false, false}, played)
	assert.True(t, seq.Idle())
}
