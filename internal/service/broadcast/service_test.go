package broadcast

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-queue/internal/channel/memory"
	"github.com/jwalitptl/clinic-queue/internal/model"
	apperrors "github.com/jwalitptl/clinic-queue/pkg/errors"
	"github.com/jwalitptl/clinic-queue/pkg/logger"
	"github.com/jwalitptl/clinic-queue/pkg/metrics"
)

func TestAnnounce(t *testing.T) {
	ch := memory.New()
	svc := NewService(ch, metrics.NewTestMetrics(), logger.Nop())

	tests := []struct {
		name    string
		in      model.Announcement
		wantErr bool
	}{
		{"emergency", model.Announcement{Type: model.AnnouncementEmergency, Message: " fire drill "}, false},
		{"text without message", model.Announcement{Type: model.AnnouncementText, Message: "  "}, true},
		{"audio data url", model.Announcement{Type: model.AnnouncementAudio, AudioData: "data:audio/webm;base64,AAAA"}, false},
		{"audio not a data url", model.Announcement{Type: model.AnnouncementAudio, AudioData: "http://x/a.mp3"}, true},
		{"unknown type", model.Announcement{Type: "siren", Message: "x"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.Announce(context.Background(), tt.in)
			if tt.wantErr {
				appErr, ok := apperrors.As(err)
				require.True(t, ok)
				assert.Equal(t, apperrors.ErrBadRequest, appErr.Code)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, got.ID)
			assert.NotZero(t, got.Timestamp)
		})
	}
}

func TestAnnounceReachesWatchers(t *testing.T) {
	ch := memory.New()
	svc := NewService(ch, nil, logger.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	anns, err := ch.WatchAnnouncements(ctx)
	require.NoError(t, err)

	_, err = svc.Announce(ctx, model.Announcement{Type: model.AnnouncementText, Message: "welcome"})
	require.NoError(t, err)

	got := <-anns
	assert.Equal(t, "welcome", got.Message)
}

func TestClosedChannelIsUnavailable(t *testing.T) {
	ch := memory.New()
	require.NoError(t, ch.Close())
	svc := NewService(ch, metrics.NewTestMetrics(), logger.Nop())

	_, err := svc.Announce(context.Background(), model.Announcement{Type: model.AnnouncementText, Message: "x"})
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrUnavailable, appErr.Code)

	_, err = svc.Control(context.Background(), model.VideoPlay)
	appErr, ok = apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrUnavailable, appErr.Code)
}

func TestControlRejectsUnknownAction(t *testing.T) {
	svc := NewService(memory.New(), nil, logger.Nop())

	_, err := svc.Control(context.Background(), "rewind")
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrBadRequest, appErr.Code)

	v, err := svc.Control(context.Background(), model.VideoNext)
	require.NoError(t, err)
	assert.Equal(t, model.VideoNext, v.Action)
}
