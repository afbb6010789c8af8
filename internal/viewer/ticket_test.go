package viewer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jwalitptl/clinic-queue/internal/model"
)

func TestNewTicket(t *testing.T) {
	tests := []struct {
		your, current int
		waiting       int
		progress      int
		turn, passed  bool
	}{
		{your: 10, current: 0, waiting: 9, progress: 0},
		{your: 10, current: 4, waiting: 5, progress: 40},
		{your: 10, current: 9, waiting: 0, progress: 90},
		{your: 10, current: 10, waiting: 0, progress: 100, turn: true},
		{your: 10, current: 15, waiting: 0, progress: 100, passed: true},
		{your: 0, current: 3, waiting: 0, progress: 0},
	}
	for _, tt := range tests {
		got := NewTicket(tt.your, tt.current)
		assert.Equal(t, tt.waiting, got.WaitingCount, "your=%d current=%d", tt.your, tt.current)
		assert.Equal(t, tt.progress, got.Progress, "your=%d current=%d", tt.your, tt.current)
		assert.Equal(t, tt.turn, got.YourTurn)
		assert.Equal(t, tt.passed, got.Passed)
		assert.Equal(t, time.Duration(tt.waiting*MinutesPerClient)*time.Minute, got.EstimatedWait)
	}
}

func TestTurnTracker(t *testing.T) {
	tr := &turnTracker{ticket: 4}
	var fired int
	for _, c := range []int{1, 2, 3, 4, 4, 4, 5, 4, 4} {
		if tr.observe(c) {
			fired++
		}
	}
	// 4 entered twice: once advancing, once rewinding back
	assert.Equal(t, 2, fired)

	jump := &turnTracker{ticket: 4}
	for _, c := range []int{1, 3, 6} {
		assert.False(t, jump.observe(c))
	}
}

func TestAssetStages(t *testing.T) {
	r := NewAssetResolver("audio", 200, 20)

	tests := []struct {
		name string
		ev   model.CallEvent
		want []string
	}{
		{
			name: "numbered files",
			ev:   model.CallEvent{ClinicNumber: 3, ClientNumber: 17, Type: model.CallTypeNormal},
			want: []string{"audio/ding.mp3", "audio/17.mp3", "audio/clinic3.mp3"},
		},
		{
			name: "speech past the last number file",
			ev:   model.CallEvent{ClinicNumber: 3, ClientNumber: 201, Type: model.CallTypeSpecific},
			want: []string{"audio/ding.mp3", "tts:العميل رقم ٢٠١", "audio/clinic3.mp3"},
		},
		{
			name: "speech past the last clinic file",
			ev:   model.CallEvent{ClinicNumber: 21, ClinicName: "الأسنان", ClientNumber: 2, Type: model.CallTypeNormal},
			want: []string{"audio/ding.mp3", "audio/2.mp3", "tts:التوجه إلى الأسنان"},
		},
		{
			name: "by name",
			ev:   model.CallEvent{ClinicNumber: 1, ClientName: " Omar ", Type: model.CallTypeByName},
			want: []string{"audio/ding.mp3", "tts:Omar", "audio/clinic1.mp3"},
		},
		{
			name: "transfer goes to the target clinic",
			ev:   model.CallEvent{ClinicNumber: 1, FromClinic: 1, ToClinic: 5, ClientNumber: 8, Type: model.CallTypeTransfer},
			want: []string{"audio/ding.mp3", "audio/8.mp3", "audio/clinic5.mp3"},
		},
		{
			name: "skip is silent",
			ev:   model.CallEvent{ClinicNumber: 1, ClientNumber: 8, Type: model.CallTypeSkip},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, a := range r.Stages(tt.ev) {
				got = append(got, a.String())
			}
			assert.Equal(t, tt.want, got)
		})
	}
}
