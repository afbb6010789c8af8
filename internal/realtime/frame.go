// Package realtime is the WebSocket gateway viewers subscribe through, and the
// matching remote Source the display command dials.
package realtime

import (
	"fmt"

	"github.com/goccy/go-json"
)

// Server frame types.
const (
	FrameState        = "state"
	FrameCall         = "call"
	FrameAnnouncement = "announcement"
	FrameVideo        = "video"
	FramePong         = "pong"
	FrameError        = "error"
)

// Client actions.
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
	ActionPing        = "ping"
)

// MaxClinicsPerClient bounds one connection's subscription set.
const MaxClinicsPerClient = 64

type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type ClientMessage struct {
	Action  string `json:"action"`
	Clinics []int  `json:"clinics,omitempty"`
}

type errorData struct {
	Message string `json:"message"`
}

func encodeFrame(typ string, data any) ([]byte, error) {
	f := Frame{Type: typ}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s frame: %w", typ, err)
		}
		f.Data = raw
	}
	return json.Marshal(f)
}

func decodeFrame(b []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(b, &f); err != nil {
		return Frame{}, fmt.Errorf("failed to decode frame: %w", err)
	}
	return f, nil
}
