package realtime

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/clinic-queue/internal/channel"
	"github.com/jwalitptl/clinic-queue/internal/model"
)

const (
	minReconnectDelay = time.Second
	maxReconnectDelay = 32 * time.Second

	// maxFrameSize leaves room for a recorded audio announcement.
	maxFrameSize = 4 << 20
)

// Remote is a channel.Source backed by the gateway's WebSocket. It keeps the
// union of all watched clinics subscribed and re-subscribes after reconnecting.
type Remote struct {
	url    string
	dialer websocket.Dialer
	logger zerolog.Logger

	mu       sync.Mutex
	conn     *websocket.Conn
	writeMu  sync.Mutex
	states   map[int]model.QueueState
	stateSub map[int]map[*channel.Feed[model.QueueState]]struct{}
	callSub  map[*channel.Feed[model.CallEvent]]struct{}
	annSub   map[*channel.Feed[model.Announcement]]struct{}
	ctlSub   map[*channel.Feed[model.VideoControl]]struct{}

	cancel context.CancelFunc
	done   chan struct{}
}

var _ channel.Source = (*Remote)(nil)

// WebSocketURL turns an API base URL (http or https) into the gateway URL.
func WebSocketURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/api/v1/realtime/ws"
	return u.String(), nil
}

// Dial connects to the gateway at wsURL. The first connection must succeed;
// later drops are retried with exponential backoff until Close.
func Dial(ctx context.Context, wsURL string, logger zerolog.Logger) (*Remote, error) {
	r := &Remote{
		url:      wsURL,
		dialer:   websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger:   logger.With().Str("component", "realtime-remote").Logger(),
		states:   make(map[int]model.QueueState),
		stateSub: make(map[int]map[*channel.Feed[model.QueueState]]struct{}),
		callSub:  make(map[*channel.Feed[model.CallEvent]]struct{}),
		annSub:   make(map[*channel.Feed[model.Announcement]]struct{}),
		ctlSub:   make(map[*channel.Feed[model.VideoControl]]struct{}),
		done:     make(chan struct{}),
	}

	conn, err := r.connect(ctx)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	go r.run(runCtx, conn)
	return r, nil
}

func (r *Remote) connect(ctx context.Context) (*websocket.Conn, error) {
	conn, resp, err := r.dialer.DialContext(ctx, r.url, nil)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		r.writeMu.Lock()
		defer r.writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})

	r.mu.Lock()
	r.conn = conn
	clinics := make([]int, 0, len(r.stateSub))
	for n := range r.stateSub {
		clinics = append(clinics, n)
	}
	r.mu.Unlock()

	if len(clinics) > 0 {
		if err := r.write(ClientMessage{Action: ActionSubscribe, Clinics: clinics}); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}
	r.logger.Info().Str("url", r.url).Msg("connected to realtime gateway")
	return conn, nil
}

func (r *Remote) run(ctx context.Context, conn *websocket.Conn) {
	defer close(r.done)

	delay := minReconnectDelay
	for {
		r.listen(conn)
		if ctx.Err() != nil {
			return
		}

		for {
			r.logger.Warn().Dur("retry_in", delay).Msg("realtime gateway connection lost")
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			var err error
			conn, err = r.connect(ctx)
			if err == nil {
				delay = minReconnectDelay
				break
			}
			r.logger.Warn().Err(err).Msg("reconnect failed")
			if delay *= 2; delay > maxReconnectDelay {
				delay = maxReconnectDelay
			}
		}
	}
}

func (r *Remote) listen(conn *websocket.Conn) {
	defer conn.Close()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		f, err := decodeFrame(data)
		if err != nil {
			r.logger.Warn().Err(err).Msg("dropping malformed frame")
			continue
		}
		if err := r.dispatch(f); err != nil {
			r.logger.Warn().Err(err).Str("type", f.Type).Msg("dropping frame")
		}
	}
}

func (r *Remote) dispatch(f Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch f.Type {
	case FrameState:
		var cs model.ClinicState
		if err := json.Unmarshal(f.Data, &cs); err != nil {
			return err
		}
		r.states[cs.ClinicNumber] = cs.State
		for feed := range r.stateSub[cs.ClinicNumber] {
			feed.Push(cs.State)
		}
	case FrameCall:
		var ev model.CallEvent
		if err := json.Unmarshal(f.Data, &ev); err != nil {
			return err
		}
		for feed := range r.callSub {
			feed.Push(ev)
		}
	case FrameAnnouncement:
		var a model.Announcement
		if err := json.Unmarshal(f.Data, &a); err != nil {
			return err
		}
		for feed := range r.annSub {
			feed.Push(a)
		}
	case FrameVideo:
		var v model.VideoControl
		if err := json.Unmarshal(f.Data, &v); err != nil {
			return err
		}
		for feed := range r.ctlSub {
			feed.Push(v)
		}
	case FrameError:
		var e errorData
		_ = json.Unmarshal(f.Data, &e)
		r.logger.Warn().Str("message", e.Message).Msg("gateway reported an error")
	case FramePong:
	default:
		return fmt.Errorf("unknown frame type %q", f.Type)
	}
	return nil
}

func (r *Remote) write(msg ClientMessage) error {
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()
	if conn == nil {
		return channel.ErrClosed
	}

	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, b)
}

// State returns the last state the gateway sent for clinic, or the initial
// state when none has arrived.
func (r *Remote) State(ctx context.Context, clinic int) (model.QueueState, error) {
	if clinic <= 0 {
		return model.QueueState{}, channel.ErrInvalidClinic
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.states[clinic]; ok {
		return st, nil
	}
	return model.NewQueueState(), nil
}

func (r *Remote) WatchState(ctx context.Context, clinic int) (<-chan model.QueueState, error) {
	if clinic <= 0 {
		return nil, channel.ErrInvalidClinic
	}

	var f *channel.Feed[model.QueueState]
	f = channel.NewFeed[model.QueueState](ctx, func() {
		r.mu.Lock()
		delete(r.stateSub[clinic], f)
		last := len(r.stateSub[clinic]) == 0
		if last {
			delete(r.stateSub, clinic)
		}
		r.mu.Unlock()
		if last {
			_ = r.write(ClientMessage{Action: ActionUnsubscribe, Clinics: []int{clinic}})
		}
	})

	r.mu.Lock()
	first := len(r.stateSub[clinic]) == 0
	if first {
		r.stateSub[clinic] = make(map[*channel.Feed[model.QueueState]]struct{})
	} else if st, ok := r.states[clinic]; ok {
		f.Push(st)
	}
	r.stateSub[clinic][f] = struct{}{}
	r.mu.Unlock()

	// the gateway answers a subscribe with the current state
	if first {
		if err := r.write(ClientMessage{Action: ActionSubscribe, Clinics: []int{clinic}}); err != nil {
			r.logger.Warn().Err(err).Int("clinic", clinic).Msg("subscribe not sent, will retry on reconnect")
		}
	}
	return f.Out(), nil
}

func (r *Remote) WatchCalls(ctx context.Context) (<-chan model.CallEvent, error) {
	var f *channel.Feed[model.CallEvent]
	f = channel.NewFeed[model.CallEvent](ctx, func() {
		r.mu.Lock()
		delete(r.callSub, f)
		r.mu.Unlock()
	})
	r.mu.Lock()
	r.callSub[f] = struct{}{}
	r.mu.Unlock()
	return f.Out(), nil
}

func (r *Remote) WatchAnnouncements(ctx context.Context) (<-chan model.Announcement, error) {
	var f *channel.Feed[model.Announcement]
	f = channel.NewFeed[model.Announcement](ctx, func() {
		r.mu.Lock()
		delete(r.annSub, f)
		r.mu.Unlock()
	})
	r.mu.Lock()
	r.annSub[f] = struct{}{}
	r.mu.Unlock()
	return f.Out(), nil
}

func (r *Remote) WatchControl(ctx context.Context) (<-chan model.VideoControl, error) {
	var f *channel.Feed[model.VideoControl]
	f = channel.NewFeed[model.VideoControl](ctx, func() {
		r.mu.Lock()
		delete(r.ctlSub, f)
		r.mu.Unlock()
	})
	r.mu.Lock()
	r.ctlSub[f] = struct{}{}
	r.mu.Unlock()
	return f.Out(), nil
}

// Close stops reconnecting and closes the connection. Watches end when their
// contexts do.
func (r *Remote) Close() error {
	r.cancel()
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()
	if conn != nil {
		r.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		r.writeMu.Unlock()
		_ = conn.Close()
	}
	<-r.done
	return nil
}
