package realtime

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/clinic-queue/internal/channel"
	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/pkg/metrics"
)

var ErrHubStopped = errors.New("realtime hub is not running")

type Config struct {
	// AllowedOrigins lists browser origins allowed to connect; "*" allows any.
	// Connections without an Origin header (the display command) are accepted.
	AllowedOrigins []string
}

type stateWatch struct {
	refs   int
	cancel context.CancelFunc
}

// Hub fans one set of channel watches out to every connected viewer. Call
// frames only reach clients subscribed to a clinic the call involves;
// announcement and video frames reach everyone.
type Hub struct {
	src      channel.Source
	cfg      Config
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	ctx     context.Context
	clients map[*Client]struct{}
	watches map[int]*stateWatch
	wg      sync.WaitGroup
}

func NewHub(src channel.Source, cfg Config, m *metrics.Metrics, logger zerolog.Logger) *Hub {
	h := &Hub{
		src:     src,
		cfg:     cfg,
		metrics: m,
		logger:  logger.With().Str("component", "realtime").Logger(),
		clients: make(map[*Client]struct{}),
		watches: make(map[int]*stateWatch),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin:      h.checkOrigin,
	}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	h.logger.Warn().Str("origin", origin).Msg("websocket connection rejected from unauthorized origin")
	return false
}

// Run opens the shared watches and fans them out until ctx is done, then
// disconnects every client.
func (h *Hub) Run(ctx context.Context) error {
	calls, err := h.src.WatchCalls(ctx)
	if err != nil {
		return err
	}
	anns, err := h.src.WatchAnnouncements(ctx)
	if err != nil {
		return err
	}
	ctl, err := h.src.WatchControl(ctx)
	if err != nil {
		return err
	}

	h.mu.Lock()
	h.ctx = ctx
	h.mu.Unlock()
	h.logger.Info().Msg("realtime hub started")

	for calls != nil || anns != nil || ctl != nil {
		select {
		case <-ctx.Done():
			h.shutdown()
			return ctx.Err()
		case ev, ok := <-calls:
			if !ok {
				calls = nil
				h.logger.Warn().Msg("call subscription ended")
				continue
			}
			h.broadcastCall(ev)
		case a, ok := <-anns:
			if !ok {
				anns = nil
				h.logger.Warn().Msg("announcement subscription ended")
				continue
			}
			h.broadcast(FrameAnnouncement, a)
		case v, ok := <-ctl:
			if !ok {
				ctl = nil
				h.logger.Warn().Msg("video control subscription ended")
				continue
			}
			h.broadcast(FrameVideo, v)
		}
	}

	<-ctx.Done()
	h.shutdown()
	return ctx.Err()
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	h.ctx = nil
	n := len(h.clients)
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	for clinic, w := range h.watches {
		w.cancel()
		delete(h.watches, clinic)
	}
	h.mu.Unlock()

	h.wg.Wait()
	if h.metrics != nil {
		h.metrics.RealtimeClients.Set(0)
	}
	h.logger.Info().Int("clients", n).Msg("realtime hub stopped")
}

// ServeWS upgrades the request and registers the connection.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) error {
	h.mu.RLock()
	running := h.ctx != nil
	h.mu.RUnlock()
	if !running {
		return ErrHubStopped
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := newClient(h, conn)
	h.mu.Lock()
	if h.ctx == nil {
		h.mu.Unlock()
		_ = conn.Close()
		return ErrHubStopped
	}
	h.clients[c] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.RealtimeClients.Inc()
	}
	h.logger.Info().Uint64("client", c.id).Int("total_clients", total).Msg("viewer connected")
	c.start()
	return nil
}

// Clients is the number of connected viewers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	for clinic := range c.clinics {
		h.releaseLocked(clinic)
	}
	total := len(h.clients)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.RealtimeClients.Dec()
	}
	h.logger.Info().Uint64("client", c.id).Int("total_clients", total).Msg("viewer disconnected")
}

func (h *Hub) subscribe(c *Client, clinics []int) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok || h.ctx == nil {
		h.mu.Unlock()
		return
	}
	var added []int
	for _, n := range clinics {
		if n <= 0 {
			continue
		}
		if _, ok := c.clinics[n]; ok {
			continue
		}
		if len(c.clinics) >= MaxClinicsPerClient {
			h.mu.Unlock()
			h.sendError(c, "too many clinics")
			h.sendStates(c, added)
			return
		}
		c.clinics[n] = struct{}{}
		h.acquireLocked(n)
		added = append(added, n)
	}
	h.mu.Unlock()

	h.sendStates(c, added)
}

func (h *Hub) unsubscribe(c *Client, clinics []int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	for _, n := range clinics {
		if _, ok := c.clinics[n]; !ok {
			continue
		}
		delete(c.clinics, n)
		h.releaseLocked(n)
	}
}

// sendStates gives a new subscriber the current state of each clinic.
func (h *Hub) sendStates(c *Client, clinics []int) {
	sort.Ints(clinics)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, n := range clinics {
		st, err := h.src.State(ctx, n)
		if err != nil {
			h.logger.Warn().Err(err).Int("clinic", n).Msg("failed to load state for subscriber")
			continue
		}
		h.sendState(c, n, st)
	}
}

// sendState sends one clinic's state to c unless c already has a newer one.
func (h *Hub) sendState(c *Client, clinic int, st model.QueueState) {
	msg, err := encodeFrame(FrameState, model.ClinicState{ClinicNumber: clinic, State: st})
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to encode state frame")
		return
	}
	h.fanOut(FrameState, msg, func(other *Client) bool {
		return other == c && c.admitState(clinic, st)
	})
}

func (h *Hub) acquireLocked(clinic int) {
	if w, ok := h.watches[clinic]; ok {
		w.refs++
		return
	}
	ctx, cancel := context.WithCancel(h.ctx)
	states, err := h.src.WatchState(ctx, clinic)
	if err != nil {
		cancel()
		h.logger.Warn().Err(err).Int("clinic", clinic).Msg("state subscription failed")
		return
	}
	h.watches[clinic] = &stateWatch{refs: 1, cancel: cancel}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		first := true
		for st := range states {
			// subscribers already got the current state from sendStates
			if first {
				first = false
				continue
			}
			h.broadcastState(clinic, st)
		}
	}()
}

func (h *Hub) releaseLocked(clinic int) {
	w, ok := h.watches[clinic]
	if !ok {
		return
	}
	w.refs--
	if w.refs <= 0 {
		w.cancel()
		delete(h.watches, clinic)
	}
}

func (h *Hub) broadcastState(clinic int, st model.QueueState) {
	msg, err := encodeFrame(FrameState, model.ClinicState{ClinicNumber: clinic, State: st})
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to encode state frame")
		return
	}
	h.fanOut(FrameState, msg, func(c *Client) bool {
		return c.wants(clinic) && c.admitState(clinic, st)
	})
}

func (h *Hub) broadcastCall(ev model.CallEvent) {
	msg, err := encodeFrame(FrameCall, ev)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to encode call frame")
		return
	}
	h.fanOut(FrameCall, msg, func(c *Client) bool {
		return c.wants(ev.ClinicNumber, ev.ToClinic, ev.FromClinic)
	})
}

func (h *Hub) broadcast(typ string, data any) {
	msg, err := encodeFrame(typ, data)
	if err != nil {
		h.logger.Error().Err(err).Str("type", typ).Msg("failed to encode frame")
		return
	}
	h.fanOut(typ, msg, nil)
}

// fanOut never blocks on a slow client; a full send buffer drops the frame.
func (h *Hub) fanOut(typ string, msg []byte, match func(*Client) bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var sent, dropped int
	for c := range h.clients {
		if match != nil && !match(c) {
			continue
		}
		select {
		case c.send <- msg:
			sent++
		default:
			dropped++
		}
	}
	if h.metrics != nil {
		h.metrics.RealtimeFramesSent.WithLabelValues(typ).Add(float64(sent))
		h.metrics.RealtimeFramesDropped.WithLabelValues(typ).Add(float64(dropped))
	}
	if dropped > 0 {
		h.logger.Warn().Str("type", typ).Int("dropped", dropped).Msg("slow viewers dropped frames")
	}
}

func (h *Hub) sendTo(c *Client, typ string, data any) {
	msg, err := encodeFrame(typ, data)
	if err != nil {
		h.logger.Error().Err(err).Str("type", typ).Msg("failed to encode frame")
		return
	}
	h.fanOut(typ, msg, func(other *Client) bool { return other == c })
}

func (h *Hub) sendError(c *Client, message string) {
	h.sendTo(c, FrameError, errorData{Message: message})
}
