package realtime

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/jwalitptl/clinic-queue/internal/model"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
	sendBuffer     = 64
)

var clientIDCounter atomic.Uint64

// Client is one viewer connection. clinics is guarded by the hub's lock.
type Client struct {
	id      uint64
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	clinics map[int]struct{}

	stateMu   sync.Mutex
	stateSent map[int]int64
}

func newClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		id:      clientIDCounter.Add(1),
		hub:     hub,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		clinics: make(map[int]struct{}),

		stateSent: make(map[int]int64),
	}
}

func (c *Client) ID() uint64 {
	return c.id
}

// wants reports whether a call frame for these clinics concerns c.
func (c *Client) wants(clinics ...int) bool {
	for _, n := range clinics {
		if _, ok := c.clinics[n]; ok && n > 0 {
			return true
		}
	}
	return false
}

// admitState reports whether st is at least as new as the last state frame c
// got for clinic, and records it when it is. A snapshot read before a newer
// change was fanned out is refused.
func (c *Client) admitState(clinic int, st model.QueueState) bool {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	if last, ok := c.stateSent[clinic]; ok && st.LastUpdated < last {
		return false
	}
	c.stateSent[clinic] = st.LastUpdated
	return true
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.hub.logger.Error().Err(err).Msg("failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn().Err(err).Uint64("client", c.id).Msg("unexpected websocket close")
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.hub.sendError(c, "malformed message")
			continue
		}
		switch msg.Action {
		case ActionSubscribe:
			c.hub.subscribe(c, msg.Clinics)
		case ActionUnsubscribe:
			c.hub.unsubscribe(c, msg.Clinics)
		case ActionPing:
			c.hub.sendTo(c, FramePong, nil)
		default:
			c.hub.sendError(c, "unknown action "+msg.Action)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.hub.logger.Debug().Err(err).Uint64("client", c.id).Msg("write failed")
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) start() {
	go c.writePump()
	go c.readPump()
}
