package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/livetemplate/composer/internal/logger"
	"github.com/livetemplate/composer/internal/metrics"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 16
)

// Message is what live preview clients receive.
type Message struct {
	Action string `json:"action"` // "render" or "reload"
	HTML   string `json:"html,omitempty"`
	Status string `json:"status,omitempty"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans preview updates out to the websocket clients subscribed to a
// channel. A channel is a workspace or template key.
type Hub struct {
	upgrader websocket.Upgrader
	log      logger.Logger
	metrics  *metrics.Metrics

	mu       sync.RWMutex
	channels map[string]map[*client]struct{}
}

// NewHub returns an empty hub. The upgrader enforces same-origin requests.
func NewHub(log logger.Logger, m *metrics.Metrics) *Hub {
	if log == nil {
		log = logger.NewNop()
	}
	return &Hub{
		log:      log.With(logger.Component("hub")),
		metrics:  m,
		channels: make(map[string]map[*client]struct{}),
	}
}

// Serve upgrades the request and subscribes it to channel. initial, when
// non-nil, is sent before any broadcast.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, channel string, initial *Message) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", logger.Error(err))
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	if initial != nil {
		if data, err := json.Marshal(initial); err == nil {
			c.send <- data
		}
	}
	h.register(channel, c)

	go h.writeLoop(c)
	h.readLoop(channel, c)
}

func (h *Hub) register(channel string, c *client) {
	h.mu.Lock()
	subs, ok := h.channels[channel]
	if !ok {
		subs = make(map[*client]struct{})
		h.channels[channel] = subs
	}
	subs[c] = struct{}{}
	n := len(subs)
	h.mu.Unlock()

	h.metrics.PreviewConnected()
	h.log.Debug("preview connected", logger.String("channel", channel), logger.Int("clients", n))
}

func (h *Hub) unregister(channel string, c *client) {
	h.mu.Lock()
	subs := h.channels[channel]
	if _, ok := subs[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(subs, c)
	if len(subs) == 0 {
		delete(h.channels, channel)
	}
	close(c.send)
	h.mu.Unlock()

	h.metrics.PreviewDisconnected()
	h.log.Debug("preview disconnected", logger.String("channel", channel))
}

// readLoop discards client messages and returns when the connection ends.
func (h *Hub) readLoop(channel string, c *client) {
	defer func() {
		h.unregister(channel, c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Broadcast sends msg to every client on channel. Clients that cannot keep
// up miss the message; the next one carries the full page again.
func (h *Hub) Broadcast(channel string, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("failed to encode preview message", logger.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.channels[channel] {
		select {
		case c.send <- data:
		default:
			h.log.Warn("preview client too slow, dropping update", logger.String("channel", channel))
		}
	}
}

// BroadcastAll sends msg to every connected client.
func (h *Hub) BroadcastAll(msg Message) {
	h.mu.RLock()
	channels := make([]string, 0, len(h.channels))
	for ch := range h.channels {
		channels = append(channels, ch)
	}
	h.mu.RUnlock()

	for _, ch := range channels {
		h.Broadcast(ch, msg)
	}
}

// Count returns the number of clients on channel.
func (h *Hub) Count(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}
