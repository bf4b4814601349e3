package realtime

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"rastreio-bot/internal/config"
	"rastreio-bot/internal/metrics"
	"rastreio-bot/internal/model"
	"rastreio-bot/pkg/logger"
)

const writeWait = 10 * time.Second

// Hub fans events out to every connected dashboard. Each observer has its own
// bounded queue; an observer whose queue is full is dropped instead of
// slowing the publisher down.
type Hub struct {
	upgrader     websocket.Upgrader
	sendBuffer   int
	pingInterval time.Duration
	logger       *logger.Logger

	mu         sync.Mutex
	clients    map[*Client]struct{}
	lastStatus []byte
}

// Client is one connected observer
type Client struct {
	ID   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates a new hub
func NewHub(cfg *config.RealtimeConfig, log *logger.Logger) *Hub {
	sendBuffer := cfg.SendBuffer
	if sendBuffer <= 0 {
		sendBuffer = 64
	}
	pingInterval := cfg.PingInterval
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}

	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Any origin may observe
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		sendBuffer:   sendBuffer,
		pingInterval: pingInterval,
		logger:       log.WithComponent("realtime"),
		clients:      make(map[*Client]struct{}),
	}
}

// Publish marshals event once and queues it for every observer. The latest
// status_update is retained and replayed to observers that connect later.
func (h *Hub) Publish(event any) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("Failed to marshal event", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := event.(model.StatusUpdateEvent); ok {
		h.lastStatus = data
	}

	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			metrics.RealtimeDroppedTotal.Inc()
			h.logger.Warn("Observer send queue full, dropping", "client_id", c.ID)
			h.removeLocked(c)
		}
	}
}

// Count returns the number of connected observers
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and registers the observer
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written an HTTP error
		h.logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}

	c := &Client{
		ID:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, h.sendBuffer),
	}
	h.register(c)

	go c.writePump()
	go c.readPump()
}

// register adds c and queues the current session state as its first message
func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.lastStatus != nil {
		c.send <- h.lastStatus
	}
	h.clients[c] = struct{}{}
	metrics.RealtimeObservers.Set(float64(len(h.clients)))
	h.logger.Info("Observer connected", "client_id", c.ID, "total", len(h.clients))
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.removeLocked(c) {
		h.logger.Info("Observer disconnected", "client_id", c.ID, "total", len(h.clients))
	}
}

// removeLocked closes c's queue, which makes its writer close the socket
func (h *Hub) removeLocked(c *Client) bool {
	if _, ok := h.clients[c]; !ok {
		return false
	}
	delete(h.clients, c)
	close(c.send)
	metrics.RealtimeObservers.Set(float64(len(h.clients)))
	return true
}

// CloseAll disconnects every observer. Used at shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.removeLocked(c)
	}
}

// readPump discards inbound frames and keeps the read deadline fresh.
// Observers only listen.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	pongWait := 2 * c.hub.pingInterval
	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("WebSocket error", "client_id", c.ID, "error", err)
			}
			return
		}
	}
}

// writePump sends one event per frame, in publish order
func (c *Client) writePump() {
	ticker := time.NewTicker(c.hub.pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
