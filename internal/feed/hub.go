// internal/feed/hub.go
package feed

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/user/threatsight/internal/metrics"
	"github.com/user/threatsight/internal/types"
)

// Frame is the JSON protocol pushed to live-feed clients.
type Frame struct {
	Type    string         `json:"type"` // "message" | "stats" | "status"
	Message *types.Message `json:"message,omitempty"`
	Stats   *types.Stats   `json:"stats,omitempty"`
	Status  string         `json:"status,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // dashboard runs on a different origin in development
	},
}

// Hub broadcasts enriched messages and periodic stats snapshots to connected
// WebSocket clients.
type Hub struct {
	log types.MessageLog

	mu      sync.Mutex
	clients map[*client]struct{}
}

// client serializes writes to one connection.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) send(frame Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(frame)
}

// Compile-time interface compliance check.
var _ types.FeedSink = (*Hub)(nil)

// NewHub creates a Hub reading stats snapshots from the given log.
func NewHub(log types.MessageLog) *Hub {
	return &Hub{
		log:     log,
		clients: make(map[*client]struct{}),
	}
}

// HandleUpgrade upgrades an HTTP request to a feed connection and blocks
// until the client disconnects. Inbound frames are discarded; the feed is
// one-way.
func (h *Hub) HandleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("feed upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	metrics.FeedClients.Inc()
	slog.Info("feed client connected", "remote", r.RemoteAddr)

	c.send(Frame{Type: "status", Status: "connected"})

	defer func() {
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
		metrics.FeedClients.Dec()
		conn.Close()
		slog.Info("feed client disconnected", "remote", r.RemoteAddr)
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Publish broadcasts one enriched message to every client.
func (h *Hub) Publish(msg *types.Message) {
	h.broadcast(Frame{Type: "message", Message: msg})
}

// Run pushes a stats frame every interval until the context is cancelled.
func (h *Hub) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			stats := h.log.Stats()
			h.broadcast(Frame{Type: "stats", Stats: &stats})
		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) broadcast(frame Frame) {
	h.mu.Lock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	for _, c := range targets {
		if err := c.send(frame); err != nil {
			slog.Warn("feed write failed", "error", err)
		}
	}
}

// CloseAll disconnects every client, for shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.conn.Close()
		delete(h.clients, c)
	}
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
