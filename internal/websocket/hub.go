package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/dukerupert/foodalloc/internal/realtime"
)

// Hub maintains the set of active WebSocket clients and broadcasts
// realtime envelopes to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Broadcast sends ev to all connected clients.
func (h *Hub) Broadcast(ev realtime.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}
	h.BroadcastRaw(data)
}

// BroadcastRaw sends a pre-encoded frame to all connected clients.
func (h *Hub) BroadcastRaw(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			// The dashboard refetches on its next envelope anyway.
			c.dropped.Add(1)
			h.logger.Debug("subscriber buffer full, envelope dropped", "conn_id", c.id)
		}
	}
}

// CloseAll disconnects every client, e.g. on shutdown or when a test
// simulates a dropped channel.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
