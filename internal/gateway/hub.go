// Package gateway is the HTTP and WebSocket surface of the dashboard
// backend. The hub fans dashboard events (trades, strategy runs, position
// changes) out to connected WebSocket clients.
package gateway

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"tradedeck/internal/metrics"
)

// Hub manages WebSocket clients and event fan-out. Events are pushed
// directly by the trader service; slow clients drop messages rather than
// stall the hub.
type Hub struct {
	log     *slog.Logger
	metrics *metrics.Metrics

	mu      sync.RWMutex
	clients map[*Client]bool
	latest  map[string]json.RawMessage // last envelope per event type
}

// NewHub creates an empty hub.
func NewHub(log *slog.Logger, m *metrics.Metrics) *Hub {
	return &Hub{
		log:     log,
		metrics: m,
		clients: make(map[*Client]bool),
		latest:  make(map[string]json.RawMessage),
	}
}

// BroadcastEvent wraps payload in a typed envelope and sends it to every
// connected client. The envelope is also retained so new connections get
// the latest state of each event type on join.
func (h *Hub) BroadcastEvent(eventType string, payload interface{}) {
	envelope, err := json.Marshal(map[string]interface{}{
		"type":    eventType,
		"payload": payload,
		"ts":      time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		h.log.Error("broadcast marshal failed",
			slog.String("event", eventType), slog.String("error", err.Error()))
		return
	}

	h.mu.Lock()
	h.latest[eventType] = envelope
	h.mu.Unlock()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- envelope:
		default:
			h.metrics.WSDrops.Inc()
		}
	}
}

// Register adds a connection to the hub, replays the latest envelope per
// event type, and starts the client pumps.
func (h *Hub) Register(conn *websocket.Conn) {
	client := &Client{
		conn: conn,
		send: make(chan []byte, 256),
		hub:  h,
	}

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	for _, envelope := range h.latest {
		select {
		case client.send <- envelope:
		default:
		}
	}
	h.mu.Unlock()

	h.metrics.WSClients.Set(float64(count))
	h.log.Info("ws client connected", slog.Int("total", count))

	go client.writePump()
	go client.readPump()
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	count := len(h.clients)
	h.mu.Unlock()

	h.metrics.WSClients.Set(float64(count))
	h.log.Info("ws client disconnected", slog.Int("total", count))
}

// ClientCount returns the number of connected WebSocket clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
