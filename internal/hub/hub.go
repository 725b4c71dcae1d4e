// Package hub is the server side of the push channel: one WebSocket
// connection per client, JSON event envelopes, handshake before use.
package hub

import (
	"log"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"nhooyr.io/websocket"

	"gochat/internal/common"
	"gochat/internal/config"
	"gochat/internal/delivery"
)

type Hub struct {
	cfg    config.PushConfig
	router *delivery.Router

	mu      sync.RWMutex
	clients map[string]*client // connID -> client
}

func NewHub(cfg config.PushConfig) *Hub {
	return &Hub{
		cfg:     cfg,
		clients: make(map[string]*client),
	}
}

// AttachRouter wires the delivery router in after construction; the router
// needs the hub as its sink, so the two are built in sequence.
func (h *Hub) AttachRouter(r *delivery.Router) {
	h.router = r
}

// HandleWebSocket is the HTTP handler for /ws.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		log.Printf("hub: websocket accept failed: %v", err)
		return
	}

	c := newClient(uuid.NewString(), conn, h)
	h.addClient(c)
	defer h.removeClient(c)

	c.run()
}

// Push implements delivery.Sink for a single connection. Unknown connection
// IDs are a no-op.
func (h *Hub) Push(connID string, ev common.Envelope) {
	h.mu.RLock()
	c, ok := h.clients[connID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	c.sendJSON(ev)
}

// Broadcast implements delivery.Sink for all authenticated connections.
func (h *Hub) Broadcast(ev common.Envelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if c.authenticated() {
			c.sendJSON(ev)
		}
	}
}

func (h *Hub) addClient(c *client) {
	h.mu.Lock()
	h.clients[c.connID] = c
	h.mu.Unlock()
}

func (h *Hub) removeClient(c *client) {
	h.mu.Lock()
	delete(h.clients, c.connID)
	h.mu.Unlock()

	// frees presence and broadcasts, no-op if never authenticated
	h.router.Disconnect(c.connID)
	c.cancel()
}
