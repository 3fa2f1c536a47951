package socket

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/lukakralj/GpioManager-Server/internal/infrastructure/logging"
)

// Hub tracks connected clients and their room memberships, and fans out
// change notifications. Delivery is at most once per joined client, with no
// queuing for disconnected members.
type Hub struct {
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*Client]struct{}
	rooms   map[string]map[*Client]struct{}
}

// NewHub creates an empty hub.
func NewHub(logger *logging.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[*Client]struct{}),
		rooms:   make(map[string]map[*Client]struct{}),
	}
}

// Run blocks until the context is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("client connected", "id", client.id, "clients", h.ClientCount())
}

// Unregister removes a client from the hub and all rooms. Only the goroutine
// that removes the client from the map closes its send channel, preventing
// double-close panics during shutdown.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	for _, members := range h.rooms {
		delete(members, client)
	}
	h.mu.Unlock()

	if existed {
		close(client.send)
	}
	h.logger.Debug("client disconnected", "id", client.id, "clients", h.ClientCount())
}

// Join adds a client to a room. Idempotent.
func (h *Hub) Join(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, connected := h.clients[client]; !connected {
		return
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[client] = struct{}{}
}

// Leave removes a client from a room. Leaving a room the client never
// joined is a no-op.
func (h *Hub) Leave(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.rooms[room], client)
}

// InRoom reports whether the client is currently a member of the room.
func (h *Hub) InRoom(client *Client, room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[room][client]
	return ok
}

// Notify sends a bare event envelope to every client in the room. Slow or
// disconnected clients are skipped rather than awaited.
func (h *Hub) Notify(room, eventType string) {
	data, err := json.Marshal(Envelope{Type: eventType})
	if err != nil {
		h.logger.Error("marshalling notification", "event", eventType, "error", err)
		return
	}

	// Snapshot membership under the lock, send outside it.
	h.mu.RLock()
	members := make([]*Client, 0, len(h.rooms[room]))
	for client := range h.rooms[room] {
		members = append(members, client)
	}
	h.mu.RUnlock()

	for _, client := range members {
		client.trySend(data)
	}
	if len(members) > 0 {
		h.logger.Debug("notification sent", "room", room, "event", eventType, "recipients", len(members))
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// closeAll disconnects all clients so their write pumps exit cleanly.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		if client.conn != nil {
			client.conn.Close()
		}
		delete(h.clients, client)
	}
	h.rooms = make(map[string]map[*Client]struct{})
}
