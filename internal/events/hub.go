// Package events pushes session changes (logout, rotation, replayed refresh
// tokens) to a user's open WebSocket connections.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vidtube/accounts/internal/logger"
	"github.com/vidtube/accounts/internal/metrics"
)

// Event is one session change.
type Event struct {
	Type   string    `json:"type"`
	UserID uuid.UUID `json:"-"` // routing only
	At     time.Time `json:"at"`
}

// Hub maintains the set of active clients and fans events out to them.
type Hub struct {
	// Registered clients by user ID
	clients map[uuid.UUID]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *Event
	done       chan struct{}

	metrics *metrics.Metrics
	log     *logger.Logger
	mu      sync.RWMutex
}

// NewHub creates a Hub. A nil m uses the process-wide metrics.
func NewHub(m *metrics.Metrics) *Hub {
	if m == nil {
		m = metrics.Default()
	}
	return &Hub{
		clients:    make(map[uuid.UUID]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Event, 256),
		done:       make(chan struct{}),
		metrics:    m,
		log:        logger.Default().WithComponent("events"),
	}
}

// Run is the hub's main loop. It returns when ctx is done, closing every
// client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for _, clients := range h.clients {
				for client := range clients {
					h.dropLocked(client)
				}
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.userID] == nil {
				h.clients[client.userID] = make(map[*Client]bool)
			}
			h.clients[client.userID][client] = true
			h.mu.Unlock()
			h.metrics.IncSessionStreams()

		case client := <-h.unregister:
			h.mu.Lock()
			h.dropLocked(client)
			h.mu.Unlock()

		case ev := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients[ev.UserID] {
				select {
				case client.send <- ev:
				default:
					// Slow client.
					h.dropLocked(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// dropLocked removes client and closes its send channel. Callers hold mu.
func (h *Hub) dropLocked(client *Client) {
	clients, ok := h.clients[client.userID]
	if !ok || !clients[client] {
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.clients, client.userID)
	}
	h.metrics.DecSessionStreams()
}

// Publish queues ev for delivery. It never blocks; events are dropped when
// the queue is full.
func (h *Hub) Publish(ev *Event) {
	select {
	case h.broadcast <- ev:
	default:
		h.log.Warn(context.Background(), "session event dropped", map[string]any{"type": ev.Type})
	}
}

// Notify publishes a session event of the given kind for userID.
func (h *Hub) Notify(userID uuid.UUID, kind string) {
	h.Publish(&Event{Type: kind, UserID: userID, At: time.Now().UTC()})
}

// ClientCount returns the number of connected clients for a user.
func (h *Hub) ClientCount(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// TotalClients returns the total number of connected clients.
func (h *Hub) TotalClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	count := 0
	for _, clients := range h.clients {
		count += len(clients)
	}
	return count
}
