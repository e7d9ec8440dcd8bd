package gateway

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
)

// ErrGone reports a push to a connection this instance no longer holds.
// The broadcaster treats it as a disconnect signal and reconciles the
// connection's store state.
var ErrGone = errors.New("gateway: connection gone")

// hub tracks the live connections on this instance.
type hub struct {
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[string]*client

	dropped atomic.Int64 // slow-consumer closes
}

func newHub(logger *slog.Logger) *hub {
	return &hub{
		logger:  logger,
		clients: make(map[string]*client),
	}
}

func (h *hub) add(c *client) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
}

// remove drops the client from the hub. Returns false if another
// goroutine already removed it.
func (h *hub) remove(connID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[connID]; !ok {
		return false
	}
	delete(h.clients, connID)
	return true
}

func (h *hub) get(connID string) (*client, bool) {
	h.mu.RLock()
	c, ok := h.clients[connID]
	h.mu.RUnlock()
	return c, ok
}

func (h *hub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Push queues data for a connection. A full send queue means the client
// cannot keep up with the broadcast rate; it is closed rather than
// allowed to stall the fan-out.
func (h *hub) Push(connID string, data []byte) error {
	c, ok := h.get(connID)
	if !ok {
		return ErrGone
	}

	select {
	case c.send <- data:
		return nil
	default:
		h.logger.Warn("send queue full, dropping slow consumer",
			"conn_id", connID,
			"user_id", c.userID,
		)
		h.dropped.Add(1)
		c.close()
		return ErrGone
	}
}
