package fanout

import (
	"context"
	"log/slog"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/kazz187/dispatch/internal/eventbus"
)

const connBufferSize = 64

// Conn is one live connection of a user. A user may hold several.
type Conn struct {
	ID     string
	UserID string
	events chan *eventbus.Event
}

// Events yields the events addressed to the connection's user. It is closed
// when the connection is unsubscribed.
func (c *Conn) Events() <-chan *eventbus.Event {
	return c.events
}

// Hub delivers bus events to the live connections of each event's
// recipients. Delivery is at most once: a full connection buffer drops the
// event for that connection only, and nothing is replayed.
type Hub struct {
	bus   *eventbus.Bus
	mu    sync.RWMutex
	conns map[string]map[string]*Conn
}

func NewHub(bus *eventbus.Bus) *Hub {
	return &Hub{
		bus:   bus,
		conns: make(map[string]map[string]*Conn),
	}
}

func (h *Hub) Subscribe(userID string) *Conn {
	c := &Conn{
		ID:     ulid.Make().String(),
		UserID: userID,
		events: make(chan *eventbus.Event, connBufferSize),
	}
	h.mu.Lock()
	if h.conns[userID] == nil {
		h.conns[userID] = make(map[string]*Conn)
	}
	h.conns[userID][c.ID] = c
	h.mu.Unlock()
	return c
}

func (h *Hub) Unsubscribe(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	userConns, ok := h.conns[c.UserID]
	if !ok {
		return
	}
	if _, ok := userConns[c.ID]; !ok {
		return
	}
	delete(userConns, c.ID)
	close(c.events)
	if len(userConns) == 0 {
		delete(h.conns, c.UserID)
	}
}

// Connections reports how many live connections userID holds.
func (h *Hub) Connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[userID])
}

// Deliver sends event to every connection of every recipient.
func (h *Hub) Deliver(event *eventbus.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	seen := make(map[string]struct{}, len(event.Recipients))
	for _, userID := range event.Recipients {
		if userID == "" {
			continue
		}
		if _, dup := seen[userID]; dup {
			continue
		}
		seen[userID] = struct{}{}
		for _, c := range h.conns[userID] {
			select {
			case c.events <- event:
			default:
				slog.Warn("dropping event for slow connection", "user_id", userID, "conn_id", c.ID, "type", event.Type)
			}
		}
	}
}

// Start forwards bus events until ctx is done.
func (h *Hub) Start(ctx context.Context) {
	subID, ch := h.bus.Subscribe(256)
	defer h.bus.Unsubscribe(subID)

	slog.Info("notification fanout started")
	for {
		select {
		case <-ctx.Done():
			slog.Info("notification fanout stopped")
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			h.Deliver(event)
		}
	}
}
