package fanout

import (
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/net/websocket"

	"github.com/kazz187/dispatch/internal/eventbus"
)

const writeTimeout = 10 * time.Second

// Frame is the JSON message written to websocket clients.
type Frame struct {
	Type    string `json:"type"`
	TaskID  string `json:"taskId,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

const FrameSubscribed = "subscribed"

// frameOf renders ev for userID, hiding an anonymous requester.
func frameOf(ev *eventbus.Event, userID string) *Frame {
	payload := ev.Payload
	switch p := ev.Payload.(type) {
	case *eventbus.TaskPayload:
		if p.Task != nil {
			c := *p
			c.Task = p.Task.ViewFor(userID)
			payload = &c
		}
	case *eventbus.EscalationPayload:
		if p.Task != nil {
			c := *p
			c.Task = p.Task.ViewFor(userID)
			payload = &c
		}
	case *eventbus.MessagePayload:
		if p.Task != nil && p.Message != nil {
			c := *p
			c.Message = p.Message.ViewFor(p.Task, userID)
			payload = &c
		}
	}
	return &Frame{Type: string(ev.Type), TaskID: ev.TaskID, Payload: payload}
}

// Handler upgrades GET /ws?user_id=... to a websocket that streams the
// user's events. Clients re-fetch state after reconnecting. The connection is
// hijacked, so the handler must not sit behind the JSON response middleware.
func (h *Hub) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			http.Error(w, "user_id is required", http.StatusBadRequest)
			return
		}
		websocket.Server{Handler: func(ws *websocket.Conn) {
			h.serve(ws, userID)
		}}.ServeHTTP(w, r)
	})
}

func (h *Hub) serve(ws *websocket.Conn, userID string) {
	defer ws.Close()
	ctx := ws.Request().Context()
	c := h.Subscribe(userID)
	defer h.Unsubscribe(c)

	slog.InfoContext(ctx, "websocket connected", "user_id", userID, "conn_id", c.ID)
	defer slog.InfoContext(ctx, "websocket disconnected", "user_id", userID, "conn_id", c.ID)

	// The client never sends anything meaningful; reading detects the close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		var discard string
		for {
			if err := websocket.Message.Receive(ws, &discard); err != nil {
				return
			}
		}
	}()

	if err := h.send(ws, &Frame{Type: FrameSubscribed}); err != nil {
		return
	}
	for {
		select {
		case <-closed:
			return
		case <-ctx.Done():
			return
		case ev, ok := <-c.Events():
			if !ok {
				return
			}
			if err := h.send(ws, frameOf(ev, userID)); err != nil {
				slog.DebugContext(ctx, "websocket write failed", "conn_id", c.ID, "error", err)
				return
			}
		}
	}
}

func (h *Hub) send(ws *websocket.Conn, f *Frame) error {
	if err := ws.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return websocket.JSON.Send(ws, f)
}
