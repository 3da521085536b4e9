// Package ws implements the WebSocket adapter streaming request lifecycle
// events to dashboards and CLI watchers. Clients may scope their stream to
// a single request with the request_id query parameter.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
)

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// conn wraps a single WebSocket connection. filter, when set, limits
// delivery to events scoped to that request ID.
type conn struct {
	ws     *websocket.Conn
	cancel context.CancelFunc
	filter string
}

// Hub manages active WebSocket connections and fans out lifecycle events.
// Delivery is best-effort; a slow or dead client is dropped, never waited on.
type Hub struct {
	mu    sync.RWMutex
	conns map[*conn]struct{}
}

// NewHub creates a new WebSocket hub.
func NewHub() *Hub {
	return &Hub{
		conns: make(map[*conn]struct{}),
	}
}

// HandleWS upgrades the connection and registers it for broadcasts. A
// request_id query parameter scopes the stream to one request's events.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // CORS handled by middleware
	})
	if err != nil {
		slog.Error("websocket accept failed", "error", err)
		return
	}

	// The handler returns right after the hijack, which cancels
	// r.Context(); the read loop must outlive it.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	c := &conn{ws: ws, cancel: cancel, filter: r.URL.Query().Get("request_id")}

	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()

	slog.Info("websocket connected", "remote", r.RemoteAddr, "request_filter", c.filter)

	// Read loop (to detect disconnects and consume pings)
	go func() {
		defer func() {
			h.remove(c)
			_ = ws.Close(websocket.StatusNormalClosure, "")
		}()
		for {
			if _, _, err := ws.Read(ctx); err != nil {
				return
			}
		}
	}()
}

// Broadcast sends an unscoped message to all connected clients, including
// clients filtered to a single request.
func (h *Hub) Broadcast(ctx context.Context, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("websocket marshal failed", "error", err)
		return
	}
	h.publish(ctx, "", data)
}

// publish fans data out to every connection whose filter matches scope.
// An empty scope reaches everyone; an empty filter accepts everything.
func (h *Hub) publish(ctx context.Context, scope string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.conns {
		if c.filter != "" && scope != "" && c.filter != scope {
			continue
		}
		if err := c.ws.Write(ctx, websocket.MessageText, data); err != nil {
			slog.Debug("websocket write failed", "error", err)
			go h.remove(c)
		}
	}
}

// ConnectionCount returns the number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) remove(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[c]; ok {
		c.cancel()
		delete(h.conns, c)
		slog.Info("websocket disconnected")
	}
}
