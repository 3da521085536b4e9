package ws

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Event type constants for WebSocket messages.
const (
	EventRequestPhase  = "request.phase"
	EventRequestDone   = "request.done"
	EventRequestReplan = "request.replan"
)

// PhaseEvent is broadcast on every state machine transition.
type PhaseEvent struct {
	RequestID string `json:"request_id"`
	Phase     string `json:"phase"`
	Iteration int    `json:"iteration"`
}

// ReplanEvent is broadcast when the reflector schedules another iteration.
type ReplanEvent struct {
	RequestID string `json:"request_id"`
	Iteration int    `json:"iteration"`
	Reason    string `json:"reason"`
}

// DoneEvent is broadcast when a request reaches a terminal status.
type DoneEvent struct {
	RequestID  string  `json:"request_id"`
	Status     string  `json:"status"`
	Label      string  `json:"label,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Warning    string  `json:"warning,omitempty"`
}

// requestScoped is implemented by events belonging to one request, so the
// hub can honor per-request stream filters.
type requestScoped interface {
	requestID() string
}

func (e PhaseEvent) requestID() string  { return e.RequestID }
func (e ReplanEvent) requestID() string { return e.RequestID }
func (e DoneEvent) requestID() string   { return e.RequestID }

// BroadcastEvent marshals a typed event and broadcasts it under eventType.
// Events carrying a request ID only reach clients watching that request
// or watching everything.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	msg, err := json.Marshal(Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	})
	if err != nil {
		slog.Error("marshal ws event envelope", "type", eventType, "error", err)
		return
	}

	var scope string
	if rs, ok := payload.(requestScoped); ok {
		scope = rs.requestID()
	}
	h.publish(ctx, scope, msg)
}
