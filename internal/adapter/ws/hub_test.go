package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
)

func TestNewHub(t *testing.T) {
	hub := NewHub()
	if hub == nil {
		t.Fatal("expected non-nil hub")
	}
	if hub.ConnectionCount() != 0 {
		t.Fatalf("expected 0 connections, got %d", hub.ConnectionCount())
	}
}

func TestHubBroadcastNoConnections(t *testing.T) {
	hub := NewHub()

	// Broadcast with no connections should not panic.
	hub.Broadcast(context.Background(), Message{
		Type:    "test",
		Payload: []byte(`{"key":"value"}`),
	})
}

func TestHubBroadcastEventNoConnections(t *testing.T) {
	hub := NewHub()

	// BroadcastEvent with no connections should not panic.
	hub.BroadcastEvent(context.Background(), EventRequestPhase, PhaseEvent{
		RequestID: "r1",
		Phase:     "intent",
		Iteration: 1,
	})
}

func TestHubBroadcastEventMarshalError(t *testing.T) {
	hub := NewHub()

	// A channel cannot be marshaled to JSON; should log, not panic.
	hub.BroadcastEvent(context.Background(), "bad", make(chan int))
}

func TestHubRemoveNonexistent(t *testing.T) {
	hub := NewHub()

	// Removing a connection that was never added should not panic.
	_, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := &conn{ws: nil, cancel: cancel, filter: "r1"}
	hub.remove(c)
}

func TestRequestFilterScopesDelivery(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	client, _, err := websocket.Dial(ctx, srv.URL+"?request_id=r1", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close(websocket.StatusNormalClosure, "")

	awaitConnections(t, hub, 1)

	// The event for another request must be filtered out; only r1 arrives.
	hub.BroadcastEvent(ctx, EventRequestPhase, PhaseEvent{RequestID: "r2", Phase: "intent", Iteration: 1})
	hub.BroadcastEvent(ctx, EventRequestPhase, PhaseEvent{RequestID: "r1", Phase: "execute", Iteration: 1})

	_, data, err := client.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if msg.Type != EventRequestPhase {
		t.Fatalf("unexpected message type %q", msg.Type)
	}
	var ev PhaseEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if ev.RequestID != "r1" || ev.Phase != "execute" {
		t.Fatalf("filtered client received foreign event: %+v", ev)
	}
}

func TestUnfilteredClientReceivesAllRequests(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	client, _, err := websocket.Dial(ctx, srv.URL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close(websocket.StatusNormalClosure, "")

	awaitConnections(t, hub, 1)

	hub.BroadcastEvent(ctx, EventRequestDone, DoneEvent{RequestID: "r1", Status: "COMPLETED"})
	hub.BroadcastEvent(ctx, EventRequestDone, DoneEvent{RequestID: "r2", Status: "FAILED"})

	seen := map[string]bool{}
	for range 2 {
		_, data, err := client.Read(ctx)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("decode envelope: %v", err)
		}
		var ev DoneEvent
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		seen[ev.RequestID] = true
	}
	if !seen["r1"] || !seen["r2"] {
		t.Fatalf("unfiltered client missed events: %v", seen)
	}
}

func awaitConnections(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.ConnectionCount() == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("never reached %d connections", want)
}
