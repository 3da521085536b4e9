// Package broadcast defines the live event fan-out port.
package broadcast

import "context"

// Broadcaster pushes typed events to all connected observers. Broadcasts
// are fire-and-forget; delivery is best-effort and never blocks the
// orchestrator.
type Broadcaster interface {
	BroadcastEvent(ctx context.Context, eventType string, payload any)
}
