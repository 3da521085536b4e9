// Package dispatch defines the worker transport port.
package dispatch

import (
	"context"

	"github.com/percept-io/percept/internal/domain/classify"
	"github.com/percept-io/percept/internal/domain/worker"
)

// Task is the wire-level request sent to a worker. Only the opaque image
// reference travels; the core never reads raw image bytes.
type Task struct {
	RequestID     string  `json:"request_id"`
	ImageRef      string  `json:"image_ref"`
	Prompt        string  `json:"prompt"`
	MinConfidence float64 `json:"min_confidence"`
}

// Reply is the wire-level worker response.
type Reply struct {
	WorkerID   string          `json:"worker_id"`
	Label      string          `json:"label"`
	Confidence float64         `json:"confidence"`
	TopK       []classify.TopK `json:"top_k,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// Dispatcher sends one classification task to one worker and returns its
// parsed reply. Transport choice (point-to-point HTTP vs broker-mediated
// NATS) is invisible to callers; the execution coordinator folds any
// returned error into a failed Outcome rather than propagating it.
type Dispatcher interface {
	Dispatch(ctx context.Context, target worker.Target, task Task) (*Reply, error)
}
