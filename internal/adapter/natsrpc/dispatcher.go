// Package natsrpc implements the worker transport over NATS request-reply.
// Each worker subscribes on its own subject (its registry endpoint field);
// the core publishes a task and waits for the single reply.
package natsrpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/percept-io/percept/internal/domain/worker"
	"github.com/percept-io/percept/internal/port/dispatch"
)

// Dispatcher sends classification tasks over core NATS request-reply.
type Dispatcher struct {
	nc *nats.Conn
}

// New creates a NATS-backed dispatcher.
func New(nc *nats.Conn) *Dispatcher {
	return &Dispatcher{nc: nc}
}

// Dispatch publishes the task on the target's subject and decodes the reply.
// The context deadline bounds the whole exchange.
func (d *Dispatcher) Dispatch(ctx context.Context, target worker.Target, task dispatch.Task) (*dispatch.Reply, error) {
	payload, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("encode task: %w", err)
	}

	msg, err := d.nc.RequestWithContext(ctx, target.Endpoint, payload)
	if err != nil {
		return nil, fmt.Errorf("request worker %s: %w", target.ID, err)
	}

	var reply dispatch.Reply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return nil, fmt.Errorf("decode reply from %s: %w", target.ID, err)
	}
	if reply.WorkerID == "" {
		reply.WorkerID = target.ID
	}
	return &reply, nil
}

var _ dispatch.Dispatcher = (*Dispatcher)(nil)
