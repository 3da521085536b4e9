// Package httprpc implements the worker transport over point-to-point HTTP.
// Each worker exposes POST {endpoint}/v1/classify; calls are guarded by a
// per-worker circuit breaker so one flapping worker cannot burn the budget
// of every iteration.
package httprpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/percept-io/percept/internal/domain/worker"
	"github.com/percept-io/percept/internal/port/dispatch"
	"github.com/percept-io/percept/internal/resilience"
)

// BreakerConfig sizes the per-worker circuit breakers.
type BreakerConfig struct {
	MaxFailures int
	Cooldown    time.Duration
}

// Dispatcher sends classification tasks to workers over HTTP.
type Dispatcher struct {
	client  *http.Client
	breaker BreakerConfig

	mu       sync.Mutex
	breakers map[string]*resilience.Breaker
}

// New creates an HTTP dispatcher. The client's own timeout is left unset;
// the per-dispatch context carries the deadline.
func New(bc BreakerConfig) *Dispatcher {
	return &Dispatcher{
		client:   &http.Client{},
		breaker:  bc,
		breakers: make(map[string]*resilience.Breaker),
	}
}

// Dispatch POSTs the task to the worker's classify endpoint.
func (d *Dispatcher) Dispatch(ctx context.Context, target worker.Target, task dispatch.Task) (*dispatch.Reply, error) {
	var reply *dispatch.Reply
	err := d.breakerFor(target.ID).Execute(func() error {
		var callErr error
		reply, callErr = d.call(ctx, target, task)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return reply, nil
}

func (d *Dispatcher) call(ctx context.Context, target worker.Target, task dispatch.Task) (*dispatch.Reply, error) {
	payload, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("encode task: %w", err)
	}

	url := target.Endpoint + "/v1/classify"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", target.ID, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call worker %s: %w", target.ID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read reply from %s: %w", target.ID, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("worker %s returned status %d", target.ID, resp.StatusCode)
	}

	var reply dispatch.Reply
	if err := json.Unmarshal(body, &reply); err != nil {
		return nil, fmt.Errorf("decode reply from %s: %w", target.ID, err)
	}
	if reply.WorkerID == "" {
		reply.WorkerID = target.ID
	}
	return &reply, nil
}

func (d *Dispatcher) breakerFor(workerID string) *resilience.Breaker {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.breakers[workerID]
	if !ok {
		b = resilience.NewBreaker(d.breaker.MaxFailures, d.breaker.Cooldown)
		d.breakers[workerID] = b
	}
	return b
}

var _ dispatch.Dispatcher = (*Dispatcher)(nil)
