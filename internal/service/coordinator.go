package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/percept-io/percept/internal/adapter/otel"
	"github.com/percept-io/percept/internal/domain/classify"
	"github.com/percept-io/percept/internal/domain/worker"
	"github.com/percept-io/percept/internal/port/dispatch"
)

// Coordinator fans one task out to every resolved target concurrently and
// folds each reply or failure into an Outcome. Dispatch failures never
// escalate as errors; a slow or broken worker costs only its own outcome.
type Coordinator struct {
	dispatcher dispatch.Dispatcher
	timeout    time.Duration // per-dispatch ceiling
	logger     *slog.Logger
}

// NewCoordinator creates an execution coordinator.
func NewCoordinator(d dispatch.Dispatcher, timeout time.Duration, logger *slog.Logger) *Coordinator {
	return &Coordinator{dispatcher: d, timeout: timeout, logger: logger}
}

// Execute dispatches the task to all targets in parallel. The result slice
// is indexed like targets, one settled outcome per target, in order.
func (c *Coordinator) Execute(ctx context.Context, targets []worker.Target, task dispatch.Task) []classify.Outcome {
	outcomes := make([]classify.Outcome, len(targets))

	g, ctx := errgroup.WithContext(ctx)
	for i, target := range targets {
		g.Go(func() error {
			outcomes[i] = c.dispatchOne(ctx, target, task)
			return nil
		})
	}
	_ = g.Wait() // workers never return errors, only outcomes

	return outcomes
}

func (c *Coordinator) dispatchOne(ctx context.Context, target worker.Target, task dispatch.Task) classify.Outcome {
	ctx, span := otel.StartDispatchSpan(ctx, target.ID, string(target.Domain))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	reply, err := c.dispatcher.Dispatch(ctx, target, task)
	latency := time.Since(start)

	out := classify.Outcome{
		WorkerID:     target.ID,
		WorkerDomain: target.Domain,
		Latency:      latency,
	}

	switch {
	case err != nil:
		if errors.Is(err, context.DeadlineExceeded) {
			out.Err = classify.ErrTimeout
		} else {
			out.Err = err.Error()
		}
		c.logger.Warn("dispatch failed",
			"worker", target.ID, "domain", target.Domain, "latency", latency, "error", out.Err)
	case reply.Error != "":
		out.Err = reply.Error
		c.logger.Warn("worker reported error",
			"worker", target.ID, "domain", target.Domain, "error", reply.Error)
	default:
		out.Label = reply.Label
		out.Confidence = reply.Confidence
		out.TopK = reply.TopK
	}
	return out
}
