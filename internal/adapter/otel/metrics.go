package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "percept"

// Metrics holds all orchestration metric instruments.
type Metrics struct {
	RequestsSubmitted metric.Int64Counter
	RequestsCompleted metric.Int64Counter
	RequestsFailed    metric.Int64Counter
	Replans           metric.Int64Counter
	Dispatches        metric.Int64Counter
	DispatchFailures  metric.Int64Counter
	RequestDuration   metric.Float64Histogram
	WorkerLatency     metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.RequestsSubmitted, err = meter.Int64Counter("percept.requests.submitted",
		metric.WithDescription("Number of classification requests accepted"))
	if err != nil {
		return nil, err
	}

	m.RequestsCompleted, err = meter.Int64Counter("percept.requests.completed",
		metric.WithDescription("Number of requests reaching COMPLETED or COMPLETED_WITH_WARNING"))
	if err != nil {
		return nil, err
	}

	m.RequestsFailed, err = meter.Int64Counter("percept.requests.failed",
		metric.WithDescription("Number of requests reaching FAILED"))
	if err != nil {
		return nil, err
	}

	m.Replans, err = meter.Int64Counter("percept.replans",
		metric.WithDescription("Number of replan iterations scheduled"))
	if err != nil {
		return nil, err
	}

	m.Dispatches, err = meter.Int64Counter("percept.dispatches",
		metric.WithDescription("Number of tasks dispatched to workers"))
	if err != nil {
		return nil, err
	}

	m.DispatchFailures, err = meter.Int64Counter("percept.dispatch.failures",
		metric.WithDescription("Number of dispatches ending in a failed outcome"))
	if err != nil {
		return nil, err
	}

	m.RequestDuration, err = meter.Float64Histogram("percept.request.duration_seconds",
		metric.WithDescription("End-to-end request duration in seconds"))
	if err != nil {
		return nil, err
	}

	m.WorkerLatency, err = meter.Float64Histogram("percept.worker.latency_seconds",
		metric.WithDescription("Per-dispatch worker latency in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
