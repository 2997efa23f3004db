package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "trackd"

// Metrics holds all TrackLane metric instruments.
type Metrics struct {
	TasksCreated    metric.Int64Counter
	TaskTransitions metric.Int64Counter
	TransitionsDenied metric.Int64Counter
	ReferenceWrites metric.Int64Counter
	PackDuration    metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.TasksCreated, err = meter.Int64Counter("trackd.tasks.created",
		metric.WithDescription("Number of tasks created"))
	if err != nil {
		return nil, err
	}

	m.TaskTransitions, err = meter.Int64Counter("trackd.tasks.transitions",
		metric.WithDescription("Number of task state transitions applied"))
	if err != nil {
		return nil, err
	}

	m.TransitionsDenied, err = meter.Int64Counter("trackd.tasks.transitions_denied",
		metric.WithDescription("Number of task state transitions rejected by the guard"))
	if err != nil {
		return nil, err
	}

	m.ReferenceWrites, err = meter.Int64Counter("trackd.references.writes",
		metric.WithDescription("Number of reference package writes"))
	if err != nil {
		return nil, err
	}

	m.PackDuration, err = meter.Float64Histogram("trackd.pack.duration_seconds",
		metric.WithDescription("Task packing duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
