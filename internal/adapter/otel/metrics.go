package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "ticketbridge"

// Metrics holds the sync engine's metric instruments.
type Metrics struct {
	TasksExecuted    metric.Int64Counter
	TasksFailed      metric.Int64Counter
	TasksSkipped     metric.Int64Counter
	OrphansReclaimed metric.Int64Counter
	TaskDuration     metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.TasksExecuted, err = meter.Int64Counter("ticketbridge.tasks.executed",
		metric.WithDescription("Number of sync tasks executed"))
	if err != nil {
		return nil, err
	}

	m.TasksFailed, err = meter.Int64Counter("ticketbridge.tasks.failed",
		metric.WithDescription("Number of sync tasks that ended in error"))
	if err != nil {
		return nil, err
	}

	m.TasksSkipped, err = meter.Int64Counter("ticketbridge.tasks.skipped",
		metric.WithDescription("Number of sync tasks that no-opped (no link, already synced)"))
	if err != nil {
		return nil, err
	}

	m.OrphansReclaimed, err = meter.Int64Counter("ticketbridge.reconcile.orphans",
		metric.WithDescription("Number of orphaned ticket mappings removed by the sweep"))
	if err != nil {
		return nil, err
	}

	m.TaskDuration, err = meter.Float64Histogram("ticketbridge.task.duration_seconds",
		metric.WithDescription("Sync task duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// The recording helpers are nil-safe so callers can run without telemetry.

// RecordExecuted counts one executed task and its duration.
func (m *Metrics) RecordExecuted(ctx context.Context, task string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("task", task))
	m.TasksExecuted.Add(ctx, 1, attrs)
	m.TaskDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordFailed counts one failed task.
func (m *Metrics) RecordFailed(ctx context.Context, task string) {
	if m == nil {
		return
	}
	m.TasksFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("task", task)))
}

// RecordSkipped counts one task that no-opped.
func (m *Metrics) RecordSkipped(ctx context.Context, task string) {
	if m == nil {
		return
	}
	m.TasksSkipped.Add(ctx, 1, metric.WithAttributes(attribute.String("task", task)))
}

// RecordOrphans counts mappings removed by one reconciliation sweep.
func (m *Metrics) RecordOrphans(ctx context.Context, n int64) {
	if m == nil {
		return
	}
	m.OrphansReclaimed.Add(ctx, n)
}
