// Package observability provides an extension that exports batch
// lifecycle metrics through OpenTelemetry. Register it alongside other
// extensions; with no MeterProvider configured the instruments are
// noops and the extension costs nothing.
package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/stride/record"
	"github.com/xraph/stride/unit"
)

// meterName is the instrumentation scope name for stride metrics.
const meterName = "github.com/xraph/stride"

// Metrics is an extension recording batch lifecycle counters:
//
//   - stride.batch.runs (Int64Counter): started/resumed/finished/failed/requeued
//     per batch key, tagged with phase
//   - stride.batch.items (Int64Counter): items processed per batch key
//   - stride.batch.run_duration (Float64Histogram): finished-run duration
//     in seconds per batch key
type Metrics struct {
	runs     metric.Int64Counter
	items    metric.Int64Counter
	duration metric.Float64Histogram
}

// NewMetrics creates the extension using the global OTel MeterProvider.
func NewMetrics() *Metrics {
	return NewMetricsWithMeter(otel.Meter(meterName))
}

// NewMetricsWithMeter creates the extension using the provided meter.
// This variant allows injecting a specific MeterProvider for testing.
func NewMetricsWithMeter(meter metric.Meter) *Metrics {
	runs, rErr := meter.Int64Counter(
		"stride.batch.runs",
		metric.WithDescription("Batch run lifecycle transitions"),
		metric.WithUnit("{run}"),
	)
	_ = rErr // noop fallback guaranteed by OTel API contract

	items, iErr := meter.Int64Counter(
		"stride.batch.items",
		metric.WithDescription("Items processed across partial executions"),
		metric.WithUnit("{item}"),
	)
	_ = iErr // noop fallback guaranteed by OTel API contract

	duration, dErr := meter.Float64Histogram(
		"stride.batch.run_duration",
		metric.WithDescription("Duration of finished batch runs in seconds"),
		metric.WithUnit("s"),
	)
	_ = dErr // noop fallback guaranteed by OTel API contract

	return &Metrics{runs: runs, items: items, duration: duration}
}

// Name implements ext.Extension.
func (m *Metrics) Name() string { return "observability.metrics" }

func (m *Metrics) record(ctx context.Context, u *unit.Unit, phase string) {
	m.runs.Add(ctx, 1, metric.WithAttributes(
		attribute.String("batch_key", u.Key()),
		attribute.String("phase", phase),
	))
}

// OnBatchStarted implements ext.BatchStarted.
func (m *Metrics) OnBatchStarted(ctx context.Context, u *unit.Unit, _ *record.Record) error {
	m.record(ctx, u, "started")
	return nil
}

// OnBatchResumed implements ext.BatchResumed.
func (m *Metrics) OnBatchResumed(ctx context.Context, u *unit.Unit, _ *record.Record) error {
	m.record(ctx, u, "resumed")
	return nil
}

// OnChunkCompleted implements ext.ChunkCompleted.
func (m *Metrics) OnChunkCompleted(ctx context.Context, u *unit.Unit, processed int, _ string) error {
	if processed > 0 {
		m.items.Add(ctx, int64(processed), metric.WithAttributes(
			attribute.String("batch_key", u.Key()),
		))
	}
	return nil
}

// OnBatchFinished implements ext.BatchFinished.
func (m *Metrics) OnBatchFinished(ctx context.Context, u *unit.Unit, _ *record.Record, elapsed time.Duration) error {
	m.record(ctx, u, "finished")
	m.duration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
		attribute.String("batch_key", u.Key()),
	))
	return nil
}

// OnBatchFailed implements ext.BatchFailed.
func (m *Metrics) OnBatchFailed(ctx context.Context, u *unit.Unit, _ error) error {
	m.record(ctx, u, "failed")
	return nil
}

// OnBatchRequeued implements ext.BatchRequeued.
func (m *Metrics) OnBatchRequeued(ctx context.Context, u *unit.Unit, _ int, _ time.Time) error {
	m.record(ctx, u, "requeued")
	return nil
}
