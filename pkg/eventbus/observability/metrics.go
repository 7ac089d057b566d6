package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records event bus metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordDispatch records one Raise or Send with the number of subscribers
	// that reacted and how long the whole dispatch took.
	RecordDispatch(ctx context.Context, eventType string, receivers int, duration time.Duration)

	// RecordFault records a subscriber panic.
	RecordFault(ctx context.Context, eventType, subscriber string)

	// RecordSubscription records subscribers joining (+1) or leaving (-1).
	RecordSubscription(ctx context.Context, eventType string, delta int64)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	dispatches    metric.Int64Counter
	receivers     metric.Int64Histogram
	latency       metric.Float64Histogram
	faults        metric.Int64Counter
	subscriptions metric.Int64UpDownCounter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics lazily creates the shared OTel instruments.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("eventbus")

	dispatches, err := meter.Int64Counter("eventbus.dispatch.count",
		metric.WithDescription("Number of Raise and Send calls"),
	)
	if err != nil {
		return nil, err
	}

	receivers, err := meter.Int64Histogram("eventbus.dispatch.receivers",
		metric.WithDescription("Subscribers reached per dispatch"),
	)
	if err != nil {
		return nil, err
	}

	latency, err := meter.Float64Histogram("eventbus.dispatch.latency_us",
		metric.WithDescription("Dispatch latency in microseconds"),
		metric.WithUnit("us"),
	)
	if err != nil {
		return nil, err
	}

	faults, err := meter.Int64Counter("eventbus.subscriber.faults",
		metric.WithDescription("Number of subscriber panics caught during dispatch"),
	)
	if err != nil {
		return nil, err
	}

	subscriptions, err := meter.Int64UpDownCounter("eventbus.subscriptions",
		metric.WithDescription("Currently registered subscribers"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		dispatches:    dispatches,
		receivers:     receivers,
		latency:       latency,
		faults:        faults,
		subscriptions: subscriptions,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordDispatch records a dispatch.
func (m *otelMetrics) RecordDispatch(ctx context.Context, eventType string, receivers int, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.String("event_type", eventType))
	m.dispatches.Add(ctx, 1, attrs)
	m.receivers.Record(ctx, int64(receivers), attrs)
	m.latency.Record(ctx, float64(duration.Nanoseconds())/1e3, attrs)
}

// RecordFault records a subscriber fault.
func (m *otelMetrics) RecordFault(ctx context.Context, eventType, subscriber string) {
	m.faults.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.String("subscriber", subscriber),
	))
}

// RecordSubscription records a change in the number of subscribers.
func (m *otelMetrics) RecordSubscription(ctx context.Context, eventType string, delta int64) {
	m.subscriptions.Add(ctx, delta, metric.WithAttributes(
		attribute.String("event_type", eventType),
	))
}
