package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// setupTracingTest installs an in-memory span exporter for the test.
func setupTracingTest(t *testing.T) (*tracetest.InMemoryExporter, func()) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
	)

	originalProvider := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	tracer = otel.Tracer("eventbus")

	cleanup := func() {
		otel.SetTracerProvider(originalProvider)
		if err := tp.Shutdown(context.Background()); err != nil {
			t.Logf("Error shutting down tracer provider: %v", err)
		}
	}
	return exporter, cleanup
}

func TestStartSendSpan(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	m := NewSpanManager()

	ctx, span := m.StartSendSpan(context.Background(), "global", "main.Coin")
	require.NotNil(t, span)
	assert.True(t, span.SpanContext().IsValid())
	m.AddSpanEvent(ctx, "subscriber.fault", attribute.String("subscriber", "score"))
	m.EndSpanWithError(span, nil)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)

	s := spans[0]
	assert.Equal(t, "eventbus.send", s.Name)
	assert.Equal(t, codes.Ok, s.Status.Code)

	attrs := map[attribute.Key]string{}
	for _, attr := range s.Attributes {
		attrs[attr.Key] = attr.Value.AsString()
	}
	assert.Equal(t, "global", attrs["bus.name"])
	assert.Equal(t, "main.Coin", attrs["event.type"])

	require.Len(t, s.Events, 1)
	assert.Equal(t, "subscriber.fault", s.Events[0].Name)
}

func TestEndSpanWithError(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	m := NewSpanManager()

	_, span := m.StartSendSpan(context.Background(), "global", "main.Coin")
	m.EndSpanWithError(span, errors.New("subscriber fault"))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Equal(t, "subscriber fault", spans[0].Status.Description)

	assert.NotPanics(t, func() { m.EndSpanWithError(nil, nil) })
}

func TestAddSpanEventWithoutSpan(t *testing.T) {
	assert.NotPanics(t, func() {
		NewSpanManager().AddSpanEvent(context.Background(), "nothing")
	})
}
