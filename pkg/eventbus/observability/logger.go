// Package observability provides logging, metrics and tracing hooks for the
// event bus.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds bus context to a logger.
//
// Example:
//
//	enriched := EnrichLogger(logger, "hud")
//	enriched.Debug("connected") // includes bus=hud
func EnrichLogger(logger *slog.Logger, busName string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(slog.String("bus", busName))
}

// LogSubscribe logs a subscriber joining a bus or registry.
func LogSubscribe(logger *slog.Logger, bus, subscriber, eventType string, priority int) {
	if logger == nil {
		return
	}
	logger.Debug("subscriber added",
		slog.String("bus", bus),
		slog.String("subscriber", subscriber),
		slog.String("event_type", eventType),
		slog.Int("priority", priority),
	)
}

// LogUnsubscribe logs a subscriber leaving a bus or registry.
func LogUnsubscribe(logger *slog.Logger, bus, subscriber, eventType string) {
	if logger == nil {
		return
	}
	logger.Debug("subscriber removed",
		slog.String("bus", bus),
		slog.String("subscriber", subscriber),
		slog.String("event_type", eventType),
	)
}

// LogConnect logs a bus joining (or leaving) an upstream bus.
func LogConnect(logger *slog.Logger, bus, upstream string, connected bool) {
	if logger == nil {
		return
	}
	msg := "bus connected"
	if !connected {
		msg = "bus disconnected"
	}
	logger.Debug(msg,
		slog.String("bus", bus),
		slog.String("upstream", upstream),
	)
}

// LogFault logs a panic raised by a subscriber during dispatch.
func LogFault(logger *slog.Logger, bus, subscriber, eventType string, value any, stack string) {
	if logger == nil {
		return
	}
	logger.Error("subscriber fault",
		slog.String("bus", bus),
		slog.String("subscriber", subscriber),
		slog.String("event_type", eventType),
		slog.Any("panic", value),
		slog.String("stack", stack),
	)
}

// LogSlowSubscriber logs a subscriber whose reaction exceeded the threshold.
func LogSlowSubscriber(logger *slog.Logger, subscriber, eventType string, took, threshold time.Duration) {
	if logger == nil {
		return
	}
	logger.Warn("slow subscriber",
		slog.String("subscriber", subscriber),
		slog.String("event_type", eventType),
		slog.Duration("took", took),
		slog.Duration("threshold", threshold),
	)
}

// LogForwardDepth logs a send that was cut off by the forward depth limit,
// which usually means two buses are subscribed to each other.
func LogForwardDepth(logger *slog.Logger, bus, eventType string, depth int) {
	if logger == nil {
		return
	}
	logger.Error("forward depth exceeded",
		slog.String("bus", bus),
		slog.String("event_type", eventType),
		slog.Int("depth", depth),
	)
}

// LogReset logs a bulk reset of all registrations.
func LogReset(logger *slog.Logger, registries, buses int) {
	if logger == nil {
		return
	}
	logger.Info("event bus reset",
		slog.Int("registries", registries),
		slog.Int("buses", buses),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	took := done()
func TimedOperation() func() time.Duration {
	start := time.Now()
	return func() time.Duration {
		return time.Since(start)
	}
}
