// Package observability provides the logging, metrics and tracing used
// by uitrace itself: structured logging, metrics, and flush tracing.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry, or Prometheus with NewPrometheusMetrics
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds session context to a logger.
// Returns a new logger with tab_id and trace_id fields.
//
// Example:
//
//	enriched := EnrichLogger(logger, tabID, traceID)
//	enriched.Debug("load ignored") // includes tab_id, trace_id
func EnrichLogger(logger *slog.Logger, tabID, traceID string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("tab_id", tabID),
		slog.String("trace_id", traceID),
	)
}

// LogSessionStart logs a session transition.
func LogSessionStart(logger *slog.Logger, status string, concluded int) {
	if logger == nil {
		return
	}
	logger.Info("session starting",
		slog.String("status", status),
		slog.Int("concluded_events", concluded),
	)
}

// LogAction logs a new user action, which starts a trace.
func LogAction(logger *slog.Logger, traceID, description string) {
	if logger == nil {
		return
	}
	logger.Debug("action recorded",
		slog.String("trace_id", traceID),
		slog.String("description", description),
	)
}

// LogEventDropped logs a call that could not be correlated.
// These are expected and never surface to callers.
func LogEventDropped(logger *slog.Logger, kind, reason string) {
	if logger == nil {
		return
	}
	logger.Debug("event dropped",
		slog.String("event_type", kind),
		slog.String("reason", reason),
	)
}

// LogFlush logs a transmitted batch.
func LogFlush(logger *slog.Logger, endpoint string, events, sizeBytes int) {
	if logger == nil {
		return
	}
	logger.Debug("batch flushed",
		slog.String("endpoint", endpoint),
		slog.Int("events", events),
		slog.Int("size_bytes", sizeBytes),
	)
}

// LogTransmitError logs a failed transmission (non-fatal).
func LogTransmitError(logger *slog.Logger, endpoint string, events int, err error) {
	if logger == nil {
		return
	}
	logger.Warn("batch transmit failed",
		slog.String("endpoint", endpoint),
		slog.Int("events", events),
		slog.String("error", err.Error()),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time.
func TimedOperation() func() time.Duration {
	start := time.Now()
	return func() time.Duration {
		return time.Since(start)
	}
}
