// Package observability defines the abstract sink the retrieval core emits
// through. The core never imports a concrete logging, metrics, or tracing
// backend directly — only these interfaces, so callers can wire in
// whatever backend their deployment uses (stdlib logger, Prometheus,
// OpenTelemetry, or a no-op for tests).
package observability

import "time"

// Logger is a structured logger. Field maps carry contextual key/value
// pairs; implementations must not log raw query text beyond a sanitized
// short prefix and must never log PII.
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})

	WithPrefix(prefix string) Logger
	With(fields map[string]interface{}) Logger
}

// MetricsClient records the counters, gauges, and histograms named in
// spec §4.M: request counters, per-stage durations, cache hit/miss
// counters per namespace, breaker state gauge per backend, in-flight
// gauge.
type MetricsClient interface {
	IncrementCounter(name string, value float64, labels map[string]string)
	RecordGauge(name string, value float64, labels map[string]string)
	RecordHistogram(name string, value float64, labels map[string]string)
	RecordDuration(name string, duration time.Duration, labels map[string]string)
}

// Span represents one traced unit of work.
type Span interface {
	End()
	SetAttribute(key string, value interface{})
	RecordError(err error)
}

// Tracer starts spans. Implementations that do not support tracing may
// return a no-op Span from StartSpan.
type Tracer interface {
	StartSpan(name string) Span
}
