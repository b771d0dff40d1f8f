package observability

import "time"

// NoopLogger discards everything. Useful for tests and for components
// constructed without an explicit logger.
type NoopLogger struct{}

func NewNoopLogger() Logger { return NoopLogger{} }

func (NoopLogger) Debug(string, map[string]interface{}) {}
func (NoopLogger) Info(string, map[string]interface{})  {}
func (NoopLogger) Warn(string, map[string]interface{})  {}
func (NoopLogger) Error(string, map[string]interface{}) {}
func (l NoopLogger) WithPrefix(string) Logger            { return l }
func (l NoopLogger) With(map[string]interface{}) Logger  { return l }

// NoopMetrics discards everything.
type NoopMetrics struct{}

func NewNoopMetrics() MetricsClient { return NoopMetrics{} }

func (NoopMetrics) IncrementCounter(string, float64, map[string]string)     {}
func (NoopMetrics) RecordGauge(string, float64, map[string]string)          {}
func (NoopMetrics) RecordHistogram(string, float64, map[string]string)      {}
func (NoopMetrics) RecordDuration(string, time.Duration, map[string]string) {}

// NoopSpan discards everything.
type NoopSpan struct{}

func (NoopSpan) End()                             {}
func (NoopSpan) SetAttribute(string, interface{}) {}
func (NoopSpan) RecordError(error)                {}

// NoopTracer returns NoopSpan from every StartSpan call.
type NoopTracer struct{}

func NewNoopTracer() Tracer { return NoopTracer{} }

func (NoopTracer) StartSpan(string) Span { return NoopSpan{} }
