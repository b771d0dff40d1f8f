package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// otelSpan adapts an OpenTelemetry trace.Span to the narrower Span
// interface this package exposes to the retrieval core. No exporter is
// wired here — exporter configuration is observability plumbing, out of
// the core's scope (spec §1); callers who want spans to go anywhere
// install a TracerProvider globally via otel.SetTracerProvider before
// constructing an OtelTracer.
type otelSpan struct {
	span trace.Span
}

func (s otelSpan) End() { s.span.End() }

func (s otelSpan) SetAttribute(key string, value interface{}) {
	switch v := value.(type) {
	case string:
		s.span.SetAttributes(attribute.String(key, v))
	case int:
		s.span.SetAttributes(attribute.Int(key, v))
	case int64:
		s.span.SetAttributes(attribute.Int64(key, v))
	case float64:
		s.span.SetAttributes(attribute.Float64(key, v))
	case bool:
		s.span.SetAttributes(attribute.Bool(key, v))
	default:
		s.span.SetAttributes(attribute.String(key, fmt.Sprintf("%v", value)))
	}
}

func (s otelSpan) RecordError(err error) {
	if err == nil {
		return
	}
	s.span.RecordError(err)
}

// OtelTracer starts spans against a named OpenTelemetry tracer.
type OtelTracer struct {
	tracer trace.Tracer
}

// NewOtelTracer creates a Tracer backed by the currently installed global
// TracerProvider (a no-op provider if none was installed).
func NewOtelTracer(name string) Tracer {
	return &OtelTracer{tracer: otel.Tracer(name)}
}

func (t *OtelTracer) StartSpan(name string) Span {
	_, span := t.tracer.Start(context.Background(), name)
	return otelSpan{span: span}
}
