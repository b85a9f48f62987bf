package otelx

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// TraceContext is the W3C trace context of a span in string form, for rows
// that are written in one request and published from another goroutine later.
type TraceContext struct {
	Traceparent string
	Tracestate  string
}

// CaptureTraceContext serializes the span context in ctx with the global
// propagator. The zero value is returned when ctx carries no span.
func CaptureTraceContext(ctx context.Context) TraceContext {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return TraceContext{Traceparent: carrier.Get("traceparent"), Tracestate: carrier.Get("tracestate")}
}

func (t TraceContext) IsZero() bool { return t.Traceparent == "" && t.Tracestate == "" }

// Restore returns ctx with t as its remote parent span.
func (t TraceContext) Restore(ctx context.Context) context.Context {
	if t.IsZero() {
		return ctx
	}
	carrier := propagation.MapCarrier{}
	if t.Traceparent != "" {
		carrier.Set("traceparent", t.Traceparent)
	}
	if t.Tracestate != "" {
		carrier.Set("tracestate", t.Tracestate)
	}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}
