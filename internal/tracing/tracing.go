// Package tracing wraps the process-wide otel.Tracer used for the small
// set of spans this core instruments: RPC request/response correlation
// (C4) and ensure_indexed waits (C11). No exporter is configured by
// default, so with no SDK wired in by the embedding program these calls
// resolve to the otel no-op tracer and cost nothing beyond a few
// interface dispatches.
//
// Grounded on package-register-trpc-agent-go-extensions's
// telemetry/langfuse.go use of go.opentelemetry.io/otel/trace spans
// around agent work, generalized to this module's RPC/session
// boundaries.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/cxxbridge/cxxbridge"

func tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// Start begins a span named name with attrs, returning the derived context
// and an end function the caller must invoke (typically via defer).
func Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(err error)) {
	ctx, span := tracer().Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}
}
