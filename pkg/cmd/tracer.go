package cmd

import (
	"context"

	"github.com/dukex/graphroute/pkg/otelhelper"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// nolint:ireturn // tracers are only available as interfaces
func NewTracer(ctx context.Context, enabled bool, serviceName string) (trace.Tracer, error) {
	if !enabled {
		return noop.NewTracerProvider().Tracer(serviceName), nil
	}

	return otelhelper.NewTracer(ctx, serviceName)
}
