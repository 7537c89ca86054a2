package store

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/flemzord/sbus/internal/store"

func newTracer(tp trace.TracerProvider) trace.Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(instrumentationName)
}

func (s *SimpleMessageStore[K]) startSpan(ctx context.Context, name string, groupID K) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("store.group_id", fmt.Sprint(groupID)),
	))
}

// endSpan records err on span and ends it. Capacity errors also carry the
// exhausted scope and limit.
func endSpan(span trace.Span, err error) {
	defer span.End()
	if err == nil {
		return
	}
	var ce *CapacityError
	if errors.As(err, &ce) {
		span.SetAttributes(
			attribute.String("store.capacity.scope", string(ce.Scope)),
			attribute.Int("store.capacity.limit", ce.Limit),
		)
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
