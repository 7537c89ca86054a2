// Package telemetry sets up OpenTelemetry tracing for sbus.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/flemzord/sbus/internal/config"
)

const defaultServiceName = "sbus"

// ShutdownFunc flushes and stops the tracer provider.
type ShutdownFunc func(ctx context.Context) error

// Setup installs a global tracer provider exporting over OTLP/HTTP. With a
// nil cfg tracing stays disabled and the returned ShutdownFunc is a no-op.
func Setup(ctx context.Context, cfg *config.TelemetryConfig, version string, logger *slog.Logger) (ShutdownFunc, error) {
	if cfg == nil {
		return func(context.Context) error { return nil }, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "telemetry")

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: creating exporter: %w", err)
	}

	tp := NewTracerProvider(exporter, cfg, version)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		logger.Warn("telemetry: trace error", "error", err)
	}))

	logger.Info("telemetry: tracing enabled", "endpoint", cfg.Endpoint, "sample_ratio", sampleRatio(cfg))
	return tp.Shutdown, nil
}

// NewTracerProvider builds a batching tracer provider around exporter,
// sampling root spans at the configured ratio.
func NewTracerProvider(exporter sdktrace.SpanExporter, cfg *config.TelemetryConfig, version string) *sdktrace.TracerProvider {
	name := cfg.ServiceName
	if name == "" {
		name = defaultServiceName
	}
	res := resource.NewSchemaless(
		attribute.String("service.name", name),
		attribute.String("service.version", version),
	)
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRatio(cfg)))),
		sdktrace.WithResource(res),
	)
}

func sampleRatio(cfg *config.TelemetryConfig) float64 {
	if cfg.SampleRatio <= 0 {
		return 1
	}
	return cfg.SampleRatio
}
