package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/flemzord/sbus/internal/config"
)

func TestSetup_Disabled(t *testing.T) {
	t.Parallel()

	shutdown, err := Setup(context.Background(), nil, "test", nil)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestNewTracerProvider_ExportsWithResource(t *testing.T) {
	t.Parallel()

	exp := tracetest.NewInMemoryExporter()
	tp := NewTracerProvider(exp, &config.TelemetryConfig{ServiceName: "bus-test"}, "v1.2.3")

	_, span := tp.Tracer("test").Start(context.Background(), "op")
	span.End()
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	attrs := spans[0].Resource.Attributes()
	found := map[string]string{}
	for _, kv := range attrs {
		found[string(kv.Key)] = kv.Value.AsString()
	}
	if found["service.name"] != "bus-test" {
		t.Errorf("service.name = %q, want bus-test", found["service.name"])
	}
	if found["service.version"] != "v1.2.3" {
		t.Errorf("service.version = %q, want v1.2.3", found["service.version"])
	}
}

func TestSampleRatio(t *testing.T) {
	t.Parallel()

	if got := sampleRatio(&config.TelemetryConfig{}); got != 1 {
		t.Errorf("sampleRatio(0) = %v, want 1", got)
	}
	if got := sampleRatio(&config.TelemetryConfig{SampleRatio: 0.25}); got != 0.25 {
		t.Errorf("sampleRatio(0.25) = %v, want 0.25", got)
	}
}
