// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package observability

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInit_Disabled(t *testing.T) {
	p, err := Init(context.Background(), DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	ctx, span := p.Tracer().Start(context.Background(), "noop")
	defer span.End()

	if span.SpanContext().IsValid() {
		t.Error("disabled tracing should produce non-recording spans")
	}
	if TraceID(ctx) != "" {
		t.Errorf("expected no trace ID, got %q", TraceID(ctx))
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestInit_Exporter(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	exp := tracetest.NewInMemoryExporter()
	cfg := DefaultConfig()
	cfg.Exporter = exp

	p, err := Init(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}

	ctx, span := Tracer().Start(context.Background(), "lifecycle.Close")
	if TraceID(ctx) == "" {
		t.Error("expected a trace ID from the global tracer")
	}
	span.End()

	// Shutdown clears the in-memory exporter, so flush first.
	if err := p.provider.ForceFlush(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer p.Shutdown(context.Background())

	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != "lifecycle.Close" {
		t.Fatalf("expected one exported span, got %+v", spans.Snapshots())
	}
}

func TestSampler(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{1, sdktrace.AlwaysSample().Description()},
		{2, sdktrace.AlwaysSample().Description()},
		{0, sdktrace.NeverSample().Description()},
		{0.25, sdktrace.ParentBased(sdktrace.TraceIDRatioBased(0.25)).Description()},
	}
	for _, tt := range tests {
		if got := sampler(tt.rate).Description(); got != tt.want {
			t.Errorf("sampler(%v) = %q, want %q", tt.rate, got, tt.want)
		}
	}
}
