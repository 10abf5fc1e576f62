package telemetry

import (
	"context"
	"testing"
)

func TestSetupWithoutEndpoint(t *testing.T) {
	p, err := Setup(context.Background(), Config{ServiceName: "fulfillment-test", Environment: "test"})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if p.Logger != nil {
		t.Fatal("log export must stay off without an endpoint")
	}

	_, span := p.Tracer.Tracer("test").Start(context.Background(), "op")
	if !span.SpanContext().IsValid() {
		t.Fatal("expected a sampled span from the SDK provider")
	}
	span.End()

	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestRatioDefaults(t *testing.T) {
	for in, want := range map[float64]float64{0: 1, -1: 1, 2: 1, 0.25: 0.25} {
		if got := ratio(in); got != want {
			t.Fatalf("ratio(%v) = %v, want %v", in, got, want)
		}
	}
}
