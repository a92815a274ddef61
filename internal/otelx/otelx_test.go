package otelx

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestInit_Disabled_ShutdownIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Options{Enabled: false})
	if err != nil {
		t.Fatalf("Init disabled: %v", err)
	}
	if shutdown == nil {
		t.Fatal("shutdown func is nil")
	}
	for i := 0; i < 2; i++ {
		if err := shutdown(context.Background()); err != nil {
			t.Fatalf("shutdown %d: %v", i, err)
		}
	}
}

func TestInit_Disabled_SetsSDKProvider(t *testing.T) {
	_, _ = Init(context.Background(), Options{Enabled: false})

	if _, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); !ok {
		t.Fatalf("TracerProvider type = %T, want *sdktrace.TracerProvider", otel.GetTracerProvider())
	}

	// spans from the disabled provider still carry valid ids for log correlation
	_, span := otel.Tracer("test").Start(context.Background(), "probe.evaluate")
	defer span.End()
	if !span.SpanContext().IsValid() {
		t.Fatal("span context should be valid with the sdk provider")
	}
}

func TestInit_SetsPropagator(t *testing.T) {
	_, _ = Init(context.Background(), Options{Enabled: false})

	fields := map[string]bool{}
	for _, f := range otel.GetTextMapPropagator().Fields() {
		fields[f] = true
	}
	for _, want := range []string{"traceparent", "baggage"} {
		if !fields[want] {
			t.Errorf("propagator missing %s field", want)
		}
	}
}

func TestInit_Enabled_RequiresEndpoint(t *testing.T) {
	_, err := Init(context.Background(), Options{Enabled: true})
	if err == nil {
		t.Fatal("expected error for empty endpoint")
	}
}

func TestInit_Enabled_ReturnsPromptly(t *testing.T) {
	start := time.Now()
	shutdown, err := Init(context.Background(), Options{
		Enabled:   true,
		Endpoint:  "localhost:1",
		Insecure:  true,
		Sample:    1.0,
		Service:   "linnemanlabs-healthprobe",
		Component: "probe",
		Version:   "v0.0.0-test",
	})
	elapsed := time.Since(start)
	if elapsed > 2*dialTimeout {
		t.Fatalf("Init took %v", elapsed)
	}
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = shutdown(ctx)
}

func TestServiceName(t *testing.T) {
	tests := []struct {
		o    Options
		want string
	}{
		{Options{Service: "svc", Component: "probe"}, "svc.probe"},
		{Options{Service: "svc"}, "svc"},
		{Options{Component: "probe"}, "probe"},
		{Options{}, ""},
	}
	for _, tt := range tests {
		if got := tt.o.ServiceName(); got != tt.want {
			t.Errorf("ServiceName(%+v) = %q, want %q", tt.o, got, tt.want)
		}
	}
}

func TestClampSample(t *testing.T) {
	tests := map[float64]float64{-1: 0, 0: 0, 0.25: 0.25, 1: 1, 99.9: 1}
	for in, want := range tests {
		if got := clampSample(in); got != want {
			t.Errorf("clampSample(%v) = %v, want %v", in, got, want)
		}
	}
}
