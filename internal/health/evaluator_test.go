package health

import (
	"context"
	"errors"
	"testing"
)

func TestStatus_String(t *testing.T) {
	tests := []struct {
		s    Status
		want string
	}{
		{StatusHealthy, "Healthy"},
		{StatusDegraded, "Degraded"},
		{StatusUnhealthy, "Unhealthy"},
		{Status(42), "Unknown"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("Status(%d).String() = %q, want %q", tt.s, got, tt.want)
		}
	}
}

func TestFromProbe_Pass(t *testing.T) {
	r, err := FromProbe(Fixed(true, "")).Evaluate(context.Background())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if r.Status != StatusHealthy {
		t.Fatalf("status = %v, want Healthy", r.Status)
	}
}

func TestFromProbe_Fail(t *testing.T) {
	r, err := FromProbe(Fixed(false, "db down")).Evaluate(context.Background())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if r.Status != StatusUnhealthy || r.Message != "db down" {
		t.Fatalf("result = %+v", r)
	}
}

func TestFromProbe_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := FromProbe(Fixed(true, "")).Evaluate(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestGated_Open(t *testing.T) {
	var g ShutdownGate
	r, err := Gated(&g, FromProbe(nil)).Evaluate(context.Background())
	if err != nil || r.Status != StatusHealthy {
		t.Fatalf("r = %+v, err = %v", r, err)
	}
}

func TestGated_Draining(t *testing.T) {
	var g ShutdownGate
	calls := 0
	next := EvaluatorFunc(func(context.Context) (Result, error) {
		calls++
		return Healthy(""), nil
	})
	g.Set("draining")

	r, err := Gated(&g, next).Evaluate(context.Background())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if r.Status != StatusUnhealthy || r.Message != "draining" {
		t.Fatalf("r = %+v", r)
	}
	if calls != 0 {
		t.Fatal("next should not run while draining")
	}
}

func TestGated_NilNext(t *testing.T) {
	_, err := Gated(nil, nil).Evaluate(context.Background())
	if !errors.Is(err, ErrNilEvaluator) {
		t.Fatalf("err = %v, want ErrNilEvaluator", err)
	}
}
