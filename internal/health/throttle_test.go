package health

import (
	"context"
	"errors"
	"testing"
	"time"
)

type countingEvaluator struct {
	calls  int
	result Result
	err    error
}

func (c *countingEvaluator) Evaluate(context.Context) (Result, error) {
	c.calls++
	return c.result, c.err
}

func TestThrottle_ServesCachedWithinInterval(t *testing.T) {
	next := &countingEvaluator{result: Healthy("ok")}
	th := NewThrottle(next, time.Hour, 1)

	r1, err := th.Evaluate(context.Background())
	if err != nil || r1.Cached {
		t.Fatalf("first call: r = %+v, err = %v", r1, err)
	}
	r2, err := th.Evaluate(context.Background())
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if !r2.Cached || r2.Status != StatusHealthy {
		t.Fatalf("second call should be cached, got %+v", r2)
	}
	if next.calls != 1 {
		t.Fatalf("calls = %d, want 1", next.calls)
	}
}

func TestThrottle_ErrorsAreNotCached(t *testing.T) {
	next := &countingEvaluator{err: errors.New("db down")}
	th := NewThrottle(next, time.Hour, 1)

	if _, err := th.Evaluate(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	// no cached result yet, so the call goes through even though the limiter is empty
	if _, err := th.Evaluate(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if next.calls != 2 {
		t.Fatalf("calls = %d, want 2", next.calls)
	}
}

func TestThrottle_DisabledWithZeroInterval(t *testing.T) {
	next := &countingEvaluator{result: Healthy("")}
	th := NewThrottle(next, 0, 1)
	for i := 0; i < 5; i++ {
		if _, err := th.Evaluate(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if next.calls != 5 {
		t.Fatalf("calls = %d, want 5", next.calls)
	}
}

func TestThrottle_Reset(t *testing.T) {
	next := &countingEvaluator{result: Healthy("")}
	th := NewThrottle(next, time.Hour, 1)
	_, _ = th.Evaluate(context.Background())
	th.Reset()
	_, _ = th.Evaluate(context.Background())
	if next.calls != 2 {
		t.Fatalf("calls = %d, want 2 after Reset", next.calls)
	}
}

func TestThrottle_NilNext(t *testing.T) {
	_, err := NewThrottle(nil, time.Second, 1).Evaluate(context.Background())
	if !errors.Is(err, ErrNilEvaluator) {
		t.Fatalf("err = %v, want ErrNilEvaluator", err)
	}
}
