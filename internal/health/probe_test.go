package health

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

// CheckFunc

func TestCheckFunc_PassingProbe(t *testing.T) {
	p := CheckFunc(func(ctx context.Context) error { return nil })
	if err := p.Check(context.Background()); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestCheckFunc_ImplementsProbe(t *testing.T) {
	var _ Probe = CheckFunc(func(ctx context.Context) error { return nil })
}

// Fixed

func TestFixed_OK(t *testing.T) {
	if err := Fixed(true, "ignored").Check(context.Background()); err != nil {
		t.Fatalf("Fixed(true) should pass, got %v", err)
	}
}

func TestFixed_Fail_WithReason(t *testing.T) {
	err := Fixed(false, "db offline").Check(context.Background())
	if err == nil || err.Error() != "db offline" {
		t.Fatalf("err = %v, want 'db offline'", err)
	}
}

func TestFixed_Fail_DefaultReason(t *testing.T) {
	err := Fixed(false, "").Check(context.Background())
	if err == nil || err.Error() != "unhealthy" {
		t.Fatalf("err = %v, want 'unhealthy'", err)
	}
}

// All

func TestAll_FirstErrorWins(t *testing.T) {
	p := All(Fixed(true, ""), nil, Fixed(false, "first"), Fixed(false, "second"))
	err := p.Check(context.Background())
	if err == nil || err.Error() != "first" {
		t.Fatalf("err = %v, want 'first'", err)
	}
}

func TestAll_Empty(t *testing.T) {
	if err := All().Check(context.Background()); err != nil {
		t.Fatalf("All() should pass, got %v", err)
	}
}

// ShutdownGate

func TestShutdownGate_Lifecycle(t *testing.T) {
	var g ShutdownGate
	p := g.Probe()

	if err := p.Check(context.Background()); err != nil {
		t.Fatalf("open gate should pass, got %v", err)
	}

	g.Set("")
	err := p.Check(context.Background())
	if err == nil || err.Error() != "draining" {
		t.Fatalf("err = %v, want default 'draining'", err)
	}
	if !g.Draining() {
		t.Fatal("Draining() = false after Set")
	}
	if !errors.Is(err, ErrDraining) {
		t.Fatal("gate failure should match ErrDraining")
	}

	g.Set("shutting down")
	if err := p.Check(context.Background()); err == nil || err.Error() != "shutting down" {
		t.Fatalf("err = %v, want 'shutting down'", err)
	}

	g.Clear()
	if err := p.Check(context.Background()); err != nil {
		t.Fatalf("cleared gate should pass, got %v", err)
	}
}

func TestShutdownGate_ConcurrentAccess(t *testing.T) {
	var g ShutdownGate
	p := g.Probe()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				g.Set(fmt.Sprintf("r%d", i))
			} else {
				g.Clear()
			}
		}(i)
		go func() {
			defer wg.Done()
			_ = p.Check(context.Background())
		}()
	}
	wg.Wait()
}
