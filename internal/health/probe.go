package health

import (
	"context"
	"sync/atomic"

	"github.com/keithlinneman/linnemanlabs-healthprobe/internal/xerrors"
)

// Probe is a single pass/fail dependency check; the error is the reason.
type Probe interface{ Check(context.Context) error }

type CheckFunc func(context.Context) error

func (f CheckFunc) Check(ctx context.Context) error { return f(ctx) }

// Fixed always passes, or always fails with reason ("unhealthy" when empty).
func Fixed(ok bool, reason string) CheckFunc {
	if ok {
		return func(context.Context) error { return nil }
	}
	if reason == "" {
		reason = "unhealthy"
	}
	return func(context.Context) error { return xerrors.New(reason) }
}

// All passes when every non-nil probe passes and returns the first failure.
// Probes run in order; use an Aggregator for parallel named checks.
func All(ps ...Probe) CheckFunc {
	return func(ctx context.Context) error {
		for _, p := range ps {
			if p == nil {
				continue
			}
			if err := p.Check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

// ShutdownGate is closed once shutdown starts. Gated evaluators and
// readiness probes built on it fail from then on. The zero value is open.
type ShutdownGate struct {
	reason atomic.Pointer[string]
}

// Set closes the gate. An empty reason reads as "draining".
func (g *ShutdownGate) Set(reason string) {
	if reason == "" {
		reason = "draining"
	}
	g.reason.Store(&reason)
}

func (g *ShutdownGate) Clear() { g.reason.Store(nil) }

func (g *ShutdownGate) Draining() bool { return g.reason.Load() != nil }

// Probe fails with an error matching ErrDraining while the gate is closed.
func (g *ShutdownGate) Probe() CheckFunc {
	return func(context.Context) error {
		if r := g.reason.Load(); r != nil {
			return drainError(*r)
		}
		return nil
	}
}

// drainError keeps the gate reason as the whole message.
type drainError string

func (e drainError) Error() string        { return string(e) }
func (e drainError) Is(target error) bool { return target == ErrDraining }
