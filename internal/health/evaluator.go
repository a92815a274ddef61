package health

import (
	"context"
	"time"
)

// Evaluator produces the aggregate health verdict. ctx is cancelled when the
// caller is shutting down; implementations should return promptly with
// ctx.Err() in that case.
type Evaluator interface {
	Evaluate(ctx context.Context) (Result, error)
}

// EvaluatorFunc adapts a function into an Evaluator.
type EvaluatorFunc func(context.Context) (Result, error)

func (f EvaluatorFunc) Evaluate(ctx context.Context) (Result, error) { return f(ctx) }

// FromProbe evaluates a single probe: pass is Healthy, failure is Unhealthy
// with the failure reason as the message.
func FromProbe(p Probe) EvaluatorFunc {
	return func(ctx context.Context) (Result, error) {
		start := time.Now()
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		var r Result
		if p == nil {
			r = Healthy("")
		} else if err := p.Check(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Result{}, ctxErr
			}
			r = Unhealthy(err.Error())
		} else {
			r = Healthy("")
		}
		r.Duration = time.Since(start)
		return r, nil
	}
}

// Gated reports Unhealthy with the gate's reason while g is draining, and
// defers to next otherwise. The gate sits in front of any caching so drain
// takes effect on the very next probe.
func Gated(g *ShutdownGate, next Evaluator) EvaluatorFunc {
	return func(ctx context.Context) (Result, error) {
		if g != nil {
			if err := g.Probe().Check(ctx); err != nil {
				return Unhealthy(err.Error()), nil
			}
		}
		if next == nil {
			return Result{}, ErrNilEvaluator
		}
		return next.Evaluate(ctx)
	}
}
