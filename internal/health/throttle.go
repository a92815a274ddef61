package health

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Throttle bounds how often the wrapped evaluator runs. Between allowed
// evaluations the last successful result is returned with Cached set, so an
// aggressive prober cannot hammer the dependencies behind the checks.
type Throttle struct {
	next Evaluator
	lim  *rate.Limiter

	mu   sync.Mutex
	last *Result
}

// NewThrottle allows one real evaluation per interval with the given burst.
// interval <= 0 disables throttling.
func NewThrottle(next Evaluator, interval time.Duration, burst int) *Throttle {
	if burst < 1 {
		burst = 1
	}
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Throttle{next: next, lim: rate.NewLimiter(limit, burst)}
}

func (t *Throttle) Evaluate(ctx context.Context) (Result, error) {
	if t.next == nil {
		return Result{}, ErrNilEvaluator
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.lim.Allow() && t.last != nil {
		r := *t.last
		r.Cached = true
		return r, nil
	}

	r, err := t.next.Evaluate(ctx)
	if err != nil {
		return r, err
	}
	t.last = &r
	return r, nil
}

// Reset drops the cached result so the next call evaluates for real.
func (t *Throttle) Reset() {
	t.mu.Lock()
	t.last = nil
	t.mu.Unlock()
}
