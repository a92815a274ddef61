package health

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/keithlinneman/linnemanlabs-healthprobe/internal/xerrors"
)

const DefaultCheckTimeout = 5 * time.Second

// AggregatorConfig configures the health aggregator.
type AggregatorConfig struct {
	// Timeout bounds one whole evaluation. Default: 5 seconds
	Timeout time.Duration

	// MaxConcurrency caps how many probes run at once, 0 means no cap.
	MaxConcurrency int
}

type registration struct {
	name     string
	probe    Probe
	optional bool
}

// Aggregator combines named probes into a single Evaluator.
type Aggregator struct {
	config AggregatorConfig
	mu     sync.RWMutex
	checks []registration // registration order
}

// NewAggregator creates an aggregator with defaults applied.
func NewAggregator(config AggregatorConfig) *Aggregator {
	if config.Timeout <= 0 {
		config.Timeout = DefaultCheckTimeout
	}
	if config.MaxConcurrency < 0 {
		config.MaxConcurrency = 0
	}
	return &Aggregator{config: config}
}

// Register adds a critical probe: its failure makes the aggregate Unhealthy.
// Registering an existing name replaces it.
func (a *Aggregator) Register(name string, p Probe) { a.register(name, p, false) }

// RegisterOptional adds a probe whose failure only degrades the aggregate.
func (a *Aggregator) RegisterOptional(name string, p Probe) { a.register(name, p, true) }

func (a *Aggregator) register(name string, p Probe, optional bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	reg := registration{name: name, probe: p, optional: optional}
	for i := range a.checks {
		if a.checks[i].name == name {
			a.checks[i] = reg
			return
		}
	}
	a.checks = append(a.checks, reg)
}

// Unregister removes a probe by name.
func (a *Aggregator) Unregister(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i := range a.checks {
		if a.checks[i].name == name {
			a.checks = append(a.checks[:i], a.checks[i+1:]...)
			return
		}
	}
}

// Names returns registered probe names in registration order.
func (a *Aggregator) Names() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]string, len(a.checks))
	for i, c := range a.checks {
		out[i] = c.name
	}
	return out
}

type outcome struct {
	err      error
	duration time.Duration
}

// Evaluate runs every registered probe and folds them into one Result.
// It returns ctx.Err() if ctx is cancelled before the probes settle.
func (a *Aggregator) Evaluate(ctx context.Context) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	a.mu.RLock()
	checks := make([]registration, len(a.checks))
	copy(checks, a.checks)
	a.mu.RUnlock()

	start := time.Now()
	if len(checks) == 0 {
		r := Healthy("no checks registered")
		r.Duration = time.Since(start)
		return r, nil
	}

	cctx, cancel := context.WithTimeout(ctx, a.config.Timeout)
	defer cancel()

	outcomes := make([]outcome, len(checks))
	var g errgroup.Group
	if a.config.MaxConcurrency > 0 {
		g.SetLimit(a.config.MaxConcurrency)
	}
	for i, c := range checks {
		g.Go(func() error {
			outcomes[i] = runProbe(cctx, c.probe)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	status := StatusHealthy
	details := make(map[string]any, len(checks))
	var failed []string
	for i, c := range checks {
		o := outcomes[i]
		st := StatusHealthy
		d := map[string]any{"duration": o.duration.String()}
		if o.err != nil {
			st = StatusUnhealthy
			if c.optional {
				st = StatusDegraded
			}
			d["error"] = o.err.Error()
			failed = append(failed, c.name)
		}
		d["status"] = st.String()
		details[c.name] = d
		status = worse(status, st)
	}

	r := Result{
		Status:    status,
		Details:   details,
		Duration:  time.Since(start),
		Timestamp: start,
	}
	switch status {
	case StatusHealthy:
		r.Message = "all checks passed"
	case StatusDegraded:
		sort.Strings(failed)
		r.Message = "degraded: " + strings.Join(failed, ", ")
	default:
		sort.Strings(failed)
		r.Message = "failing: " + strings.Join(failed, ", ")
	}
	return r, nil
}

// runProbe runs p on its own goroutine so a probe that ignores ctx cannot
// hold the evaluation past its deadline
func runProbe(ctx context.Context, p Probe) outcome {
	start := time.Now()
	if p == nil {
		return outcome{duration: time.Since(start)}
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- xerrors.Mark(fmt.Errorf("%v", rec), ErrCheckPanic)
			}
		}()
		done <- p.Check(ctx)
	}()

	select {
	case err := <-done:
		return outcome{err: err, duration: time.Since(start)}
	case <-ctx.Done():
		return outcome{err: ErrCheckTimeout, duration: time.Since(start)}
	}
}
