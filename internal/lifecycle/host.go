package lifecycle

import (
	"context"
	"errors"
	"time"

	"github.com/keithlinneman/linnemanlabs-healthprobe/internal/health"
	"github.com/keithlinneman/linnemanlabs-healthprobe/internal/log"
	"github.com/keithlinneman/linnemanlabs-healthprobe/internal/xerrors"
)

const DefaultShutdownTimeout = 10 * time.Second

// Named pairs a service with the name used in logs.
type Named struct {
	Name    string
	Service Service
}

// HostOptions configures a Host.
type HostOptions struct {
	Logger log.Logger

	// Gate is set to "draining" before the drain period starts so probes
	// answer Unhealthy while the load balancer notices. Optional.
	Gate *health.ShutdownGate

	// DrainPeriod is how long to keep serving after the gate closes, 0 = none.
	DrainPeriod time.Duration

	// ShutdownTimeout bounds the stop phase across all services.
	ShutdownTimeout time.Duration
}

// Host starts services in order and stops them in reverse.
type Host struct {
	opts     HostOptions
	services []Named
}

func NewHost(opts HostOptions, services ...Named) *Host {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = DefaultShutdownTimeout
	}
	return &Host{opts: opts, services: services}
}

// Run starts every service, blocks until ctx is done, then drains and
// stops. If a start fails, the services already started are stopped and
// the start error is returned. Stop errors are joined.
func (h *Host) Run(ctx context.Context) error {
	L := h.opts.Logger

	started := make([]Named, 0, len(h.services))
	for _, n := range h.services {
		if err := n.Service.Start(ctx); err != nil {
			err = xerrors.Wrapf(err, "start %s", n.Name)
			L.Error(ctx, err, "service failed to start", "service", n.Name)
			stopErr := h.stopAll(started)
			return errors.Join(err, stopErr)
		}
		L.Debug(ctx, "service started", "service", n.Name)
		started = append(started, n)
	}

	<-ctx.Done()
	L.Info(context.Background(), "shutdown signal received")

	if h.opts.Gate != nil {
		h.opts.Gate.Set("draining")
		L.Info(context.Background(), "shutdown gate closed")
	}
	if h.opts.DrainPeriod > 0 {
		L.Info(context.Background(), "waiting for load balancer health checks to drain", "drain_period", h.opts.DrainPeriod)
		time.Sleep(h.opts.DrainPeriod)
	}

	return h.stopAll(started)
}

func (h *Host) stopAll(started []Named) error {
	ctx, cancel := context.WithTimeout(context.Background(), h.opts.ShutdownTimeout)
	defer cancel()

	var errs []error
	for i := len(started) - 1; i >= 0; i-- {
		n := started[i]
		if err := n.Service.Stop(ctx); err != nil {
			errs = append(errs, xerrors.Wrapf(err, "stop %s", n.Name))
			h.opts.Logger.Error(ctx, err, "service shutdown", "service", n.Name)
		}
	}
	return errors.Join(errs...)
}

// Func adapts a pair of functions into a Service. Either may be nil.
type Func struct {
	OnStart func(context.Context) error
	OnStop  func(context.Context) error
}

func (f Func) Start(ctx context.Context) error {
	if f.OnStart == nil {
		return nil
	}
	return f.OnStart(ctx)
}

func (f Func) Stop(ctx context.Context) error {
	if f.OnStop == nil {
		return nil
	}
	return f.OnStop(ctx)
}
