// Package lifecycle adapts start/stop services to a process lifetime.
package lifecycle

import (
	"context"

	"github.com/keithlinneman/linnemanlabs-healthprobe/internal/log"
	"github.com/keithlinneman/linnemanlabs-healthprobe/internal/xerrors"
)

// Service is anything with a bounded start and a graceful stop.
// *probeserver.Server satisfies it.
type Service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Hosted forwards Start and Stop to a health-check server and logs around both calls.
type Hosted struct {
	svc    Service
	logger log.Logger
}

// NewHosted wraps svc. A nil logger is replaced with log.Nop().
func NewHosted(svc Service, L log.Logger) *Hosted {
	if L == nil {
		L = log.Nop()
	}
	return &Hosted{svc: svc, logger: L}
}

func (h *Hosted) Start(ctx context.Context) error {
	h.logger.Info(ctx, "starting health-check server")
	if err := h.svc.Start(ctx); err != nil {
		err = xerrors.EnsureTrace(err)
		h.logger.Error(ctx, err, "health-check server failed to start")
		return err
	}
	h.logger.Info(ctx, "health-check server started")
	return nil
}

func (h *Hosted) Stop(ctx context.Context) error {
	h.logger.Info(ctx, "stopping health-check server")
	if err := h.svc.Stop(ctx); err != nil {
		err = xerrors.EnsureTrace(err)
		h.logger.Error(ctx, err, "health-check server did not stop cleanly")
		return err
	}
	h.logger.Info(ctx, "health-check server stopped")
	return nil
}
