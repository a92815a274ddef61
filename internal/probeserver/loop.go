package probeserver

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/keithlinneman/linnemanlabs-healthprobe/internal/health"
	"github.com/keithlinneman/linnemanlabs-healthprobe/internal/xerrors"
)

const (
	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

type acceptResult struct {
	conn net.Conn
	err  error
}

// serve owns r.ln for the lifetime of the run; the listener is closed here
// and nowhere else.
func (s *Server) serve(ctx context.Context, r *run) {
	defer close(r.done)
	defer s.loopExited(ctx, r)
	defer func() {
		if err := r.ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.logger.Warn(ctx, "closing probe listener", "error", err)
		}
	}()
	defer func() {
		if rec := recover(); rec != nil {
			r.err = xerrors.Mark(fmt.Errorf("accept loop panic: %v", rec), ErrUnexpectedHandling)
			s.logger.Error(ctx, r.err, "probe accept loop crashed")
		}
	}()

	r.err = s.acceptLoop(ctx, r.ln)
	if r.err != nil {
		s.logger.Error(ctx, r.err, "probe accept loop exited")
	}
}

// loopExited moves a run whose loop ended without a stop signal to
// Stopped, so State, readiness and Start all see the listener is gone.
func (s *Server) loopExited(ctx context.Context, r *run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur != r || s.state != StateRunning {
		return
	}
	r.cancel()
	s.setState(StateStopped)
	s.logger.Warn(ctx, "probe server stopped without a stop signal", "error", r.err)
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) error {
	var backoff time.Duration
	for ctx.Err() == nil {
		conn, err := s.accept(ctx, ln)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if isTemporary(err) {
				backoff = nextBackoff(backoff)
				s.logger.Warn(ctx, "probe accept error, retrying", "error", err, "backoff", backoff)
				select {
				case <-time.After(backoff):
					continue
				case <-ctx.Done():
					return nil
				}
			}
			return xerrors.Wrap(err, "probe accept")
		}
		backoff = 0
		s.handleConn(ctx, conn)
	}
	return nil
}

// accept races ln.Accept against ctx. Accept has no cancellation of its
// own, so on stop the listener is closed to unblock it and any connection
// that slipped in is dropped.
func (s *Server) accept(ctx context.Context, ln net.Listener) (net.Conn, error) {
	ch := make(chan acceptResult, 1)
	go func() {
		c, err := ln.Accept()
		ch <- acceptResult{conn: c, err: err}
	}()

	select {
	case res := <-ch:
		return res.conn, res.err
	case <-ctx.Done():
		_ = ln.Close()
		if res := <-ch; res.conn != nil {
			_ = res.conn.Close()
		}
		return nil, ctx.Err()
	}
}

func isTemporary(err error) bool {
	var te interface{ Temporary() bool }
	if errors.As(err, &te) && te.Temporary() {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return minAcceptBackoff
	}
	d *= 2
	if d > maxAcceptBackoff {
		d = maxAcceptBackoff
	}
	return d
}

// handleConn serves exactly one request on conn and always closes it.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	start := time.Now()
	remote := conn.RemoteAddr().String()
	resp := newResponse(conn)
	var req *http.Request

	defer func() {
		if rec := recover(); rec != nil {
			err := xerrors.Mark(fmt.Errorf("panic: %v", rec), ErrUnexpectedHandling)
			s.logger.Error(ctx, err, "unexpected failure handling probe", "remote", remote)
			// too late once committed; the client just sees the connection close
			resp.fail(http.StatusInternalServerError)
		}

		_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
		if err := resp.finish(req); err != nil {
			s.logger.Warn(ctx, "writing probe response", "remote", remote, "error", err)
		}
		if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.logger.Warn(ctx, "closing probe connection", "remote", remote, "error", err)
		}
		if !resp.abandoned {
			s.rec.ObserveProbe(resp.status, resp.label, time.Since(start))
		}
	}()

	r, err := s.readRequest(ctx, conn)
	if err != nil {
		if ctx.Err() != nil {
			// stop cut the read short; nothing to answer
			resp.abandon()
			return
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			// peer connected and left, e.g. a TCP-only health check
			resp.abandon()
			return
		}
		s.logger.Debug(ctx, "malformed probe request", "remote", remote, "error", err)
		resp.text(http.StatusBadRequest, "bad request")
		return
	}
	req = r
	_ = conn.SetReadDeadline(time.Time{})

	if !s.matches(req.URL.Path) {
		resp.text(http.StatusNotFound, "not found")
		return
	}
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		resp.header.Set("Allow", "GET, HEAD")
		resp.text(http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	s.evaluate(ctx, req, resp, remote)
}

// readRequest reads one request under ReadHeaderTimeout. A stop signal
// moves the read deadline to now so an idle client cannot hold up Stop.
func (s *Server) readRequest(ctx context.Context, conn net.Conn) (*http.Request, error) {
	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadHeaderTimeout))
	unblock := context.AfterFunc(ctx, func() { _ = conn.SetReadDeadline(time.Now()) })
	defer unblock()
	return http.ReadRequest(bufio.NewReader(conn))
}

// matches reports whether p falls under the route, with or without the trailing slash.
func (s *Server) matches(p string) bool {
	if s.route == "/" {
		return true
	}
	return p == strings.TrimSuffix(s.route, "/") || strings.HasPrefix(p, s.route)
}

func (s *Server) evaluate(ctx context.Context, req *http.Request, resp *response, remote string) {
	ectx := ctx
	if s.cfg.EvaluateTimeout > 0 {
		var cancel context.CancelFunc
		ectx, cancel = context.WithTimeout(ctx, s.cfg.EvaluateTimeout)
		defer cancel()
	}
	ectx, span := s.tracer.Start(ectx, "probe.evaluate",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("url.path", req.URL.Path),
			attribute.String("client.address", remote),
		),
	)
	defer span.End()

	result, err := s.eval.Evaluate(ectx)
	if err != nil {
		// nothing has been committed yet so the status can still change
		resp.status = http.StatusServiceUnavailable
		resp.label = "error"
		if msg := err.Error(); strings.TrimSpace(msg) != "" {
			resp.body.WriteString(msg)
		}

		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.Int("http.response.status_code", resp.status))

		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			s.logger.Debug(ctx, "evaluation interrupted by shutdown", "remote", remote)
			return
		}
		s.logger.Warn(ctx, "health evaluation failed", "remote", remote,
			"error", xerrors.Mark(err, ErrEvaluation).Error())
		return
	}

	code := http.StatusServiceUnavailable
	if result.Status == health.StatusHealthy {
		code = http.StatusOK
	}
	resp.status = code
	resp.label = result.Status.String()
	resp.body.WriteString(result.Status.String())

	span.SetAttributes(
		attribute.Int("http.response.status_code", code),
		attribute.String("health.status", result.Status.String()),
		attribute.Bool("health.cached", result.Cached),
	)
	s.logger.Debug(ctx, "probe answered",
		"remote", remote,
		"status", result.Status.String(),
		"code", code,
		"message", result.Message,
		"cached", result.Cached,
	)
}
