package probeserver

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/keithlinneman/linnemanlabs-healthprobe/internal/health"
	"github.com/keithlinneman/linnemanlabs-healthprobe/internal/log"
	"github.com/keithlinneman/linnemanlabs-healthprobe/internal/xerrors"
)

const tracerName = "linnemanlabs-healthprobe/probeserver"

// Server answers health probes on a single listening socket.
type Server struct {
	cfg    Config
	prefix string
	route  string
	eval   health.Evaluator
	logger log.Logger
	rec    Recorder
	tracer trace.Tracer
	listen func(ctx context.Context, network, addr string) (net.Listener, error)

	mu    sync.Mutex
	state State
	cur   *run
}

// run is one Start..Stop cycle. err is written by the loop goroutine before
// done is closed and read only after.
type run struct {
	ln     net.Listener
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// result is the loop's error with the stop signal itself filtered out.
// Only valid once done is closed, or with mu held after the loop marked
// the run Stopped.
func (r *run) result() error {
	if errors.Is(r.err, context.Canceled) {
		return nil
	}
	return r.err
}

// New validates cfg and prepares a server. Nothing is bound until Start.
func New(cfg Config, ev health.Evaluator, opts ...Option) (*Server, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if ev == nil {
		return nil, xerrors.Mark(health.ErrNilEvaluator, ErrInvalidConfig)
	}

	s := &Server{
		cfg:    cfg,
		prefix: cfg.Prefix(),
		route:  routePath(cfg.Path),
		eval:   ev,
		logger: log.Nop(),
		rec:    nopRecorder{},
		tracer: otel.Tracer(tracerName),
		listen: (&net.ListenConfig{}).Listen,
	}
	for _, o := range opts {
		o(s)
	}
	s.logger = s.logger.With("component", "probeserver", "prefix", s.prefix)
	return s, nil
}

// NewForPort serves DefaultPath on every interface without TLS.
func NewForPort(port int, ev health.Evaluator, opts ...Option) (*Server, error) {
	return New(Config{Port: port}, ev, opts...)
}

// Prefix returns the listening prefix, e.g. http://+:8080/health/.
func (s *Server) Prefix() string { return s.prefix }

// State returns the current lifecycle state.
func (s *Server) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Addr returns the bound address while running, the configured one otherwise.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur != nil && s.cur.ln != nil && s.state == StateRunning {
		return s.cur.ln.Addr().String()
	}
	return s.cfg.bindAddress()
}

// setState must be called with mu held
func (s *Server) setState(st State) {
	s.state = st
	s.rec.SetServerState(st.String())
}

// Start binds the socket and launches the accept loop. It returns once the
// socket is bound; ctx only bounds the bind and supplies request-scoped
// values to the loop, it does not stop the server.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.canStart() {
		return xerrors.WithStack(ErrAlreadyStarted)
	}

	addr := s.cfg.bindAddress()
	ln, err := s.listen(ctx, "tcp", addr)
	if err != nil {
		return xerrors.Wrapf(xerrors.Mark(err, ErrBind), "listen addr=%s", addr)
	}
	if s.cfg.UseTLS {
		ln = tls.NewListener(ln, s.cfg.TLSConfig)
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r := &run{ln: ln, cancel: cancel, done: make(chan struct{})}
	s.cur = r
	s.setState(StateRunning)

	go s.serve(loopCtx, r)

	s.logger.Info(ctx, "probe server listening", "addr", ln.Addr().String())
	return nil
}

// StopAsync raises the stop signal and returns a channel that yields the
// loop's error (nil on a clean shutdown) once the loop has exited and the
// socket is closed. Safe to call any number of times, concurrently.
func (s *Server) StopAsync() <-chan error {
	out := make(chan error, 1)

	s.mu.Lock()
	r := s.cur
	switch s.state {
	case StateNotStarted:
		s.mu.Unlock()
		out <- nil
		return out
	case StateStopped:
		// a loop that died on its own still reports why
		var err error
		if r != nil {
			err = r.result()
		}
		s.mu.Unlock()
		out <- err
		return out
	case StateRunning:
		s.setState(StateStopping)
		s.logger.Info(context.Background(), "probe server stopping")
	}
	r.cancel()
	s.mu.Unlock()

	go func() {
		<-r.done
		err := r.result()

		s.mu.Lock()
		if s.cur == r && s.state == StateStopping {
			s.setState(StateStopped)
			s.logger.Info(context.Background(), "probe server stopped")
		}
		s.mu.Unlock()

		out <- err
	}()
	return out
}

// Stop is the synchronous form of StopAsync. If ctx ends first Stop returns
// ctx.Err() and the loop keeps draining in the background.
func (s *Server) Stop(ctx context.Context) error {
	select {
	case err := <-s.StopAsync():
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the server and waits for it without a deadline.
func (s *Server) Close() error { return s.Stop(context.Background()) }
