package probeserver

import (
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/keithlinneman/linnemanlabs-healthprobe/internal/log"
)

// Recorder receives per-probe and lifecycle observations, typically prometheus.
type Recorder interface {
	ObserveProbe(code int, status string, d time.Duration)
	SetServerState(state string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveProbe(int, string, time.Duration) {}
func (nopRecorder) SetServerState(string)                   {}

type Option func(*Server)

// WithLogger sets the sink for lifecycle and per-probe logs. Default: log.Nop().
func WithLogger(L log.Logger) Option {
	return func(s *Server) {
		if L != nil {
			s.logger = L
		}
	}
}

// WithRecorder sets where probe counts, durations and state changes are recorded.
func WithRecorder(r Recorder) Option {
	return func(s *Server) {
		if r != nil {
			s.rec = r
		}
	}
}

// WithTracer overrides the tracer used for the per-probe evaluation span.
func WithTracer(t trace.Tracer) Option {
	return func(s *Server) {
		if t != nil {
			s.tracer = t
		}
	}
}
