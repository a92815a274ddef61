package opshttp

import (
	"net/http"

	"github.com/keithlinneman/linnemanlabs-healthprobe/internal/health"
)

type Options struct {
	// Hostname to bind, "" = all interfaces. Requests from public addresses
	// are refused regardless.
	Hostname string
	Port     int

	Metrics     http.Handler
	MetricsMW   func(http.Handler) http.Handler
	// RateLimitMW runs after MetricsMW so rejected requests are still counted.
	RateLimitMW func(http.Handler) http.Handler
	EnablePprof bool

	// Health and Readiness back /-/healthy and /-/ready.
	Health    health.Probe
	Readiness health.Probe
	// Evaluator backs /-/status, the detailed JSON view of the same verdict
	// the probe listener serves. Optional.
	Evaluator health.Evaluator

	UseRecoverMW bool
	OnPanic      func() // called for each recovered panic, e.g. to increment a counter
}
