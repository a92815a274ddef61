package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keithlinneman/linnemanlabs-healthprobe/internal/version"
)

// serverStates are every value SetServerState is expected to receive; the
// state gauge keeps one series per state and sets exactly one of them to 1.
var serverStates = []string{"not_started", "running", "stopping", "stopped"}

type ServerMetrics struct {
	reg     *prometheus.Registry
	handler http.Handler

	// probe listener
	probeTotal  *prometheus.CounterVec
	probeDur    *prometheus.HistogramVec
	serverState *prometheus.GaugeVec

	// admin listener
	inflight       prometheus.Gauge
	reqTotal       *prometheus.CounterVec
	reqDur         *prometheus.HistogramVec
	respBytes      *prometheus.HistogramVec
	errorsTotal    *prometheus.CounterVec
	httpPanicTotal prometheus.Counter
	rateLimited    *prometheus.CounterVec

	buildInfo       *prometheus.GaugeVec
	profilingActive prometheus.Gauge
}

// New returns a fresh registry + standard collectors + probe and admin HTTP metrics
// safe labels only (code, status keyword, method, route) to avoid cardinality explosions
func New() *ServerMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &ServerMetrics{
		probeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "probe_requests_total",
			Help: "Total probe requests answered, by HTTP code and health status keyword",
		}, []string{"code", "status"}),
		probeDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "probe_request_duration_seconds",
			Help:    "Time from accept to response written, by HTTP code",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"code"}),
		serverState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "probe_server_state",
			Help: "Lifecycle state of the probe server (1 for the current state, 0 otherwise)",
		}, []string{"state"}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Current number of in-flight admin HTTP requests",
		}),
		reqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total admin HTTP requests by method, route, and status",
		}, []string{"method", "route", "status"}),
		reqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Admin request latency by method and route",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method", "route"}),
		respBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "Admin response size by method and route",
			Buckets: []float64{256, 1024, 4096, 16384, 65536, 262144, 1048576},
		}, []string{"method", "route"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total 5xx admin HTTP errors by method and route",
		}, []string{"method", "route"}),
		httpPanicTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_panic_total",
			Help: "Total number of recovered admin handler panics",
		}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_rate_limited_total",
			Help: "Admin requests rejected by the per-source rate limiter, by reason",
		}, []string{"reason"}),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build metadata (value is always 1)",
		}, []string{"app", "component", "version", "commit", "commit_date", "build_id", "build_date", "vcs_dirty", "go_version"}),
		profilingActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "profiling_active",
			Help: "Whether continuous profiling is active (1) or disabled/failed (0)",
		}),
	}
	reg.MustRegister(
		m.probeTotal,
		m.probeDur,
		m.serverState,
		m.inflight,
		m.reqTotal,
		m.reqDur,
		m.respBytes,
		m.errorsTotal,
		m.httpPanicTotal,
		m.rateLimited,
		m.buildInfo,
		m.profilingActive,
	)
	m.SetServerState("not_started")

	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
	m.reg = reg
	return m
}

func (m *ServerMetrics) Handler() http.Handler {
	return m.handler
}

// ObserveProbe records one answered probe. status is the health keyword
// ("Healthy", "Unhealthy", ...) or "error".
func (m *ServerMetrics) ObserveProbe(code int, status string, d time.Duration) {
	c := strconv.Itoa(code)
	m.probeTotal.WithLabelValues(c, status).Inc()
	m.probeDur.WithLabelValues(c).Observe(d.Seconds())
}

func (m *ServerMetrics) SetServerState(state string) {
	for _, s := range serverStates {
		v := 0.0
		if s == state {
			v = 1
		}
		m.serverState.WithLabelValues(s).Set(v)
	}
}

func (m *ServerMetrics) IncHttpPanic() {
	m.httpPanicTotal.Inc()
}

// IncRateLimited counts one rejected admin request. reason is "rate" or "capacity".
func (m *ServerMetrics) IncRateLimited(reason string) {
	m.rateLimited.WithLabelValues(reason).Inc()
}

// set once at startup.
func (m *ServerMetrics) SetBuildInfoFromVersion(component string, vi version.Info) {
	dirty := "unknown"
	if vi.VCSDirty != nil {
		dirty = strconv.FormatBool(*vi.VCSDirty)
	}
	m.buildInfo.With(prometheus.Labels{
		"app":         vi.AppName,
		"component":   component,
		"version":     vi.Version,
		"commit":      vi.Commit,
		"commit_date": vi.CommitDate,
		"build_id":    vi.BuildId,
		"build_date":  vi.BuildDate,
		"go_version":  vi.GoVersion,
		"vcs_dirty":   dirty,
	}).Set(1)
}

func (m *ServerMetrics) SetProfilingActive(active bool) {
	if active {
		m.profilingActive.Set(1)
	} else {
		m.profilingActive.Set(0)
	}
}
