package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/keithlinneman/linnemanlabs-healthprobe/internal/log"
)

// EnvPrefix is prepended to upper-cased flag names when reading the environment.
const EnvPrefix = "HEALTHPROBE_"

type App struct {
	ConfigFile string

	LogJSON           bool
	LogLevel          string
	StacktraceLevel   string
	IncludeErrorLinks bool
	MaxErrorLinks     int

	ProbeHost         string
	ProbePort         int
	ProbePath         string
	TLSCertFile       string
	TLSKeyFile        string
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	EvaluateTimeout   time.Duration
	MinProbeInterval  time.Duration
	ProbeBurst        int

	AdminPort      int
	EnablePprof    bool
	AdminRateLimit float64
	AdminBurst     int

	EnablePyroscope bool
	EnableTracing   bool
	PyroServer      string
	PyroTenantID    string
	OTLPEndpoint    string
	TraceSample     float64

	CheckTimeout     time.Duration
	CheckConcurrency int
	OptionalChecks   List
	PostgresDSN      string
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	GRPCTarget       string
	GRPCService      string
	S3Bucket         string
	S3Region         string
	HTTPChecks       List
	TCPChecks        List
	MaxHeapBytes     uint64

	DrainPeriod     time.Duration
	ShutdownTimeout time.Duration
}

// Register binds all config fields to the given FlagSet with defaults inline
func Register(fs *flag.FlagSet, c *App) {
	fs.StringVar(&c.ConfigFile, "config", "", "TOML file whose keys are flag names (cli > env > file > default)")

	fs.BoolVar(&c.LogJSON, "log-json", true, "JSON logs (true) or logfmt (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.StringVar(&c.StacktraceLevel, "stacktrace-level", "error", "debug|info|warn|error")
	fs.BoolVar(&c.IncludeErrorLinks, "include-error-links", true, "Include error links in log messages")
	fs.IntVar(&c.MaxErrorLinks, "max-error-links", 5, "max error chain depth (1..64)")

	fs.StringVar(&c.ProbeHost, "probe-host", "+", "hostname to bind the probe on (+, * or empty for all interfaces)")
	fs.IntVar(&c.ProbePort, "probe-port", 8080, "probe listen TCP port (1..65535)")
	fs.StringVar(&c.ProbePath, "probe-path", "/health", "path the probe answers on (/ for every path)")
	fs.StringVar(&c.TLSCertFile, "tls-cert", "", "PEM certificate; serves the probe over https when set with -tls-key")
	fs.StringVar(&c.TLSKeyFile, "tls-key", "", "PEM private key for -tls-cert")
	fs.DurationVar(&c.ReadHeaderTimeout, "read-header-timeout", 5*time.Second, "deadline for reading a probe request")
	fs.DurationVar(&c.WriteTimeout, "write-timeout", 10*time.Second, "deadline for writing a probe response")
	fs.DurationVar(&c.EvaluateTimeout, "evaluate-timeout", 5*time.Second, "bound on one health evaluation (0 = none)")
	fs.DurationVar(&c.MinProbeInterval, "min-probe-interval", time.Second, "serve a cached result for probes closer together than this (0 = always evaluate)")
	fs.IntVar(&c.ProbeBurst, "probe-burst", 1, "evaluations allowed back to back before -min-probe-interval applies")

	fs.IntVar(&c.AdminPort, "admin-port", 0, "admin listen TCP port for metrics and pprof (0 = disabled)")
	fs.BoolVar(&c.EnablePprof, "enable-pprof", false, "Enable pprof profiling (on admin port only)")
	fs.Float64Var(&c.AdminRateLimit, "admin-rate-limit", 5, "admin requests per second per source (0 = unlimited)")
	fs.IntVar(&c.AdminBurst, "admin-burst", 20, "admin request burst per source")

	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "Enable OTLP tracing and push to otlp-endpoint")
	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "Enable pushing Pyroscope data to server set in -pyro-server")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server url to push to")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "tenant (x-scope-orgid) to use for pyro-server")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP endpoint to push to (gRPC) (host:port)")

	fs.DurationVar(&c.CheckTimeout, "check-timeout", 3*time.Second, "per-check timeout inside one evaluation")
	fs.IntVar(&c.CheckConcurrency, "check-concurrency", 0, "max checks run at once (0 = all)")
	fs.Var(&c.OptionalChecks, "optional-checks", "comma separated check names that only degrade the result")
	fs.StringVar(&c.PostgresDSN, "postgres-dsn", "", "postgres connection string to ping")
	fs.StringVar(&c.RedisAddr, "redis-addr", "", "redis host:port to ping")
	fs.StringVar(&c.RedisPassword, "redis-password", "", "redis password")
	fs.IntVar(&c.RedisDB, "redis-db", 0, "redis database number")
	fs.StringVar(&c.GRPCTarget, "grpc-target", "", "gRPC target implementing grpc.health.v1")
	fs.StringVar(&c.GRPCService, "grpc-service", "", "service name sent in the gRPC health request")
	fs.StringVar(&c.S3Bucket, "s3-bucket", "", "s3 bucket that must be reachable (HeadBucket)")
	fs.StringVar(&c.S3Region, "s3-region", "", "region for -s3-bucket (default from the aws environment)")
	fs.Var(&c.HTTPChecks, "http-checks", "comma separated URLs that must answer 2xx")
	fs.Var(&c.TCPChecks, "tcp-checks", "comma separated host:port addresses that must accept a connection")
	fs.Uint64Var(&c.MaxHeapBytes, "max-heap-bytes", 0, "heap size above which the process reports degraded (0 = off)")

	fs.DurationVar(&c.DrainPeriod, "drain-period", 0, "time to report unhealthy before stopping listeners")
	fs.DurationVar(&c.ShutdownTimeout, "shutdown-timeout", 10*time.Second, "bound on stopping all services")
}

// FillFromEnv sets any flag not explicitly passed on the CLI from
// environment variables. Flag "foo-bar" maps to PREFIX_FOO_BAR.
// Precedence: cli flag > env var > default.
func FillFromEnv(fs *flag.FlagSet, prefix string, logf func(string, ...any)) {
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	fs.VisitAll(func(f *flag.Flag) {
		key := EnvKey(prefix, f.Name)
		envVal, envSet := os.LookupEnv(key)
		if !envSet {
			return
		}
		if explicit[f.Name] {
			if logf != nil {
				logf("flag -%s: cli value %q overrides env %s=%q", f.Name, f.Value.String(), key, envVal)
			}
			return
		}
		prev := f.Value.String()
		if err := fs.Set(f.Name, envVal); err != nil {
			_ = fs.Set(f.Name, prev)
			if logf != nil {
				logf("flag -%s: ignoring invalid env %s=%q: %v", f.Name, key, envVal, err)
			}
		}
	})
}

// EnvKey maps a flag name to its environment variable.
func EnvKey(prefix, name string) string {
	return prefix + strings.ReplaceAll(strings.ToUpper(name), "-", "_")
}

// Validate checks that config values are within expected ranges and formats.
// Returns an error describing all invalid fields, or nil if all valid.
func Validate(c App) error {
	var errs []error

	// Ports
	if c.ProbePort < 1 || c.ProbePort > 65535 {
		errs = append(errs, fmt.Errorf("invalid PROBE_PORT %d (must be 1..65535)", c.ProbePort))
	}
	if c.AdminPort < 0 || c.AdminPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid ADMIN_PORT %d (must be 0..65535)", c.AdminPort))
	}
	if c.AdminPort != 0 && c.AdminPort == c.ProbePort {
		errs = append(errs, fmt.Errorf("ADMIN_PORT and PROBE_PORT must differ (both %d)", c.ProbePort))
	}
	if c.EnablePprof && c.AdminPort == 0 {
		errs = append(errs, fmt.Errorf("ENABLE_PPROF requires ADMIN_PORT"))
	}
	if c.AdminRateLimit < 0 {
		errs = append(errs, fmt.Errorf("invalid ADMIN_RATE_LIMIT %v (must be >= 0)", c.AdminRateLimit))
	}
	if c.AdminRateLimit > 0 && c.AdminBurst < 1 {
		errs = append(errs, fmt.Errorf("invalid ADMIN_BURST %d (must be >= 1)", c.AdminBurst))
	}

	// Probe listener
	if strings.ContainsAny(c.ProbeHost, "/ ") {
		errs = append(errs, fmt.Errorf("invalid PROBE_HOST %q", c.ProbeHost))
	}
	if strings.ContainsAny(c.ProbePath, " ?#") {
		errs = append(errs, fmt.Errorf("invalid PROBE_PATH %q", c.ProbePath))
	}
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		errs = append(errs, fmt.Errorf("TLS_CERT and TLS_KEY must be set together"))
	}
	for name, d := range map[string]time.Duration{
		"READ_HEADER_TIMEOUT": c.ReadHeaderTimeout,
		"WRITE_TIMEOUT":       c.WriteTimeout,
		"EVALUATE_TIMEOUT":    c.EvaluateTimeout,
		"MIN_PROBE_INTERVAL":  c.MinProbeInterval,
		"CHECK_TIMEOUT":       c.CheckTimeout,
		"DRAIN_PERIOD":        c.DrainPeriod,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("invalid %s %s (must be >= 0)", name, d))
		}
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_TIMEOUT %s (must be > 0)", c.ShutdownTimeout))
	}
	if c.ProbeBurst < 1 {
		errs = append(errs, fmt.Errorf("invalid PROBE_BURST %d (must be >= 1)", c.ProbeBurst))
	}

	// Log levels
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err))
	}
	if c.StacktraceLevel != "" {
		if _, err := log.ParseLevel(c.StacktraceLevel); err != nil {
			errs = append(errs, fmt.Errorf("invalid STACKTRACE_LEVEL %q: %w", c.StacktraceLevel, err))
		}
	}

	// Tracing sample
	if c.TraceSample < 0 || c.TraceSample > 1 {
		errs = append(errs, fmt.Errorf("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample))
	}

	// Pyroscope (URL and scheme)
	if c.EnablePyroscope {
		if c.PyroServer == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER required when ENABLE_PYROSCOPE=true"))
		} else if u, err := url.Parse(c.PyroServer); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER must be a URL (got %q)", c.PyroServer))
		}
		if c.PyroTenantID == "" {
			errs = append(errs, fmt.Errorf("PYRO_TENANT required when ENABLE_PYROSCOPE=true"))
		}
	}

	// OTLP tracing (grpc exporter wants host:port, no scheme)
	if c.EnableTracing {
		if c.OTLPEndpoint == "" {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT required when ENABLE_TRACING=true"))
		} else if _, _, err := net.SplitHostPort(c.OTLPEndpoint); err != nil {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT must be host:port (got %q): %v", c.OTLPEndpoint, err))
		}
	}

	// Error link limits
	if c.IncludeErrorLinks {
		if c.MaxErrorLinks < 1 || c.MaxErrorLinks > 64 {
			errs = append(errs, fmt.Errorf("MAX_ERROR_LINKS must be 1..64 (got %d)", c.MaxErrorLinks))
		}
	}

	// Checks
	if c.CheckConcurrency < 0 {
		errs = append(errs, fmt.Errorf("invalid CHECK_CONCURRENCY %d (must be >= 0)", c.CheckConcurrency))
	}
	if c.RedisAddr != "" {
		if _, _, err := net.SplitHostPort(c.RedisAddr); err != nil {
			errs = append(errs, fmt.Errorf("REDIS_ADDR must be host:port (got %q): %v", c.RedisAddr, err))
		}
	}
	if c.RedisDB < 0 {
		errs = append(errs, fmt.Errorf("invalid REDIS_DB %d", c.RedisDB))
	}
	if c.GRPCService != "" && c.GRPCTarget == "" {
		errs = append(errs, fmt.Errorf("GRPC_SERVICE set without GRPC_TARGET"))
	}
	if c.S3Region != "" && c.S3Bucket == "" {
		errs = append(errs, fmt.Errorf("S3_REGION set without S3_BUCKET"))
	}
	for _, raw := range c.HTTPChecks {
		if u, err := url.Parse(raw); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("HTTP_CHECKS entry must be an http(s) URL (got %q)", raw))
		}
	}
	for _, addr := range c.TCPChecks {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			errs = append(errs, fmt.Errorf("TCP_CHECKS entry must be host:port (got %q): %v", addr, err))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
