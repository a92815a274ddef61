package main

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/keithlinneman/linnemanlabs-healthprobe/internal/cfg"
	"github.com/keithlinneman/linnemanlabs-healthprobe/internal/health"
	"github.com/keithlinneman/linnemanlabs-healthprobe/internal/lifecycle"
	"github.com/keithlinneman/linnemanlabs-healthprobe/internal/log"
	"github.com/keithlinneman/linnemanlabs-healthprobe/internal/metrics"
	"github.com/keithlinneman/linnemanlabs-healthprobe/internal/opshttp"
	"github.com/keithlinneman/linnemanlabs-healthprobe/internal/otelx"
	"github.com/keithlinneman/linnemanlabs-healthprobe/internal/probeserver"
	"github.com/keithlinneman/linnemanlabs-healthprobe/internal/prof"
	"github.com/keithlinneman/linnemanlabs-healthprobe/internal/ratelimit"
	v "github.com/keithlinneman/linnemanlabs-healthprobe/internal/version"
	"github.com/keithlinneman/linnemanlabs-healthprobe/internal/xerrors"
)

const component = "probe"

// runServe blocks until ctx is cancelled, then drains and stops.
func runServe(ctx context.Context, conf cfg.App, logOut io.Writer) error {
	vi := v.Get()

	lvl, err := log.ParseLevel(conf.LogLevel)
	if err != nil {
		return err
	}
	stLvl := slog.LevelError
	if conf.StacktraceLevel != "" {
		if stLvl, err = log.ParseLevel(conf.StacktraceLevel); err != nil {
			return err
		}
	}
	lg, err := log.New(log.Options{
		App:               v.AppName,
		Version:           vi.Version,
		Commit:            vi.Commit,
		Level:             lvl,
		StacktraceLevel:   stLvl,
		JsonFormat:        conf.LogJSON,
		MaxErrorLinks:     conf.MaxErrorLinks,
		IncludeErrorLinks: conf.IncludeErrorLinks,
		Writer:            logOut,
	})
	if err != nil {
		return xerrors.Wrap(err, "logger init")
	}
	defer func() { _ = lg.Sync() }()
	L := lg.With("component", component)
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing application",
		"version", vi.Version,
		"commit", vi.Commit,
		"build_date", vi.BuildDate,
		"go_version", vi.GoVersion,
		"probe_host", conf.ProbeHost,
		"probe_port", conf.ProbePort,
		"probe_path", conf.ProbePath,
		"tls", conf.TLSCertFile != "",
		"admin_port", conf.AdminPort,
		"enable_pprof", conf.EnablePprof,
		"enable_pyroscope", conf.EnablePyroscope,
		"enable_tracing", conf.EnableTracing,
		"min_probe_interval", conf.MinProbeInterval,
		"drain_period", conf.DrainPeriod,
	)

	stopProf, profErr := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       v.AppName,
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Tags: map[string]string{
			"component": component,
			"commit":    vi.Commit,
			"build_id":  vi.BuildId,
		},
	})
	defer stopProf()

	// Insecure because spans go to a collector on localhost
	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:   conf.EnableTracing,
		Endpoint:  conf.OTLPEndpoint,
		Insecure:  true,
		Sample:    conf.TraceSample,
		Service:   v.AppName,
		Component: component,
		Version:   vi.Version,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed, tracing disabled")
		shutdownOTEL = func(context.Context) error { return nil }
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTEL(sctx); err != nil {
			L.Error(context.Background(), err, "otel shutdown")
		}
	}()

	m := metrics.New()
	m.SetBuildInfoFromVersion(component, vi)
	m.SetProfilingActive(conf.EnablePyroscope && profErr == nil)

	agg, closeChecks, err := buildChecks(ctx, conf)
	if err != nil {
		return err
	}
	defer closeChecks()
	L.Info(ctx, "health checks registered", "checks", agg.Names())

	var gate health.ShutdownGate
	ev := health.Gated(&gate, health.NewThrottle(agg, conf.MinProbeInterval, conf.ProbeBurst))

	tlsConfig, err := loadTLS(conf)
	if err != nil {
		return err
	}
	srv, err := probeserver.New(probeserver.Config{
		Hostname:          conf.ProbeHost,
		Port:              conf.ProbePort,
		Path:              conf.ProbePath,
		UseTLS:            tlsConfig != nil,
		TLSConfig:         tlsConfig,
		ReadHeaderTimeout: conf.ReadHeaderTimeout,
		WriteTimeout:      conf.WriteTimeout,
		EvaluateTimeout:   conf.EvaluateTimeout,
	}, ev,
		probeserver.WithLogger(L),
		probeserver.WithRecorder(m),
	)
	if err != nil {
		return err
	}

	services := []lifecycle.Named{
		{Name: "probe", Service: lifecycle.NewHosted(srv, L)},
	}
	if conf.AdminPort > 0 {
		// ready once the probe listener is up and until the gate closes
		readiness := health.All(gate.Probe(), health.CheckFunc(func(context.Context) error {
			if st := srv.State(); st != probeserver.StateRunning {
				return xerrors.Newf("probe server %s", st)
			}
			return nil
		}))
		services = append(services, lifecycle.Named{Name: "opshttp", Service: opsService(L, m, readiness, ev, conf)})
	}
	services = append(services, lifecycle.Named{Name: "systemd", Service: lifecycle.Func{
		OnStart: func(ctx context.Context) error {
			if err := notifySystemd(); err != nil && !errors.Is(err, errNoNotifySocket) {
				// systemd kills us after its start timeout if this never lands
				L.Warn(ctx, "failed to notify systemd of readiness", "error", err)
			}
			return nil
		},
	}})

	host := lifecycle.NewHost(lifecycle.HostOptions{
		Logger:          L,
		Gate:            &gate,
		DrainPeriod:     conf.DrainPeriod,
		ShutdownTimeout: conf.ShutdownTimeout,
	}, services...)
	if err := host.Run(ctx); err != nil {
		return err
	}

	L.Info(context.Background(), "shutdown complete")
	return nil
}

// opsService runs the admin listener: metrics, pprof, liveness, readiness
// and the JSON status view of the probe verdict.
func opsService(L log.Logger, m *metrics.ServerMetrics, readiness health.Probe, ev health.Evaluator, conf cfg.App) lifecycle.Func {
	var stop func(context.Context) error
	return lifecycle.Func{
		OnStart: func(ctx context.Context) error {
			var limitMW func(http.Handler) http.Handler
			if conf.AdminRateLimit > 0 {
				// eviction stops with ctx, which ends at shutdown
				limitMW = ratelimit.New(ctx,
					ratelimit.WithRate(conf.AdminRateLimit, conf.AdminBurst),
					ratelimit.WithOnDenied(func(string) { m.IncRateLimited("rate") }),
					ratelimit.WithOnFirstDenied(func(src string) {
						L.Warn(ctx, "admin rate limit triggered", "source", src)
					}),
					ratelimit.WithOnCapacity(func() {
						m.IncRateLimited("capacity")
						L.Warn(ctx, "admin rate limit capacity reached, rejecting new sources")
					}),
				).Middleware
			}
			s, err := opshttp.Start(ctx, L, opshttp.Options{
				Port:         conf.AdminPort,
				Metrics:      m.Handler(),
				MetricsMW:    m.Middleware,
				RateLimitMW:  limitMW,
				EnablePprof:  conf.EnablePprof,
				Health:       health.Fixed(true, ""),
				Readiness:    readiness,
				Evaluator:    ev,
				UseRecoverMW: true,
				OnPanic:      m.IncHttpPanic,
			})
			stop = s
			return err
		},
		OnStop: func(ctx context.Context) error {
			if stop == nil {
				return nil
			}
			return stop(ctx)
		},
	}
}

func loadTLS(conf cfg.App) (*tls.Config, error) {
	if conf.TLSCertFile == "" {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(conf.TLSCertFile, conf.TLSKeyFile)
	if err != nil {
		return nil, xerrors.Wrapf(err, "load tls keypair cert=%s", conf.TLSCertFile)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
