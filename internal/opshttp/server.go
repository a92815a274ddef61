package opshttp

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/pprof"
	"net/netip"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/keithlinneman/linnemanlabs-healthprobe/internal/httpmw"
	"github.com/keithlinneman/linnemanlabs-healthprobe/internal/log"
	"github.com/keithlinneman/linnemanlabs-healthprobe/internal/xerrors"
)

// NewHandler builds the admin router: /-/healthy, /-/ready, /-/status,
// /metrics and optionally pprof, behind the non-public-network guard.
func NewHandler(L log.Logger, opts Options) http.Handler {
	if L == nil {
		L = log.Nop()
	}

	r := chi.NewRouter()
	mws := []func(http.Handler) http.Handler{
		httpmw.Correlation(),
		httpmw.WithLogger(L),
		httpmw.AccessLog(),
	}
	if opts.UseRecoverMW {
		mws = append([]func(http.Handler) http.Handler{httpmw.Recover(L, opts.OnPanic)}, mws...)
	}
	if opts.MetricsMW != nil {
		mws = append(mws, opts.MetricsMW)
	}
	if opts.RateLimitMW != nil {
		mws = append(mws, opts.RateLimitMW)
	}
	r.Use(mws...)

	r.Get("/-/healthy", HealthzHandler(opts.Health))
	r.Get("/-/ready", ReadyzHandler(opts.Readiness))
	if opts.Evaluator != nil {
		r.Get("/-/status", StatusHandler(opts.Evaluator))
	}
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics)
	}
	// without pprof the chi default 404 covers /debug/pprof/
	if opts.EnablePprof {
		registerPprof(r)
	}

	return httpmw.Chain(r,
		func(next http.Handler) http.Handler { return requireNonPublicNetwork(L, next) },
		func(next http.Handler) http.Handler {
			return otelhttp.NewHandler(next, "ops",
				otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
					return "ops " + r.Method + " " + r.URL.Path
				}),
			)
		},
	)
}

func registerPprof(r chi.Router) {
	r.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	r.HandleFunc("/debug/pprof/profile", pprof.Profile)
	r.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	r.HandleFunc("/debug/pprof/trace", pprof.Trace)
	// Index serves the listing and every named profile (heap, goroutine, ...)
	r.HandleFunc("/debug/pprof/*", pprof.Index)
}

// requireNonPublicNetwork refuses anything that did not come straight from a
// loopback, private or link-local peer. A forwarding header means something
// is proxying public traffic here, so those are refused too.
func requireNonPublicNetwork(L log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Forwarded-For") != "" || r.Header.Get("Forwarded") != "" {
			L.Warn(r.Context(), "rejected forwarded admin request", "remote_addr", r.RemoteAddr)
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		ip, err := netip.ParseAddr(host)
		if err != nil {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		ip = ip.Unmap()
		if !ip.IsLoopback() && !ip.IsPrivate() && !ip.IsLinkLocalUnicast() {
			L.Warn(r.Context(), "rejected admin request from public address", "remote_addr", r.RemoteAddr)
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start admin HTTP server with /metrics, /-/healthy, /-/ready, /-/status, pprof debug endpoints
// Returns stop(ctx) for graceful shutdown
func Start(ctx context.Context, L log.Logger, opts Options) (func(context.Context) error, error) {
	if L == nil {
		L = log.Nop()
	}
	if opts.Port < 1 || opts.Port > 65535 {
		return nil, xerrors.Newf("admin port %d out of range (must be 1..65535)", opts.Port)
	}
	addr := net.JoinHostPort(opts.Hostname, strconv.Itoa(opts.Port))
	L = L.With("component", "opshttp")

	srv := &http.Server{
		Addr:              addr,
		Handler:           NewHandler(L, opts),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// pprof profile and trace stream for up to 30s by default
		WriteTimeout:   40 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, xerrors.Wrapf(err, "could not listen for admin port on addr=%v", addr)
	}

	go func() {
		L.Info(ctx, "ops http server listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			L.Error(ctx, err, "ops http server error")
		}
	}()

	var once sync.Once
	stop := func(sctx context.Context) (retErr error) {
		once.Do(func() {
			L.Info(sctx, "ops http server shutting down")
			c, cancel := context.WithTimeout(sctx, 5*time.Second)
			defer cancel()
			retErr = srv.Shutdown(c)
		})
		return retErr
	}
	return stop, nil
}
