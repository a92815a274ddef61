package opshttp

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/keithlinneman/linnemanlabs-healthprobe/internal/health"
	"github.com/keithlinneman/linnemanlabs-healthprobe/internal/log"
)

// HealthzHandler: 200 OK when probe passes, 503 otherwise (with reason)
func HealthzHandler(p health.Probe) http.HandlerFunc {
	return probeHandler(p, "ok\n")
}

// ReadyzHandler: 200 OK when probe passes, 503 otherwise (with reason)
func ReadyzHandler(p health.Probe) http.HandlerFunc {
	return probeHandler(p, "ready\n")
}

func probeHandler(p health.Probe, okBody string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if p != nil {
			if err := p.Check(r.Context()); err != nil {
				http.Error(w, err.Error()+"\n", http.StatusServiceUnavailable)
				return
			}
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(okBody))
	}
}

type statusBody struct {
	Status     string         `json:"status"`
	Message    string         `json:"message,omitempty"`
	DurationMS float64        `json:"duration_ms"`
	Timestamp  time.Time      `json:"timestamp"`
	Cached     bool           `json:"cached"`
	Details    map[string]any `json:"details,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// StatusHandler evaluates ev and renders the full result as JSON, with the
// same status code mapping as the probe listener.
func StatusHandler(ev health.Evaluator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		res, err := ev.Evaluate(ctx)

		body := statusBody{
			Status:     res.Status.String(),
			Message:    res.Message,
			DurationMS: float64(res.Duration) / float64(time.Millisecond),
			Timestamp:  res.Timestamp,
			Cached:     res.Cached,
			Details:    res.Details,
		}
		code := http.StatusOK
		if err != nil {
			body.Status = health.StatusUnhealthy.String()
			body.Error = err.Error()
			code = http.StatusServiceUnavailable
		} else if res.Status != health.StatusHealthy {
			code = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(code)
		if err := json.NewEncoder(w).Encode(body); err != nil {
			log.FromContext(ctx).Warn(ctx, "encoding status response", "error", err)
		}
	}
}
