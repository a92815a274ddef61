package checks

import (
	"context"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/keithlinneman/linnemanlabs-healthprobe/internal/health"
	"github.com/keithlinneman/linnemanlabs-healthprobe/internal/xerrors"
)

// maxDrain caps how much of a response body is read before closing.
const maxDrain = 4 << 10

// NewHTTPClient returns a client whose requests carry trace context.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// HTTP GETs url and passes on any 2xx. A nil client uses NewHTTPClient(5s).
func HTTP(client *http.Client, url string) health.CheckFunc {
	if client == nil {
		client = NewHTTPClient(5 * time.Second)
	}
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return xerrors.Wrapf(err, "http check url=%s", url)
		}
		resp, err := client.Do(req)
		if err != nil {
			return xerrors.Wrapf(err, "http check url=%s", url)
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrain))

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return xerrors.Newf("http check url=%s: status %d", url, resp.StatusCode)
		}
		return nil
	}
}
