package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/keithlinneman/linnemanlabs-healthprobe/internal/cfg"
	"github.com/keithlinneman/linnemanlabs-healthprobe/internal/probeserver"
	"github.com/keithlinneman/linnemanlabs-healthprobe/internal/xerrors"
)

// probeURL points at the local listener described by conf. Wildcard hosts
// resolve to loopback.
func probeURL(conf cfg.App) string {
	host := conf.ProbeHost
	switch host {
	case "", "+", "*", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	scheme := "http"
	if conf.TLSCertFile != "" {
		scheme = "https"
	}
	path := "/"
	if p := probeserver.NormalizePath(conf.ProbePath); p != "" {
		path += p
	}
	return scheme + "://" + net.JoinHostPort(host, strconv.Itoa(conf.ProbePort)) + path
}

// runCheck performs one GET and fails unless the probe answers 200.
func runCheck(ctx context.Context, out io.Writer, url string, timeout time.Duration, insecure bool) error {
	tr := &http.Transport{DisableKeepAlives: true}
	if insecure {
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // local self-signed probe certificates
	}
	client := &http.Client{Transport: tr, Timeout: timeout}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return xerrors.Wrapf(err, "build request url=%s", url)
	}
	resp, err := client.Do(req)
	if err != nil {
		return xerrors.Wrapf(err, "probe url=%s", url)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	fmt.Fprintf(out, "%d %s\n", resp.StatusCode, strings.TrimSpace(string(body)))
	if resp.StatusCode != http.StatusOK {
		return xerrors.Newf("probe %s answered %d", url, resp.StatusCode)
	}
	return nil
}
