package probeserver

import (
	"crypto/tls"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/keithlinneman/linnemanlabs-healthprobe/internal/xerrors"
)

const (
	DefaultHostname          = "+"
	DefaultPath              = "/health"
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultWriteTimeout      = 10 * time.Second
)

// Config is fixed at construction and owned by the Server afterwards.
type Config struct {
	// Hostname to bind. "+", "*" and "" all mean every interface.
	Hostname string
	// Port is required, 1..65535.
	Port int
	// Path the probe answers on; leading and trailing slashes are ignored.
	// Empty means DefaultPath, "/" means the root.
	Path string
	// UseTLS switches the scheme to https and wraps the listener with TLSConfig.
	UseTLS    bool
	TLSConfig *tls.Config

	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	// EvaluateTimeout bounds one evaluation on top of the stop signal, 0 = none.
	EvaluateTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Hostname == "" {
		c.Hostname = DefaultHostname
	}
	if c.Path == "" {
		c.Path = DefaultPath
	}
	if c.ReadHeaderTimeout <= 0 {
		c.ReadHeaderTimeout = DefaultReadHeaderTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.EvaluateTimeout < 0 {
		c.EvaluateTimeout = 0
	}
	return c
}

func (c Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return xerrors.Mark(xerrors.Newf("port %d out of range (must be 1..65535)", c.Port), ErrInvalidConfig)
	}
	if strings.ContainsAny(c.Hostname, "/ ") {
		return xerrors.Mark(xerrors.Newf("hostname %q is not a host", c.Hostname), ErrInvalidConfig)
	}
	if c.UseTLS && c.TLSConfig == nil {
		return xerrors.Mark(xerrors.New("tls enabled without a tls config"), ErrInvalidConfig)
	}
	return nil
}

// NormalizePath strips every leading and trailing slash, keeping internal
// segments: "/a/b/" -> "a/b", "//" -> "". Whitespace is kept as is.
func NormalizePath(p string) string {
	return strings.Trim(p, "/")
}

// Prefix renders http{s}://{hostname}:{port}/{path}/ with exactly one slash
// on each side of the normalized path.
func (c Config) Prefix() string {
	c = c.withDefaults()
	scheme := "http"
	if c.UseTLS {
		scheme = "https"
	}
	return scheme + "://" + net.JoinHostPort(c.Hostname, strconv.Itoa(c.Port)) + routePath(c.Path)
}

// routePath is the path portion of the prefix, always starting and ending with "/".
func routePath(p string) string {
	n := NormalizePath(p)
	if n == "" {
		return "/"
	}
	return "/" + n + "/"
}

// bindAddress maps the wildcard hostnames onto an empty host for net.Listen.
func (c Config) bindAddress() string {
	host := c.Hostname
	switch host {
	case "+", "*":
		host = ""
	}
	return net.JoinHostPort(host, strconv.Itoa(c.Port))
}
