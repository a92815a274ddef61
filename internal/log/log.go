package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Logger is the sink every component writes through. Nothing in this module
// writes to a global logger.
type Logger interface {
	With(kv ...any) Logger

	Debug(ctx context.Context, msg string, kv ...any)
	Info(ctx context.Context, msg string, kv ...any)
	Warn(ctx context.Context, msg string, kv ...any)
	Error(ctx context.Context, err error, msg string, kv ...any)

	Sync() error
}

type Options struct {
	App               string
	Version           string
	Commit            string
	Level             slog.Level
	StacktraceLevel   slog.Level
	JsonFormat        bool
	MaxErrorLinks     int
	IncludeErrorLinks bool
	// Writer defaults to stdout.
	Writer io.Writer
}

func New(opts Options) (Logger, error) { return newSlog(opts) }

func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %s (valid levels are debug|info|warn|error)", s)
	}
}

type ctxKey struct{}

func WithContext(ctx context.Context, L Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, L)
}

// FromContext never returns nil; without a stored logger it returns Nop().
func FromContext(ctx context.Context) Logger {
	if ctx == nil {
		return Nop()
	}
	if L, ok := ctx.Value(ctxKey{}).(Logger); ok && L != nil {
		return L
	}
	return Nop()
}

// discard is what probe server and lifecycle code get when no logger is wired.
type discard struct{}

func Nop() Logger { return discard{} }

func (d discard) With(...any) Logger { return d }
func (discard) Debug(context.Context, string, ...any) {}
func (discard) Info(context.Context, string, ...any) {}
func (discard) Warn(context.Context, string, ...any) {}
func (discard) Error(context.Context, error, string, ...any) {}
func (discard) Sync() error { return nil }
