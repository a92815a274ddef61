package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/trace"
)

// helpers

func newTestLogger(t *testing.T, buf *bytes.Buffer, opts Options) Logger {
	t.Helper()
	opts.Writer = buf
	opts.JsonFormat = true
	l, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return l
}

// lastRecord parses the last JSON log line in buf.
func lastRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	last := lines[len(lines)-1]
	var m map[string]any
	if err := json.Unmarshal([]byte(last), &m); err != nil {
		t.Fatalf("parse JSON log line: %v\nraw: %s", err, last)
	}
	return m
}

// ParseLevel

func TestParseLevel_ValidLevels(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{" warn ", slog.LevelWarn},
		{"Error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.input)
		if err != nil {
			t.Errorf("ParseLevel(%q) error: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestParseLevel_Invalid(t *testing.T) {
	for _, input := range []string{"", "trace", "fatal", "info error"} {
		if _, err := ParseLevel(input); err == nil {
			t.Errorf("ParseLevel(%q) should return error", input)
		}
	}
}

// New / slog backend

func TestNew_BaseAttrs(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(t, &buf, Options{App: "healthprobe", Version: "1.2.3"})

	l.Info(context.Background(), "hello", "port", 8080)

	rec := lastRecord(t, &buf)
	if rec["msg"] != "hello" {
		t.Fatalf("msg = %v", rec["msg"])
	}
	if rec["app"] != "healthprobe" || rec["version"] != "1.2.3" {
		t.Fatalf("base attrs missing: %v", rec)
	}
	if rec["port"] != float64(8080) {
		t.Fatalf("port = %v", rec["port"])
	}
}

func TestNew_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(t, &buf, Options{App: "t", Level: slog.LevelWarn})

	l.Debug(context.Background(), "dropped")
	l.Info(context.Background(), "dropped")
	if buf.Len() != 0 {
		t.Fatalf("expected no output below warn, got %q", buf.String())
	}
	l.Warn(context.Background(), "kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Fatal("warn record missing")
	}
}

func TestWith_DoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	parent := newTestLogger(t, &buf, Options{App: "t"})
	child := parent.With("component", "probeserver")

	child.Info(context.Background(), "child")
	if lastRecord(t, &buf)["component"] != "probeserver" {
		t.Fatal("child should carry component attr")
	}
	parent.Info(context.Background(), "parent")
	if _, ok := lastRecord(t, &buf)["component"]; ok {
		t.Fatal("parent should not carry child attrs")
	}
}

func TestError_AddsErrorAttrs(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(t, &buf, Options{App: "t", IncludeErrorLinks: true})

	root := errors.New("connection refused")
	l.Error(context.Background(), fmt.Errorf("evaluate: %w", root), "probe failed")

	rec := lastRecord(t, &buf)
	if rec["err"] != "evaluate: connection refused" {
		t.Fatalf("err = %v", rec["err"])
	}
	if rec["cause_type"] != "*errors.errorString" {
		t.Fatalf("cause_type = %v", rec["cause_type"])
	}
	chain, ok := rec["error_chain"].([]any)
	if !ok || len(chain) != 2 {
		t.Fatalf("error_chain = %v", rec["error_chain"])
	}
	if _, ok := rec["stack"]; !ok {
		t.Fatal("error records should carry a stack")
	}
	if _, ok := rec["error_links"]; !ok {
		t.Fatal("error_links requested but missing")
	}
}

func TestOtelHandler_AddsTraceIDs(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(t, &buf, Options{App: "t"})

	tid, _ := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	sid, _ := trace.SpanIDFromHex("0102030405060708")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: tid, SpanID: sid, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	l.Info(ctx, "traced")
	rec := lastRecord(t, &buf)
	if rec["trace_id"] != tid.String() || rec["span_id"] != sid.String() {
		t.Fatalf("trace attrs = %v / %v", rec["trace_id"], rec["span_id"])
	}
}

// Nop / context

func TestNop_AllMethodsSafe(t *testing.T) {
	l := Nop()
	ctx := context.Background()
	l.Debug(ctx, "msg")
	l.Info(ctx, "msg")
	l.Warn(ctx, "msg")
	l.Error(ctx, errors.New("err"), "msg")
	if l.With("k", "v") == nil {
		t.Fatal("With returned nil")
	}
	if err := l.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}
}

func TestFromContext_ReturnsStoredLogger(t *testing.T) {
	l, _ := New(Options{App: "test", Writer: io.Discard})
	ctx := WithContext(context.Background(), l)
	if FromContext(ctx) != l {
		t.Fatal("FromContext returned a different logger than what was stored")
	}
}

func TestFromContext_FallsBackToNop(t *testing.T) {
	cases := []context.Context{
		context.Background(),
		context.WithValue(context.Background(), ctxKey{}, "not a logger"),
	}
	for _, ctx := range cases {
		got := FromContext(ctx)
		if got == nil {
			t.Fatal("FromContext returned nil, want Nop()")
		}
		got.Info(context.Background(), "should not panic")
	}
}
