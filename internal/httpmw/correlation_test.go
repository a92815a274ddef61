package httpmw

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/trace"
)

func sampledContext() context.Context {
	traceID, _ := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	spanID, _ := trace.SpanIDFromHex("0102030405060708")
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	return trace.ContextWithSpanContext(context.Background(), sc)
}

// correlate serves one request and returns the id seen by the handler and the response headers.
func correlate(t *testing.T, req *http.Request) (string, http.Header) {
	t.Helper()
	var ctxID string
	h := Correlation()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxID = RequestIDFromContext(r.Context())
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return ctxID, rec.Header()
}

func TestWithRequestID(t *testing.T) {
	if got := RequestIDFromContext(WithRequestID(context.Background(), "abc")); got != "abc" {
		t.Fatalf("RequestIDFromContext = %q", got)
	}
	if got := RequestIDFromContext(WithRequestID(context.Background(), "")); got != "" {
		t.Fatalf("empty id should not be stored, got %q", got)
	}
}

func TestCorrelation_GeneratesRequestID(t *testing.T) {
	ctxID, hdr := correlate(t, httptest.NewRequest(http.MethodGet, "/", http.NoBody))
	if len(ctxID) != 32 {
		t.Fatalf("generated id = %q, want 32 hex chars", ctxID)
	}
	if hdr.Get(HeaderRequestID) != ctxID {
		t.Fatalf("response header %q != context id %q", hdr.Get(HeaderRequestID), ctxID)
	}
	if hdr.Get(HeaderTraceID) != "" {
		t.Fatal("no trace header expected without a span")
	}
}

func TestCorrelation_KeepsValidInbound(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.Header.Set(HeaderRequestID, "lb-1234.abc_DEF")
	ctxID, hdr := correlate(t, req)
	if ctxID != "lb-1234.abc_DEF" || hdr.Get(HeaderRequestID) != ctxID {
		t.Fatalf("ctx=%q resp=%q, want inbound id", ctxID, hdr.Get(HeaderRequestID))
	}
}

func TestCorrelation_ReplacesInvalidInbound(t *testing.T) {
	for _, bad := range []string{
		"has space",
		"quote\"d",
		"semi;colon",
		strings.Repeat("a", maxRequestIDLen+1),
	} {
		req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
		req.Header.Set(HeaderRequestID, bad)
		if ctxID, _ := correlate(t, req); ctxID == bad || len(ctxID) != 32 {
			t.Errorf("inbound %q should be replaced, got %q", bad, ctxID)
		}
	}
}

func TestCorrelation_EchoesTraceIDs(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody).WithContext(sampledContext())
	_, hdr := correlate(t, req)
	if got := hdr.Get(HeaderTraceID); got != "0102030405060708090a0b0c0d0e0f10" {
		t.Fatalf("%s = %q", HeaderTraceID, got)
	}
	if got := hdr.Get(HeaderSpanID); got != "0102030405060708" {
		t.Fatalf("%s = %q", HeaderSpanID, got)
	}
}

func TestNewRequestID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for range 100 {
		id := newRequestID()
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}
