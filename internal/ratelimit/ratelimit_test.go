package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// newTestLimiter uses a slow refill so tests only see the burst, and a long
// TTL so eviction only happens when a test calls evict.
func newTestLimiter(t *testing.T, opts ...Option) *Limiter {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	defaults := []Option{WithRate(0.001, 3), WithTTL(time.Hour)}
	return New(ctx, append(defaults, opts...)...)
}

func TestAllow_BurstThenReject(t *testing.T) {
	l := newTestLimiter(t)
	for i := 0; i < 3; i++ {
		if !l.Allow("10.0.0.1") {
			t.Fatalf("request %d should be allowed (within burst)", i+1)
		}
	}
	if l.Allow("10.0.0.1") {
		t.Fatal("request 4 should be denied (burst exhausted)")
	}
	if !l.Allow("10.0.0.2") {
		t.Fatal("a different source should have its own bucket")
	}
}

func TestAllow_RefillAfterTime(t *testing.T) {
	l := newTestLimiter(t, WithRate(50, 1))
	if !l.Allow("a") || l.Allow("a") {
		t.Fatal("burst of 1 should allow exactly one request")
	}
	time.Sleep(60 * time.Millisecond)
	if !l.Allow("a") {
		t.Fatal("bucket should have refilled")
	}
}

func TestHooks(t *testing.T) {
	var first, denied atomic.Int32
	l := newTestLimiter(t,
		WithRate(0.001, 1),
		WithOnFirstDenied(func(string) { first.Add(1) }),
		WithOnDenied(func(string) { denied.Add(1) }),
	)
	for i := 0; i < 4; i++ {
		l.Allow("a")
	}
	l.Allow("b")
	l.Allow("b")

	if got := first.Load(); got != 2 {
		t.Errorf("first denials = %d, want one per source (2)", got)
	}
	if got := denied.Load(); got != 4 {
		t.Errorf("denials = %d, want 4", got)
	}
}

func TestEvict(t *testing.T) {
	var first atomic.Int32
	l := newTestLimiter(t,
		WithRate(0.001, 1),
		WithTTL(time.Minute),
		WithOnFirstDenied(func(string) { first.Add(1) }),
	)
	l.Allow("stale")
	l.Allow("stale")
	l.Allow("fresh")

	l.mu.Lock()
	l.visitors["stale"].lastSeen = time.Now().Add(-2 * time.Minute)
	l.mu.Unlock()

	l.evict(time.Now())
	if l.Len() != 1 {
		t.Fatalf("Len = %d, want 1 after evicting the stale source", l.Len())
	}

	// re-created entries get a fresh bucket and a fresh first-denial log
	if !l.Allow("stale") {
		t.Fatal("evicted source should start with a full bucket")
	}
	l.Allow("stale")
	if got := first.Load(); got != 2 {
		t.Fatalf("first denials = %d, want 2", got)
	}
}

func TestCleanup_RunsAndStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	l := New(ctx, WithTTL(20*time.Millisecond))
	l.Allow("a")

	deadline := time.Now().Add(2 * time.Second)
	for l.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("background cleanup never evicted the idle source")
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
}

func TestMaxVisitors(t *testing.T) {
	var capacity atomic.Int32
	l := newTestLimiter(t,
		WithMaxVisitors(2),
		WithOnCapacity(func() { capacity.Add(1) }),
	)
	l.Allow("a")
	l.Allow("b")

	if l.Allow("c") || l.Allow("d") {
		t.Fatal("new sources should be rejected at capacity")
	}
	if !l.Allow("a") {
		t.Fatal("tracked sources should still be served at capacity")
	}
	if got := capacity.Load(); got != 1 {
		t.Fatalf("capacity hook fired %d times, want 1", got)
	}

	l.mu.Lock()
	l.visitors["b"].lastSeen = time.Now().Add(-2 * time.Hour)
	l.mu.Unlock()
	l.evict(time.Now())

	if !l.Allow("c") {
		t.Fatal("eviction should free capacity")
	}
	l.Allow("d")
	if got := capacity.Load(); got != 2 {
		t.Fatalf("capacity hook should re-arm after eviction, fired %d", got)
	}
}

func TestMaxVisitors_ZeroDisables(t *testing.T) {
	l := newTestLimiter(t, WithMaxVisitors(0))
	for i := 0; i < 100; i++ {
		if !l.Allow(fmt.Sprintf("10.0.0.%d", i)) {
			t.Fatalf("source %d rejected with no cap", i)
		}
	}
}

func TestAllow_Concurrent(t *testing.T) {
	l := newTestLimiter(t, WithRate(0.001, 10), WithMaxVisitors(50))
	var allowed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				if l.Allow("shared") {
					allowed.Add(1)
				}
			}
		}()
	}
	wg.Wait()
	if got := allowed.Load(); got != 10 {
		t.Fatalf("allowed = %d, want exactly the burst (10)", got)
	}
}

func TestSource(t *testing.T) {
	tests := map[string]string{
		"10.0.0.1:1234": "10.0.0.1",
		"[::1]:80":      "::1",
		"pipe":          "pipe",
	}
	for remote, want := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = remote
		if got := Source(r); got != want {
			t.Errorf("Source(%q) = %q, want %q", remote, got, want)
		}
	}
}

func TestMiddleware(t *testing.T) {
	l := newTestLimiter(t, WithRate(0.001, 1))
	var reached atomic.Int32
	h := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached.Add(1)
	}))

	do := func(remote string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodGet, "/-/status", nil)
		r.RemoteAddr = remote
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		return rec
	}

	if rec := do("10.0.0.1:1"); rec.Code != http.StatusOK {
		t.Fatalf("first request = %d, want 200", rec.Code)
	}
	rec := do("10.0.0.1:2")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("429 should carry Retry-After")
	}
	if rec := do("10.0.0.2:1"); rec.Code != http.StatusOK {
		t.Fatalf("other source = %d, want 200", rec.Code)
	}
	if got := reached.Load(); got != 2 {
		t.Fatalf("handler reached %d times, want 2", got)
	}
}
