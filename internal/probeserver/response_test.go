package probeserver

import (
	"bufio"
	"bytes"
	"io"
	"net/http"
	"strings"
	"testing"
)

func readBack(t *testing.T, raw []byte, method string) *http.Response {
	t.Helper()
	req, _ := http.NewRequest(method, "/", nil)
	resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(raw)), req)
	if err != nil {
		t.Fatalf("ReadResponse: %v\n%s", err, raw)
	}
	return resp
}

func TestResponse_FinishWritesPlainTextClose(t *testing.T) {
	var buf bytes.Buffer
	r := newResponse(&buf)
	r.status = http.StatusServiceUnavailable
	r.body.WriteString("Unhealthy")

	if err := r.finish(nil); err != nil {
		t.Fatalf("finish: %v", err)
	}

	resp := readBack(t, buf.Bytes(), http.MethodGet)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/plain" {
		t.Fatalf("Content-Type = %q", ct)
	}
	if !resp.Close {
		t.Fatal("response should ask the client to close")
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "Unhealthy" {
		t.Fatalf("body = %q", body)
	}
}

func TestResponse_FinishOnce(t *testing.T) {
	var buf bytes.Buffer
	r := newResponse(&buf)
	r.body.WriteString("Healthy")
	_ = r.finish(nil)
	n := buf.Len()
	_ = r.finish(nil)
	if buf.Len() != n {
		t.Fatal("second finish should not write")
	}
}

func TestResponse_HeadOmitsBody(t *testing.T) {
	var buf bytes.Buffer
	r := newResponse(&buf)
	r.body.WriteString("Healthy")
	req, _ := http.NewRequest(http.MethodHead, "/health", nil)
	if err := r.finish(req); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if strings.Contains(buf.String(), "\r\n\r\nHealthy") {
		t.Fatalf("HEAD response carried a body:\n%s", buf.String())
	}
}

func TestResponse_AbandonWritesNothing(t *testing.T) {
	var buf bytes.Buffer
	r := newResponse(&buf)
	r.abandon()
	_ = r.finish(nil)
	if buf.Len() != 0 {
		t.Fatalf("abandoned response wrote %q", buf.String())
	}
}

func TestResponse_FailBeforeCommit(t *testing.T) {
	var buf bytes.Buffer
	r := newResponse(&buf)
	r.body.WriteString("Healthy")
	if !r.fail(http.StatusInternalServerError) {
		t.Fatal("fail should succeed before commit")
	}
	_ = r.finish(nil)
	resp := readBack(t, buf.Bytes(), http.MethodGet)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if r.fail(http.StatusBadGateway) {
		t.Fatal("fail should report false after commit")
	}
}
