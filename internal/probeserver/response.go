package probeserver

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"net/http"
)

// response buffers one probe answer and commits it to the connection once.
// Until finish runs the status, headers and body can all still change, which
// is what lets the evaluator-error and 500 paths rewrite the answer.
type response struct {
	w      io.Writer
	status int
	header http.Header
	body   bytes.Buffer
	// label is the health keyword (or "error") recorded in metrics
	label string

	committed bool
	abandoned bool
}

func newResponse(w io.Writer) *response {
	h := make(http.Header)
	h.Set("Content-Type", "text/plain")
	return &response{w: w, status: http.StatusOK, header: h}
}

func (r *response) text(code int, body string) {
	r.status = code
	r.label = http.StatusText(code)
	r.body.Reset()
	r.body.WriteString(body)
}

// fail replaces whatever was prepared with an empty-bodied code. It reports
// false if the response already went out.
func (r *response) fail(code int) bool {
	if r.committed || r.abandoned {
		return false
	}
	r.status = code
	r.label = "error"
	r.body.Reset()
	return true
}

// abandon marks the connection as not owed a response.
func (r *response) abandon() { r.abandoned = true }

// finish writes the status line, headers and body with Connection: close.
// HEAD requests get headers only. Calling it twice is a no-op.
func (r *response) finish(req *http.Request) error {
	if r.committed || r.abandoned {
		return nil
	}
	r.committed = true

	hr := &http.Response{
		StatusCode:    r.status,
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        r.header,
		ContentLength: int64(r.body.Len()),
		Body:          io.NopCloser(bytes.NewReader(r.body.Bytes())),
		Close:         true,
		Request:       req,
	}
	bw := bufio.NewWriter(r.w)
	werr := hr.Write(bw)
	return errors.Join(werr, bw.Flush())
}
