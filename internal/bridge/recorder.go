package bridge

import (
	"bytes"
	"io"
	"net/http"
)

// Recorder is the http.ResponseWriter echo writes into. Each Write is kept
// as its own chunk; Result hands them back as a Response body.
type Recorder struct {
	header      http.Header
	snapshot    http.Header
	status      int
	wroteHeader bool
	chunks      [][]byte
	size        int
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{header: make(http.Header)}
}

// Header returns the header map that WriteHeader will freeze.
func (r *Recorder) Header() http.Header {
	return r.header
}

// WriteHeader records code and freezes the headers. Later calls are ignored.
func (r *Recorder) WriteHeader(code int) {
	if r.wroteHeader {
		return
	}
	r.wroteHeader = true
	r.status = code
	r.snapshot = r.header.Clone()
}

// Write appends a chunk, sending an implicit 200 first.
func (r *Recorder) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	if len(b) == 0 {
		return 0, nil
	}
	r.chunks = append(r.chunks, bytes.Clone(b))
	r.size += len(b)
	return len(b), nil
}

// Flush marks a chunk boundary; the body stays buffered.
func (r *Recorder) Flush() {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
}

// Size returns the number of body bytes written.
func (r *Recorder) Size() int {
	return r.size
}

// Result returns the recorded response. A handler that wrote nothing yields
// an empty 200.
func (r *Recorder) Result() *Response {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	return &Response{
		Status: r.status,
		Header: r.snapshot,
		Body:   &chunkBody{chunks: r.chunks},
	}
}

// chunkBody replays recorded chunks in order.
type chunkBody struct {
	chunks [][]byte
	cur    []byte
}

func (b *chunkBody) Read(p []byte) (int, error) {
	for len(b.cur) == 0 {
		if len(b.chunks) == 0 {
			return 0, io.EOF
		}
		b.cur, b.chunks = b.chunks[0], b.chunks[1:]
	}
	n := copy(p, b.cur)
	b.cur = b.cur[n:]
	return n, nil
}

func (b *chunkBody) Close() error {
	b.chunks, b.cur = nil, nil
	return nil
}
