package host

import (
	"errors"
	"fmt"
)

// MaxBodyBytes is the largest body a host response can be built from.
const MaxBodyBytes = 100 << 20

// ErrBodyTooLarge is returned when a response body exceeds MaxBodyBytes.
var ErrBodyTooLarge = errors.New("response body too large")

// Response is a fully buffered host response.
type Response struct {
	status  int
	headers *Headers
	body    []byte
}

// ResponseFromBytes builds a 200 response owning b.
func ResponseFromBytes(b []byte) (*Response, error) {
	if len(b) > MaxBodyBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrBodyTooLarge, len(b))
	}
	if b == nil {
		b = []byte{}
	}
	return &Response{status: 200, headers: NewHeaders(), body: b}, nil
}

// ResponseFromString builds a 200 text/plain response.
func ResponseFromString(s string) (*Response, error) {
	r, err := ResponseFromBytes([]byte(s))
	if err != nil {
		return nil, err
	}
	_ = r.headers.Set("Content-Type", "text/plain;charset=UTF-8")
	return r, nil
}

// ErrorResponse builds a plain-text response with the given status.
func ErrorResponse(msg string, status int) *Response {
	r, err := ResponseFromString(msg)
	if err != nil {
		r = &Response{headers: NewHeaders(), body: []byte{}}
	}
	return r.WithStatus(status)
}

// WithStatus sets the status code.
func (r *Response) WithStatus(code int) *Response {
	r.status = code
	return r
}

// WithHeaders replaces the header set.
func (r *Response) WithHeaders(h *Headers) *Response {
	r.headers = h
	return r
}

// StatusCode returns the status code.
func (r *Response) StatusCode() int { return r.status }

// Headers returns the header set.
func (r *Response) Headers() *Headers { return r.headers }

// Body returns the buffered body. It is empty, never nil, for bodiless responses.
func (r *Response) Body() []byte { return r.body }
