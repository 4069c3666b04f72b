// Package host models the edge runtime that owns incoming requests: its
// request/response objects, environment, outbound fetch and the single
// cooperative scheduler every host object is bound to.
package host

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/url"

	"golang.org/x/net/http/httpguts"
)

// ErrBodyUsed is returned when a request body is read a second time.
var ErrBodyUsed = errors.New("body already used")

// RequestInit carries the optional parts of a new Request.
type RequestInit struct {
	Method  string
	Headers *Headers
	Body    io.Reader
}

// Request is an incoming or outgoing host request. Its body can be read once.
type Request struct {
	method   string
	url      string
	headers  *Headers
	body     io.Reader
	bodyUsed bool
}

// NewRequest builds a request for an absolute http(s) URL. A nil init means a
// bodiless GET.
func NewRequest(rawURL string, init *RequestInit) (*Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("url %q must be absolute http or https", rawURL)
	}
	if init == nil {
		init = &RequestInit{}
	}

	method := init.Method
	if method == "" {
		method = "GET"
	}
	if !httpguts.ValidHeaderFieldName(method) {
		return nil, fmt.Errorf("invalid method %q", method)
	}

	headers := init.Headers
	if headers == nil {
		headers = NewHeaders()
	}

	return &Request{
		method:  method,
		url:     rawURL,
		headers: headers,
		body:    init.Body,
	}, nil
}

// Method returns the request method as received.
func (r *Request) Method() string { return r.method }

// URL parses and returns the request URL.
func (r *Request) URL() (*url.URL, error) {
	u, err := url.Parse(r.url)
	if err != nil {
		return nil, fmt.Errorf("request url: %w", err)
	}
	return u, nil
}

// Headers returns the live header set.
func (r *Request) Headers() *Headers { return r.headers }

// Fields yields the request's header pairs, as Headers().All() does.
func (r *Request) Fields() iter.Seq2[string, string] { return r.headers.All() }

// BodyUsed reports whether Bytes has already been called.
func (r *Request) BodyUsed() bool { return r.bodyUsed }

// Bytes drains the body. It succeeds once; later calls return ErrBodyUsed.
// A request without a body yields an empty, non-nil slice.
func (r *Request) Bytes(ctx context.Context) ([]byte, error) {
	if r.bodyUsed {
		return nil, ErrBodyUsed
	}
	r.bodyUsed = true

	if r.body == nil {
		return []byte{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r.body); err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if c, ok := r.body.(io.Closer); ok {
		_ = c.Close()
	}
	return buf.Bytes(), nil
}
