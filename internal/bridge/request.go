// Package bridge translates between host runtime objects and the net/http
// values echo works with, and lets echo handlers run code that must stay on
// the host scheduler.
package bridge

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"

	"golang.org/x/net/http/httpguts"
)

// Incoming is the part of a host request the translator reads.
// *host.Request implements it.
type Incoming interface {
	Method() string
	URL() (*url.URL, error)
	Fields() iter.Seq2[string, string]
	Bytes(ctx context.Context) ([]byte, error)
}

// ToHTTPRequest converts a host request into a framework request. The host
// body is drained exactly once and buffered; nothing is returned on error.
//
// Every header pair the host reports becomes its own entry, so a name the
// host reports twice keeps both values. A URL fragment is kept on the
// request URL and left out of RequestURI.
func ToHTTPRequest(ctx context.Context, req Incoming) (*http.Request, error) {
	method := req.Method()
	if !httpguts.ValidHeaderFieldName(method) {
		return nil, newError(KindInvalidMethod, fmt.Errorf("method %q is not a token", method))
	}

	hu, err := req.URL()
	if err != nil {
		return nil, newError(KindHost, err)
	}
	target := *hu
	target.Fragment, target.RawFragment = "", ""
	u, err := url.ParseRequestURI(target.String())
	if err != nil {
		return nil, newError(KindInvalidURI, err)
	}
	u.Fragment, u.RawFragment = hu.Fragment, hu.RawFragment

	body, err := req.Bytes(ctx)
	if err != nil {
		return nil, newError(KindBodyRead, err)
	}

	header := make(http.Header)
	for name, value := range req.Fields() {
		if !httpguts.ValidHeaderFieldName(name) {
			return nil, newError(KindInvalidHeaderName, fmt.Errorf("header name %q", name))
		}
		if !httpguts.ValidHeaderFieldValue(value) {
			return nil, newError(KindInvalidHeaderValue, fmt.Errorf("value of header %q", name))
		}
		header.Add(name, value)
	}

	var rd io.Reader
	if len(body) > 0 {
		rd = bytes.NewReader(body)
	}
	out, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return nil, newError(KindHTTP, err)
	}
	if out.Body == nil {
		out.Body = http.NoBody
		out.GetBody = func() (io.ReadCloser, error) { return http.NoBody, nil }
	}
	out.URL = u
	out.Header = header
	out.RequestURI = u.RequestURI()
	if h := header.Get("Host"); h != "" {
		out.Host = h
	}
	return out, nil
}

// MustHTTPRequest is ToHTTPRequest for hosts that guarantee well-formed
// input. Any failure panics and aborts the current request.
func MustHTTPRequest(ctx context.Context, req Incoming) *http.Request {
	out, err := ToHTTPRequest(ctx, req)
	if err != nil {
		panic(err)
	}
	return out
}
