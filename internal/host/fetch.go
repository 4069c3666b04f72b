package host

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
)

// Doer performs outbound HTTP round trips for the host.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fetcher is the host's outbound fetch. Fetch is loop-bound, but the round
// trip itself is a suspension point: other tasks run while it waits.
type Fetcher struct {
	doer Doer
}

// NewFetcher returns a Fetcher backed by d.
func NewFetcher(d Doer) *Fetcher {
	return &Fetcher{doer: d}
}

// Fetch sends req and buffers the whole reply into a host Response.
func (f *Fetcher) Fetch(ctx context.Context, req *Request) (*Response, error) {
	if !OnLoop(ctx) {
		return nil, fmt.Errorf("fetch: %w", ErrOffLoop)
	}

	body, err := req.Bytes(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	u, err := req.URL()
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}

	var rd io.Reader
	if len(body) > 0 {
		rd = bytes.NewReader(body)
	}
	hreq, err := http.NewRequestWithContext(Detach(ctx), req.Method(), u.String(), rd)
	if err != nil {
		return nil, fmt.Errorf("fetch: build request: %w", err)
	}
	for name, value := range req.Headers().All() {
		hreq.Header.Add(name, value)
	}

	raw, err := Await(ctx, func(context.Context) (*roundTrip, error) {
		return f.roundTrip(hreq)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}

	out, err := ResponseFromBytes(raw.body)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	headers := NewHeaders()
	for name, vals := range raw.header {
		for _, v := range vals {
			if err := headers.Append(name, v); err != nil {
				return nil, fmt.Errorf("fetch: %w", err)
			}
		}
	}
	return out.WithStatus(raw.status).WithHeaders(headers), nil
}

// roundTrip is an origin reply read off the loop.
type roundTrip struct {
	status int
	header http.Header
	body   []byte
}

func (f *Fetcher) roundTrip(hreq *http.Request) (*roundTrip, error) {
	resp, err := f.doer.Do(hreq)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return &roundTrip{status: resp.StatusCode, header: resp.Header, body: data}, nil
}
