package bridge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"

	"worker-bridge-go/internal/host"
)

// chunkSize is the read size used when draining a framework body.
const chunkSize = 32 << 10

// Response is a framework response split into its parts. A nil Body is an
// empty body.
type Response struct {
	Status int
	Header http.Header
	Body   io.ReadCloser
}

// ResponseFromHTTP splits an *http.Response into a Response. The body moves
// with it.
func ResponseFromHTTP(r *http.Response) *Response {
	return &Response{Status: r.StatusCode, Header: r.Header, Body: r.Body}
}

// HeaderPolicy decides how repeated response header values reach the host.
type HeaderPolicy int

const (
	// LastWriteWins sets each value with the host's set-by-name, so only the
	// last value of a repeated name survives.
	LastWriteWins HeaderPolicy = iota
	// AppendAll appends every value, keeping repeated names intact.
	AppendAll
)

// ParseHeaderPolicy maps a config value to a HeaderPolicy.
func ParseHeaderPolicy(s string) (HeaderPolicy, error) {
	switch s {
	case "", "last_write_wins":
		return LastWriteWins, nil
	case "append":
		return AppendAll, nil
	}
	return 0, fmt.Errorf("unknown header policy %q", s)
}

func (p HeaderPolicy) String() string {
	if p == AppendAll {
		return "append"
	}
	return "last_write_wins"
}

// ToHostResponse converts a framework response into a host response using
// LastWriteWins for repeated headers.
//
// The body is buffered in full before the host response is built. A response
// with an unbounded streaming body needs a size bound upstream of this call.
func ToHostResponse(ctx context.Context, resp *Response) (*host.Response, error) {
	return toHostResponse(ctx, resp, LastWriteWins)
}

// MustHostResponse is ToHostResponse for trusted input; failures panic.
func MustHostResponse(ctx context.Context, resp *Response) *host.Response {
	out, err := ToHostResponse(ctx, resp)
	if err != nil {
		panic(err)
	}
	return out
}

func toHostResponse(ctx context.Context, resp *Response, policy HeaderPolicy) (*host.Response, error) {
	body, err := drain(ctx, resp.Body)
	if err != nil {
		return nil, err
	}

	code := resp.Status
	if code < 100 || code > 599 {
		return nil, newError(KindHost, fmt.Errorf("status %d out of range", code))
	}

	out, err := host.ResponseFromBytes(body)
	if err != nil {
		return nil, newError(KindHost, err)
	}
	out = out.WithStatus(code)

	headers := host.NewHeaders()
	names := make([]string, 0, len(resp.Header))
	for name := range resp.Header {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		for _, v := range resp.Header[name] {
			s, err := headerString(v)
			if err != nil {
				return nil, newError(KindToStr, fmt.Errorf("header %q: %w", name, err))
			}
			if policy == AppendAll {
				err = headers.Append(name, s)
			} else {
				err = headers.Set(name, s)
			}
			if err != nil {
				return nil, newError(KindHost, err)
			}
		}
	}
	return out.WithHeaders(headers), nil
}

// drain reads body chunk by chunk until EOF and closes it.
func drain(ctx context.Context, body io.ReadCloser) ([]byte, error) {
	if body == nil || body == http.NoBody {
		return []byte{}, nil
	}
	defer func() { _ = body.Close() }()

	var buf bytes.Buffer
	chunk := make([]byte, chunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return nil, newError(KindBodyRead, err)
		}
		n, err := body.Read(chunk)
		buf.Write(chunk[:n])
		if errors.Is(err, io.EOF) {
			return buf.Bytes(), nil
		}
		if err != nil {
			return nil, newError(KindBodyRead, err)
		}
	}
}

var errNotVisibleASCII = errors.New("value is not visible ASCII")

// headerString returns v if every byte is visible ASCII, SP or HTAB.
func headerString(v string) (string, error) {
	for i := 0; i < len(v); i++ {
		b := v[i]
		if b != '\t' && (b < ' ' || b == 0x7f || b >= 0x80) {
			return "", errNotVisibleASCII
		}
	}
	return v, nil
}
