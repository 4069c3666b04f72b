package host

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

// IngressConfig controls the edge listener.
type IngressConfig struct {
	RequestTimeout time.Duration
	BodyMaxBytes   int
	ReadTimeout    time.Duration
	IdleTimeout    time.Duration
}

// ConnectingIPHeader carries the peer address of the inbound connection.
// Any client-sent value is replaced.
const ConnectingIPHeader = "cf-connecting-ip"

// Ingress accepts HTTP connections and turns each request into a host
// Request for the runtime.
type Ingress struct {
	rt     *Runtime
	cfg    IngressConfig
	logger *slog.Logger
	srv    *fasthttp.Server
}

// NewIngress builds the fasthttp front for rt.
func NewIngress(rt *Runtime, cfg IngressConfig, logger *slog.Logger) *Ingress {
	in := &Ingress{
		rt:     rt,
		cfg:    cfg,
		logger: logger.With("component", "ingress"),
	}
	in.srv = &fasthttp.Server{
		Handler:               in.handle,
		Name:                  "worker-bridge",
		ReadTimeout:           cfg.ReadTimeout,
		IdleTimeout:           cfg.IdleTimeout,
		MaxRequestBodySize:    cfg.BodyMaxBytes,
		NoDefaultContentType:  true,
		NoDefaultServerHeader: true,
	}
	return in
}

// Serve accepts connections on ln until Shutdown.
func (in *Ingress) Serve(ln net.Listener) error {
	return in.srv.Serve(ln)
}

// Shutdown stops accepting and waits for open connections to finish.
func (in *Ingress) Shutdown() error {
	return in.srv.Shutdown()
}

func (in *Ingress) handle(fctx *fasthttp.RequestCtx) {
	start := time.Now()

	req, err := toHostRequest(fctx)
	if err != nil {
		in.logger.Warn("rejecting request", "err", err)
		writeResponse(fctx, ErrorResponse("bad request", http.StatusBadRequest))
		return
	}

	ctx := context.Background()
	if in.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, in.cfg.RequestTimeout)
		defer cancel()
	}

	resp, err := in.rt.Dispatch(ctx, req)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		resp = ErrorResponse("request timed out", http.StatusGatewayTimeout)
	case err != nil:
		in.logger.Error("dispatch failed", "err", err, "method", req.Method())
		resp = ErrorResponse("internal error", http.StatusInternalServerError)
	case resp == nil:
		resp = ErrorResponse("empty response", http.StatusInternalServerError)
	}

	writeResponse(fctx, resp)

	in.logger.Debug("served",
		"method", req.Method(),
		"uri", string(fctx.RequestURI()),
		"status", resp.StatusCode(),
		"duration_ms", time.Since(start).Milliseconds(),
		"remote_ip", fctx.RemoteIP().String(),
	)
}

// toHostRequest copies everything out of fctx; fasthttp reuses its buffers
// once the handler returns.
func toHostRequest(fctx *fasthttp.RequestCtx) (*Request, error) {
	headers := NewHeaders()
	var herr error
	fctx.Request.Header.VisitAll(func(k, v []byte) {
		if herr != nil {
			return
		}
		herr = headers.Append(string(k), string(v))
	})
	if herr != nil {
		return nil, herr
	}
	if err := headers.Set(ConnectingIPHeader, fctx.RemoteIP().String()); err != nil {
		return nil, err
	}

	var body *bytes.Reader
	if b := fctx.PostBody(); len(b) > 0 {
		body = bytes.NewReader(bytes.Clone(b))
	}

	init := &RequestInit{
		Method:  string(fctx.Method()),
		Headers: headers,
	}
	if body != nil {
		init.Body = body
	}
	return NewRequest(string(fctx.URI().FullURI()), init)
}

// skipOnWrite lists headers fasthttp derives from the body itself.
var skipOnWrite = map[string]bool{
	"content-length":    true,
	"transfer-encoding": true,
	"connection":        true,
}

func writeResponse(fctx *fasthttp.RequestCtx, resp *Response) {
	fctx.SetStatusCode(resp.StatusCode())
	for name, value := range resp.Headers().All() {
		if skipOnWrite[strings.ToLower(name)] {
			continue
		}
		fctx.Response.Header.Add(name, value)
	}
	fctx.SetBody(resp.Body())
}
