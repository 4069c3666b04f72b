package bridge

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"worker-bridge-go/internal/host"
	"worker-bridge-go/internal/metrics"
)

// Mode is the error policy of a deployment. Pick one and use it for every
// call site of a Translator.
type Mode int

const (
	// Fallible reports every translation failure as an *Error.
	Fallible Mode = iota
	// Trusting assumes the host already validated its input and panics on any
	// failure, aborting only the current request.
	Trusting
)

// ParseMode maps a config value to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "fallible":
		return Fallible, nil
	case "trusting":
		return Trusting, nil
	}
	return 0, fmt.Errorf("unknown bridge mode %q", s)
}

func (m Mode) String() string {
	if m == Trusting {
		return "trusting"
	}
	return "fallible"
}

// Options configures a Translator.
type Options struct {
	Mode    Mode
	Headers HeaderPolicy
	Metrics *metrics.Metrics // optional
}

// Translator applies one Mode and HeaderPolicy to both directions.
type Translator struct {
	mode    Mode
	headers HeaderPolicy
	metrics *metrics.Metrics
}

// NewTranslator creates a Translator.
func NewTranslator(opts Options) *Translator {
	return &Translator{mode: opts.Mode, headers: opts.Headers, metrics: opts.Metrics}
}

// Mode returns the translator's error policy.
func (t *Translator) Mode() Mode { return t.mode }

// Request converts a host request. In Trusting mode a failure panics.
func (t *Translator) Request(ctx context.Context, req *host.Request) (*http.Request, error) {
	out, err := ToHTTPRequest(ctx, req)
	t.record("request", err)
	if err != nil {
		if t.mode == Trusting {
			panic(err)
		}
		return nil, err
	}
	if t.metrics != nil {
		t.metrics.BodyBytes.WithLabelValues("request").Observe(float64(out.ContentLength))
	}
	return out, nil
}

// Response converts a framework response. In Trusting mode a failure panics.
func (t *Translator) Response(ctx context.Context, resp *Response) (*host.Response, error) {
	out, err := toHostResponse(ctx, resp, t.headers)
	t.record("response", err)
	if err != nil {
		if t.mode == Trusting {
			panic(err)
		}
		return nil, err
	}
	if t.metrics != nil {
		t.metrics.BodyBytes.WithLabelValues("response").Observe(float64(len(out.Body())))
	}
	return out, nil
}

func (t *Translator) record(direction string, err error) {
	if t.metrics == nil {
		return
	}
	if err == nil {
		t.metrics.Translations.WithLabelValues(direction, "ok").Inc()
		return
	}
	t.metrics.Translations.WithLabelValues(direction, "error").Inc()
	kind := "unknown"
	var be *Error
	if errors.As(err, &be) {
		kind = string(be.Kind)
	}
	t.metrics.TranslationErrors.WithLabelValues(direction, kind).Inc()
}
