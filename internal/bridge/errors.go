package bridge

import (
	"fmt"
)

// Kind names the step of a translation that failed.
type Kind string

const (
	KindInvalidMethod      Kind = "invalid_method"
	KindInvalidURI         Kind = "invalid_uri"
	KindInvalidHeaderName  Kind = "invalid_header_name"
	KindInvalidHeaderValue Kind = "invalid_header_value"
	KindBodyRead           Kind = "body_read" // draining a host or framework body
	KindHost               Kind = "host"      // the host rejected an object it was asked to build
	KindFramework          Kind = "framework" // the framework side failed while producing a response
	KindHTTP               Kind = "http"      // assembling the framework request
	KindToStr              Kind = "to_str"    // a response header value is not a visible ASCII string
)

// Kinds lists every Kind, in declaration order.
var Kinds = []Kind{
	KindInvalidMethod,
	KindInvalidURI,
	KindInvalidHeaderName,
	KindInvalidHeaderValue,
	KindBodyRead,
	KindHost,
	KindFramework,
	KindHTTP,
	KindToStr,
}

// Error is a translation failure. Translation failures are structural, so
// none of them is worth retrying with the same input.
type Error struct {
	Kind  Kind
	Cause error
}

// Sentinels for errors.Is; they match any *Error of the same Kind.
var (
	ErrInvalidMethod      = &Error{Kind: KindInvalidMethod}
	ErrInvalidURI         = &Error{Kind: KindInvalidURI}
	ErrInvalidHeaderName  = &Error{Kind: KindInvalidHeaderName}
	ErrInvalidHeaderValue = &Error{Kind: KindInvalidHeaderValue}
	ErrBodyRead           = &Error{Kind: KindBodyRead}
	ErrHost               = &Error{Kind: KindHost}
	ErrFramework          = &Error{Kind: KindFramework}
	ErrHTTP               = &Error{Kind: KindHTTP}
	ErrToStr              = &Error{Kind: KindToStr}
)

func newError(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return "bridge: " + string(e.Kind)
	}
	return fmt.Sprintf("bridge: %s: %v", e.Kind, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}
