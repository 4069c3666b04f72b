// Package model defines shared types for origin traffic.
package model

import (
	"net/http"
	"net/url"
)

// OriginRequest is a framework request to be forwarded to the origin.
type OriginRequest struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
}

// OriginResponse is the buffered origin reply, already filtered.
type OriginResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}
