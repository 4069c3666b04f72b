// Package service implements the origin fetch used by the example routes.
package service

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"worker-bridge-go/internal/config"
	"worker-bridge-go/internal/host"
	"worker-bridge-go/internal/model"
)

// forwardableRequestHeaders are the only request headers forwarded to the origin.
var forwardableRequestHeaders = []string{
	"Accept",
	"Accept-Language",
	"Content-Type",
	"If-None-Match",
	"If-Modified-Since",
}

// forwardableResponseHeaders are the only origin headers returned to the client.
var forwardableResponseHeaders = map[string]bool{
	"Content-Type":  true,
	"Cache-Control": true,
	"Etag":          true,
	"Last-Modified": true,
	"Date":          true,
	"Vary":          true,
}

const userAgent = "worker-bridge-go/1.0"

// OriginService fetches origin content through the host fetch.
type OriginService struct {
	fetcher *host.Fetcher
	logger  *slog.Logger
	baseURL *url.URL
}

// NewOriginService creates an OriginService for cfg.Origin.BaseURL.
func NewOriginService(f *host.Fetcher, cfg *config.Config, logger *slog.Logger) (*OriginService, error) {
	u, err := url.Parse(cfg.Origin.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse origin base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("origin base_url %q must be absolute", cfg.Origin.BaseURL)
	}

	return &OriginService{
		fetcher: f,
		logger:  logger.With("component", "origin_service"),
		baseURL: u,
	}, nil
}

// BaseURL returns the configured origin.
func (s *OriginService) BaseURL() string {
	return s.baseURL.String()
}

// Fetch sends or to the origin. ctx must be a host scheduler context.
func (s *OriginService) Fetch(ctx context.Context, or *model.OriginRequest) (*model.OriginResponse, error) {
	headers, err := s.filterRequestHeaders(or.Header)
	if err != nil {
		return nil, fmt.Errorf("origin headers: %w", err)
	}

	init := &host.RequestInit{Method: or.Method, Headers: headers}
	if len(or.Body) > 0 {
		init.Body = bytes.NewReader(or.Body)
	}
	req, err := host.NewRequest(s.buildOriginURL(or.Path, or.Query), init)
	if err != nil {
		return nil, fmt.Errorf("build origin request: %w", err)
	}

	s.logger.Debug("fetching origin",
		"method", or.Method,
		"path", or.Path,
	)

	resp, err := s.fetcher.Fetch(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("fetch origin: %w", err)
	}

	return &model.OriginResponse{
		StatusCode: resp.StatusCode(),
		Header:     s.filterResponseHeaders(resp.Headers()),
		Body:       resp.Body(),
	}, nil
}

func (s *OriginService) buildOriginURL(path string, query url.Values) string {
	u := *s.baseURL
	u.Path = strings.TrimSuffix(s.baseURL.Path, "/") + path
	u.RawQuery = query.Encode()
	return u.String()
}

func (s *OriginService) filterRequestHeaders(src http.Header) (*host.Headers, error) {
	dst := host.NewHeaders()
	for _, key := range forwardableRequestHeaders {
		for _, v := range src.Values(key) {
			if err := dst.Append(key, v); err != nil {
				return nil, err
			}
		}
	}
	if err := dst.Set("User-Agent", userAgent); err != nil {
		return nil, err
	}
	return dst, nil
}

func (s *OriginService) filterResponseHeaders(src *host.Headers) http.Header {
	dst := make(http.Header)
	for name, value := range src.All() {
		if forwardableResponseHeaders[http.CanonicalHeaderKey(name)] {
			dst.Add(name, value)
		}
	}
	return dst
}
