// Package handler holds the echo routes served behind the bridge.
package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"

	"worker-bridge-go/internal/bridge"
	"worker-bridge-go/internal/host"
	"worker-bridge-go/internal/model"
	"worker-bridge-go/internal/service"
)

// VersionVar is the env binding logged with every origin request.
const VersionVar = "BRIDGE_VERSION"

// OriginHandler serves pages fetched from the origin. The env read and the
// fetch run on the host scheduler; the echo context stays on the framework
// goroutine.
type OriginHandler struct {
	service *service.OriginService
	logger  *slog.Logger
}

// NewOriginHandler creates an OriginHandler.
func NewOriginHandler(svc *service.OriginService, logger *slog.Logger) *OriginHandler {
	return &OriginHandler{
		service: svc,
		logger:  logger.With("component", "origin_handler"),
	}
}

// Serve returns the echo handler that fetches the request path from the
// origin through shim and answers with its body and content type.
func (h *OriginHandler) Serve(shim bridge.Shim) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()

		body, err := io.ReadAll(req.Body)
		if err != nil {
			return h.mapError(c, fmt.Errorf("read request body: %w", err))
		}
		or := &model.OriginRequest{
			Method: req.Method,
			Path:   req.URL.Path,
			Query:  req.URL.Query(),
			Header: req.Header.Clone(),
			Body:   body,
		}
		env, hasEnv := bridge.EnvFrom(c)

		resp, err := bridge.RunWith(req.Context(), shim, func(ctx context.Context) (*model.OriginResponse, error) {
			if hasEnv {
				if err := h.logVersion(ctx, env, or.Path); err != nil {
					return nil, err
				}
			}
			return h.service.Fetch(ctx, or)
		})
		if err != nil {
			return h.mapError(c, err)
		}

		for key, vals := range resp.Header {
			for _, v := range vals {
				c.Response().Header().Add(key, v)
			}
		}

		ct := resp.Header.Get(echo.HeaderContentType)
		if ct == "" {
			ct = echo.MIMEOctetStream
		}
		return c.Blob(resp.StatusCode, ct, resp.Body)
	}
}

func (h *OriginHandler) logVersion(ctx context.Context, env bridge.EnvHandle, path string) error {
	v, err := env.Env().Var(ctx, VersionVar)
	if errors.Is(err, host.ErrVarNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	h.logger.Debug("env", "version", v, "path", path)
	return nil
}

func (h *OriginHandler) mapError(c echo.Context, err error) error {
	h.logger.Error("origin error",
		"err", err,
		"path", c.Request().URL.Path,
	)

	var pe *bridge.PanicError
	if errors.As(err, &pe) {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "internal error",
		})
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return c.JSON(http.StatusGatewayTimeout, map[string]string{
			"error": "origin request timed out",
		})
	}

	if errors.Is(err, host.ErrOffLoop) {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "host call outside the scheduler",
		})
	}

	if errors.Is(err, host.ErrBodyTooLarge) {
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "origin response too large",
		})
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "origin host unreachable",
		})
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "origin connection failed",
		})
	}

	return c.JSON(http.StatusBadGateway, map[string]string{
		"error": "origin request failed",
	})
}
