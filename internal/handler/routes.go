package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"worker-bridge-go/internal/bridge"
	"worker-bridge-go/internal/config"
	"worker-bridge-go/internal/metrics"
)

// RegisterRoutes wires all route handlers onto the Echo instance. Origin
// routes run on the host scheduler through shim. m may be nil when metrics
// are disabled.
func RegisterRoutes(e *echo.Echo, cfg *config.Config, shim bridge.Shim, origin *OriginHandler, health *HealthHandler, m *metrics.Metrics) {
	e.GET("/healthz", health.Healthz)
	e.GET("/status", health.Status)

	if cfg.Metrics.Enabled && m != nil {
		e.GET(cfg.Metrics.Path, echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	}

	serve := origin.Serve(shim)
	e.GET("/", serve)
	e.Any("/*", serve)
}
