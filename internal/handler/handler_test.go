package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"worker-bridge-go/internal/bridge"
	"worker-bridge-go/internal/client"
	"worker-bridge-go/internal/config"
	"worker-bridge-go/internal/host"
	"worker-bridge-go/internal/metrics"
	"worker-bridge-go/internal/service"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startScheduler runs a scheduler for the lifetime of the test.
func startScheduler(t *testing.T) *host.Scheduler {
	t.Helper()
	s := host.NewScheduler(discardLogger())
	go func() { _ = s.Run(context.Background()) }()
	t.Cleanup(func() {
		s.Close()
		<-s.Done()
	})
	return s
}

func testConfig(originURL string) *config.Config {
	return &config.Config{
		Bridge: config.BridgeConfig{Mode: "fallible", ResponseHeaders: "last_write_wins"},
		Origin: config.OriginConfig{
			BaseURL:         originURL,
			TimeoutSeconds:  10,
			IdleConnections: 10,
		},
		Metrics: config.MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

type fixture struct {
	echo  *echo.Echo
	sched *host.Scheduler
	env   *host.Env
	m     *metrics.Metrics
}

func newFixture(t *testing.T, originURL string) *fixture {
	t.Helper()
	cfg := testConfig(originURL)
	logger := discardLogger()
	m := metrics.New()

	oc := client.NewOriginClient(cfg, logger, m)
	svc, err := service.NewOriginService(host.NewFetcher(oc), cfg, logger)
	if err != nil {
		t.Fatalf("NewOriginService: %v", err)
	}

	sched := startScheduler(t)
	shim := bridge.Shim{
		Scheduler: sched,
		Observe: func(o bridge.LocalOutcome) {
			m.LocalTasks.WithLabelValues(string(o)).Inc()
		},
	}

	e := echo.New()
	RegisterRoutes(e, cfg, shim, NewOriginHandler(svc, logger), NewHealthHandler(cfg, "test"), m)

	return &fixture{
		echo:  e,
		sched: sched,
		env:   host.NewEnv(map[string]string{VersionVar: "1.0.0"}, nil),
		m:     m,
	}
}

// serve runs req through echo with the env attached, as the adapter does.
func (f *fixture) serve(req *http.Request) *httptest.ResponseRecorder {
	req = req.WithContext(bridge.WithEnv(req.Context(), bridge.NewEnvHandle(f.env)))
	rec := httptest.NewRecorder()
	f.echo.ServeHTTP(rec, req)
	return rec
}
