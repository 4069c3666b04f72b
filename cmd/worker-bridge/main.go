package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/fx"
	"golang.org/x/time/rate"

	"worker-bridge-go/internal/bridge"
	"worker-bridge-go/internal/client"
	"worker-bridge-go/internal/config"
	"worker-bridge-go/internal/handler"
	"worker-bridge-go/internal/host"
	"worker-bridge-go/internal/metrics"
	"worker-bridge-go/internal/middleware"
	"worker-bridge-go/internal/service"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	var cli config.CLI
	kong.Parse(&cli,
		kong.Name("worker-bridge"),
		kong.Description("Serves an echo application through a Workers-style host runtime."),
		kong.Vars{"version": fmt.Sprintf("%s (%s, %s)", version, commit, date)},
	)

	fx.New(
		fx.Provide(
			func() *config.CLI { return &cli },
			func() handler.Version { return handler.Version(version) },
			config.Load,
			newLogger,
			metrics.New,
			newScheduler,
			newEnv,
			newFetcher,
			newTranslator,
			newShim,
			newEcho,
			newRuntime,
			newIngress,
			client.NewOriginClient,
			service.NewOriginService,
			handler.NewOriginHandler,
			handler.NewHealthHandler,
		),
		fx.Invoke(handler.RegisterRoutes, warnConfigPermissions, startScheduler, startServer),
	).Run()
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "text":
		h = slog.NewTextHandler(os.Stdout, opts)
	default:
		h = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(h)
}

func newScheduler(logger *slog.Logger, m *metrics.Metrics) *host.Scheduler {
	s := host.NewScheduler(logger)
	s.OnDepth = func(n int) { m.SchedulerQueue.Set(float64(n)) }
	return s
}

func newEnv(cfg *config.Config, logger *slog.Logger) (*host.Env, error) {
	env, err := host.LoadEnv(cfg.Host.Vars, cfg.Host.EnvFile)
	if err != nil {
		return nil, err
	}
	vars, secrets := env.Names()
	logger.Info("host env loaded", "vars", vars, "secrets", secrets)
	return env, nil
}

func newFetcher(c *client.OriginClient) *host.Fetcher {
	return host.NewFetcher(c)
}

func newTranslator(cfg *config.Config, m *metrics.Metrics) (*bridge.Translator, error) {
	mode, err := bridge.ParseMode(cfg.Bridge.Mode)
	if err != nil {
		return nil, err
	}
	policy, err := bridge.ParseHeaderPolicy(cfg.Bridge.ResponseHeaders)
	if err != nil {
		return nil, err
	}
	return bridge.NewTranslator(bridge.Options{Mode: mode, Headers: policy, Metrics: m}), nil
}

func newShim(s *host.Scheduler, m *metrics.Metrics) bridge.Shim {
	return bridge.Shim{
		Scheduler: s,
		Observe: func(o bridge.LocalOutcome) {
			m.LocalTasks.WithLabelValues(string(o)).Inc()
		},
	}
}

func newEcho(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.IPExtractor = middleware.ConnectingIP

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(logger))
	if cfg.Metrics.Enabled {
		e.Use(middleware.MetricsMiddleware(m))
	}
	e.Use(echomw.BodyLimit(fmt.Sprintf("%dB", cfg.Server.BodyMaxBytes)))
	e.Use(middleware.SecurityHeaders())

	if cfg.Server.RateLimit.Enabled {
		store := echomw.NewRateLimiterMemoryStore(rate.Limit(cfg.Server.RateLimit.RequestsPerSecond))
		e.Use(echomw.RateLimiter(store))
		logger.Info("rate limiter enabled", "rps", cfg.Server.RateLimit.RequestsPerSecond)
	}

	return e
}

func newRuntime(s *host.Scheduler, env *host.Env, e *echo.Echo, tr *bridge.Translator, logger *slog.Logger) *host.Runtime {
	adapter := bridge.NewAdapter(e, tr, s, logger)
	return host.NewRuntime(s, env, adapter, logger)
}

func newIngress(rt *host.Runtime, cfg *config.Config, logger *slog.Logger) *host.Ingress {
	return host.NewIngress(rt, host.IngressConfig{
		RequestTimeout: cfg.Server.RequestTimeout(),
		BodyMaxBytes:   int(cfg.Server.BodyMaxBytes),
		// Inbound timeouts to mitigate slow-client attacks.
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}, logger)
}

func warnConfigPermissions(cfg *config.Config, logger *slog.Logger) {
	cfg.WarnPermissions(logger)
}

// startScheduler runs the host loop for the life of the process. The loop is
// not tied to the OnStart context, which is cancelled once startup finishes.
func startScheduler(lc fx.Lifecycle, s *host.Scheduler, logger *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go func() {
				if err := s.Run(context.Background()); err != nil {
					logger.Error("scheduler stopped", "err", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			s.Close()
			select {
			case <-s.Done():
				return nil
			case <-ctx.Done():
				return fmt.Errorf("drain scheduler: %w", ctx.Err())
			}
		},
	})
}

func startServer(lc fx.Lifecycle, in *host.Ingress, cfg *config.Config, tr *bridge.Translator, logger *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			addr := cfg.Server.Addr()
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("bind %s: %w", addr, err)
			}
			logger.Info("starting server", "addr", addr, "mode", tr.Mode().String())
			go func() {
				if err := in.Serve(ln); err != nil {
					logger.Error("server error", "err", err)
				}
			}()
			return nil
		},
		OnStop: func(_ context.Context) error {
			logger.Info("shutting down server")
			return in.Shutdown()
		},
	})
}
