package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"worker-bridge-go/internal/host"
)

// Adapter is the host fetch handler that serves every request through an
// http.Handler, normally an *echo.Echo.
//
// Translation runs on the scheduler. The framework runs on its own goroutine
// so the scheduler stays free for Local bodies while it works.
type Adapter struct {
	handler http.Handler
	tr      *Translator
	sched   *host.Scheduler
	logger  *slog.Logger
}

// NewAdapter creates an Adapter.
func NewAdapter(h http.Handler, tr *Translator, sched *host.Scheduler, logger *slog.Logger) *Adapter {
	return &Adapter{
		handler: h,
		tr:      tr,
		sched:   sched,
		logger:  logger.With("component", "adapter"),
	}
}

// ServeFetch implements host.Handler.
func (a *Adapter) ServeFetch(ctx context.Context, req *host.Request, env *host.Env, reply host.ReplyFunc) {
	freq, err := a.tr.Request(ctx, req)
	if err != nil {
		a.logger.Warn("request translation failed", "err", err, "method", req.Method())
		reply(host.ErrorResponse("bad request", http.StatusBadRequest), nil)
		return
	}
	freq = freq.WithContext(WithEnv(host.Detach(ctx), NewEnvHandle(env)))

	go a.serve(freq, reply)
}

func (a *Adapter) serve(freq *http.Request, reply host.ReplyFunc) {
	defer func() {
		if p := recover(); p != nil {
			a.logger.Error("framework panicked",
				"panic", fmt.Sprint(p),
				"stack", string(debug.Stack()),
			)
			reply(host.ErrorResponse("internal error", http.StatusInternalServerError), nil)
		}
	}()

	rec := NewRecorder()
	a.handler.ServeHTTP(rec, freq)
	resp := rec.Result()

	err := a.sched.Spawn(func(lctx context.Context) {
		defer func() {
			if p := recover(); p != nil {
				a.logger.Error("response translation aborted", "panic", fmt.Sprint(p))
				reply(host.ErrorResponse("internal error", http.StatusInternalServerError), nil)
			}
		}()

		hresp, err := a.tr.Response(lctx, resp)
		if err != nil {
			a.logger.Error("response translation failed", "err", err, "status", resp.Status)
			reply(host.ErrorResponse("internal error", http.StatusInternalServerError), nil)
			return
		}
		reply(hresp, nil)
	})
	if err != nil {
		reply(nil, fmt.Errorf("schedule response: %w", err))
	}
}
