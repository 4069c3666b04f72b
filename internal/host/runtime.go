package host

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"sync"
)

// ReplyFunc delivers the response for one request. Only the first call has an
// effect.
type ReplyFunc func(*Response, error)

// Handler answers fetch events. ServeFetch runs on the scheduler and must
// eventually call reply, possibly from a later task.
type Handler interface {
	ServeFetch(ctx context.Context, req *Request, env *Env, reply ReplyFunc)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req *Request, env *Env, reply ReplyFunc)

// ServeFetch calls f.
func (f HandlerFunc) ServeFetch(ctx context.Context, req *Request, env *Env, reply ReplyFunc) {
	f(ctx, req, env, reply)
}

type result struct {
	resp *Response
	err  error
}

// Runtime dispatches incoming requests to a Handler on its scheduler.
type Runtime struct {
	sched   *Scheduler
	env     *Env
	handler Handler
	logger  *slog.Logger
}

// NewRuntime wires a handler to a scheduler and env.
func NewRuntime(sched *Scheduler, env *Env, h Handler, logger *slog.Logger) *Runtime {
	return &Runtime{
		sched:   sched,
		env:     env,
		handler: h,
		logger:  logger.With("component", "runtime"),
	}
}

// Scheduler returns the runtime's scheduler.
func (rt *Runtime) Scheduler() *Scheduler { return rt.sched }

// Env returns the runtime's env.
func (rt *Runtime) Env() *Env { return rt.env }

// Dispatch runs the handler for req and waits for its reply or for ctx.
// The handler's context carries ctx's deadline and cancellation until it
// replies.
//
// A handler that panics before replying yields a 500 response; the failure
// stays local to this request. A handler error is returned as is.
func (rt *Runtime) Dispatch(ctx context.Context, req *Request) (*Response, error) {
	ch := make(chan result, 1)
	var once sync.Once
	reply := func(resp *Response, err error) {
		once.Do(func() { ch <- result{resp: resp, err: err} })
	}

	err := rt.sched.Spawn(func(lctx context.Context) {
		tctx, stop := Bind(lctx, ctx)
		done := func(resp *Response, err error) {
			stop()
			reply(resp, err)
		}
		defer func() {
			if p := recover(); p != nil {
				rt.logger.Error("fetch handler panicked",
					"method", req.Method(),
					"panic", fmt.Sprint(p),
					"stack", string(debug.Stack()),
				)
				done(ErrorResponse("internal error", http.StatusInternalServerError), nil)
			}
		}()
		rt.handler.ServeFetch(tctx, req, rt.env, done)
	})
	if err != nil {
		return nil, fmt.Errorf("dispatch: %w", err)
	}

	select {
	case r := <-ch:
		return r.resp, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("dispatch: %w", ctx.Err())
	}
}
