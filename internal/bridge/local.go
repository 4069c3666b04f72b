package bridge

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"

	"github.com/labstack/echo/v4"

	"worker-bridge-go/internal/host"
)

// LocalOutcome is how one RunLocal call ended.
type LocalOutcome string

const (
	LocalDelivered LocalOutcome = "delivered" // the caller received the value
	LocalFailed    LocalOutcome = "failed"    // the caller received a terminal error from a panic
	LocalOrphaned  LocalOutcome = "orphaned"  // the caller left first; the value was discarded
	LocalRejected  LocalOutcome = "rejected"  // the scheduler refused the task
)

// PanicError is the terminal value sent when a local body panics.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("local task panicked: %v", e.Value)
}

// Shim runs bodies on a host scheduler for callers on other goroutines.
type Shim struct {
	Scheduler *host.Scheduler
	// Observe, when set, is told how every call ended.
	Observe func(LocalOutcome)
}

const (
	stateRunning int32 = iota
	stateCompleted
	stateAbandoned
)

type localResult[T any] struct {
	v   T
	err error
}

// RunLocal runs fn as a task on s and waits for its single result.
//
// fn always produces exactly one value, a *PanicError if it panics. There is
// no cancellation: if ctx ends first RunLocal returns ctx.Err(), fn still
// runs to completion on s, and its result is dropped. fn's context reports
// ctx's deadline and cancellation so it can stop early on its own.
func RunLocal[T any](ctx context.Context, s *host.Scheduler, fn func(ctx context.Context) (T, error)) (T, error) {
	return runLocal(ctx, Shim{Scheduler: s}, fn)
}

// RunWith is RunLocal on sh's scheduler, reporting the outcome to sh.Observe.
func RunWith[T any](ctx context.Context, sh Shim, fn func(ctx context.Context) (T, error)) (T, error) {
	return runLocal(ctx, sh, fn)
}

func runLocal[T any](ctx context.Context, sh Shim, fn func(ctx context.Context) (T, error)) (T, error) {
	observe := sh.Observe
	if observe == nil {
		observe = func(LocalOutcome) {}
	}

	ch := make(chan localResult[T], 1)
	var state atomic.Int32

	err := sh.Scheduler.Spawn(func(lctx context.Context) {
		bctx, stop := host.Bind(lctx, ctx)
		defer stop()

		var r localResult[T]
		func() {
			defer func() {
				if p := recover(); p != nil {
					r = localResult[T]{err: &PanicError{Value: p, Stack: debug.Stack()}}
				}
			}()
			r.v, r.err = fn(bctx)
		}()

		if !state.CompareAndSwap(stateRunning, stateCompleted) {
			observe(LocalOrphaned)
		}
		ch <- r
	})
	if err != nil {
		observe(LocalRejected)
		var zero T
		return zero, fmt.Errorf("run local: %w", err)
	}

	deliver := func(r localResult[T]) (T, error) {
		if _, ok := r.err.(*PanicError); ok {
			observe(LocalFailed)
		} else {
			observe(LocalDelivered)
		}
		return r.v, r.err
	}

	select {
	case r := <-ch:
		return deliver(r)
	case <-ctx.Done():
		if state.CompareAndSwap(stateRunning, stateAbandoned) {
			var zero T
			return zero, ctx.Err()
		}
		// Completed before we gave up; the value is already on its way.
		return deliver(<-ch)
	}
}

// LocalHandlerFunc is an echo handler body that runs on the host scheduler.
// ctx is a scheduler task context accepted by host APIs; c may be used
// while the framework goroutine is parked waiting for the body.
//
// An orphaned body must not touch c: once the request context is done the
// handler has already returned and echo recycles c for another request.
// Check ctx.Err() after every suspension point, or use RunWith and keep c on
// the framework goroutine.
type LocalHandlerFunc func(ctx context.Context, c echo.Context) error

// Local returns an echo handler that runs h on sh's scheduler.
func (sh Shim) Local(h LocalHandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		_, err := runLocal(c.Request().Context(), sh, func(lctx context.Context) (struct{}, error) {
			return struct{}{}, h(lctx, c)
		})
		return err
	}
}

// Local returns an echo handler that runs h on s.
func Local(s *host.Scheduler, h LocalHandlerFunc) echo.HandlerFunc {
	return Shim{Scheduler: s}.Local(h)
}
