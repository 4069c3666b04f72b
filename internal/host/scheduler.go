package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
)

// ErrSchedulerClosed is returned by Spawn after the scheduler stopped.
var ErrSchedulerClosed = errors.New("scheduler closed")

// ErrOffLoop is returned by loop-bound host APIs called outside a scheduler task.
var ErrOffLoop = errors.New("host object used outside the scheduler")

// Task is a unit of work run while holding the scheduler loop. The context it
// receives satisfies OnLoop.
type Task func(ctx context.Context)

type loopKey struct{}

// OnLoop reports whether ctx belongs to a task running on a scheduler.
func OnLoop(ctx context.Context) bool {
	s, _ := ctx.Value(loopKey{}).(*Scheduler)
	return s != nil
}

// Detach returns a context with ctx's values and cancellation that no longer
// satisfies OnLoop. Use it before handing a task context to another goroutine.
func Detach(ctx context.Context) context.Context {
	return context.WithValue(ctx, loopKey{}, (*Scheduler)(nil))
}

// Bind returns a copy of task that also ends when parent ends. Values,
// including the loop marker, come from task; the deadline and cancellation
// come from both. Call stop once the returned context is no longer needed.
func Bind(task, parent context.Context) (ctx context.Context, stop context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(task)
	stopDeadline := context.CancelFunc(func() {})
	if d, ok := parent.Deadline(); ok {
		ctx, stopDeadline = context.WithDeadline(ctx, d)
	}
	stopAfter := context.AfterFunc(parent, func() { cancel(context.Cause(parent)) })
	return ctx, func() {
		stopAfter()
		stopDeadline()
		cancel(context.Canceled)
	}
}

// entry is a queued unit of loop time: a new task, or a suspended task that
// is ready to resume.
type entry struct {
	task   Task
	resume chan struct{}
}

// Scheduler is the host's single cooperative thread. Tasks hold the loop one
// at a time, in spawn order. A task gives the loop up only when it returns
// or suspends in Await; other tasks run until it is resumed.
type Scheduler struct {
	logger *slog.Logger

	mu        sync.Mutex
	queue     []entry
	closed    bool
	suspended int
	wake      chan struct{}
	done      chan struct{}
	yield     chan struct{} // the task holding the loop gives it back here

	// OnDepth, when set, observes the queue depth after every change.
	OnDepth func(n int)
}

// NewScheduler creates a stopped scheduler; call Run to start it.
func NewScheduler(logger *slog.Logger) *Scheduler {
	return &Scheduler{
		logger: logger.With("component", "scheduler"),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		yield:  make(chan struct{}),
	}
}

// Spawn queues t. It never blocks and is safe from any goroutine, including
// from inside a running task.
func (s *Scheduler) Spawn(t Task) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSchedulerClosed
	}
	n := s.push(entry{task: t})
	s.mu.Unlock()

	s.observe(n)
	s.signal()
	return nil
}

// Await runs fn off the loop and suspends the calling task until fn returns.
// Other tasks hold the loop in the meantime. ctx must be the calling task's
// own context; fn receives a detached copy of it. A panic in fn is raised
// again in the task once it is back on the loop.
func Await[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	s, _ := ctx.Value(loopKey{}).(*Scheduler)
	if s == nil {
		var zero T
		return zero, ErrOffLoop
	}

	s.mu.Lock()
	s.suspended++
	s.mu.Unlock()
	s.yield <- struct{}{}

	var (
		v   T
		err error
		p   any
	)
	func() {
		defer func() { p = recover() }()
		v, err = fn(Detach(ctx))
	}()

	resume := make(chan struct{})
	s.mu.Lock()
	s.suspended--
	n := s.push(entry{resume: resume})
	s.mu.Unlock()
	s.observe(n)
	s.signal()

	<-resume
	if p != nil {
		panic(p)
	}
	return v, err
}

// Pending returns the number of queued tasks and resumptions.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Run drives the loop until ctx is done or Close is called. Either way the
// tasks already queued, and any suspended in Await, still finish before Run
// returns.
func (s *Scheduler) Run(ctx context.Context) error {
	defer close(s.done)
	loopCtx := context.WithValue(ctx, loopKey{}, s)
	cancelled := ctx.Done()

	for {
		e, ok, finished := s.next()
		if ok {
			s.observe(s.Pending())
			s.step(loopCtx, e)
			continue
		}
		if finished {
			return nil
		}
		select {
		case <-s.wake:
		case <-cancelled:
			cancelled = nil
			s.Close()
		}
	}
}

// Close stops accepting tasks. Run returns once the queue drains and no task
// is suspended.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.signal()
}

// Done is closed when Run returns.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

// push appends e and returns the new depth. s.mu must be held.
func (s *Scheduler) push(e entry) int {
	s.queue = append(s.queue, e)
	return len(s.queue)
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) next() (entry, bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return entry{}, false, s.closed && s.suspended == 0
	}
	e := s.queue[0]
	s.queue[0] = entry{}
	s.queue = s.queue[1:]
	return e, true, false
}

func (s *Scheduler) observe(n int) {
	if s.OnDepth != nil {
		s.OnDepth(n)
	}
}

// step hands the loop to e and waits until it is given back.
func (s *Scheduler) step(ctx context.Context, e entry) {
	if e.resume != nil {
		close(e.resume)
	} else {
		go s.run(ctx, e.task)
	}
	<-s.yield
}

// run executes one task. A panicking task is logged and does not stop the loop.
func (s *Scheduler) run(ctx context.Context, t Task) {
	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("task panicked",
				"panic", fmt.Sprint(p),
				"stack", string(debug.Stack()),
			)
		}
		s.yield <- struct{}{}
	}()
	t(ctx)
}
