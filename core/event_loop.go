package core

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// EventLoop binds a dedicated goroutine that executes posted tasks one at a time.
// It is the execution context that offloaded calls report back to: a task
// running on the loop never blocks, it invokes a Dispatcher and continues in
// a completion callback that the loop runs later.
//
// PostTask is safe from any goroutine and never blocks, because the ingress
// queue is an unbounded Channel.
type EventLoop struct {
	// Ingress queue shared by every producer
	tasks *Channel[Task]

	// Lifecycle control
	ctx    context.Context
	cancel context.CancelFunc

	stopped      chan struct{}
	stopOnce     sync.Once
	closed       atomic.Bool
	shutdownChan chan struct{}
	shutdownOnce sync.Once

	// Stats
	executed   atomic.Int64
	rejected   atomic.Int64
	lastTaskAt atomic.Int64 // unix nanos

	name string
	mu   sync.Mutex

	logger              Logger
	panicHandler        PanicHandler
	rejectedTaskHandler RejectedTaskHandler
}

// NewEventLoop creates and starts a new EventLoop with default handlers.
func NewEventLoop() *EventLoop {
	return NewEventLoopWithConfig(DefaultEventLoopConfig())
}

// NewEventLoopWithConfig creates and starts a new EventLoop.
// It immediately spawns the dedicated goroutine.
func NewEventLoopWithConfig(config *EventLoopConfig) *EventLoop {
	ctx, cancel := context.WithCancel(context.Background())
	l := &EventLoop{
		tasks:        NewUnboundedChannel[Task](),
		ctx:          ctx,
		cancel:       cancel,
		stopped:      make(chan struct{}),
		shutdownChan: make(chan struct{}),
	}

	if config != nil {
		l.name = config.Name
		l.logger = config.Logger
		l.panicHandler = config.PanicHandler
		l.rejectedTaskHandler = config.RejectedTaskHandler
	}
	if l.name == "" {
		l.name = "loop"
	}
	if l.logger == nil {
		l.logger = NewDefaultLogger()
	}
	if l.panicHandler == nil {
		l.panicHandler = &DefaultPanicHandler{Logger: l.logger}
	}
	if l.rejectedTaskHandler == nil {
		l.rejectedTaskHandler = &DefaultRejectedTaskHandler{Logger: l.logger}
	}

	go l.runLoop()

	return l
}

// Name returns the name of the loop
func (l *EventLoop) Name() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.name
}

// SetName sets the name of the loop
func (l *EventLoop) SetName(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.name = name
}

// PostTask submits a task for execution on the loop goroutine.
// Tasks posted after Shutdown are dropped.
func (l *EventLoop) PostTask(task Task) {
	if task == nil {
		return
	}
	if l.closed.Load() || !l.tasks.Enqueue(task) {
		l.reject("closed")
	}
}

// PostDelayedTask submits a task that is posted after delay.
// The timer fires on its own goroutine and re-enters through PostTask.
func (l *EventLoop) PostDelayedTask(task Task, delay time.Duration) {
	if l.closed.Load() {
		l.reject("closed")
		return
	}
	if delay <= 0 {
		l.PostTask(task)
		return
	}
	time.AfterFunc(delay, func() {
		l.PostTask(task)
	})
}

// PostRepeatingTask submits a task that repeats at a fixed interval
func (l *EventLoop) PostRepeatingTask(task Task, interval time.Duration) RepeatingTaskHandle {
	return l.PostRepeatingTaskWithInitialDelay(task, 0, interval)
}

// PostRepeatingTaskWithInitialDelay submits a repeating task with an initial delay
func (l *EventLoop) PostRepeatingTaskWithInitialDelay(task Task, initialDelay, interval time.Duration) RepeatingTaskHandle {
	handle := &repeatingHandle{
		loop:     l,
		task:     task,
		interval: interval,
	}

	l.PostDelayedTask(handle.createRepeatingTask(), initialDelay)
	return handle
}

// Shutdown stops accepting tasks and signals WaitShutdown waiters.
// It may be called from a task running on the loop; tasks still queued are
// abandoned. Call Stop to also wait for the loop goroutine to exit.
func (l *EventLoop) Shutdown() {
	l.shutdownOnce.Do(func() {
		l.closed.Store(true)
		l.tasks.Close()
		l.cancel()
		close(l.shutdownChan)
	})
}

// IsClosed returns true once Shutdown or Stop has been called
func (l *EventLoop) IsClosed() bool {
	return l.closed.Load()
}

// Stop shuts the loop down and waits for the current task to finish.
// Calling Stop from a task on the loop would deadlock; use Shutdown there.
func (l *EventLoop) Stop() {
	l.stopOnce.Do(func() {
		l.Shutdown()
		<-l.stopped
	})
}

// Done is closed once the loop goroutine has exited.
func (l *EventLoop) Done() <-chan struct{} {
	return l.stopped
}

// Run posts main to the loop and blocks until the loop is shut down or ctx ends.
// In the latter case the loop is stopped before returning ctx.Err().
func (l *EventLoop) Run(ctx context.Context, main Task) error {
	if l.IsClosed() {
		return fmt.Errorf("loop %s is closed", l.Name())
	}
	l.PostTask(main)

	select {
	case <-l.shutdownChan:
		<-l.stopped
		return nil
	case <-ctx.Done():
		l.Stop()
		return ctx.Err()
	}
}

// runLoop is the core of this loop, it occupies a dedicated goroutine
func (l *EventLoop) runLoop() {
	defer close(l.stopped)

	// Create context with taskRunnerKey for GetCurrentTaskRunner
	runCtx := WithTaskRunner(l.ctx, l)

	for task := range l.tasks.All() {
		l.runTask(runCtx, task)
	}
}

func (l *EventLoop) runTask(ctx context.Context, task Task) {
	defer func() {
		l.executed.Add(1)
		l.lastTaskAt.Store(time.Now().UnixNano())
		if rec := recover(); rec != nil {
			l.panicHandler.HandlePanic(ctx, l.Name(), rec, debug.Stack())
		}
	}()
	task(ctx)
}

func (l *EventLoop) reject(reason string) {
	l.rejected.Add(1)
	l.rejectedTaskHandler.HandleRejectedTask(l.Name(), reason)
}

// =============================================================================
// Synchronization Methods
// =============================================================================

// WaitIdle blocks until all tasks posted before the call have executed.
// It posts a barrier task and waits for it to run.
//
// Returns error if:
// - Context is cancelled or deadline exceeded
// - Loop is closed when WaitIdle is called
func (l *EventLoop) WaitIdle(ctx context.Context) error {
	if l.IsClosed() {
		return fmt.Errorf("loop %s is closed", l.Name())
	}

	done := make(chan struct{})
	l.PostTask(func(taskCtx context.Context) {
		close(done)
	})

	select {
	case <-done:
		return nil
	case <-l.stopped:
		return fmt.Errorf("loop %s stopped before becoming idle", l.Name())
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitShutdown blocks until Shutdown() is called on this loop.
// Returns error if context is cancelled or deadline exceeded.
func (l *EventLoop) WaitShutdown(ctx context.Context) error {
	select {
	case <-l.shutdownChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns a snapshot of the loop's state.
func (l *EventLoop) Stats() EventLoopStats {
	stats := EventLoopStats{
		Name:     l.Name(),
		Pending:  l.tasks.Len(),
		Executed: l.executed.Load(),
		Rejected: l.rejected.Load(),
		Closed:   l.IsClosed(),
	}
	if ns := l.lastTaskAt.Load(); ns > 0 {
		stats.LastTaskAt = time.Unix(0, ns)
	}
	return stats
}

// =============================================================================
// Repeating Task Handle
// =============================================================================

type repeatingHandle struct {
	loop     *EventLoop
	task     Task
	interval time.Duration
	stopped  atomic.Bool
}

func (h *repeatingHandle) Stop() {
	h.stopped.Store(true)
}

func (h *repeatingHandle) IsStopped() bool {
	return h.stopped.Load()
}

func (h *repeatingHandle) createRepeatingTask() Task {
	return func(ctx context.Context) {
		if h.loop.IsClosed() || h.IsStopped() {
			return
		}

		h.task(ctx)

		// Reschedule if not stopped and loop is still open
		if !h.IsStopped() && !h.loop.IsClosed() {
			h.loop.PostDelayedTask(h.createRepeatingTask(), h.interval)
		}
	}
}
