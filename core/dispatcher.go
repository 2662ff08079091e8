package core

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// Callable is a blocking function the Dispatcher runs on its worker.
// ctx is the worker context; it carries the Dispatcher as current TaskRunner.
type Callable func(ctx context.Context, args ...any) (any, error)

// Target resolves operation names to callables. It must be safe for
// concurrent reads and is never mutated by the Dispatcher.
type Target interface {
	Lookup(name string) (Callable, bool)
}

// Functions is a map-backed Target.
type Functions map[string]Callable

// Lookup implements Target.
func (f Functions) Lookup(name string) (Callable, bool) {
	fn, ok := f[name]
	return fn, ok && fn != nil
}

// Method is an operation resolved ahead of time by Dispatcher.Method.
type Method func(ctx context.Context, args ...any) (*Completion[any], error)

// workItem is one queued unit of work. Exactly one of callable or task is set.
type workItem struct {
	id         CallID
	op         string
	callable   Callable
	args       []any
	task       Task
	deliver    func(value any, err error)
	onAbandon  func(err error) // tasks only; nil for plain posts
	enqueuedAt time.Time
}

// Dispatcher serializes blocking calls onto one dedicated worker goroutine and
// delivers each result back to the execution context that made the call.
//
// Guarantees:
// - Calls on one Dispatcher start in submission order and never overlap.
// - Different Dispatchers run independently and in parallel.
// - A failing or panicking call is reported on its Completion; the worker keeps running.
// - Calls still queued when the Dispatcher stops are resolved with ErrAbandonedCompletion.
type Dispatcher struct {
	target Target
	calls  *Channel[*workItem]

	// Worker context, carrying the dispatcher as current TaskRunner
	ctx    context.Context
	cancel context.CancelFunc

	// closed means no new calls are accepted. The queue itself is closed
	// separately, so Shutdown can drain while closed is already set.
	stopped  chan struct{}
	closed   atomic.Bool
	stopOnce sync.Once

	lockOSThread bool

	running  atomic.Int32
	executed atomic.Int64
	failed   atomic.Int64
	rejected atomic.Int64
	history  *callHistory

	name string
	mu   sync.Mutex

	logger       Logger
	metrics      Metrics
	panicHandler PanicHandler
}

var _ TaskRunner = (*Dispatcher)(nil)

// NewDispatcher creates a Dispatcher over target with default configuration.
func NewDispatcher(target Target) *Dispatcher {
	return NewDispatcherWithConfig(target, DefaultDispatcherConfig())
}

// NewDispatcherWithConfig creates a Dispatcher and starts its worker.
// A nil target binds no operations.
func NewDispatcherWithConfig(target Target, config *DispatcherConfig) *Dispatcher {
	if target == nil {
		target = Functions{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		target:  target,
		ctx:     ctx,
		cancel:  cancel,
		stopped: make(chan struct{}),
	}

	capacity := 0
	historyCapacity := 0
	if config != nil {
		d.name = config.Name
		d.lockOSThread = config.LockOSThread
		d.logger = config.Logger
		d.metrics = config.Metrics
		d.panicHandler = config.PanicHandler
		capacity = config.QueueCapacity
		historyCapacity = config.HistoryCapacity
	}

	if d.name == "" {
		d.name = "dispatcher"
	}
	if d.logger == nil {
		d.logger = NewDefaultLogger()
	}
	if d.metrics == nil {
		d.metrics = &NilMetrics{}
	}
	if d.panicHandler == nil {
		d.panicHandler = &DefaultPanicHandler{Logger: d.logger}
	}

	d.calls = NewChannel[*workItem](capacity)
	d.history = newCallHistory(historyCapacity)

	go d.runWorker()

	return d
}

// Name returns the name of the dispatcher
func (d *Dispatcher) Name() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.name
}

// SetName sets the name of the dispatcher
func (d *Dispatcher) SetName(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.name = name
}

// Invoke offloads the operation name with args and returns a Completion
// resolved on the TaskRunner found in ctx.
//
// Errors returned here are synchronous: the call was never queued.
// Failures of the call itself arrive through the Completion as *CallError.
func (d *Dispatcher) Invoke(ctx context.Context, name string, args ...any) (*Completion[any], error) {
	return Invoke[any](ctx, d, name, args...)
}

// Invoke is the typed form of Dispatcher.Invoke. A result that isn't an R
// fails the Completion with a *CallError wrapping ErrResultType.
func Invoke[R any](ctx context.Context, d *Dispatcher, name string, args ...any) (*Completion[R], error) {
	fn, err := d.resolve(name)
	if err != nil {
		return nil, err
	}
	return invokeCallable[R](ctx, d, name, fn, args)
}

// Method resolves name once and returns a function that invokes it.
// Unknown names fail here, before anything is queued.
func (d *Dispatcher) Method(name string) (Method, error) {
	fn, err := d.resolve(name)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, args ...any) (*Completion[any], error) {
		return invokeCallable[any](ctx, d, name, fn, args)
	}, nil
}

func (d *Dispatcher) resolve(name string) (Callable, error) {
	if d.closed.Load() {
		d.rejectCall("closed")
		return nil, ErrDispatcherClosed
	}
	fn, ok := d.target.Lookup(name)
	if !ok {
		d.rejectCall("unknown_operation")
		return nil, &UnknownOperationError{Name: name}
	}
	return fn, nil
}

func invokeCallable[R any](ctx context.Context, d *Dispatcher, name string, fn Callable, args []any) (*Completion[R], error) {
	owner := GetCurrentTaskRunner(ctx)
	if owner == nil {
		d.rejectCall("no_context")
		return nil, ErrNoExecutionContext
	}

	completion := NewCompletion[R](owner)
	item := &workItem{
		id:       GenerateCallID(),
		op:       name,
		callable: fn,
		args:     args,
	}
	item.deliver = func(value any, err error) {
		var zero R
		if err != nil {
			completion.Resolve(zero, err)
			return
		}
		if value == nil {
			completion.Resolve(zero, nil)
			return
		}
		result, ok := value.(R)
		if !ok {
			completion.Resolve(zero, &CallError{
				Op:     item.op,
				CallID: item.id,
				Err:    fmt.Errorf("%w: got %T, want %s", ErrResultType, value, reflect.TypeFor[R]()),
			})
			return
		}
		completion.Resolve(result, nil)
	}

	if err := d.enqueue(ctx, item); err != nil {
		return nil, err
	}
	return completion, nil
}

func (d *Dispatcher) enqueue(ctx context.Context, item *workItem) error {
	item.enqueuedAt = time.Now()

	if d.calls.Cap() == 0 {
		if !d.calls.Enqueue(item) {
			d.rejectCall("closed")
			return ErrDispatcherClosed
		}
		return nil
	}

	// Bounded queue: the wait for space ends with the caller's ctx.
	if err := d.calls.EnqueueContext(ctx, item); err != nil {
		if errors.Is(err, ErrChannelClosed) {
			d.rejectCall("closed")
			return ErrDispatcherClosed
		}
		return err
	}
	return nil
}

// PostTask runs task on the worker, in order with offloaded calls.
// Tasks posted after Stop are dropped.
func (d *Dispatcher) PostTask(task Task) {
	if task == nil {
		return
	}
	if d.closed.Load() {
		d.rejectCall("closed")
		return
	}
	item := &workItem{
		id:   GenerateCallID(),
		op:   "task",
		task: task,
	}
	if err := d.enqueue(d.ctx, item); err != nil {
		d.logger.Debug("task dropped", F("dispatcher", d.Name()), F("error", err))
	}
}

// postAbandonable queues task like PostTask, but reports a closed dispatcher
// and calls onAbandon if the task is still queued when the worker stops.
func (d *Dispatcher) postAbandonable(task Task, onAbandon func(err error)) error {
	if d.closed.Load() {
		d.rejectCall("closed")
		return ErrDispatcherClosed
	}
	item := &workItem{
		id:        GenerateCallID(),
		op:        "task",
		task:      task,
		onAbandon: onAbandon,
	}
	return d.enqueue(d.ctx, item)
}

// PostDelayedTask posts task to the worker after delay.
func (d *Dispatcher) PostDelayedTask(task Task, delay time.Duration) {
	if delay <= 0 {
		d.PostTask(task)
		return
	}
	time.AfterFunc(delay, func() {
		d.PostTask(task)
	})
}

// runWorker is the dispatcher's only consumer; it owns a dedicated goroutine
// (and OS thread when configured) for the dispatcher's whole lifetime.
func (d *Dispatcher) runWorker() {
	defer close(d.stopped)

	if d.lockOSThread {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}

	runCtx := WithTaskRunner(d.ctx, d)
	d.logger.Info("dispatcher started", F("dispatcher", d.Name()))

	for item := range d.calls.All() {
		d.metrics.RecordQueueDepth(d.Name(), d.calls.Len())
		d.execute(runCtx, item)
	}

	// Closed with calls still queued: their callers must not wait forever.
	abandoned := d.calls.Drain()
	for _, item := range abandoned {
		d.abandon(item)
	}
	d.logger.Info("dispatcher stopped", F("dispatcher", d.Name()), F("abandoned", len(abandoned)))
}

func (d *Dispatcher) execute(ctx context.Context, item *workItem) {
	if item.task != nil {
		// Plain tasks and barriers aren't calls: no history, no call metrics.
		d.call(ctx, item)
		return
	}

	name := d.Name()

	d.running.Add(1)
	startedAt := time.Now()
	value, err, panicked := d.call(ctx, item)
	finishedAt := time.Now()
	d.running.Add(-1)
	d.executed.Add(1)

	duration := finishedAt.Sub(startedAt)
	d.metrics.RecordCallDuration(name, item.op, duration)

	if err != nil {
		d.failed.Add(1)
		d.metrics.RecordCallFailure(name, item.op)
		d.logger.Warn("call failed",
			F("dispatcher", name),
			F("operation", item.op),
			F("call_id", item.id.String()),
			F("error", err),
		)
		err = &CallError{Op: item.op, CallID: item.id, Err: err}
	}

	d.history.Add(CallRecord{
		CallID:     item.id,
		Operation:  item.op,
		Dispatcher: name,
		EnqueuedAt: item.enqueuedAt,
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
		Duration:   duration,
		Err:        err,
		Panicked:   panicked,
	})

	if item.deliver != nil {
		item.deliver(value, err)
	}
}

func (d *Dispatcher) call(ctx context.Context, item *workItem) (value any, err error, panicked bool) {
	defer func() {
		if rec := recover(); rec != nil {
			stack := debug.Stack()
			d.panicHandler.HandlePanic(ctx, d.Name(), rec, stack)
			value, err, panicked = nil, &PanicError{Value: rec, Stack: stack}, true
		}
	}()

	if item.task != nil {
		item.task(ctx)
		return nil, nil, false
	}
	value, err = item.callable(ctx, item.args...)
	return value, err, false
}

func (d *Dispatcher) abandon(item *workItem) {
	err := &CallError{Op: item.op, CallID: item.id, Err: ErrAbandonedCompletion}
	if item.task != nil {
		if item.onAbandon != nil {
			item.onAbandon(err)
		}
		return
	}

	name := d.Name()
	d.rejectCall("abandoned")

	d.history.Add(CallRecord{
		CallID:     item.id,
		Operation:  item.op,
		Dispatcher: name,
		EnqueuedAt: item.enqueuedAt,
		Err:        err,
	})
	if item.deliver != nil {
		item.deliver(nil, err)
	}
}

func (d *Dispatcher) rejectCall(reason string) {
	d.rejected.Add(1)
	d.metrics.RecordCallRejected(d.Name(), reason)
}

// =============================================================================
// Lifecycle
// =============================================================================

// Close stops accepting calls and closes the queue without waiting.
// The call in progress finishes; queued calls are abandoned, including those
// a Shutdown in progress was draining. Safe to call from an offloaded call.
func (d *Dispatcher) Close() {
	d.closed.Store(true)
	d.calls.Close()
}

// Stop closes the dispatcher and waits for the worker to exit.
// Calling Stop from the worker would deadlock; use Close there.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.Close()
		<-d.stopped
		d.cancel()
	})
}

// Shutdown stops accepting calls, lets queued calls run, then stops.
// If ctx ends first, the remaining calls are abandoned and ctx.Err() is returned.
//
// Called from an offloaded call, Shutdown cannot wait for the worker it is
// running on: it queues the stop behind the calls already queued and returns.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	if d.closed.Swap(true) {
		d.Stop()
		return nil
	}

	if GetCurrentTaskRunner(ctx) == d {
		d.closeAfterQueued()
		return nil
	}

	// The queue is still open; push a barrier behind everything already queued.
	barrier := make(chan struct{})
	item := &workItem{
		id:         GenerateCallID(),
		op:         "barrier",
		task:       func(context.Context) { close(barrier) },
		enqueuedAt: time.Now(),
	}

	var err error
	if enqErr := d.calls.EnqueueContext(ctx, item); enqErr != nil {
		err = enqErr
	} else {
		select {
		case <-barrier:
		case <-d.stopped:
			// A concurrent Close abandoned the rest.
		case <-ctx.Done():
			err = ctx.Err()
		}
	}

	d.calls.Close()
	d.Stop()
	if errors.Is(err, ErrChannelClosed) {
		return nil
	}
	return err
}

// closeAfterQueued queues a task that closes the queue once everything ahead
// of it has run. It never blocks; on a full bounded queue it closes at once.
func (d *Dispatcher) closeAfterQueued() {
	item := &workItem{
		id:         GenerateCallID(),
		op:         "barrier",
		task:       func(context.Context) { d.calls.Close() },
		enqueuedAt: time.Now(),
	}
	// A cancelled ctx makes EnqueueContext fail instead of waiting for space.
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	if err := d.calls.EnqueueContext(cancelled, item); err != nil {
		d.calls.Close()
	}
}

// IsClosed reports whether the dispatcher stopped accepting calls.
func (d *Dispatcher) IsClosed() bool {
	return d.closed.Load()
}

// Done is closed once the worker has exited.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.stopped
}

// Wait blocks until the worker has exited or ctx ends.
func (d *Dispatcher) Wait(ctx context.Context) error {
	select {
	case <-d.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// =============================================================================
// Observability
// =============================================================================

// Stats returns a snapshot of the dispatcher's state.
func (d *Dispatcher) Stats() DispatcherStats {
	stats := DispatcherStats{
		Name:     d.Name(),
		Pending:  d.calls.Len(),
		Running:  int(d.running.Load()),
		Executed: d.executed.Load(),
		Failed:   d.failed.Load(),
		Rejected: d.rejected.Load(),
		Closed:   d.IsClosed(),
		QueueCap: d.calls.Cap(),
	}
	if last, ok := d.history.Last(); ok {
		stats.LastOp = last.Operation
		stats.LastOpAt = last.FinishedAt
	}
	return stats
}

// RecentCalls returns up to limit call records, newest first.
func (d *Dispatcher) RecentCalls(limit int) []CallRecord {
	return d.history.Recent(limit)
}
