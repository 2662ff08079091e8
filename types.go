package offload

import (
	"context"

	"github.com/Swind/go-offload/core"
)

// Re-export commonly used types from core package for convenience.
// This allows users to import only the offload package for most use cases.

// Task is the unit of work posted to a TaskRunner
type Task = core.Task

// TaskRunner is the interface for posting tasks
type TaskRunner = core.TaskRunner

// RepeatingTaskHandle controls the lifecycle of a repeating task
type RepeatingTaskHandle = core.RepeatingTaskHandle

// EventLoop is a single-goroutine execution context
type EventLoop = core.EventLoop

// Dispatcher runs named calls on a dedicated worker
type Dispatcher = core.Dispatcher

// Callable is the shape of every operation a Dispatcher can run
type Callable = core.Callable

// Target resolves operation names to Callables
type Target = core.Target

// Functions is a map-backed Target
type Functions = core.Functions

// Method is a call bound to one operation name
type Method = core.Method

// Channel is a bounded blocking FIFO queue
type Channel[T any] = core.Channel[T]

// Completion is the single-assignment result of an offloaded call
type Completion[T any] = core.Completion[T]

// CompletionCallback runs on the Completion's owner once it settles
type CompletionCallback[T any] = core.CompletionCallback[T]

// TaskWithResult and ReplyWithResult for generic PostTaskAndReply pattern
type TaskWithResult[T any] = core.TaskWithResult[T]
type ReplyWithResult[T any] = core.ReplyWithResult[T]

// Configuration and observability types
type (
	DispatcherConfig = core.DispatcherConfig
	EventLoopConfig  = core.EventLoopConfig
	DispatcherStats  = core.DispatcherStats
	EventLoopStats   = core.EventLoopStats
	CallRecord       = core.CallRecord
	CallID           = core.CallID
	Logger           = core.Logger
	Metrics          = core.Metrics
	PanicHandler     = core.PanicHandler
)

// Error types
type (
	CallError             = core.CallError
	PanicError            = core.PanicError
	UnknownOperationError = core.UnknownOperationError
)

// Sentinel errors
var (
	ErrChannelClosed       = core.ErrChannelClosed
	ErrUnknownOperation    = core.ErrUnknownOperation
	ErrDispatcherClosed    = core.ErrDispatcherClosed
	ErrNoExecutionContext  = core.ErrNoExecutionContext
	ErrAbandonedCompletion = core.ErrAbandonedCompletion
	ErrAwaitOnOwner        = core.ErrAwaitOnOwner
	ErrResultType          = core.ErrResultType
)

// Context helpers
var (
	GetCurrentTaskRunner = core.GetCurrentTaskRunner
	WithTaskRunner       = core.WithTaskRunner
)

// Constructors
var (
	NewEventLoop            = core.NewEventLoop
	NewEventLoopWithConfig  = core.NewEventLoopWithConfig
	NewDispatcher           = core.NewDispatcher
	NewDispatcherWithConfig = core.NewDispatcherWithConfig
	DefaultDispatcherConfig = core.DefaultDispatcherConfig
	DefaultEventLoopConfig  = core.DefaultEventLoopConfig
	PostTaskAndReply        = core.PostTaskAndReply
	NewDefaultLogger        = core.NewDefaultLogger
	NewNoOpLogger           = core.NewNoOpLogger
)

// NewChannel creates a Channel holding at most capacity items.
func NewChannel[T any](capacity int) *Channel[T] {
	return core.NewChannel[T](capacity)
}

// NewCompletion creates an unsettled Completion owned by owner.
func NewCompletion[T any](owner TaskRunner) *Completion[T] {
	return core.NewCompletion[T](owner)
}

// Invoke queues a call on d and returns a Completion typed as R.
func Invoke[R any](ctx context.Context, d *Dispatcher, name string, args ...any) (*Completion[R], error) {
	return core.Invoke[R](ctx, d, name, args...)
}

// Submit runs task on targetRunner and resolves the result on the caller.
func Submit[T any](ctx context.Context, targetRunner TaskRunner, task TaskWithResult[T]) (*Completion[T], error) {
	return core.Submit(ctx, targetRunner, task)
}
