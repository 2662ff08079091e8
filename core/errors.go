package core

import (
	"errors"
	"fmt"
)

var (
	// ErrChannelClosed is returned by the context-aware Channel operations
	// once the channel has been closed.
	ErrChannelClosed = errors.New("offload: channel is closed")

	// ErrUnknownOperation matches every *UnknownOperationError.
	ErrUnknownOperation = errors.New("offload: unknown operation")

	// ErrDispatcherClosed is returned when invoking on a stopped Dispatcher.
	ErrDispatcherClosed = errors.New("offload: dispatcher is closed")

	// ErrNoExecutionContext is returned when a call is made outside of any
	// TaskRunner, so there is nowhere to deliver the result.
	ErrNoExecutionContext = errors.New("offload: no execution context in ctx")

	// ErrAbandonedCompletion resolves completions whose calls were still
	// queued when their Dispatcher stopped.
	ErrAbandonedCompletion = errors.New("offload: call abandoned before execution")

	// ErrAwaitOnOwner is returned by Await when it is called from the
	// completion's own execution context, which would never resume.
	ErrAwaitOnOwner = errors.New("offload: await on owning execution context")

	// ErrResultType is wrapped when a call's result doesn't match the
	// requested result type.
	ErrResultType = errors.New("offload: unexpected result type")
)

// UnknownOperationError reports a name missing from the bound Target.
type UnknownOperationError struct {
	Name string
}

func (e *UnknownOperationError) Error() string {
	return fmt.Sprintf("offload: unknown operation %q", e.Name)
}

func (e *UnknownOperationError) Is(target error) bool {
	return target == ErrUnknownOperation
}

// CallError wraps the failure of an offloaded call.
type CallError struct {
	Op     string
	CallID CallID
	Err    error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("offload: call %s (%s) failed: %v", e.Op, e.CallID, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// PanicError carries a recovered panic value and the worker stack.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}
