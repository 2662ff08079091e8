package core

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Task is the unit of work (Closure)
type Task func(ctx context.Context)

// =============================================================================
// TaskRunner: Define task submission interface
// =============================================================================

// TaskRunner is an execution context that tasks can be posted to from any goroutine.
// EventLoop and Dispatcher both implement it.
type TaskRunner interface {
	PostTask(task Task)
	PostDelayedTask(task Task, delay time.Duration)
}

// RepeatingTaskHandle controls the lifecycle of a repeating task
type RepeatingTaskHandle interface {
	Stop()
	IsStopped() bool
}

// =============================================================================
// Call identity
// =============================================================================

// CallID identifies one offloaded call in logs, history and errors.
type CallID uuid.UUID

// GenerateCallID returns a new random CallID.
func GenerateCallID() CallID {
	return CallID(uuid.New())
}

func (id CallID) String() string {
	return uuid.UUID(id).String()
}

// IsZero reports whether id is the zero value.
func (id CallID) IsZero() bool {
	return uuid.UUID(id) == uuid.Nil
}

// =============================================================================
// Context Helper
// =============================================================================
type taskRunnerKeyType struct{}

var taskRunnerKey taskRunnerKeyType

// GetCurrentTaskRunner returns the TaskRunner executing the task that owns ctx,
// or nil when ctx doesn't come from a runner.
func GetCurrentTaskRunner(ctx context.Context) TaskRunner {
	if ctx == nil {
		return nil
	}
	if v := ctx.Value(taskRunnerKey); v != nil {
		return v.(TaskRunner)
	}
	return nil
}

// WithTaskRunner returns a copy of ctx that reports runner as the current TaskRunner.
// Use it to deliver results to a runner from code that isn't running on it.
func WithTaskRunner(ctx context.Context, runner TaskRunner) context.Context {
	return context.WithValue(ctx, taskRunnerKey, runner)
}
