package core

import (
	"context"
	"runtime/debug"
)

// TaskWithResult is a task that produces a value of type T.
type TaskWithResult[T any] func(ctx context.Context) (T, error)

// ReplyWithResult receives the outcome of a TaskWithResult.
type ReplyWithResult[T any] func(ctx context.Context, result T, err error)

// =============================================================================
// PostTaskAndReply
// =============================================================================

// PostTaskAndReply executes task on targetRunner, then posts reply to replyRunner.
// If task panics, reply will not be executed.
func PostTaskAndReply(targetRunner TaskRunner, task Task, reply Task, replyRunner TaskRunner) {
	if replyRunner == nil {
		targetRunner.PostTask(task)
		return
	}

	targetRunner.PostTask(func(ctx context.Context) {
		// Panics propagate to the target runner's handler; reply is skipped.
		task(ctx)
		replyRunner.PostTask(reply)
	})
}

// PostTaskAndReplyWithResult executes a task that returns a result of type T and an error,
// then passes that result to a reply callback on the replyRunner.
//
// Execution guarantee (Happens-Before):
// - The task ALWAYS completes before the reply starts
// - The reply ALWAYS sees the final values written by the task
//
// Example:
//
//	PostTaskAndReplyWithResult(
//	    dispatcher,
//	    func(ctx context.Context) (int, error) {
//	        return lib.Checksum(buf), nil
//	    },
//	    func(ctx context.Context, sum int, err error) {
//	        fmt.Printf("checksum: %d\n", sum)
//	    },
//	    loop,
//	)
func PostTaskAndReplyWithResult[T any](
	targetRunner TaskRunner,
	task TaskWithResult[T],
	reply ReplyWithResult[T],
	replyRunner TaskRunner,
) {
	var result T
	var err error

	PostTaskAndReply(
		targetRunner,
		func(ctx context.Context) { result, err = task(ctx) },
		func(ctx context.Context) { reply(ctx, result, err) },
		replyRunner,
	)
}

// =============================================================================
// Completion-returning helpers
// =============================================================================

// Submit runs task on targetRunner and returns a Completion resolved on the
// TaskRunner found in ctx. A panicking task resolves the completion with a
// *PanicError instead of skipping the reply.
//
// On a Dispatcher, Submit fails with ErrDispatcherClosed once it is closed,
// and a task still queued when it stops resolves with ErrAbandonedCompletion.
func Submit[T any](ctx context.Context, targetRunner TaskRunner, task TaskWithResult[T]) (*Completion[T], error) {
	owner := GetCurrentTaskRunner(ctx)
	if owner == nil {
		return nil, ErrNoExecutionContext
	}

	completion := NewCompletion[T](owner)
	run := func(taskCtx context.Context) {
		value, err := runRecovered(taskCtx, task)
		completion.Resolve(value, err)
	}

	if d, ok := targetRunner.(*Dispatcher); ok {
		err := d.postAbandonable(run, func(err error) {
			var zero T
			completion.Resolve(zero, err)
		})
		if err != nil {
			return nil, err
		}
		return completion, nil
	}

	targetRunner.PostTask(run)
	return completion, nil
}

// Go runs task on a fresh goroutine and resolves the returned Completion on the
// TaskRunner found in ctx. Unlike a Dispatcher, calls started with Go have no
// ordering between each other and may run concurrently.
func Go[T any](ctx context.Context, task TaskWithResult[T]) (*Completion[T], error) {
	owner := GetCurrentTaskRunner(ctx)
	if owner == nil {
		return nil, ErrNoExecutionContext
	}

	completion := NewCompletion[T](owner)
	// The goroutine keeps ctx values but is not part of the caller's runner.
	taskCtx := WithTaskRunner(context.WithoutCancel(ctx), nil)
	go func() {
		value, err := runRecovered(taskCtx, task)
		completion.Resolve(value, err)
	}()
	return completion, nil
}

func runRecovered[T any](ctx context.Context, task TaskWithResult[T]) (value T, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			var zero T
			value, err = zero, &PanicError{Value: rec, Stack: debug.Stack()}
		}
	}()
	return task(ctx)
}
