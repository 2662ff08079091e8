package core

import (
	"context"
)

// CompletionCallback receives the outcome of a Completion on its owner.
type CompletionCallback[T any] func(ctx context.Context, value T, err error)

// Completion is a one-shot result slot bound to an owning TaskRunner.
//
// Its state only changes on the owner: Resolve posts the change there, and
// callbacks registered with OnComplete run there too. Await may be used from
// any other goroutine to block until the result is available.
type Completion[T any] struct {
	owner TaskRunner
	done  chan struct{}

	// Written on the owner before done is closed.
	value T
	err   error

	// Owner-only state.
	settled   bool
	callbacks []CompletionCallback[T]
}

// NewCompletion creates an unresolved Completion owned by owner.
func NewCompletion[T any](owner TaskRunner) *Completion[T] {
	if owner == nil {
		panic("offload: completion requires an owner")
	}
	return &Completion[T]{
		owner: owner,
		done:  make(chan struct{}),
	}
}

// Owner returns the execution context the completion resolves on.
func (c *Completion[T]) Owner() TaskRunner {
	return c.owner
}

// Resolve delivers value and err to the owner. It is safe to call from any
// goroutine; only the first resolution takes effect.
func (c *Completion[T]) Resolve(value T, err error) {
	c.owner.PostTask(func(ctx context.Context) {
		c.settle(value, err)
	})
}

func (c *Completion[T]) settle(value T, err error) {
	if c.settled {
		return
	}
	c.settled = true
	c.value = value
	c.err = err

	// Each callback is its own task so a panicking one doesn't starve the rest.
	// They are queued before done closes, ahead of anything an awaiter posts next.
	callbacks := c.callbacks
	c.callbacks = nil
	for _, cb := range callbacks {
		c.owner.PostTask(func(ctx context.Context) {
			cb(ctx, c.value, c.err)
		})
	}
	close(c.done)
}

// OnComplete registers cb to run on the owner once the completion resolves.
// Callbacks run in registration order; a callback registered after resolution
// runs on the owner's next turn.
func (c *Completion[T]) OnComplete(cb CompletionCallback[T]) {
	if cb == nil {
		return
	}
	c.owner.PostTask(func(ctx context.Context) {
		if c.settled {
			cb(ctx, c.value, c.err)
			return
		}
		c.callbacks = append(c.callbacks, cb)
	})
}

// Done is closed once the completion has resolved.
func (c *Completion[T]) Done() <-chan struct{} {
	return c.done
}

// Result returns the outcome without blocking. ok is false while unresolved.
func (c *Completion[T]) Result() (value T, err error, ok bool) {
	select {
	case <-c.done:
		return c.value, c.err, true
	default:
		var zero T
		return zero, nil, false
	}
}

// Await blocks until the completion resolves or ctx ends.
//
// Awaiting from the owner itself can never succeed, because the owner is the
// goroutine that has to apply the result; in that case ErrAwaitOnOwner is
// returned right away unless the result is already available.
func (c *Completion[T]) Await(ctx context.Context) (T, error) {
	if value, err, ok := c.Result(); ok {
		return value, err
	}

	var zero T
	if GetCurrentTaskRunner(ctx) == c.owner {
		return zero, ErrAwaitOnOwner
	}

	select {
	case <-c.done:
		return c.value, c.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
