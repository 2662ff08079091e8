package core

import (
	"context"
	"iter"
	"sync"
)

const (
	defaultChannelCap   = 16
	compactMinCap       = 64 // Don't compact if capacity is less than this
	compactShrinkFactor = 4  // Trigger compaction when len < cap/4
)

// Channel is a closeable multi-producer multi-consumer FIFO queue.
//
// Unlike a Go chan, it can be unbounded, closing it never panics a producer,
// and it can be closed from any side. A capacity <= 0 means unbounded.
//
// Close semantics: once closed, Dequeue reports false immediately, even if
// items are still buffered. Buffered items are abandoned in place and can
// only be reached through Drain.
type Channel[T any] struct {
	mu       sync.Mutex
	notEmpty sync.Cond // producers and Close notify consumers
	notFull  sync.Cond // consumers and Close notify producers

	items    []T
	capacity int
	open     bool
}

// NewChannel creates a Channel bounded to capacity items.
// A capacity <= 0 creates an unbounded channel.
func NewChannel[T any](capacity int) *Channel[T] {
	if capacity < 0 {
		capacity = 0
	}
	c := &Channel[T]{
		items:    make([]T, 0, defaultChannelCap),
		capacity: capacity,
		open:     true,
	}
	c.notEmpty.L = &c.mu
	c.notFull.L = &c.mu
	return c
}

// NewUnboundedChannel creates a Channel that never blocks producers.
func NewUnboundedChannel[T any]() *Channel[T] {
	return NewChannel[T](0)
}

// Enqueue appends item, blocking while the channel is open and full.
//
// It returns false if the channel was closed before or while waiting; the
// item is discarded in that case.
func (c *Channel[T]) Enqueue(item T) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for c.open && c.fullLocked() {
		c.notFull.Wait()
	}
	if !c.open {
		return false
	}

	c.items = append(c.items, item)
	c.notEmpty.Signal()
	return true
}

// EnqueueContext is Enqueue with a cancellable wait.
// It returns ErrChannelClosed if the item was discarded by a close, or
// ctx.Err() if ctx ended while waiting for space.
func (c *Channel[T]) EnqueueContext(ctx context.Context, item T) error {
	stop := context.AfterFunc(ctx, func() {
		c.mu.Lock()
		c.notFull.Broadcast()
		c.mu.Unlock()
	})
	defer stop()

	c.mu.Lock()
	defer c.mu.Unlock()

	for c.open && c.fullLocked() {
		if err := ctx.Err(); err != nil {
			// We may have swallowed a Signal meant for another producer.
			c.notFull.Signal()
			return err
		}
		c.notFull.Wait()
	}
	if !c.open {
		return ErrChannelClosed
	}

	c.items = append(c.items, item)
	c.notEmpty.Signal()
	return nil
}

// Dequeue removes the oldest item, blocking while the channel is open and empty.
// It returns false as soon as the channel is observed closed.
func (c *Channel[T]) Dequeue() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for c.open && len(c.items) == 0 {
		c.notEmpty.Wait()
	}
	if !c.open {
		var zero T
		return zero, false
	}
	return c.popLocked(), true
}

// DequeueContext is Dequeue with a cancellable wait.
// It returns ErrChannelClosed once the channel is closed, or ctx.Err().
func (c *Channel[T]) DequeueContext(ctx context.Context) (T, error) {
	stop := context.AfterFunc(ctx, func() {
		c.mu.Lock()
		c.notEmpty.Broadcast()
		c.mu.Unlock()
	})
	defer stop()

	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	for c.open && len(c.items) == 0 {
		if err := ctx.Err(); err != nil {
			c.notEmpty.Signal()
			return zero, err
		}
		c.notEmpty.Wait()
	}
	if !c.open {
		return zero, ErrChannelClosed
	}
	return c.popLocked(), nil
}

// All returns an iterator that yields items until the channel is closed.
//
//	for item := range ch.All() {
//		handle(item)
//	}
func (c *Channel[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		for {
			item, ok := c.Dequeue()
			if !ok {
				return
			}
			if !yield(item) {
				return
			}
		}
	}
}

// Close marks the channel closed and wakes every blocked producer and consumer.
// Subsequent calls are no-ops.
func (c *Channel[T]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.open {
		return
	}
	c.open = false
	c.notEmpty.Broadcast()
	c.notFull.Broadcast()
}

// Drain removes and returns all buffered items.
// After Close this is the only way to reach abandoned items.
func (c *Channel[T]) Drain() []T {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.items) == 0 {
		return nil
	}
	out := make([]T, len(c.items))
	copy(out, c.items)
	c.items = make([]T, 0, defaultChannelCap)
	if c.open {
		c.notFull.Broadcast()
	}
	return out
}

// Len returns the number of buffered items.
func (c *Channel[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Cap returns the capacity bound, 0 when unbounded.
func (c *Channel[T]) Cap() int {
	return c.capacity
}

// IsClosed reports whether Close has been called.
func (c *Channel[T]) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.open
}

func (c *Channel[T]) fullLocked() bool {
	return c.capacity > 0 && len(c.items) >= c.capacity
}

func (c *Channel[T]) popLocked() T {
	item := c.items[0]
	// Zero out the slot so the backing array doesn't pin the item
	var zero T
	c.items[0] = zero
	c.items = c.items[1:]
	c.maybeCompactLocked()

	c.notFull.Signal()
	return item
}

func (c *Channel[T]) maybeCompactLocked() {
	n := len(c.items)
	capacity := cap(c.items)

	if capacity < compactMinCap {
		return
	}
	if n == 0 {
		c.items = make([]T, 0, defaultChannelCap)
		return
	}
	if n*compactShrinkFactor >= capacity {
		return
	}

	newCap := max(max(capacity/2, defaultChannelCap), n)
	newSlice := make([]T, n, newCap)
	copy(newSlice, c.items)
	c.items = newSlice
}
