package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

// TestCompletion_OnCompleteRunsOnOwner verifies callbacks run on the owner loop
// Given: A completion owned by an EventLoop
// When: It is resolved from another goroutine
// Then: The callback runs on the loop with the resolved value
func TestCompletion_OnCompleteRunsOnOwner(t *testing.T) {
	// Arrange
	loop := newTestLoop()
	defer loop.Stop()
	c := NewCompletion[int](loop)

	type outcome struct {
		value  int
		err    error
		runner TaskRunner
	}
	got := make(chan outcome, 1)
	c.OnComplete(func(ctx context.Context, value int, err error) {
		got <- outcome{value, err, GetCurrentTaskRunner(ctx)}
	})

	// Act
	go c.Resolve(7, nil)

	// Assert
	select {
	case o := <-got:
		if o.value != 7 || o.err != nil {
			t.Fatalf("callback got (%d, %v), want (7, nil)", o.value, o.err)
		}
		if o.runner != loop {
			t.Fatal("callback did not run on the owner loop")
		}
	case <-time.After(time.Second):
		t.Fatal("callback never ran")
	}
}

// TestCompletion_FirstResolveWins verifies later resolutions are ignored
func TestCompletion_FirstResolveWins(t *testing.T) {
	loop := newTestLoop()
	defer loop.Stop()
	c := NewCompletion[string](loop)

	c.Resolve("first", nil)
	c.Resolve("second", errors.New("late"))

	value, err := c.Await(context.Background())
	if value != "first" || err != nil {
		t.Fatalf("Await = (%q, %v), want (first, nil)", value, err)
	}
	if err := loop.WaitIdle(context.Background()); err != nil {
		t.Fatalf("WaitIdle failed: %v", err)
	}
	if v, _, _ := c.Result(); v != "first" {
		t.Fatalf("Result value = %q after second Resolve, want first", v)
	}
}

// TestCompletion_CallbackOrder verifies callbacks run in registration order,
// including one registered after resolution
func TestCompletion_CallbackOrder(t *testing.T) {
	loop := newTestLoop()
	defer loop.Stop()
	c := NewCompletion[int](loop)

	var order []int
	c.OnComplete(func(ctx context.Context, v int, err error) { order = append(order, 1) })
	c.OnComplete(func(ctx context.Context, v int, err error) { order = append(order, 2) })
	c.Resolve(0, nil)
	if _, err := c.Await(context.Background()); err != nil {
		t.Fatalf("Await failed: %v", err)
	}
	c.OnComplete(func(ctx context.Context, v int, err error) { order = append(order, 3) })

	if err := loop.WaitIdle(context.Background()); err != nil {
		t.Fatalf("WaitIdle failed: %v", err)
	}
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Fatalf("callback order = %v, want [1 2 3]", order)
	}
}

// TestCompletion_Result verifies the non-blocking accessor
func TestCompletion_Result(t *testing.T) {
	loop := newTestLoop()
	defer loop.Stop()
	c := NewCompletion[int](loop)

	if _, _, ok := c.Result(); ok {
		t.Fatal("Result reported ok before resolution")
	}

	wantErr := errors.New("failed")
	c.Resolve(0, wantErr)
	<-c.Done()

	_, err, ok := c.Result()
	if !ok || !errors.Is(err, wantErr) {
		t.Fatalf("Result = (%v, %v), want (failed, true)", err, ok)
	}
	if c.Owner() != loop {
		t.Fatal("Owner should return the loop")
	}
}

// TestCompletion_AwaitOnOwner verifies awaiting from the owner fails fast
// Given: An unresolved completion owned by a loop
// When: A task on that loop calls Await
// Then: Await returns ErrAwaitOnOwner instead of deadlocking
func TestCompletion_AwaitOnOwner(t *testing.T) {
	// Arrange
	loop := newTestLoop()
	defer loop.Stop()
	c := NewCompletion[int](loop)

	// Act
	errCh := make(chan error, 1)
	loop.PostTask(func(ctx context.Context) {
		_, err := c.Await(ctx)
		errCh <- err
	})

	// Assert
	select {
	case err := <-errCh:
		if !errors.Is(err, ErrAwaitOnOwner) {
			t.Fatalf("Await err = %v, want ErrAwaitOnOwner", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Await on owner blocked")
	}
}

// TestCompletion_AwaitContext verifies Await honours ctx
func TestCompletion_AwaitContext(t *testing.T) {
	loop := newTestLoop()
	defer loop.Stop()
	c := NewCompletion[int](loop)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := c.Await(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Await err = %v, want DeadlineExceeded", err)
	}
}

// TestCompletion_RequiresOwner verifies a nil owner is refused
func TestCompletion_RequiresOwner(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("NewCompletion(nil) should panic")
		}
	}()
	NewCompletion[int](nil)
}
