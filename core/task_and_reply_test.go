package core

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// =============================================================================
// PostTaskAndReply Tests
// =============================================================================

// TestPostTaskAndReply_RunsReplyOnReplyRunner tests task and reply placement
// Main test items:
// 1. Task executes on the dispatcher worker
// 2. Reply executes on the reply loop, after the task
func TestPostTaskAndReply_RunsReplyOnReplyRunner(t *testing.T) {
	loop := newTestLoop()
	defer loop.Stop()
	d := newTestDispatcher(nil)
	defer d.Stop()

	var taskOnWorker atomic.Bool
	var taskDone atomic.Bool
	replied := make(chan bool, 1)

	PostTaskAndReply(
		d,
		func(ctx context.Context) {
			taskOnWorker.Store(GetCurrentTaskRunner(ctx) == d)
			taskDone.Store(true)
		},
		func(ctx context.Context) {
			replied <- taskDone.Load() && GetCurrentTaskRunner(ctx) == loop
		},
		loop,
	)

	select {
	case ok := <-replied:
		if !ok {
			t.Fatal("reply ran before the task or off the reply loop")
		}
	case <-time.After(time.Second):
		t.Fatal("reply never ran")
	}
	if !taskOnWorker.Load() {
		t.Fatal("task did not run on the dispatcher")
	}
}

// TestPostTaskAndReply_NilReplyRunner tests that only the task runs
func TestPostTaskAndReply_NilReplyRunner(t *testing.T) {
	loop := newTestLoop()
	defer loop.Stop()

	var ran atomic.Bool
	PostTaskAndReply(loop, func(ctx context.Context) { ran.Store(true) }, func(ctx context.Context) {
		t.Error("reply must not run without a reply runner")
	}, nil)

	if err := loop.WaitIdle(context.Background()); err != nil {
		t.Fatalf("WaitIdle failed: %v", err)
	}
	if !ran.Load() {
		t.Fatal("task did not run")
	}
}

// TestPostTaskAndReplyWithResult_PassesResult tests result hand-off
// Main test items:
// 1. The task's value and error reach the reply unchanged
func TestPostTaskAndReplyWithResult_PassesResult(t *testing.T) {
	loop := newTestLoop()
	defer loop.Stop()
	d := newTestDispatcher(nil)
	defer d.Stop()

	wantErr := errors.New("partial")
	type outcome struct {
		value int
		err   error
	}
	got := make(chan outcome, 1)

	PostTaskAndReplyWithResult(
		d,
		func(ctx context.Context) (int, error) { return 42, wantErr },
		func(ctx context.Context, value int, err error) { got <- outcome{value, err} },
		loop,
	)

	select {
	case o := <-got:
		if o.value != 42 || !errors.Is(o.err, wantErr) {
			t.Fatalf("reply got (%d, %v), want (42, partial)", o.value, o.err)
		}
	case <-time.After(time.Second):
		t.Fatal("reply never ran")
	}
}

// =============================================================================
// Submit / Go Tests
// =============================================================================

// TestSubmit_ResolvesOnCaller tests Submit against a dispatcher
// Given: A loop task submitting a closure to a dispatcher
// When: The closure returns
// Then: The completion resolves on the loop with its value
func TestSubmit_ResolvesOnCaller(t *testing.T) {
	// Arrange
	loop := newTestLoop()
	defer loop.Stop()
	d := newTestDispatcher(nil)
	defer d.Stop()

	got := make(chan string, 1)

	// Act
	loop.PostTask(func(ctx context.Context) {
		c, err := Submit(ctx, d, func(ctx context.Context) (string, error) {
			return "checksum", nil
		})
		if err != nil {
			t.Errorf("Submit failed: %v", err)
			return
		}
		c.OnComplete(func(ctx context.Context, v string, err error) {
			if GetCurrentTaskRunner(ctx) == loop && err == nil {
				got <- v
			}
		})
	})

	// Assert
	select {
	case v := <-got:
		if v != "checksum" {
			t.Fatalf("value = %q, want checksum", v)
		}
	case <-time.After(time.Second):
		t.Fatal("Submit completion never resolved on the loop")
	}
}

// TestSubmit_PanicBecomesError tests panic capture in Submit
func TestSubmit_PanicBecomesError(t *testing.T) {
	loop := newTestLoop()
	defer loop.Stop()
	d := newTestDispatcher(nil)
	defer d.Stop()
	ctx := WithTaskRunner(context.Background(), loop)

	c, err := Submit(ctx, d, func(ctx context.Context) (int, error) {
		panic("bad pointer")
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	_, err = awaitWithin(t, c, time.Second)
	var panicErr *PanicError
	if !errors.As(err, &panicErr) || panicErr.Value != "bad pointer" {
		t.Fatalf("err = %v, want *PanicError", err)
	}
}

// TestSubmit_NoExecutionContext tests the missing owner error
func TestSubmit_NoExecutionContext(t *testing.T) {
	d := newTestDispatcher(nil)
	defer d.Stop()

	if _, err := Submit(context.Background(), d, func(ctx context.Context) (int, error) { return 0, nil }); !errors.Is(err, ErrNoExecutionContext) {
		t.Fatalf("Submit err = %v, want ErrNoExecutionContext", err)
	}
	if _, err := Go(context.Background(), func(ctx context.Context) (int, error) { return 0, nil }); !errors.Is(err, ErrNoExecutionContext) {
		t.Fatalf("Go err = %v, want ErrNoExecutionContext", err)
	}
}

// TestGo_RunsConcurrently tests the per-call goroutine variant
// Given: Three blocking functions started with Go from the same loop
// When: Each sleeps 80ms
// Then: All resolve in well under 240ms and none sees the loop as its runner
func TestGo_RunsConcurrently(t *testing.T) {
	// Arrange
	loop := newTestLoop()
	defer loop.Stop()
	ctx := WithTaskRunner(context.Background(), loop)

	var sawRunner atomic.Bool
	sleep := func(ctx context.Context) (int, error) {
		if GetCurrentTaskRunner(ctx) != nil {
			sawRunner.Store(true)
		}
		time.Sleep(80 * time.Millisecond)
		return 1, nil
	}

	// Act
	start := time.Now()
	var completions []*Completion[int]
	for range 3 {
		c, err := Go(ctx, sleep)
		if err != nil {
			t.Fatalf("Go failed: %v", err)
		}
		completions = append(completions, c)
	}
	for _, c := range completions {
		if v, err := awaitWithin(t, c, time.Second); err != nil || v != 1 {
			t.Fatalf("Go completion = (%d, %v), want (1, nil)", v, err)
		}
	}

	// Assert
	if elapsed := time.Since(start); elapsed >= 200*time.Millisecond {
		t.Fatalf("three Go calls took %v, expected concurrency", elapsed)
	}
	if sawRunner.Load() {
		t.Fatal("Go goroutine should not report the caller's loop as its runner")
	}
}
