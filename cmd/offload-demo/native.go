package main

import (
	"context"
	"time"
)

// nativeLib is the method set exposed to the dispatcher. Every method blocks
// its caller the way a foreign library call would.
type nativeLib struct{}

// RustSleep blocks for delayMs milliseconds. It returns 0 on success and 1
// when delayMs is negative, without sleeping.
func (nativeLib) RustSleep(delayMs int32) int32 {
	if delayMs < 0 {
		return 1
	}
	time.Sleep(time.Duration(delayMs) * time.Millisecond)
	return 0
}

// SleepContext blocks for d or until the worker context ends.
func (nativeLib) SleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Add returns a + b.
func (nativeLib) Add(a, b int64) int64 {
	return a + b
}
