// Package offload runs blocking calls on a dedicated worker goroutine and
// delivers their results back to the execution context that made them.
//
// A program owns one or more EventLoops. Code running on a loop invokes named
// operations on a Dispatcher; the dispatcher queues each call, runs it on its
// worker (optionally locked to an OS thread), and resolves the returned
// Completion by posting back to the calling loop. Callbacks registered with
// OnComplete therefore always run on the caller's loop, so the loop keeps
// serving other tasks while the call is in flight.
//
// # Quick Start
//
// Bind a set of functions and run a loop:
//
//	d, err := offload.Bind(nativeLib{}, nil)
//	if err != nil {
//		return err
//	}
//	defer d.Stop()
//
//	loop := offload.NewEventLoop()
//	loop.Run(ctx, func(ctx context.Context) {
//		c, _ := offload.Invoke[int32](ctx, d, "rust_sleep", 500)
//		c.OnComplete(func(ctx context.Context, v int32, err error) {
//			fmt.Println("slept", v, err)
//			offload.GetCurrentTaskRunner(ctx).(*offload.EventLoop).Shutdown()
//		})
//	})
//
// # Key Concepts
//
// Channel: a bounded, blocking FIFO queue safe for any number of producers and
// consumers. Closing it wakes every waiter; queued items are abandoned.
//
// Dispatcher: owns one worker and a Channel of pending calls. Calls start in
// the order they were enqueued, one at a time.
//
// Completion: a single-assignment result that is only ever settled on its
// owning TaskRunner.
//
// # Sub-packages
//
// The binding package builds call tables from plain Go functions or from the
// exported methods of a value. The observability/prometheus package exports
// dispatcher and loop metrics.
package offload
