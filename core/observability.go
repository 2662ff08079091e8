package core

import "time"

// CallRecord captures one executed (or abandoned) offloaded call.
type CallRecord struct {
	CallID     CallID
	Operation  string
	Dispatcher string
	EnqueuedAt time.Time
	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
	Err        error
	Panicked   bool
}

// Failed reports whether the call ended with an error.
func (r CallRecord) Failed() bool {
	return r.Err != nil
}

// DispatcherStats represents runtime observability state for a Dispatcher.
type DispatcherStats struct {
	Name     string
	Pending  int
	Running  int
	Executed int64
	Failed   int64
	Rejected int64
	Closed   bool
	LastOp   string
	LastOpAt time.Time
	QueueCap int
}

// EventLoopStats represents runtime observability state for an EventLoop.
type EventLoopStats struct {
	Name       string
	Pending    int
	Executed   int64
	Rejected   int64
	Closed     bool
	LastTaskAt time.Time
}
