package core

import (
	"context"
	"time"
)

// =============================================================================
// PanicHandler: Interface for handling task panics
// =============================================================================

// PanicHandler is called when a task or an offloaded call panics.
//
// Implementations should be thread-safe as they may be called concurrently
// from different loops and dispatchers.
type PanicHandler interface {
	// HandlePanic is called when a task panics.
	//
	// Parameters:
	// - ctx: The context of the panicked task
	// - runnerName: The name of the loop or dispatcher where the panic occurred
	// - panicInfo: The panic value recovered from the task
	// - stackTrace: The stack trace at the time of panic
	HandlePanic(ctx context.Context, runnerName string, panicInfo any, stackTrace []byte)
}

// DefaultPanicHandler logs panics through a Logger.
type DefaultPanicHandler struct {
	Logger Logger
}

// HandlePanic logs panic information at error level.
func (h *DefaultPanicHandler) HandlePanic(ctx context.Context, runnerName string, panicInfo any, stackTrace []byte) {
	logger := h.Logger
	if logger == nil {
		logger = NewDefaultLogger()
	}
	logger.Error("task panicked",
		F("runner", runnerName),
		F("panic", panicInfo),
		F("stack", string(stackTrace)),
	)
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting call execution metrics.
// Implementations can send metrics to monitoring systems (Prometheus, StatsD, etc.).
//
// Methods should be non-blocking and fast; they run on the worker goroutine
// between native calls.
type Metrics interface {
	// RecordCallDuration records how long an offloaded call took to execute.
	RecordCallDuration(dispatcher string, operation string, duration time.Duration)

	// RecordCallFailure records that a call returned an error or panicked.
	RecordCallFailure(dispatcher string, operation string)

	// RecordQueueDepth records the number of calls waiting for the worker.
	RecordQueueDepth(dispatcher string, depth int)

	// RecordCallRejected records that a call never ran.
	// reason is one of "closed", "unknown_operation", "no_context", "abandoned".
	RecordCallRejected(dispatcher string, reason string)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

func (m *NilMetrics) RecordCallDuration(dispatcher string, operation string, duration time.Duration) {
}
func (m *NilMetrics) RecordCallFailure(dispatcher string, operation string) {}
func (m *NilMetrics) RecordQueueDepth(dispatcher string, depth int)         {}
func (m *NilMetrics) RecordCallRejected(dispatcher string, reason string)   {}

// =============================================================================
// RejectedTaskHandler: Interface for handling rejected tasks
// =============================================================================

// RejectedTaskHandler is called when an EventLoop drops a task because it is closed.
// Completion deliveries to a stopped loop end here as well.
type RejectedTaskHandler interface {
	HandleRejectedTask(runnerName string, reason string)
}

// DefaultRejectedTaskHandler logs rejected tasks at debug level.
type DefaultRejectedTaskHandler struct {
	Logger Logger
}

// HandleRejectedTask logs the rejected task.
func (h *DefaultRejectedTaskHandler) HandleRejectedTask(runnerName string, reason string) {
	if h.Logger == nil {
		return
	}
	h.Logger.Debug("task rejected", F("runner", runnerName), F("reason", reason))
}

// =============================================================================
// Configuration
// =============================================================================

// DispatcherConfig holds configuration options for a Dispatcher.
// An empty Name, a non-positive HistoryCapacity and nil handlers fall back to
// the defaults of DefaultDispatcherConfig.
type DispatcherConfig struct {
	// Name labels logs, metrics and stats. Defaults to "dispatcher".
	Name string

	// QueueCapacity bounds pending calls. 0 keeps the queue unbounded so that
	// Invoke never blocks the calling loop.
	QueueCapacity int

	// LockOSThread pins the worker goroutine to one OS thread for its lifetime.
	LockOSThread bool

	// HistoryCapacity is the number of CallRecords kept for RecentCalls.
	HistoryCapacity int

	Logger       Logger
	Metrics      Metrics
	PanicHandler PanicHandler
}

// DefaultDispatcherConfig returns a config with default handlers.
func DefaultDispatcherConfig() *DispatcherConfig {
	logger := NewDefaultLogger()
	return &DispatcherConfig{
		Name:            "dispatcher",
		LockOSThread:    true,
		HistoryCapacity: defaultCallHistoryCapacity,
		Logger:          logger,
		Metrics:         &NilMetrics{},
		PanicHandler:    &DefaultPanicHandler{Logger: logger},
	}
}

// EventLoopConfig holds configuration options for an EventLoop.
type EventLoopConfig struct {
	// Name labels logs and stats. Defaults to "loop".
	Name string

	Logger              Logger
	PanicHandler        PanicHandler
	RejectedTaskHandler RejectedTaskHandler
}

// DefaultEventLoopConfig returns a config with default handlers.
func DefaultEventLoopConfig() *EventLoopConfig {
	logger := NewDefaultLogger()
	return &EventLoopConfig{
		Name:                "loop",
		Logger:              logger,
		PanicHandler:        &DefaultPanicHandler{Logger: logger},
		RejectedTaskHandler: &DefaultRejectedTaskHandler{Logger: logger},
	}
}
