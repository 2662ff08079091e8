package core

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

// =============================================================================
// PanicHandler
// =============================================================================

func TestDefaultPanicHandler(t *testing.T) {
	// Given: A DefaultPanicHandler backed by a buffered logrus logger
	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)
	handler := &DefaultPanicHandler{Logger: NewLogrusLogger(l)}

	// When: HandlePanic is called
	handler.HandlePanic(context.Background(), "native", "test panic", []byte("stack trace"))

	// Then: The panic is logged at error level with the runner name
	out := buf.String()
	if !strings.Contains(out, "level=error") || !strings.Contains(out, "runner=native") {
		t.Fatalf("unexpected log output: %q", out)
	}
}

func TestDefaultPanicHandler_NilLogger(t *testing.T) {
	// Given: A DefaultPanicHandler without a logger
	handler := &DefaultPanicHandler{}

	// When: HandlePanic is called
	// Then: No panic should occur (falls back to the default logger)
	handler.HandlePanic(context.Background(), "native", "test panic", nil)
}

// =============================================================================
// Metrics
// =============================================================================

func TestNilMetrics(t *testing.T) {
	// Given: A NilMetrics
	var m Metrics = &NilMetrics{}

	// When: All methods are called
	m.RecordCallDuration("native", "add", 0)
	m.RecordCallFailure("native", "add")
	m.RecordQueueDepth("native", 3)
	m.RecordCallRejected("native", "closed")

	// Then: No panic should occur (all methods are no-ops)
}

func TestDispatcher_DefaultMetricsWhenNil(t *testing.T) {
	// Given: A config whose Metrics is nil
	cfg := &DispatcherConfig{Logger: NewNoOpLogger()}

	// When: A dispatcher is created and rejects a call
	d := NewDispatcherWithConfig(nil, cfg)
	defer d.Stop()
	d.Invoke(context.Background(), "missing")

	// Then: The rejection is counted without a metrics sink
	if d.Stats().Rejected != 1 {
		t.Fatalf("Rejected = %d, want 1", d.Stats().Rejected)
	}
}

// =============================================================================
// RejectedTaskHandler
// =============================================================================

func TestDefaultRejectedTaskHandler(t *testing.T) {
	// Given: A DefaultRejectedTaskHandler at debug level
	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)
	l.SetLevel(logrus.DebugLevel)
	handler := &DefaultRejectedTaskHandler{Logger: NewLogrusLogger(l)}

	// When: HandleRejectedTask is called
	handler.HandleRejectedTask("main", "closed")

	// Then: The rejection is logged with its reason
	if out := buf.String(); !strings.Contains(out, "reason=closed") {
		t.Fatalf("unexpected log output: %q", out)
	}

	// And: A handler without a logger is a no-op
	(&DefaultRejectedTaskHandler{}).HandleRejectedTask("main", "closed")
}

// =============================================================================
// Config defaults
// =============================================================================

func TestDefaultConfigs(t *testing.T) {
	dc := DefaultDispatcherConfig()
	if dc.Name != "dispatcher" || !dc.LockOSThread || dc.QueueCapacity != 0 || dc.HistoryCapacity != defaultCallHistoryCapacity {
		t.Fatalf("unexpected dispatcher defaults: %+v", dc)
	}
	if dc.Logger == nil || dc.Metrics == nil || dc.PanicHandler == nil {
		t.Fatal("dispatcher defaults should set every handler")
	}

	lc := DefaultEventLoopConfig()
	if lc.Name != "loop" || lc.Logger == nil || lc.PanicHandler == nil || lc.RejectedTaskHandler == nil {
		t.Fatalf("unexpected loop defaults: %+v", lc)
	}
}
