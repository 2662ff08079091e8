package offload

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Swind/go-offload/binding"
)

type mathLib struct{}

func (mathLib) AddInt64(a, b int64) int64 { return a + b }

func quietConfig() *DispatcherConfig {
	cfg := DefaultDispatcherConfig()
	cfg.Name = "math"
	cfg.Logger = NewNoOpLogger()
	return cfg
}

func TestBind(t *testing.T) {
	// Arrange
	d, err := Bind(mathLib{}, quietConfig())
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	defer d.Stop()

	loop := NewEventLoopWithConfig(&EventLoopConfig{Logger: NewNoOpLogger()})
	defer loop.Stop()

	// Act
	c, err := Invoke[int64](WithTaskRunner(context.Background(), loop), d, "add_int64", 40, 2)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err := c.Await(ctx)

	// Assert
	if err != nil || got != 42 {
		t.Fatalf("Await = (%d, %v), want (42, nil)", got, err)
	}
	if d.Name() != "math" {
		t.Fatalf("Name = %q, want math", d.Name())
	}
}

func TestBind_EmptySpec(t *testing.T) {
	_, err := Bind(struct{}{}, nil)
	if !errors.Is(err, binding.ErrEmptySpec) {
		t.Fatalf("Bind(struct{}{}) error = %v, want ErrEmptySpec", err)
	}
}

func TestGlobalDispatcher(t *testing.T) {
	defer ShutdownGlobalDispatcher()

	// Given: the global dispatcher is not initialized
	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("GetGlobalDispatcher should panic before init")
			}
		}()
		GetGlobalDispatcher()
	}()

	// When: it is initialized twice
	if err := InitGlobalDispatcher(mathLib{}, quietConfig()); err != nil {
		t.Fatalf("InitGlobalDispatcher: %v", err)
	}
	first := GetGlobalDispatcher()
	if err := InitGlobalDispatcher(mathLib{}, quietConfig()); err != nil {
		t.Fatalf("second InitGlobalDispatcher: %v", err)
	}

	// Then: the same instance is returned
	if GetGlobalDispatcher() != first {
		t.Fatal("second init should keep the running dispatcher")
	}

	// And: shutdown stops it
	ShutdownGlobalDispatcher()
	if !first.IsClosed() {
		t.Fatal("ShutdownGlobalDispatcher should stop the dispatcher")
	}
	if err := InitGlobalDispatcher(struct{}{}, nil); err == nil {
		t.Fatal("init with an empty spec should fail")
	}
}
