package offload

import (
	"fmt"
	"sync"

	"github.com/Swind/go-offload/binding"
)

// Bind builds a call table from the exported methods of spec and starts a
// Dispatcher over it. A nil config uses DefaultDispatcherConfig.
func Bind(spec any, config *DispatcherConfig) (*Dispatcher, error) {
	table, err := binding.FromSpec(spec)
	if err != nil {
		return nil, fmt.Errorf("bind %T: %w", spec, err)
	}
	if config == nil {
		config = DefaultDispatcherConfig()
	}
	return NewDispatcherWithConfig(table, config), nil
}

// =============================================================================
// Global Dispatcher Helper (Singleton)
// =============================================================================

var (
	globalDispatcher *Dispatcher
	globalMu         sync.Mutex
)

// InitGlobalDispatcher binds spec into the process-wide dispatcher.
// It is a no-op if the global dispatcher is already running.
func InitGlobalDispatcher(spec any, config *DispatcherConfig) error {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalDispatcher != nil && !globalDispatcher.IsClosed() {
		return nil
	}

	d, err := Bind(spec, config)
	if err != nil {
		return err
	}
	globalDispatcher = d
	return nil
}

// GetGlobalDispatcher returns the global dispatcher instance.
// It panics if InitGlobalDispatcher has not been called.
func GetGlobalDispatcher() *Dispatcher {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalDispatcher == nil {
		panic("global dispatcher not initialized. Call InitGlobalDispatcher() first.")
	}
	return globalDispatcher
}

// ShutdownGlobalDispatcher stops the global dispatcher, abandoning queued calls.
func ShutdownGlobalDispatcher() {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalDispatcher != nil {
		globalDispatcher.Stop()
		globalDispatcher = nil
	}
}
