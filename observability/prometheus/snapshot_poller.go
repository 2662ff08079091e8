package prometheus

import (
	"context"
	"sync"
	"time"

	"github.com/Swind/go-offload/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// DispatcherSnapshotProvider provides current dispatcher stats snapshots.
type DispatcherSnapshotProvider interface {
	Stats() core.DispatcherStats
}

// LoopSnapshotProvider provides current event loop stats snapshots.
type LoopSnapshotProvider interface {
	Stats() core.EventLoopStats
}

// SnapshotPoller periodically exports dispatcher and loop Stats() snapshots into Prometheus gauges.
type SnapshotPoller struct {
	interval time.Duration

	dispatchersMu sync.RWMutex
	dispatchers   map[string]DispatcherSnapshotProvider

	loopsMu sync.RWMutex
	loops   map[string]LoopSnapshotProvider

	dispatcherPending  *prom.GaugeVec
	dispatcherRunning  *prom.GaugeVec
	dispatcherExecuted *prom.GaugeVec
	dispatcherFailed   *prom.GaugeVec
	dispatcherClosed   *prom.GaugeVec

	loopPending  *prom.GaugeVec
	loopExecuted *prom.GaugeVec
	loopRejected *prom.GaugeVec
	loopClosed   *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(namespace string, reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if namespace == "" {
		namespace = "offload"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	gauge := func(name, help string, labels ...string) *prom.GaugeVec {
		return prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, labels)
	}

	p := &SnapshotPoller{
		interval:           interval,
		dispatchers:        make(map[string]DispatcherSnapshotProvider),
		loops:              make(map[string]LoopSnapshotProvider),
		dispatcherPending:  gauge("dispatcher_pending", "Calls queued per dispatcher.", "dispatcher"),
		dispatcherRunning:  gauge("dispatcher_running", "Calls executing per dispatcher (0 or 1).", "dispatcher"),
		dispatcherExecuted: gauge("dispatcher_executed_total", "Dispatcher executed call count snapshot.", "dispatcher"),
		dispatcherFailed:   gauge("dispatcher_failed_total", "Dispatcher failed call count snapshot.", "dispatcher"),
		dispatcherClosed:   gauge("dispatcher_closed", "Dispatcher closed state (1=closed, 0=open).", "dispatcher"),
		loopPending:        gauge("loop_pending", "Tasks queued per event loop.", "loop"),
		loopExecuted:       gauge("loop_executed_total", "Event loop executed task count snapshot.", "loop"),
		loopRejected:       gauge("loop_rejected_total", "Event loop rejected task count snapshot.", "loop"),
		loopClosed:         gauge("loop_closed", "Event loop closed state (1=closed, 0=open).", "loop"),
	}

	for _, vec := range []**prom.GaugeVec{
		&p.dispatcherPending, &p.dispatcherRunning, &p.dispatcherExecuted, &p.dispatcherFailed, &p.dispatcherClosed,
		&p.loopPending, &p.loopExecuted, &p.loopRejected, &p.loopClosed,
	} {
		registered, err := registerCollector(reg, *vec)
		if err != nil {
			return nil, err
		}
		*vec = registered
	}

	return p, nil
}

// AddDispatcher adds or replaces a dispatcher snapshot provider by name.
func (p *SnapshotPoller) AddDispatcher(name string, provider DispatcherSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "dispatcher")
	p.dispatchersMu.Lock()
	p.dispatchers[name] = provider
	p.dispatchersMu.Unlock()
}

// AddLoop adds or replaces an event loop snapshot provider by name.
func (p *SnapshotPoller) AddLoop(name string, provider LoopSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "loop")
	p.loopsMu.Lock()
	p.loops[name] = provider
	p.loopsMu.Unlock()
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.running {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.stateMu.Unlock()

	go p.loop(pollCtx)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.running = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.collectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.collectOnce()
		}
	}
}

func (p *SnapshotPoller) collectOnce() {
	p.dispatchersMu.RLock()
	for name, provider := range p.dispatchers {
		stats := provider.Stats()
		p.dispatcherPending.WithLabelValues(name).Set(float64(stats.Pending))
		p.dispatcherRunning.WithLabelValues(name).Set(float64(stats.Running))
		p.dispatcherExecuted.WithLabelValues(name).Set(float64(stats.Executed))
		p.dispatcherFailed.WithLabelValues(name).Set(float64(stats.Failed))
		p.dispatcherClosed.WithLabelValues(name).Set(boolGauge(stats.Closed))
	}
	p.dispatchersMu.RUnlock()

	p.loopsMu.RLock()
	for name, provider := range p.loops {
		stats := provider.Stats()
		p.loopPending.WithLabelValues(name).Set(float64(stats.Pending))
		p.loopExecuted.WithLabelValues(name).Set(float64(stats.Executed))
		p.loopRejected.WithLabelValues(name).Set(float64(stats.Rejected))
		p.loopClosed.WithLabelValues(name).Set(boolGauge(stats.Closed))
	}
	p.loopsMu.RUnlock()
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
