package prometheus

import (
	"errors"
	"fmt"
	"time"

	"github.com/Swind/go-offload/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	DurationBuckets []float64
}

// MetricsExporter adapts core.Metrics to Prometheus collectors.
type MetricsExporter struct {
	callDurationSeconds *prom.HistogramVec
	callFailedTotal     *prom.CounterVec
	callRejectedTotal   *prom.CounterVec
	queueDepth          *prom.GaugeVec
}

var _ core.Metrics = (*MetricsExporter)(nil)

// NewMetricsExporter creates and registers Prometheus collectors for core.Metrics.
// Registering twice against the same registry reuses the existing collectors.
func NewMetricsExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*MetricsExporter, error) {
	if namespace == "" {
		namespace = "offload"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	buckets := opts.DurationBuckets
	if len(buckets) == 0 {
		buckets = prom.DefBuckets
	}

	durationVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "call_duration_seconds",
		Help:      "Offloaded call execution duration in seconds.",
		Buckets:   buckets,
	}, []string{"dispatcher", "operation"})
	failedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "call_failed_total",
		Help:      "Total number of offloaded calls that returned an error or panicked.",
	}, []string{"dispatcher", "operation"})
	rejectedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "call_rejected_total",
		Help:      "Total number of calls that never ran.",
	}, []string{"dispatcher", "reason"})
	queueDepthVec := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Calls waiting for the dispatcher worker.",
	}, []string{"dispatcher"})

	var err error
	if durationVec, err = registerCollector(reg, durationVec); err != nil {
		return nil, err
	}
	if failedVec, err = registerCollector(reg, failedVec); err != nil {
		return nil, err
	}
	if rejectedVec, err = registerCollector(reg, rejectedVec); err != nil {
		return nil, err
	}
	if queueDepthVec, err = registerCollector(reg, queueDepthVec); err != nil {
		return nil, err
	}

	return &MetricsExporter{
		callDurationSeconds: durationVec,
		callFailedTotal:     failedVec,
		callRejectedTotal:   rejectedVec,
		queueDepth:          queueDepthVec,
	}, nil
}

// RecordCallDuration records call execution duration.
func (m *MetricsExporter) RecordCallDuration(dispatcher string, operation string, duration time.Duration) {
	if m == nil {
		return
	}
	m.callDurationSeconds.WithLabelValues(normalizeLabel(dispatcher, "unknown"), normalizeLabel(operation, "unknown")).Observe(duration.Seconds())
}

// RecordCallFailure records failed calls.
func (m *MetricsExporter) RecordCallFailure(dispatcher string, operation string) {
	if m == nil {
		return
	}
	m.callFailedTotal.WithLabelValues(normalizeLabel(dispatcher, "unknown"), normalizeLabel(operation, "unknown")).Inc()
}

// RecordQueueDepth records queue depth.
func (m *MetricsExporter) RecordQueueDepth(dispatcher string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(normalizeLabel(dispatcher, "unknown")).Set(float64(depth))
}

// RecordCallRejected records calls that were refused or abandoned.
func (m *MetricsExporter) RecordCallRejected(dispatcher string, reason string) {
	if m == nil {
		return
	}
	m.callRejectedTotal.WithLabelValues(normalizeLabel(dispatcher, "unknown"), normalizeLabel(reason, "unknown")).Inc()
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
