package prometheus

import (
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestMetricsExporter_RecordMethods(t *testing.T) {
	reg := prom.NewRegistry()
	exporter, err := NewMetricsExporter("offload", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("NewMetricsExporter failed: %v", err)
	}

	exporter.RecordCallDuration("lib-a", "rust_sleep", 250*time.Millisecond)
	exporter.RecordCallFailure("lib-a", "rust_sleep")
	exporter.RecordQueueDepth("lib-a", 7)
	exporter.RecordCallRejected("lib-a", "abandoned")

	failed := testutil.ToFloat64(exporter.callFailedTotal.WithLabelValues("lib-a", "rust_sleep"))
	if failed != 1 {
		t.Fatalf("failed total = %v, want 1", failed)
	}

	queueDepth := testutil.ToFloat64(exporter.queueDepth.WithLabelValues("lib-a"))
	if queueDepth != 7 {
		t.Fatalf("queue depth = %v, want 7", queueDepth)
	}

	rejected := testutil.ToFloat64(exporter.callRejectedTotal.WithLabelValues("lib-a", "abandoned"))
	if rejected != 1 {
		t.Fatalf("rejected total = %v, want 1", rejected)
	}

	histCount, err := histogramSampleCount(exporter.callDurationSeconds.WithLabelValues("lib-a", "rust_sleep"))
	if err != nil {
		t.Fatalf("histogramSampleCount failed: %v", err)
	}
	if histCount != 1 {
		t.Fatalf("duration sample count = %d, want 1", histCount)
	}
}

func TestMetricsExporter_EmptyLabelsFallBack(t *testing.T) {
	reg := prom.NewRegistry()
	exporter, err := NewMetricsExporter("", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("NewMetricsExporter failed: %v", err)
	}

	exporter.RecordCallRejected("", "")

	got := testutil.ToFloat64(exporter.callRejectedTotal.WithLabelValues("unknown", "unknown"))
	if got != 1 {
		t.Fatalf("rejected total = %v, want 1", got)
	}
}

func TestMetricsExporter_AlreadyRegisteredReuse(t *testing.T) {
	reg := prom.NewRegistry()
	first, err := NewMetricsExporter("offload", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("first NewMetricsExporter failed: %v", err)
	}
	second, err := NewMetricsExporter("offload", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("second NewMetricsExporter failed: %v", err)
	}

	first.RecordCallFailure("lib-a", "add")
	second.RecordCallFailure("lib-a", "add")

	got := testutil.ToFloat64(first.callFailedTotal.WithLabelValues("lib-a", "add"))
	if got != 2 {
		t.Fatalf("shared failure counter = %v, want 2", got)
	}
}

func TestMetricsExporter_NilReceiver(t *testing.T) {
	var exporter *MetricsExporter

	exporter.RecordCallDuration("lib-a", "add", time.Millisecond)
	exporter.RecordCallFailure("lib-a", "add")
	exporter.RecordQueueDepth("lib-a", 1)
	exporter.RecordCallRejected("lib-a", "closed")
}

func histogramSampleCount(observer prom.Observer) (uint64, error) {
	collector, ok := observer.(prom.Collector)
	if !ok {
		return 0, nil
	}

	metricCh := make(chan prom.Metric, 1)
	collector.Collect(metricCh)
	close(metricCh)
	for metric := range metricCh {
		msg := &dto.Metric{}
		if err := metric.Write(msg); err != nil {
			return 0, err
		}
		if msg.Histogram != nil {
			return msg.Histogram.GetSampleCount(), nil
		}
	}
	return 0, nil
}
