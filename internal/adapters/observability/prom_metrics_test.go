package observability

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap/zaptest"

	"github.com/ghalamif/wattflow/internal/ports"
)

func TestPromObsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs := NewPromObs(zaptest.NewLogger(t), reg)

	obs.IncCounter(ports.MetricSamplesDelivered, 5)
	if got := testutil.ToFloat64(obs.counters[ports.MetricSamplesDelivered]); got != 5 {
		t.Fatalf("expected delivered counter 5, got %f", got)
	}

	obs.IncCounter(ports.MetricOutputDropped, 2)
	if got := testutil.ToFloat64(obs.counters[ports.MetricOutputDropped]); got != 2 {
		t.Fatalf("expected drop counter 2, got %f", got)
	}

	obs.IncCounter("unknown_metric", 1)

	obs.SetGauge(ports.MetricOutputQueueLen, 42)
	if got := testutil.ToFloat64(obs.gauges[ports.MetricOutputQueueLen]); got != 42 {
		t.Fatalf("expected queue gauge 42, got %f", got)
	}

	obs.ObserveLatency(ports.MetricSinkWrite, 0.5)
	hCollector := obs.histos[ports.MetricSinkWrite].(prometheus.Collector)
	if samples := testutil.CollectAndCount(hCollector); samples != 1 {
		t.Fatalf("expected sink latency histogram to record 1 sample, got %d", samples)
	}

	obs.RecordSensorError("msr/0/package", errors.New("read failed"))
	obs.RecordSensorError("msr/0/package", nil)
	if got := testutil.ToFloat64(obs.sensorErrors.WithLabelValues("msr/0/package")); got != 2 {
		t.Fatalf("expected sensor error counter 2, got %f", got)
	}
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	if _, err := NewLogger("chatty", false); err == nil {
		t.Fatalf("expected error for unknown level")
	}
	logger, err := NewLogger("debug", true)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	_ = logger.Sync()
}
