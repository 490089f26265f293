package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNewEngineMetrics(t *testing.T) {
	m := newEngineMetricsWithRegisterer(prometheus.NewRegistry())

	if m == nil {
		t.Fatal("newEngineMetricsWithRegisterer should not return nil")
	}
	if m.ordersCreated == nil {
		t.Error("ordersCreated counter should not be nil")
	}
	if m.qrValidations == nil {
		t.Error("qrValidations counter vec should not be nil")
	}
	if m.outboxBacklog == nil {
		t.Error("outboxBacklog gauge should not be nil")
	}
	if m.httpDuration == nil {
		t.Error("httpDuration histogram vec should not be nil")
	}
}

func TestEngineMetrics_Counters(t *testing.T) {
	m := newEngineMetricsWithRegisterer(prometheus.NewRegistry())

	m.RecordOrderCreated()
	m.RecordOrderCreated()
	m.RecordOrderCancelled()
	m.RecordSoldOutReject()

	if got := counterValue(t, m.ordersCreated); got != 2 {
		t.Errorf("ordersCreated = %v, want 2", got)
	}
	if got := counterValue(t, m.ordersCancelled); got != 1 {
		t.Errorf("ordersCancelled = %v, want 1", got)
	}
	if got := counterValue(t, m.soldOutRejects); got != 1 {
		t.Errorf("soldOutRejects = %v, want 1", got)
	}
}

func TestEngineMetrics_OutboxGauges(t *testing.T) {
	m := newEngineMetricsWithRegisterer(prometheus.NewRegistry())

	m.SetOutboxBacklog(7)
	m.SetOutboxOldestAge(90 * time.Second)

	if got := gaugeValue(t, m.outboxBacklog); got != 7 {
		t.Errorf("outboxBacklog = %v, want 7", got)
	}
	if got := gaugeValue(t, m.outboxOldestAge); got != 90 {
		t.Errorf("outboxOldestAge = %v, want 90", got)
	}
}

func TestEngineMetrics_RegisterIsIdempotent(t *testing.T) {
	registry := prometheus.NewRegistry()
	first := newEngineMetricsWithRegisterer(registry)
	second := newEngineMetricsWithRegisterer(registry)

	first.RecordQRValidation("collected")
	second.RecordQRValidation("collected")

	counter, err := second.qrValidations.GetMetricWithLabelValues("collected")
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues() error = %v", err)
	}
	if got := counterValue(t, counter); got != 2 {
		t.Errorf("qrValidations{result=collected} = %v, want 2 (shared collector)", got)
	}
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var out dto.Metric
	if err := c.Write(&out); err != nil {
		t.Fatalf("write counter: %v", err)
	}
	return out.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var out dto.Metric
	if err := g.Write(&out); err != nil {
		t.Fatalf("write gauge: %v", err)
	}
	return out.GetGauge().GetValue()
}
