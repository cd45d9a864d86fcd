package optiq

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

func TestNewMetricsCollector(t *testing.T) {
	registry := prometheus.NewRegistry()
	collector := NewMetricsCollectorWithRegistry(registry)

	if collector == nil {
		t.Fatal("NewMetricsCollectorWithRegistry() returned nil")
	}
	if collector.requestsTotal == nil {
		t.Error("requestsTotal metric not initialized")
	}
	if collector.requestDuration == nil {
		t.Error("requestDuration metric not initialized")
	}
	if collector.requestsInFlight == nil {
		t.Error("requestsInFlight metric not initialized")
	}
	if collector.cacheHits == nil {
		t.Error("cacheHits metric not initialized")
	}
	if collector.cacheMisses == nil {
		t.Error("cacheMisses metric not initialized")
	}
	if collector.dedupAttaches == nil {
		t.Error("dedupAttaches metric not initialized")
	}
	if collector.errorsTotal == nil {
		t.Error("errorsTotal metric not initialized")
	}
}

func TestMetricsNilCollectorSafe(t *testing.T) {
	var collector *MetricsCollector

	// All record methods must tolerate a nil receiver.
	collector.RecordRequest("/api/kpis", "hit", time.Millisecond)
	collector.RecordRequestStart("/api/kpis")
	collector.RecordRequestEnd("/api/kpis")
	collector.RecordCacheHit("/api/kpis")
	collector.RecordCacheMiss("/api/kpis")
	collector.RecordCacheSize("default", 1)
	collector.RecordDedupAttach("/api/kpis")
	collector.RecordDebounceCoalesce()
	collector.RecordInvalidations(3)
	collector.RecordError(ErrorTypeNetwork, "/api/kpis")
}

func TestMetricsRecordValues(t *testing.T) {
	registry := prometheus.NewRegistry()
	collector := NewMetricsCollectorWithRegistry(registry)

	collector.RecordCacheHit("/api/kpis")
	collector.RecordCacheHit("/api/kpis")
	collector.RecordCacheMiss("/api/kpis")
	collector.RecordDedupAttach("/api/kpis")
	collector.RecordDebounceCoalesce()
	collector.RecordInvalidations(4)
	collector.RecordError(ErrorTypeTimeout, "/api/ai-analysis")
	collector.RecordCacheSize("default", 7)

	if got := testutil.ToFloat64(collector.cacheHits.WithLabelValues("/api/kpis")); got != 2 {
		t.Errorf("Expected 2 cache hits, got %v", got)
	}
	if got := testutil.ToFloat64(collector.cacheMisses.WithLabelValues("/api/kpis")); got != 1 {
		t.Errorf("Expected 1 cache miss, got %v", got)
	}
	if got := testutil.ToFloat64(collector.dedupAttaches.WithLabelValues("/api/kpis")); got != 1 {
		t.Errorf("Expected 1 dedup attach, got %v", got)
	}
	if got := testutil.ToFloat64(collector.debounceCoalesces); got != 1 {
		t.Errorf("Expected 1 debounce coalesce, got %v", got)
	}
	if got := testutil.ToFloat64(collector.invalidationsTotal); got != 4 {
		t.Errorf("Expected 4 invalidations, got %v", got)
	}
	if got := testutil.ToFloat64(collector.errorsTotal.WithLabelValues(ErrorTypeTimeout, "/api/ai-analysis")); got != 1 {
		t.Errorf("Expected 1 timeout error, got %v", got)
	}
	if got := testutil.ToFloat64(collector.cacheSize.WithLabelValues("default")); got != 7 {
		t.Errorf("Expected cache size 7, got %v", got)
	}
}

func TestMetricsInFlightGauge(t *testing.T) {
	registry := prometheus.NewRegistry()
	collector := NewMetricsCollectorWithRegistry(registry)

	collector.RecordRequestStart("/api/kpis")
	collector.RecordRequestStart("/api/kpis")
	if got := testutil.ToFloat64(collector.requestsInFlight.WithLabelValues("/api/kpis")); got != 2 {
		t.Errorf("Expected 2 in flight, got %v", got)
	}

	collector.RecordRequestEnd("/api/kpis")
	if got := testutil.ToFloat64(collector.requestsInFlight.WithLabelValues("/api/kpis")); got != 1 {
		t.Errorf("Expected 1 in flight after end, got %v", got)
	}
}

func TestMetricsThroughClient(t *testing.T) {
	registry := prometheus.NewRegistry()
	collector := NewMetricsCollectorWithRegistry(registry)

	var calls atomic.Int32
	client := New(
		WithTransportFunc(countingTransport(&calls, func(ctx context.Context, endpoint string, params map[string]any) (any, error) {
			return "data", nil
		})),
		WithMetricsCollector(collector),
	)

	ctx := context.Background()
	_, _ = client.Request(ctx, "/api/kpis")
	_, _ = client.Request(ctx, "/api/kpis")

	if got := testutil.ToFloat64(collector.cacheMisses.WithLabelValues("/api/kpis")); got != 1 {
		t.Errorf("Expected 1 recorded miss, got %v", got)
	}
	if got := testutil.ToFloat64(collector.cacheHits.WithLabelValues("/api/kpis")); got != 1 {
		t.Errorf("Expected 1 recorded hit, got %v", got)
	}
	if got := testutil.ToFloat64(collector.requestsTotal.WithLabelValues("/api/kpis", "success")); got != 1 {
		t.Errorf("Expected 1 success outcome, got %v", got)
	}
	if got := testutil.ToFloat64(collector.requestsTotal.WithLabelValues("/api/kpis", "hit")); got != 1 {
		t.Errorf("Expected 1 hit outcome, got %v", got)
	}
}
