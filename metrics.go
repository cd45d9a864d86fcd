package optiq

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector provides Prometheus metrics for the request optimization
// lifecycle. It is safe for concurrent use; all record methods tolerate a nil
// receiver so instrumentation stays optional.
type MetricsCollector struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight *prometheus.GaugeVec

	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec
	cacheSize   *prometheus.GaugeVec

	dedupAttaches     *prometheus.CounterVec
	debounceCoalesces prometheus.Counter

	invalidationsTotal prometheus.Counter

	errorsTotal *prometheus.CounterVec
}

// NewMetricsCollector creates a metrics collector on the default registerer.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates a collector using the supplied registerer.
func NewMetricsCollectorWithRegistry(registry prometheus.Registerer) *MetricsCollector {
	return &MetricsCollector{
		requestsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "optiq_requests_total",
				Help: "Total number of optimized requests by outcome",
			},
			[]string{"endpoint", "outcome"},
		),
		requestDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "optiq_request_duration_seconds",
				Help:    "Duration of optimized requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		requestsInFlight: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "optiq_requests_in_flight",
				Help: "Number of requests currently in flight",
			},
			[]string{"endpoint"},
		),
		cacheHits: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "optiq_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"endpoint"},
		),
		cacheMisses: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "optiq_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"endpoint"},
		),
		cacheSize: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "optiq_cache_size",
				Help: "Current number of entries in cache",
			},
			[]string{"name"},
		),
		dedupAttaches: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "optiq_dedup_attaches_total",
				Help: "Total number of callers attached to an in-flight request",
			},
			[]string{"endpoint"},
		),
		debounceCoalesces: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Name: "optiq_debounce_coalesces_total",
				Help: "Total number of callers coalesced into an armed debounce window",
			},
		),
		invalidationsTotal: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Name: "optiq_cache_invalidations_total",
				Help: "Total number of cache entries removed by explicit invalidation",
			},
		),
		errorsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "optiq_errors_total",
				Help: "Total number of errors encountered by type",
			},
			[]string{"type", "endpoint"},
		),
	}
}

// RecordRequest records request count and duration for a settled request.
func (mc *MetricsCollector) RecordRequest(endpoint, outcome string, duration time.Duration) {
	if mc == nil {
		return
	}

	mc.requestsTotal.WithLabelValues(endpoint, outcome).Inc()
	mc.requestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordRequestStart increments the in-flight gauge.
func (mc *MetricsCollector) RecordRequestStart(endpoint string) {
	if mc == nil {
		return
	}

	mc.requestsInFlight.WithLabelValues(endpoint).Inc()
}

// RecordRequestEnd decrements the in-flight gauge.
func (mc *MetricsCollector) RecordRequestEnd(endpoint string) {
	if mc == nil {
		return
	}

	mc.requestsInFlight.WithLabelValues(endpoint).Dec()
}

// RecordCacheHit increments the cache hit counter.
func (mc *MetricsCollector) RecordCacheHit(endpoint string) {
	if mc == nil {
		return
	}

	mc.cacheHits.WithLabelValues(endpoint).Inc()
}

// RecordCacheMiss increments the cache miss counter.
func (mc *MetricsCollector) RecordCacheMiss(endpoint string) {
	if mc == nil {
		return
	}

	mc.cacheMisses.WithLabelValues(endpoint).Inc()
}

// RecordCacheSize sets the cache size gauge.
func (mc *MetricsCollector) RecordCacheSize(name string, size int) {
	if mc == nil {
		return
	}

	mc.cacheSize.WithLabelValues(name).Set(float64(size))
}

// RecordDedupAttach increments the deduplication attach counter.
func (mc *MetricsCollector) RecordDedupAttach(endpoint string) {
	if mc == nil {
		return
	}

	mc.dedupAttaches.WithLabelValues(endpoint).Inc()
}

// RecordDebounceCoalesce increments the debounce coalesce counter.
func (mc *MetricsCollector) RecordDebounceCoalesce() {
	if mc == nil {
		return
	}

	mc.debounceCoalesces.Inc()
}

// RecordInvalidations adds the number of entries removed by an invalidation.
func (mc *MetricsCollector) RecordInvalidations(removed int) {
	if mc == nil {
		return
	}

	mc.invalidationsTotal.Add(float64(removed))
}

// RecordError increments the error counter for an error type.
func (mc *MetricsCollector) RecordError(errorType, endpoint string) {
	if mc == nil {
		return
	}

	mc.errorsTotal.WithLabelValues(errorType, endpoint).Inc()
}
