package optiq

import (
	"math"
	"sync/atomic"
)

// Stats is a read-only snapshot of the layer's operational counters. Counters
// increase monotonically until Reset.
type Stats struct {
	Hits              uint64  `json:"hits"`
	Misses            uint64  `json:"misses"`
	DedupAttaches     uint64  `json:"dedup_attaches"`
	DebounceCoalesces uint64  `json:"debounce_coalesces"`
	Errors            uint64  `json:"errors"`
	Evictions         uint64  `json:"evictions"`
	CacheSize         int     `json:"cache_size"`
	TotalRequests     uint64  `json:"total_requests"`
	CallsSaved        uint64  `json:"calls_saved"`
	HitRatePercent    float64 `json:"hit_rate_percent"`
}

// statsCollector accumulates counters with atomics so the hot path never
// blocks on a shared lock.
type statsCollector struct {
	hits              atomic.Uint64
	misses            atomic.Uint64
	dedupAttaches     atomic.Uint64
	debounceCoalesces atomic.Uint64
	errors            atomic.Uint64
}

func newStatsCollector() *statsCollector {
	return &statsCollector{}
}

func (s *statsCollector) recordHit()              { s.hits.Add(1) }
func (s *statsCollector) recordMiss()             { s.misses.Add(1) }
func (s *statsCollector) recordDedupAttach()      { s.dedupAttaches.Add(1) }
func (s *statsCollector) recordDebounceCoalesce() { s.debounceCoalesces.Add(1) }
func (s *statsCollector) recordError()            { s.errors.Add(1) }

func (s *statsCollector) reset() {
	s.hits.Store(0)
	s.misses.Store(0)
	s.dedupAttaches.Store(0)
	s.debounceCoalesces.Store(0)
	s.errors.Store(0)
}

// snapshot builds a Stats value. Cache size and evictions are supplied by the
// caller since they live in the cache, not the counters.
func (s *statsCollector) snapshot(cacheSize int, evictions uint64) Stats {
	hits := s.hits.Load()
	misses := s.misses.Load()
	dedup := s.dedupAttaches.Load()
	coalesces := s.debounceCoalesces.Load()

	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = math.Round(float64(hits)/float64(total)*100*100) / 100
	}

	return Stats{
		Hits:              hits,
		Misses:            misses,
		DedupAttaches:     dedup,
		DebounceCoalesces: coalesces,
		Errors:            s.errors.Load(),
		Evictions:         evictions,
		CacheSize:         cacheSize,
		TotalRequests:     total,
		CallsSaved:        hits + dedup + coalesces,
		HitRatePercent:    hitRate,
	}
}
