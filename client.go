package optiq

import (
	"context"
	"errors"
	"time"
)

// Client is the request optimization layer. It canonicalizes requests into
// keys, merges concurrent identical calls into one transport execution,
// caches successful results with per-request TTLs, and coalesces bursty
// callers through per-key debounce windows. It is safe for concurrent use.
type Client struct {
	transport     Transport
	middleware    []Middleware
	cache         Cache
	cacheTTL      time.Duration
	timeout       time.Duration
	debounceDelay time.Duration
	inflight      *InFlightTracker
	debounce      *Debouncer
	stats         *statsCollector
	metrics       *MetricsCollector
	debug         *DebugConfig
	logger        Logger

	validationError error
}

// New constructs a Client using the provided functional options. A best
// effort validation is performed; call IsValid / ValidationError for errors.
func New(options ...Option) *Client {
	client := &Client{
		cache:         NewInMemoryCache(),
		cacheTTL:      5 * time.Minute,
		timeout:       30 * time.Second,
		debounceDelay: 300 * time.Millisecond,
		inflight:      NewInFlightTracker(),
		debounce:      NewDebouncer(),
		stats:         newStatsCollector(),
		debug:         DefaultDebugConfig(),
	}

	for _, option := range options {
		option(client)
	}

	client.debounce.coalesceHook = func(key string) {
		client.stats.recordDebounceCoalesce()
		client.metrics.RecordDebounceCoalesce()
		if client.debugEnabled() && client.debug.LogDebounce {
			client.logger.Debug("Debounce coalesce", "key", key)
		}
	}

	if err := client.ValidateConfiguration(); err != nil {
		client.validationError = err
	}

	return client
}

// Request performs an optimized request against the backend:
//
//  1. The endpoint and params are canonicalized into a key.
//  2. Unless skipCache is set, a valid cache entry is returned immediately.
//  3. If an identical request is already in flight, the caller attaches to
//     it and observes the same outcome rather than issuing a new call.
//  4. Otherwise the transport call runs under the request timeout; the
//     in-flight entry is settled before the cache is written, and only
//     successful results are cached.
//
// skipCache bypasses the cache read, not in-flight coalescing: simultaneous
// forced refreshes still collapse into one transport call.
func (c *Client) Request(ctx context.Context, endpoint string, opts ...RequestOption) (any, error) {
	start := time.Now()

	if c.transport == nil {
		return nil, ErrNoTransport
	}

	ro := requestOptions{ttl: c.cacheTTL, timeout: c.timeout}
	for _, opt := range opts {
		opt(&ro)
	}

	var requestID string
	if c.debugEnabled() && c.debug.RequestIDGen != nil {
		requestID = c.debug.RequestIDGen()
	}

	key, err := BuildKey(endpoint, ro.params)
	if err != nil {
		c.stats.recordError()
		c.metrics.RecordError(ErrorTypeValidation, endpoint)
		return nil, err
	}

	if c.debugEnabled() && c.debug.LogRequests {
		c.logger.Debug("Starting request", "requestID", requestID, "endpoint", endpoint, "key", key, "skipCache", ro.skipCache)
	}

	c.metrics.RecordRequestStart(endpoint)
	defer c.metrics.RecordRequestEnd(endpoint)

	if !ro.skipCache {
		if value, ok := c.cache.Get(key); ok {
			c.stats.recordHit()
			c.metrics.RecordCacheHit(endpoint)
			c.metrics.RecordRequest(endpoint, "hit", time.Since(start))
			if c.debugEnabled() && c.debug.LogCache {
				c.logger.Debug("Cache hit", "requestID", requestID, "key", key)
			}
			return value, nil
		}
		c.stats.recordMiss()
		c.metrics.RecordCacheMiss(endpoint)
		if c.debugEnabled() && c.debug.LogCache {
			c.logger.Debug("Cache miss", "requestID", requestID, "key", key)
		}
	}

	entry, owner := c.inflight.GetOrCreateEntry(key)
	if !owner {
		c.stats.recordDedupAttach()
		c.metrics.RecordDedupAttach(endpoint)
		if c.debugEnabled() && c.debug.LogDedup {
			c.logger.Debug("Attached to in-flight request", "requestID", requestID, "key", key)
		}
		value, err := entry.Wait(ctx)
		outcome := "dedup"
		if err != nil {
			outcome = "error"
		}
		c.metrics.RecordRequest(endpoint, outcome, time.Since(start))
		return value, err
	}

	value, err := c.send(ctx, endpoint, ro.params, ro.timeout, start)

	// The in-flight entry is removed before the cache is touched so the next
	// call for this key immediately re-runs cache-miss logic.
	c.inflight.Complete(key, value, err)

	if err != nil {
		c.stats.recordError()
		c.metrics.RecordError(errorType(err), endpoint)
		c.metrics.RecordRequest(endpoint, "error", time.Since(start))
		if c.debugEnabled() && c.debug.LogRequests {
			c.logger.Warn("Request failed", "requestID", requestID, "endpoint", endpoint, "error", err)
		}
		if ro.staleFallback {
			if stale, ok := c.staleValue(key); ok {
				if c.debugEnabled() && c.debug.LogCache {
					c.logger.Debug("Using stale cache fallback", "requestID", requestID, "key", key)
				}
				return stale, nil
			}
		}
		return nil, err
	}

	if !ro.skipCache {
		c.cache.Set(key, value, ro.ttl)
		c.metrics.RecordCacheSize("default", c.cache.Len())
		if c.debugEnabled() && c.debug.LogCache {
			c.logger.Debug("Result cached", "requestID", requestID, "key", key, "ttl", ro.ttl)
		}
	}

	c.metrics.RecordRequest(endpoint, "success", time.Since(start))
	return value, nil
}

// Debounced records fn as the latest invocation for key and blocks until the
// key's quiet window elapses and its single execution settles. Every caller
// sharing the window receives the same outcome. Debouncing decides whether
// and when a call happens at all; the call it lets through still goes through
// Request-level deduplication when fn uses Request.
func (c *Client) Debounced(ctx context.Context, key string, fn DebounceFunc, delay time.Duration) (any, error) {
	if delay <= 0 {
		delay = c.debounceDelay
	}
	return c.debounce.Do(ctx, key, fn, delay)
}

// InvalidateCache removes every cache entry whose key matches pattern (exact
// string or glob wildcard) and returns the number removed. In-flight and
// debounce state is untouched; a request already running will finish and
// repopulate the cache.
func (c *Client) InvalidateCache(pattern string) int {
	removed := c.cache.Invalidate(pattern)
	c.metrics.RecordInvalidations(removed)
	c.metrics.RecordCacheSize("default", c.cache.Len())
	if c.debugEnabled() && c.debug.LogCache {
		c.logger.Debug("Cache invalidated", "pattern", pattern, "removed", removed)
	}
	return removed
}

// Stats returns a read-only snapshot of the operational counters.
func (c *Client) Stats() Stats {
	var evictions uint64
	if ec, ok := c.cache.(evictionCounter); ok {
		evictions = ec.Evictions()
	}
	return c.stats.snapshot(c.cache.Len(), evictions)
}

// Reset clears the cache, the in-flight tracker and the debouncer, and zeroes
// all counters. Pending waiters fail with ErrReset. Intended for test
// isolation and explicit hard-refresh actions.
func (c *Client) Reset() {
	c.cache.Clear()
	c.inflight.Clear()
	c.debounce.Clear()
	c.stats.reset()
	c.metrics.RecordCacheSize("default", 0)
}

// send runs the transport call (through any middleware) under the request
// timeout and classifies failures.
func (c *Client) send(ctx context.Context, endpoint string, params map[string]any, timeout time.Duration, start time.Time) (any, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	value, err := c.executeTransport(ctx, endpoint, params)
	if err != nil {
		return nil, c.classifyError(err, endpoint, start)
	}
	return value, nil
}

// executeTransport applies the middleware chain around the transport.
func (c *Client) executeTransport(ctx context.Context, endpoint string, params map[string]any) (any, error) {
	next := c.transport
	for i := len(c.middleware) - 1; i >= 0; i-- {
		mw := c.middleware[i]
		inner := next
		next = TransportFunc(func(ctx context.Context, endpoint string, params map[string]any) (any, error) {
			return mw(ctx, endpoint, params, inner)
		})
	}
	return next.Send(ctx, endpoint, params)
}

// classifyError maps transport failures onto the error taxonomy. Errors that
// already carry a classification pass through; caller cancellation is not
// re-wrapped.
func (c *Client) classifyError(err error, endpoint string, start time.Time) error {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return err
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return newRequestError(ErrorTypeTimeout, endpoint, "request timed out", err, 0, start)
	case errors.Is(err, context.Canceled):
		return err
	default:
		return newRequestError(ErrorTypeNetwork, endpoint, "request failed", err, 0, start)
	}
}

func (c *Client) staleValue(key string) (any, bool) {
	if sr, ok := c.cache.(staleReader); ok {
		return sr.GetStale(key)
	}
	return nil, false
}

func (c *Client) debugEnabled() bool {
	return c.debug != nil && c.debug.Enabled && c.logger != nil
}

// errorType extracts the taxonomy type for metrics labels.
func errorType(err error) string {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Type
	}
	if errors.Is(err, context.Canceled) {
		return "Canceled"
	}
	return ErrorTypeNetwork
}
