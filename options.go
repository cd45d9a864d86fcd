package optiq

import (
	"net/http"
	"strings"
	"time"
)

// Option represents a client configuration option.
type Option func(*Client)

// WithTransport sets the backend transport.
func WithTransport(transport Transport) Option {
	return func(c *Client) {
		c.transport = transport
	}
}

// WithTransportFunc sets a plain-function transport.
func WithTransportFunc(fn TransportFunc) Option {
	return func(c *Client) {
		c.transport = fn
	}
}

// WithHTTPTransport sets an HTTP transport for the given base URL.
func WithHTTPTransport(baseURL string) Option {
	return func(c *Client) {
		c.transport = NewHTTPTransport(baseURL)
	}
}

// WithHTTPClient sets the http.Client used by an HTTP transport. Applies only
// when the configured transport is an *HTTPTransport.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if t, ok := c.transport.(*HTTPTransport); ok {
			t.Client = client
		}
	}
}

// WithMiddleware adds middleware around the transport.
func WithMiddleware(middleware ...Middleware) Option {
	return func(c *Client) {
		c.middleware = append(c.middleware, middleware...)
	}
}

// WithCache sets a custom cache implementation.
func WithCache(cache Cache) Option {
	return func(c *Client) {
		c.cache = cache
	}
}

// WithCacheTTL sets the default TTL for cached results. Per-request overrides
// come via WithTTL.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) {
		c.cacheTTL = ttl
	}
}

// WithMaxCacheEntries bounds the default in-memory cache. Applies only when
// the configured cache is an *InMemoryCache.
func WithMaxCacheEntries(n int) Option {
	return func(c *Client) {
		if mem, ok := c.cache.(*InMemoryCache); ok {
			mem.maxEntries = n
		}
	}
}

// WithStaleWindow retains expired entries for the given grace period so a
// failed refresh can fall back to them (see WithStaleFallback). Applies only
// when the configured cache is an *InMemoryCache.
func WithStaleWindow(d time.Duration) Option {
	return func(c *Client) {
		if mem, ok := c.cache.(*InMemoryCache); ok {
			mem.staleWindow = d
		}
	}
}

// WithTimeout sets the default per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithDebounceDelay sets the default debounce window used when Debounced is
// called with a non-positive delay.
func WithDebounceDelay(d time.Duration) Option {
	return func(c *Client) {
		c.debounceDelay = d
	}
}

// WithMetrics enables Prometheus metrics on the default registerer.
func WithMetrics() Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector sets a custom metrics collector.
func WithMetricsCollector(mc *MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = mc
	}
}

// WithLogger sets a custom logger for debug output.
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithDebug enables debug logging with default configuration.
func WithDebug() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
	}
}

// WithDebugConfig sets custom debug configuration.
func WithDebugConfig(config *DebugConfig) Option {
	return func(c *Client) {
		c.debug = config
	}
}

// WithSimpleLogger enables debug logging with a simple console logger.
func WithSimpleLogger() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
		c.logger = NewSimpleLogger()
	}
}

// RequestOption configures a single optimized request.
type RequestOption func(*requestOptions)

type requestOptions struct {
	params        map[string]any
	skipCache     bool
	ttl           time.Duration
	timeout       time.Duration
	staleFallback bool
}

// WithParams sets the request's parameter mapping.
func WithParams(params map[string]any) RequestOption {
	return func(ro *requestOptions) {
		ro.params = params
	}
}

// WithParam sets a single request parameter.
func WithParam(name string, value any) RequestOption {
	return func(ro *requestOptions) {
		if ro.params == nil {
			ro.params = make(map[string]any)
		}
		ro.params[name] = value
	}
}

// WithSkipCache bypasses the cache read for this request. Deduplication still
// applies: two simultaneous forced refreshes collapse into one transport call.
func WithSkipCache() RequestOption {
	return func(ro *requestOptions) {
		ro.skipCache = true
	}
}

// WithTTL overrides the cache TTL for this request's result. Expensive
// endpoints use a longer TTL to avoid re-incurring their cost.
func WithTTL(ttl time.Duration) RequestOption {
	return func(ro *requestOptions) {
		ro.ttl = ttl
	}
}

// WithRequestTimeout overrides the timeout for this request.
func WithRequestTimeout(d time.Duration) RequestOption {
	return func(ro *requestOptions) {
		ro.timeout = d
	}
}

// WithStaleFallback returns a retained expired cache entry when the refresh
// fails, instead of the error. Requires a cache with a stale window.
func WithStaleFallback() RequestOption {
	return func(ro *requestOptions) {
		ro.staleFallback = true
	}
}

// ValidateConfiguration performs a best-effort check of the client setup.
func (c *Client) ValidateConfiguration() error {
	var problems []string

	if c.transport == nil {
		problems = append(problems, "transport is required (use WithTransport or WithHTTPTransport)")
	}
	if c.cache == nil {
		problems = append(problems, "cache must not be nil")
	}
	if c.cacheTTL <= 0 {
		problems = append(problems, "cache TTL must be positive")
	}
	if c.timeout < 0 {
		problems = append(problems, "timeout must not be negative")
	}
	if c.debounceDelay <= 0 {
		problems = append(problems, "debounce delay must be positive")
	}
	if c.debug != nil && c.debug.Enabled && c.logger == nil {
		problems = append(problems, "debug logging requires a logger (use WithLogger or WithSimpleLogger)")
	}

	if len(problems) > 0 {
		return &RequestError{
			Type:    ErrorTypeValidation,
			Message: "invalid configuration: " + strings.Join(problems, "; "),
		}
	}
	return nil
}

// IsValid reports whether the client configuration passed validation.
func (c *Client) IsValid() bool {
	return c.validationError == nil
}

// ValidationError returns the configuration error recorded by New, if any.
func (c *Client) ValidationError() error {
	return c.validationError
}
