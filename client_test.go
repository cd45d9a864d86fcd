package optiq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// countingTransport returns a transport that counts calls and answers with fn.
func countingTransport(calls *atomic.Int32, fn TransportFunc) TransportFunc {
	return func(ctx context.Context, endpoint string, params map[string]any) (any, error) {
		calls.Add(1)
		return fn(ctx, endpoint, params)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("Condition not reached in time")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestRequestDeduplication(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	client := New(WithTransportFunc(countingTransport(&calls, func(ctx context.Context, endpoint string, params map[string]any) (any, error) {
		<-release
		return "data", nil
	})))

	params := map[string]any{"from": "2026-01-01"}

	var wg sync.WaitGroup
	results := make([]any, 5)
	errs := make([]error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = client.Request(context.Background(), "/api/kpis", WithParams(params))
		}(i)
	}

	// Wait until the four duplicates have attached, then let the owner finish.
	waitFor(t, func() bool { return client.Stats().DedupAttaches == 4 })
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Errorf("Expected exactly one transport call, got %d", got)
	}
	for i := range results {
		if errs[i] != nil {
			t.Errorf("Request %d failed: %v", i, errs[i])
		}
		if results[i] != "data" {
			t.Errorf("Request %d should receive the shared result, got %v", i, results[i])
		}
	}
}

func TestRequestCacheHit(t *testing.T) {
	var calls atomic.Int32
	client := New(WithTransportFunc(countingTransport(&calls, func(ctx context.Context, endpoint string, params map[string]any) (any, error) {
		return "data", nil
	})))

	ctx := context.Background()
	if _, err := client.Request(ctx, "/api/kpis"); err != nil {
		t.Fatalf("First request failed: %v", err)
	}

	value, err := client.Request(ctx, "/api/kpis")
	if err != nil {
		t.Fatalf("Second request failed: %v", err)
	}
	if value != "data" {
		t.Errorf("Expected cached 'data', got %v", value)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("Cache hit should issue zero transport calls, total %d", got)
	}

	stats := client.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("Expected 1 hit / 1 miss, got %d / %d", stats.Hits, stats.Misses)
	}
}

func TestRequestCacheExpiry(t *testing.T) {
	var calls atomic.Int32
	client := New(WithTransportFunc(countingTransport(&calls, func(ctx context.Context, endpoint string, params map[string]any) (any, error) {
		return "data", nil
	})))

	ctx := context.Background()
	if _, err := client.Request(ctx, "/api/kpis", WithTTL(10*time.Millisecond)); err != nil {
		t.Fatalf("First request failed: %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	if _, err := client.Request(ctx, "/api/kpis"); err != nil {
		t.Fatalf("Second request failed: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("Expired entry should trigger a new transport call, got %d calls", got)
	}
}

func TestRequestSkipCache(t *testing.T) {
	var calls atomic.Int32
	client := New(WithTransportFunc(countingTransport(&calls, func(ctx context.Context, endpoint string, params map[string]any) (any, error) {
		return fmt.Sprintf("data-%d", calls.Load()), nil
	})))

	ctx := context.Background()
	v1, err := client.Request(ctx, "/api/kpis")
	if err != nil {
		t.Fatalf("Priming request failed: %v", err)
	}

	// skipCache bypasses the cache read even with a valid entry present.
	v2, err := client.Request(ctx, "/api/kpis", WithSkipCache())
	if err != nil {
		t.Fatalf("Forced refresh failed: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("skipCache should always reach the transport, got %d calls", calls.Load())
	}
	if v1 == v2 {
		t.Error("Forced refresh should return the fresh transport result")
	}

	// skipCache does not overwrite the cached value.
	v3, err := client.Request(ctx, "/api/kpis")
	if err != nil {
		t.Fatalf("Follow-up request failed: %v", err)
	}
	if v3 != v1 {
		t.Errorf("Cache should still hold the original value, got %v", v3)
	}
}

func TestRequestSkipCacheStillDedups(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	client := New(WithTransportFunc(countingTransport(&calls, func(ctx context.Context, endpoint string, params map[string]any) (any, error) {
		<-release
		return "fresh", nil
	})))

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := client.Request(context.Background(), "/api/kpis", WithSkipCache()); err != nil {
				t.Errorf("skipCache request failed: %v", err)
			}
		}()
	}

	waitFor(t, func() bool { return client.Stats().DedupAttaches == 1 })
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Errorf("Two simultaneous skipCache calls should dedup to one transport call, got %d", got)
	}
}

func TestInvalidateCachePattern(t *testing.T) {
	var calls atomic.Int32
	client := New(WithTransportFunc(countingTransport(&calls, func(ctx context.Context, endpoint string, params map[string]any) (any, error) {
		return endpoint, nil
	})))

	ctx := context.Background()
	_, _ = client.Request(ctx, "/api/kpis", WithParam("range", "7d"))
	_, _ = client.Request(ctx, "/api/summary")

	removed := client.InvalidateCache("/api/kpis*")
	if removed != 1 {
		t.Errorf("Expected 1 entry invalidated, got %d", removed)
	}

	before := calls.Load()
	_, _ = client.Request(ctx, "/api/summary")
	if calls.Load() != before {
		t.Error("Unrelated key should remain retrievable from cache")
	}
	_, _ = client.Request(ctx, "/api/kpis", WithParam("range", "7d"))
	if calls.Load() != before+1 {
		t.Error("Invalidated key should trigger a fresh transport call")
	}
}

func TestRequestErrorPropagation(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	wantErr := errors.New("backend exploded")
	client := New(WithTransportFunc(countingTransport(&calls, func(ctx context.Context, endpoint string, params map[string]any) (any, error) {
		<-release
		return nil, wantErr
	})))

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = client.Request(context.Background(), "/api/ai-analysis")
		}(i)
	}

	waitFor(t, func() bool { return client.Stats().DedupAttaches == 2 })
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("Failing request should still dedup, got %d calls", calls.Load())
	}
	for i, err := range errs {
		if err == nil {
			t.Fatalf("Caller %d should have received the error", i)
		}
		if !errors.Is(err, wantErr) {
			t.Errorf("Caller %d should receive the same underlying error, got %v", i, err)
		}
		if !IsNetworkError(err) {
			t.Errorf("Plain transport failure should classify as Network, got %v", err)
		}
	}

	stats := client.Stats()
	if stats.Errors != 1 {
		t.Errorf("Error should be recorded once per settlement, got %d", stats.Errors)
	}

	// The cache was never populated; the next call reaches the transport.
	before := calls.Load()
	_, _ = client.Request(context.Background(), "/api/ai-analysis")
	if calls.Load() != before+1 {
		t.Error("Cache must remain unset after a failed request")
	}
}

func TestRequestTimeout(t *testing.T) {
	client := New(WithTransportFunc(func(ctx context.Context, endpoint string, params map[string]any) (any, error) {
		select {
		case <-time.After(5 * time.Second):
			return "too late", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}))

	start := time.Now()
	_, err := client.Request(context.Background(), "/api/ai-analysis", WithRequestTimeout(20*time.Millisecond))
	if err == nil {
		t.Fatal("Expected timeout error")
	}
	if !IsTimeout(err) {
		t.Errorf("Expected Timeout classification, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Timeout should abort the call promptly")
	}

	// The registry entry is gone; an immediate retry starts fresh.
	if client.inflight.Len() != 0 {
		t.Error("Timed-out entry should be removed from the registry")
	}
}

func TestRequestValidationFailsFast(t *testing.T) {
	var calls atomic.Int32
	client := New(WithTransportFunc(countingTransport(&calls, func(ctx context.Context, endpoint string, params map[string]any) (any, error) {
		return nil, nil
	})))

	_, err := client.Request(context.Background(), "/api/kpis", WithParam("bad", struct{}{}))
	if !IsValidationError(err) {
		t.Fatalf("Expected Validation error, got %v", err)
	}
	if calls.Load() != 0 {
		t.Error("Validation failure must happen before any network activity")
	}
	if client.Stats().Errors != 1 {
		t.Error("Validation failure should be counted as an error")
	}
}

func TestRequestNoTransport(t *testing.T) {
	client := New()

	if client.IsValid() {
		t.Error("Client without transport should fail validation")
	}
	_, err := client.Request(context.Background(), "/api/kpis")
	if !errors.Is(err, ErrNoTransport) {
		t.Errorf("Expected ErrNoTransport, got %v", err)
	}
}

func TestReset(t *testing.T) {
	var calls atomic.Int32
	client := New(WithTransportFunc(countingTransport(&calls, func(ctx context.Context, endpoint string, params map[string]any) (any, error) {
		return "data", nil
	})))

	ctx := context.Background()
	_, _ = client.Request(ctx, "/api/kpis")
	_, _ = client.Request(ctx, "/api/kpis")

	client.Reset()

	stats := client.Stats()
	if stats.Hits != 0 || stats.Misses != 0 || stats.DedupAttaches != 0 ||
		stats.DebounceCoalesces != 0 || stats.Errors != 0 || stats.CacheSize != 0 {
		t.Errorf("Reset should zero all counters, got %+v", stats)
	}

	before := calls.Load()
	_, _ = client.Request(ctx, "/api/kpis")
	if calls.Load() != before+1 {
		t.Error("Previously cached key should miss after Reset")
	}
	if client.Stats().Misses != 1 {
		t.Error("Post-reset request should record a fresh miss")
	}
}

func TestDebouncedThroughClient(t *testing.T) {
	var calls atomic.Int32
	client := New(WithTransportFunc(countingTransport(&calls, func(ctx context.Context, endpoint string, params map[string]any) (any, error) {
		return "answer", nil
	})))

	fn := func(ctx context.Context) (any, error) {
		return client.Request(ctx, "/api/chat", WithSkipCache())
	}

	var wg sync.WaitGroup
	results := make([]any, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], _ = client.Debounced(context.Background(), "chat", fn, 80*time.Millisecond)
	}()

	waitFor(t, func() bool { return client.debounce.Len() == 1 })

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1], _ = client.Debounced(context.Background(), "chat", fn, 80*time.Millisecond)
	}()
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("Burst should coalesce to one execution, got %d transport calls", calls.Load())
	}
	for i, r := range results {
		if r != "answer" {
			t.Errorf("Caller %d should receive the shared result, got %v", i, r)
		}
	}
	if client.Stats().DebounceCoalesces != 1 {
		t.Errorf("Expected 1 debounce coalesce, got %d", client.Stats().DebounceCoalesces)
	}
}

func TestStaleFallback(t *testing.T) {
	var fail atomic.Bool
	client := New(
		WithTransportFunc(func(ctx context.Context, endpoint string, params map[string]any) (any, error) {
			if fail.Load() {
				return nil, errors.New("backend down")
			}
			return "fresh", nil
		}),
		WithStaleWindow(time.Hour),
	)

	ctx := context.Background()
	if _, err := client.Request(ctx, "/api/kpis", WithTTL(10*time.Millisecond)); err != nil {
		t.Fatalf("Priming request failed: %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	fail.Store(true)

	// Without the option the error propagates.
	if _, err := client.Request(ctx, "/api/kpis"); err == nil {
		t.Fatal("Expected refresh error without stale fallback")
	}

	value, err := client.Request(ctx, "/api/kpis", WithStaleFallback())
	if err != nil {
		t.Fatalf("Stale fallback should mask the refresh error, got %v", err)
	}
	if value != "fresh" {
		t.Errorf("Expected retained stale value, got %v", value)
	}
}

func TestMiddlewareOrder(t *testing.T) {
	var order []string
	var mu sync.Mutex
	record := func(name string) Middleware {
		return func(ctx context.Context, endpoint string, params map[string]any, next Transport) (any, error) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return next.Send(ctx, endpoint, params)
		}
	}

	client := New(
		WithTransportFunc(func(ctx context.Context, endpoint string, params map[string]any) (any, error) {
			return "ok", nil
		}),
		WithMiddleware(record("outer"), record("inner")),
	)

	if _, err := client.Request(context.Background(), "/api/kpis"); err != nil {
		t.Fatalf("Request failed: %v", err)
	}

	if len(order) != 2 || order[0] != "outer" || order[1] != "inner" {
		t.Errorf("Middleware should run in registration order, got %v", order)
	}
}

func TestKeyCanonicalizationEndToEnd(t *testing.T) {
	var calls atomic.Int32
	client := New(WithTransportFunc(countingTransport(&calls, func(ctx context.Context, endpoint string, params map[string]any) (any, error) {
		return "data", nil
	})))

	ctx := context.Background()
	_, _ = client.Request(ctx, "E", WithParams(map[string]any{"a": 1, "b": 2}))
	_, _ = client.Request(ctx, "E", WithParams(map[string]any{"b": 2, "a": 1}))

	if calls.Load() != 1 {
		t.Errorf("Reordered params should hit the same cache entry, got %d calls", calls.Load())
	}
}
