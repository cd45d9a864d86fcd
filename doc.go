// Package optiq is a request optimization layer that sits between UI/consumer
// code and a backend HTTP API. It coordinates repeated and overlapping calls:
//
//   - Request de‑duplication (merges concurrent identical in‑flight requests)
//   - In‑memory result caching with per‑request TTL overrides
//   - Debouncing of bursty callers (one execution per quiet window, latest wins)
//   - Explicit cache invalidation by exact key or wildcard pattern
//   - Operational statistics plus optional Prometheus metrics
//
// Design goals:
//   - Small surface area – functional options configure everything
//   - One transport call per logical operation per overlap window
//   - Safe concurrent use of a single *Client instance
//   - Extensibility via user supplied middleware & pluggable cache / transport
//
// Typical usage:
//
//	client := optiq.New(
//	    optiq.WithHTTPTransport("https://api.example.com"),
//	    optiq.WithCacheTTL(5*time.Minute),
//	    optiq.WithTimeout(30*time.Second),
//	)
//	kpis, err := client.Request(ctx, "/api/kpis",
//	    optiq.WithParams(map[string]any{"from": "2026-01-01", "to": "2026-01-31"}),
//	)
//
// Expensive endpoints (an AI analysis call can run for minutes) use a longer
// per‑request TTL so the cost is not re‑incurred, while cheap KPI reads stay
// fresh with a short one:
//
//	analysis, err := client.Request(ctx, "/api/ai-analysis",
//	    optiq.WithParams(params),
//	    optiq.WithTTL(30*time.Minute),
//	    optiq.WithRequestTimeout(2*time.Minute),
//	)
//
// Bursty call sites (chat input, slider drags) go through Debounced, which
// executes only the most recent function once the window goes quiet. Every
// caller in the window observes that single execution's result:
//
//	answer, err := client.Debounced(ctx, "chat", func(ctx context.Context) (any, error) {
//	    return client.Request(ctx, "/api/chat", optiq.WithParams(map[string]any{"q": query}))
//	}, 300*time.Millisecond)
//
// The library avoids opinionated logging: provide a Logger (e.g. via
// WithSimpleLogger) + enable debug flags selectively (WithDebug /
// WithDebugConfig) for insight without noise.
package optiq
