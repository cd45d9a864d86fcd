package optiq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Transport is the collaborator boundary to the backend API. The layer does
// not care how it is implemented (net/http, RPC stub, test double), only that
// it is asynchronous-friendly and can fail or time out.
type Transport interface {
	Send(ctx context.Context, endpoint string, params map[string]any) (any, error)
}

// TransportFunc is a helper type for plain-function transports.
type TransportFunc func(ctx context.Context, endpoint string, params map[string]any) (any, error)

func (f TransportFunc) Send(ctx context.Context, endpoint string, params map[string]any) (any, error) {
	return f(ctx, endpoint, params)
}

// Middleware wraps the transport for cross-cutting concerns (auth, logging,
// tracing, etc.).
type Middleware func(ctx context.Context, endpoint string, params map[string]any, next Transport) (any, error)

const (
	// maxResponseBody bounds how much of a response body is read.
	maxResponseBody = 10 * 1024 * 1024

	// maxErrorBody bounds how much of a failure body ends up in the error message.
	maxErrorBody = 8 * 1024
)

// HTTPTransport issues GET requests with query-encoded parameters against a
// base URL and decodes JSON response bodies. Failures are mapped onto the
// optiq error taxonomy.
type HTTPTransport struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPTransport creates a transport for the given base URL using a default
// http.Client. Per-request deadlines come from the caller's context.
func NewHTTPTransport(baseURL string) *HTTPTransport {
	return &HTTPTransport{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{},
	}
}

// Send performs the HTTP call. A response with status >= 400 becomes a Server
// error carrying the status code and (truncated) body; transport-level
// failures become Network errors; context deadlines become Timeout errors via
// the client's classification.
func (t *HTTPTransport) Send(ctx context.Context, endpoint string, params map[string]any) (any, error) {
	start := time.Now()

	reqURL, err := t.buildURL(endpoint, params)
	if err != nil {
		return nil, newRequestError(ErrorTypeValidation, endpoint, "invalid endpoint", err, 0, start)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, newRequestError(ErrorTypeValidation, endpoint, "building request", err, 0, start)
	}
	req.Header.Set("Accept", "application/json")

	httpClient := t.Client
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, newRequestError(ErrorTypeTimeout, endpoint, "request timed out", err, 0, start)
		}
		return nil, newRequestError(ErrorTypeNetwork, endpoint, "request failed", err, 0, start)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, newRequestError(ErrorTypeNetwork, endpoint, "reading response", err, 0, start)
	}

	if resp.StatusCode >= 400 {
		msg := strings.TrimSpace(string(body))
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		if msg == "" {
			msg = resp.Status
		}
		return nil, newRequestError(ErrorTypeServer, endpoint, msg, nil, resp.StatusCode, start)
	}

	if len(body) == 0 {
		return nil, nil
	}

	var value any
	if err := json.Unmarshal(body, &value); err != nil {
		// Not JSON; hand the raw body back.
		return string(body), nil
	}
	return value, nil
}

func (t *HTTPTransport) buildURL(endpoint string, params map[string]any) (string, error) {
	raw := t.BaseURL + "/" + strings.TrimLeft(endpoint, "/")
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}

	if len(params) > 0 {
		query := u.Query()
		for name, v := range params {
			if v == nil {
				continue
			}
			value, err := formatParamValue(v)
			if err != nil {
				return "", fmt.Errorf("parameter %q: %w", name, err)
			}
			query.Set(name, value)
		}
		u.RawQuery = query.Encode()
	}

	return u.String(), nil
}

// Ensure both transports satisfy the interface.
var (
	_ Transport = (*HTTPTransport)(nil)
	_ Transport = (TransportFunc)(nil)
)
