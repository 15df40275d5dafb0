package forwarder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// maxDrainBytes bounds how much of a response body is read before closing.
const maxDrainBytes = 64 << 10

// Client posts JSON payloads to the forwarding endpoint.
type Client struct {
	client *http.Client
	logger *slog.Logger
}

// New creates an instrumented HTTP client with the given request timeout.
func New(timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger.With("component", "forward_client"),
	}
}

// PostJSON sends payload to url and returns the response status code.
// Non-2xx statuses are not errors; the caller decides what success means.
func (c *Client) PostJSON(ctx context.Context, url string, payload any) (int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)

	// Drain so the connection can be reused.
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxDrainBytes))
	if resp.StatusCode >= 400 {
		c.logger.Debug("forwarding endpoint error response", "status", resp.StatusCode, "body", string(respBody))
	}
	return resp.StatusCode, nil
}
