// ABOUTME: HTTP client for the upstream inference backend (Flowise-style prediction API)
// ABOUTME: Applies a request timeout and maps upstream failures to ErrUpstream

package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// ErrUpstream is returned for connection failures, timeouts, and non-2xx
// responses from the inference backend. It maps to a gateway error at the
// external interface.
var ErrUpstream = errors.New("chat upstream unavailable")

// Request is the prediction payload sent to the inference backend.
type Request struct {
	Question       string         `json:"question"`
	Variables      map[string]any `json:"variables,omitempty"`
	OverrideConfig map[string]any `json:"overrideConfig,omitempty"`
	Streaming      bool           `json:"streaming"`
}

// Client calls the inference backend's prediction endpoint.
type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a chat client for the backend at baseURL.
// Every request is bounded by the given timeout so a stalled backend can
// never hang the calling request.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		timeout:    timeout,
		httpClient: &http.Client{Timeout: timeout},
		logger:     slog.Default().With("component", "chat"),
	}
}

// Send posts a prediction request for the given flow and returns the raw
// JSON response body. Failures are wrapped in ErrUpstream.
func (c *Client) Send(ctx context.Context, flowID string, req *Request) (json.RawMessage, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding chat request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/api/v1/prediction/%s", c.baseURL, url.PathEscape(flowID))

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error("chat upstream request failed", "flow_id", flowID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrUpstream, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("chat upstream returned error", "flow_id", flowID, "status", resp.StatusCode)
		return nil, fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}

	return respBody, nil
}
