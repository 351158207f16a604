// Package client provides an HTTP client for a running phylogger's status
// endpoint.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/HatiCode/phyxlog/pkg/httpx"
	"github.com/HatiCode/phyxlog/pkg/poller"
)

// StaleHeader is set to "true" on /status answers whose last poll is older
// than the server's stale threshold.
const StaleHeader = "X-Phyxlog-Stale"

// StatusClient fetches poller status from phylogger. It is safe for
// concurrent use by multiple goroutines.
type StatusClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewStatusClient creates a client for baseURL, e.g. "http://localhost:8090",
// with a 5 second timeout.
func NewStatusClient(baseURL string) *StatusClient {
	return NewStatusClientWithTimeout(baseURL, 5*time.Second)
}

// NewStatusClientWithTimeout creates a client with a custom timeout.
func NewStatusClientWithTimeout(baseURL string, timeout time.Duration) *StatusClient {
	return &StatusClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// StatusResult is a fetched status and whether the server flagged it stale.
type StatusResult struct {
	Status poller.Status
	Stale  bool
}

// GetStatus fetches GET /status.
func (c *StatusClient) GetStatus(ctx context.Context) (*StatusResult, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	u.Path = "/status"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e httpx.ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&e) == nil && e.Error != "" {
			return nil, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, e.Error)
		}
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var st poller.Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &StatusResult{
		Status: st,
		Stale:  resp.Header.Get(StaleHeader) == "true",
	}, nil
}

// IsStale reports whether st's last poll is older than staleAfter. A status
// that never polled is not stale.
func IsStale(st poller.Status, staleAfter time.Duration) bool {
	if st.LastPoll == nil || staleAfter <= 0 {
		return false
	}
	return time.Since(*st.LastPoll) > staleAfter
}
