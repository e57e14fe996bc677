// Package analytics holds the clients for the analytics and AI engine
// services.
package analytics

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

// DefaultTimeout bounds every analytics call
const DefaultTimeout = 15 * time.Second

// ErrNotConfigured is returned when no base URL was given
var ErrNotConfigured = errors.New("analytics service not configured")

// Client is a read-only client for the analytics service
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client. An empty baseURL yields a client whose calls fail
// with ErrNotConfigured, so pages fall back to demo data.
func New(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
}

// SetHTTPClient sets a custom HTTP client
func (c *Client) SetHTTPClient(httpClient *http.Client) {
	c.httpClient = httpClient
}

func (c *Client) Configured() bool {
	return c.baseURL != ""
}

// Utilization fetches aggregated utilization
func (c *Client) Utilization(ctx context.Context, q Query) (*UtilizationResponse, error) {
	params := q.values()
	if q.GroupBy != "" {
		params.Set("groupBy", q.GroupBy)
	}

	var resp UtilizationResponse
	if err := c.get(ctx, "/api/v1/utilization", params, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// BookingUsage fetches booking-vs-usage buckets
func (c *Client) BookingUsage(ctx context.Context, q Query) (*BookingUsageResponse, error) {
	var resp BookingUsageResponse
	if err := c.get(ctx, "/api/v1/booking-usage", q.values(), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	if !c.Configured() {
		return ErrNotConfigured
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("analytics request failed (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (q Query) values() url.Values {
	v := url.Values{}
	v.Set("scopeType", q.ScopeType)
	if q.ScopeID != "" {
		v.Set("scopeId", q.ScopeID)
	}
	tr := queryRange(q)
	v.Set("from", tr.From)
	v.Set("to", tr.To)
	if q.Granularity != "" {
		v.Set("granularity", q.Granularity)
	}
	return v
}

func queryRange(q Query) TimeRange {
	return TimeRange{
		From: q.From.UTC().Format(time.RFC3339),
		To:   q.To.UTC().Format(time.RFC3339),
	}
}

// LastWeek builds a workspace query over the seven days before now
func LastWeek(scopeType, scopeID string, now time.Time) Query {
	return Query{
		ScopeType:   scopeType,
		ScopeID:     scopeID,
		From:        now.Add(-7 * 24 * time.Hour).Truncate(time.Hour),
		To:          now.Truncate(time.Hour),
		Granularity: "daily",
	}
}
