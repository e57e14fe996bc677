package analytics

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/spaceflow-dev/spaceflow/internal/recommendations"
)

// DefaultScope is used when the caller does not pick a workspace
const DefaultScope = "WORKSPACE:demo"

// maxPayload caps AI engine response bodies
const maxPayload = 1 << 20

// RecommendationsQuery mirrors the AI engine query parameters
type RecommendationsQuery struct {
	Scope          string
	TimeRangeStart string
	TimeRangeEnd   string
	Focus          string
	Limit          int
}

// AIEngine is a client for the advisory recommendations service. Responses
// are parsed into typed values; anything off-schema is a malformed payload.
type AIEngine struct {
	baseURL    string
	httpClient *http.Client
}

func NewAIEngine(baseURL string) *AIEngine {
	return &AIEngine{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
}

// SetHTTPClient sets a custom HTTP client
func (a *AIEngine) SetHTTPClient(httpClient *http.Client) {
	a.httpClient = httpClient
}

// Recommendations lists advisory recommendations for a scope
func (a *AIEngine) Recommendations(ctx context.Context, q RecommendationsQuery) (*recommendations.List, error) {
	params := url.Values{}
	scope := q.Scope
	if scope == "" {
		scope = DefaultScope
	}
	params.Set("scope", scope)
	if q.TimeRangeStart != "" {
		params.Set("timeRangeStart", q.TimeRangeStart)
	}
	if q.TimeRangeEnd != "" {
		params.Set("timeRangeEnd", q.TimeRangeEnd)
	}
	if q.Focus != "" {
		params.Set("focus", q.Focus)
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}

	body, err := a.get(ctx, "/api/v1/recommendations", params)
	if err != nil {
		return nil, err
	}
	return recommendations.ParseList(body)
}

// Explanation fetches the rationale for one recommendation
func (a *AIEngine) Explanation(ctx context.Context, id, scope string) (*recommendations.Explanation, error) {
	if id == "" {
		return nil, fmt.Errorf("recommendation id is required")
	}
	params := url.Values{}
	if scope != "" {
		params.Set("scope", scope)
	}

	body, err := a.get(ctx, "/api/v1/recommendations/"+url.PathEscape(id)+"/explanation", params)
	if err != nil {
		return nil, err
	}
	return recommendations.ParseExplanation(body)
}

func (a *AIEngine) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if a.baseURL == "" {
		return nil, ErrNotConfigured
	}

	u := a.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPayload))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ai engine request failed (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
