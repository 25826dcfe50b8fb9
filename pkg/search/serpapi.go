package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const serpAPIDefaultBaseURL = "https://serpapi.com"

// SerpAPI calls the SerpAPI Google search endpoint.
type SerpAPI struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewSerpAPI creates a SerpAPI backend.
func NewSerpAPI(apiKey string) *SerpAPI {
	return &SerpAPI{
		apiKey:  apiKey,
		baseURL: serpAPIDefaultBaseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// NewSerpAPIWithBaseURL creates a backend against a custom endpoint (tests).
func NewSerpAPIWithBaseURL(apiKey, baseURL string) *SerpAPI {
	s := NewSerpAPI(apiKey)
	s.baseURL = baseURL
	return s
}

type serpAPIResponse struct {
	OrganicResults []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic_results"`
}

// Search implements Backend.
func (s *SerpAPI) Search(ctx context.Context, q Query) ([]Result, error) {
	params := url.Values{}
	params.Set("engine", "google")
	params.Set("q", q.Query)
	params.Set("api_key", s.apiKey)
	if q.MaxResults > 0 {
		params.Set("num", strconv.Itoa(q.MaxResults))
	}
	if q.Days > 0 {
		params.Set("tbs", recencyFilter(q.Days))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		s.baseURL+"/search.json?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create serpapi request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("serpapi request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("serpapi returned HTTP %d: %s", resp.StatusCode, string(payload))
	}

	var parsed serpAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode serpapi response: %w", err)
	}

	results := make([]Result, 0, len(parsed.OrganicResults))
	for _, r := range parsed.OrganicResults {
		results = append(results, Result{
			Title:   r.Title,
			URL:     r.Link,
			Snippet: r.Snippet,
		})
	}
	return results, nil
}

// recencyFilter maps a day window onto Google's coarse qdr buckets.
func recencyFilter(days int) string {
	switch {
	case days <= 1:
		return "qdr:d"
	case days <= 7:
		return "qdr:w"
	case days <= 31:
		return "qdr:m"
	default:
		return "qdr:y"
	}
}
