// Package search abstracts the web search providers behind a SearchBackend
// capability.
package search

import (
	"context"
	"fmt"

	"github.com/magpie-ai/magpie/pkg/config"
)

// Query is one provider-agnostic search request.
type Query struct {
	Query      string
	MaxResults int
	// Days restricts results to the last N days when > 0.
	Days int
	// Depth is "basic" or "advanced"; providers without the notion ignore it.
	Depth string
}

// Result is one provider-agnostic search hit. Content carries the provider's
// extracted page text when available; callers should not assume snippet and
// content are distinct.
type Result struct {
	Title   string `json:"title,omitempty"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
	Content string `json:"content,omitempty"`
}

// Backend is the web search capability used by the tool runtime.
type Backend interface {
	Search(ctx context.Context, q Query) ([]Result, error)
}

// NewFromConfig selects the backend named by SEARCH_PROVIDER.
func NewFromConfig(cfg *config.Config) (Backend, error) {
	switch cfg.SearchProvider {
	case config.ProviderSerpAPI:
		if cfg.SerpAPIKey == "" {
			return nil, fmt.Errorf("SERPAPI_API_KEY is required for the serpapi provider")
		}
		return NewSerpAPI(cfg.SerpAPIKey), nil
	default:
		if cfg.TavilyAPIKey == "" {
			return nil, fmt.Errorf("TAVILY_API_KEY is required for the tavily provider")
		}
		return NewTavily(cfg.TavilyAPIKey), nil
	}
}
