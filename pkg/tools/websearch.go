package tools

import (
	"context"
	"encoding/json"
	"unicode/utf8"

	"github.com/magpie-ai/magpie/pkg/search"
)

const (
	// maxContentFetches bounds the parallel page downloads per search.
	maxContentFetches = 8
	// contentTruncateLen caps extracted page text.
	contentTruncateLen = 8000
	// snippetLen caps synthesised snippets.
	snippetLen = 300
)

type webSearchResult struct {
	Title   string `json:"title,omitempty"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
	Content string `json:"content,omitempty"`
}

// webSearch runs the guarded, budgeted web search and optionally enriches
// results with extracted page content.
func (r *Runtime) webSearch(ctx context.Context, args map[string]any) ExecResult {
	query, _ := args["query"].(string)

	if reason := r.checkRelevance(query); reason != "" {
		return ExecResult{
			Content: errorPayload("Query rejected by relevance filter: " + reason),
			IsError: true,
			Reason:  "relevance filter",
		}
	}
	if !r.consumeWebBudget() {
		return ExecResult{
			Content: errorPayload("Web search limit reached"),
			IsError: true,
			Reason:  "web budget exhausted",
		}
	}

	q := search.Query{
		Query:      query,
		MaxResults: intArg(args, "num", 3),
		Days:       intArg(args, "days", 0),
		Depth:      stringArg(args, "depth", "advanced"),
	}

	hits, err := r.deps.Search.Search(ctx, q)
	if err != nil {
		return execError(err, "search backend failure")
	}

	results := make([]webSearchResult, 0, len(hits))
	for _, h := range hits {
		results = append(results, webSearchResult{
			Title:   h.Title,
			URL:     h.URL,
			Snippet: h.Snippet,
			Content: h.Content,
		})
	}

	if boolArg(args, "include_content", true) {
		r.fillContent(ctx, results)
	}

	payload, err := json.Marshal(results)
	if err != nil {
		return execError(err, "encode results")
	}
	return ExecResult{Content: string(payload), Quality: len(results)}
}

// fillContent fetches result pages in parallel and fills or augments snippet
// and content with extracted text.
func (r *Runtime) fillContent(ctx context.Context, results []webSearchResult) {
	urls := make([]string, 0, maxContentFetches)
	for _, res := range results {
		if len(urls) >= maxContentFetches {
			break
		}
		if res.URL != "" {
			urls = append(urls, res.URL)
		}
	}

	pages := r.deps.Fetcher.FetchAll(ctx, urls)
	for i := range results {
		raw, ok := pages[results[i].URL]
		if !ok {
			continue
		}
		text := extractPageText(raw)
		if text == "" {
			continue
		}
		results[i].Content = text
		if results[i].Snippet == "" {
			results[i].Snippet = clipRunes(text, snippetLen)
		}
	}
}

// clipRunes cuts s to at most n bytes without splitting a multi-byte rune.
func clipRunes(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func intArg(args map[string]any, key string, fallback int) int {
	if v, ok := args[key].(float64); ok {
		return int(v)
	}
	return fallback
}

func stringArg(args map[string]any, key, fallback string) string {
	if v, ok := args[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func boolArg(args map[string]any, key string, fallback bool) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return fallback
}
