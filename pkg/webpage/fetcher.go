// Package webpage fetches result pages and extracts readable text and
// publication dates from their HTML.
package webpage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/magpie-ai/magpie/pkg/version"
)

const (
	// perFetchTimeout bounds a single page download.
	perFetchTimeout = 15 * time.Second
	// maxBodyBytes caps how much of a page is read.
	maxBodyBytes = 2 << 20
)

// Fetcher downloads pages with bounded parallelism. Safe for concurrent use.
type Fetcher struct {
	client      *http.Client
	maxParallel int
}

// NewFetcher creates a fetcher that downloads at most maxParallel pages at
// once.
func NewFetcher(maxParallel int) *Fetcher {
	if maxParallel < 1 {
		maxParallel = 8
	}
	return &Fetcher{
		client:      &http.Client{Timeout: perFetchTimeout},
		maxParallel: maxParallel,
	}
}

// FetchAll downloads the given URLs in parallel and returns raw HTML keyed by
// URL. Individual failures are logged and skipped; the map only contains
// successful fetches. All in-flight requests join or cancel before return.
func (f *Fetcher) FetchAll(ctx context.Context, urls []string) map[string]string {
	results := make(map[string]string, len(urls))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.maxParallel)

	for _, u := range urls {
		g.Go(func() error {
			body, err := f.Fetch(gctx, u)
			if err != nil {
				slog.Debug("Page fetch failed", "url", u, "error", err)
				return nil // best-effort: one bad page never fails the batch
			}
			mu.Lock()
			results[u] = body
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Fetch downloads one page, honouring the context deadline.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, perFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; "+version.Full()+")")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read body: %w", err)
	}
	return string(body), nil
}
