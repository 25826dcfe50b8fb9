package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/magpie-ai/magpie/pkg/citation"
	"github.com/magpie-ai/magpie/pkg/search"
)

const (
	// latestMaxIterations bounds the shrinking-window search loop.
	latestMaxIterations = 5
	// latestFetchLimit bounds page downloads per iteration.
	latestFetchLimit = 10
	// agreementWindow is how close two publication dates must be to count as
	// the same development.
	agreementWindow = 48 * time.Hour
	// credibilityThreshold is the minimum authority score for a domain to
	// corroborate a date.
	credibilityThreshold = 65
	// minCorroboratingDomains distinct credible domains must agree.
	minCorroboratingDomains = 2
)

type dateCandidate struct {
	Title     string
	URL       string
	Domain    string
	Published time.Time
	Authority int
}

type latestOutput struct {
	Query         string              `json:"query"`
	LatestDate    string              `json:"latest_date,omitempty"`
	Sources       []webSearchResult   `json:"sources"`
	Corroboration latestCorroboration `json:"corroboration"`
	TotalCollected int                `json:"total_collected"`
	Iterations     int                `json:"iterations"`
}

type latestCorroboration struct {
	DistinctSources      int  `json:"distinct_sources"`
	MinRequired          int  `json:"min_required"`
	CredibilityThreshold int  `json:"credibility_threshold"`
	OK                   bool `json:"ok"`
}

// latestFinder finds the most recent corroborated development on a topic.
// It rewrites the query toward recency, then iterates with a days window
// that shrinks to the gap since the best date found so far; it stops early
// when an iteration surfaces the same top article as the previous one.
func (r *Runtime) latestFinder(ctx context.Context, args map[string]any) ExecResult {
	query, _ := args["query"].(string)

	if !r.consumeWebBudget() {
		return ExecResult{
			Content: errorPayload("Web search limit reached"),
			IsError: true,
			Reason:  "web budget exhausted",
		}
	}

	now := r.deps.Clock()
	rewrites := recencyRewrites(query, now)

	var (
		candidates []dateCandidate
		bestDate   time.Time
		prevTopURL string
		iterations int
		days       = 365
	)

	for iterations < latestMaxIterations {
		iterations++

		iterCandidates, topURL, err := r.collectDated(ctx, rewrites, days)
		if err != nil {
			if iterations == 1 {
				return execError(err, "search backend failure")
			}
			break
		}
		candidates = append(candidates, iterCandidates...)

		if newest, ok := corroboratedNewest(candidates); ok && newest.After(bestDate) {
			bestDate = newest
		}

		// Same top article twice in a row: the window has converged.
		if topURL != "" && topURL == prevTopURL {
			break
		}
		prevTopURL = topURL

		if !bestDate.IsZero() {
			gap := int(now.Sub(bestDate).Hours()/24) + 1
			if gap < 1 {
				gap = 1
			}
			if gap < days {
				days = gap
			}
		}
	}

	out := buildLatestOutput(query, candidates, bestDate, iterations)
	payload, err := json.Marshal(out)
	if err != nil {
		return execError(err, "encode results")
	}
	quality := 0
	if out.Corroboration.OK {
		quality = out.Corroboration.DistinctSources
	}
	return ExecResult{Content: string(payload), Quality: quality}
}

// collectDated searches all rewrites within the window, fetches the result
// pages, and extracts publication dates. Returns the top result URL of the
// first rewrite for convergence detection.
func (r *Runtime) collectDated(ctx context.Context, rewrites []string, days int) ([]dateCandidate, string, error) {
	var (
		hits   []search.Result
		topURL string
	)
	for i, q := range rewrites {
		res, err := r.deps.Search.Search(ctx, search.Query{
			Query:      q,
			MaxResults: 5,
			Days:       days,
			Depth:      "advanced",
		})
		if err != nil {
			if i == 0 {
				return nil, "", err
			}
			continue
		}
		if i == 0 && len(res) > 0 {
			topURL = res[0].URL
		}
		hits = append(hits, res...)
	}

	urls := make([]string, 0, latestFetchLimit)
	seen := make(map[string]bool)
	hitByURL := make(map[string]search.Result)
	for _, h := range hits {
		if h.URL == "" || seen[h.URL] {
			continue
		}
		seen[h.URL] = true
		hitByURL[h.URL] = h
		if len(urls) < latestFetchLimit {
			urls = append(urls, h.URL)
		}
	}

	pages := r.deps.Fetcher.FetchAll(ctx, urls)

	var candidates []dateCandidate
	for pageURL, raw := range pages {
		published, ok := extractPublishedDate(raw)
		if !ok {
			continue
		}
		candidates = append(candidates, dateCandidate{
			Title:     hitByURL[pageURL].Title,
			URL:       pageURL,
			Domain:    hostOf(pageURL),
			Published: published,
			Authority: citation.AuthorityScore(pageURL),
		})
	}
	return candidates, topURL, nil
}

// corroboratedNewest returns the newest date where at least two distinct
// credible domains agree within the 48 h window.
func corroboratedNewest(candidates []dateCandidate) (time.Time, bool) {
	sorted := credibleSortedByDate(candidates)
	for _, anchor := range sorted {
		domains := map[string]bool{}
		for _, c := range sorted {
			if absDuration(anchor.Published.Sub(c.Published)) <= agreementWindow {
				domains[c.Domain] = true
			}
		}
		if len(domains) >= minCorroboratingDomains {
			return anchor.Published, true
		}
	}
	return time.Time{}, false
}

func buildLatestOutput(query string, candidates []dateCandidate, bestDate time.Time, iterations int) latestOutput {
	out := latestOutput{
		Query:          query,
		Sources:        []webSearchResult{},
		TotalCollected: len(candidates),
		Iterations:     iterations,
		Corroboration: latestCorroboration{
			MinRequired:          minCorroboratingDomains,
			CredibilityThreshold: credibilityThreshold,
		},
	}
	if bestDate.IsZero() {
		return out
	}

	out.LatestDate = bestDate.Format("2006-01-02")
	domains := map[string]bool{}
	for _, c := range credibleSortedByDate(candidates) {
		if absDuration(bestDate.Sub(c.Published)) > agreementWindow {
			continue
		}
		if !domains[c.Domain] {
			out.Sources = append(out.Sources, webSearchResult{Title: c.Title, URL: c.URL})
		}
		domains[c.Domain] = true
	}
	out.Corroboration.DistinctSources = len(domains)
	out.Corroboration.OK = len(domains) >= minCorroboratingDomains
	return out
}

func credibleSortedByDate(candidates []dateCandidate) []dateCandidate {
	credible := make([]dateCandidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Authority >= credibilityThreshold {
			credible = append(credible, c)
		}
	}
	sort.Slice(credible, func(i, j int) bool {
		return credible[i].Published.After(credible[j].Published)
	})
	return credible
}

// recencyRewrites biases the query toward fresh coverage.
func recencyRewrites(query string, now time.Time) []string {
	base := strings.TrimSpace(query)
	return []string{
		base + " latest news",
		fmt.Sprintf("%s %d announcement", base, now.Year()),
		base + " most recent update",
	}
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
