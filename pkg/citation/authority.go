// Package citation scores source authority and enforces the corroboration
// gate on candidate final answers.
package citation

import (
	"net/url"
	"sort"
	"strings"

	"github.com/magpie-ai/magpie/pkg/models"
)

// exactHostScores are matched against the host and its parent domains.
var exactHostScores = map[string]int{
	"sec.gov":       100,
	"wikidata.org":  90,
	"wikipedia.org": 85,
	"bloomberg.com": 74,
	"reuters.com":   73,
	"ft.com":        72,
	"nytimes.com":   72,
	"wsj.com":       71,
}

// blogPlatforms never qualify for the generic www.* bump.
var blogPlatforms = map[string]bool{
	"medium.com":    true,
	"blogspot.com":  true,
	"wordpress.com": true,
	"substack.com":  true,
	"tumblr.com":    true,
}

// AuthorityScore maps a source URL's host to an integer in [0,100].
// Non-URLs score 0.
func AuthorityScore(rawURL string) int {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return 0
	}
	host := strings.ToLower(u.Hostname())

	for domain, score := range exactHostScores {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return score
		}
	}
	if strings.HasSuffix(host, ".gov") {
		return 80
	}
	if strings.HasSuffix(host, ".edu") {
		return 75
	}
	if strings.HasPrefix(host, "www.") && !isBlogPlatform(host) {
		return 65
	}
	return 50
}

func isBlogPlatform(host string) bool {
	for domain := range blogPlatforms {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}

// NormalizeSources deduplicates by URL (keeping the first occurrence) and
// stable-sorts by descending authority score. The operation is a fixed point:
// reapplying it leaves the slice unchanged.
func NormalizeSources(sources []models.Source) []models.Source {
	seen := make(map[string]bool, len(sources))
	out := make([]models.Source, 0, len(sources))
	for _, s := range sources {
		if s.URL == "" || seen[s.URL] {
			continue
		}
		seen[s.URL] = true
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return AuthorityScore(out[i].URL) > AuthorityScore(out[j].URL)
	})
	return out
}
