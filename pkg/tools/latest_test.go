package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magpie-ai/magpie/pkg/search"
)

// fakeFetcher serves canned HTML keyed by URL.
type fakeFetcher struct {
	pages map[string]string
}

func (f *fakeFetcher) FetchAll(_ context.Context, urls []string) map[string]string {
	out := make(map[string]string, len(urls))
	for _, u := range urls {
		if body, ok := f.pages[u]; ok {
			out[u] = body
		}
	}
	return out
}

func articleHTML(published string) string {
	return fmt.Sprintf(`<html><head>
		<script type="application/ld+json">{"@type":"NewsArticle","datePublished":"%s"}</script>
		</head><body><p>story</p></body></html>`, published)
}

func TestLatestFinder_ConvergesOnRepeatedTopArticle(t *testing.T) {
	published := "2026-08-20T09:00:00Z"
	reuters := "https://www.reuters.com/business/acme-launch"
	bloomberg := "https://www.bloomberg.com/news/acme-launch"

	// Every iteration surfaces the same top article, so the window has
	// converged after the second pass.
	backend := &stubBackend{results: []search.Result{
		{Title: "Acme launches", URL: reuters},
		{Title: "Acme launch covered", URL: bloomberg},
	}}
	fetcher := &fakeFetcher{pages: map[string]string{
		reuters:   articleHTML(published),
		bloomberg: articleHTML("2026-08-20T15:00:00Z"),
	}}

	rt := NewRuntime(Deps{
		Search:  backend,
		Fetcher: fetcher,
		Clock:   func() time.Time { return time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC) },
	}, 5, 0, nil)

	res := rt.Execute(context.Background(), call(ToolLatestFinder, `{"query":"Acme launch"}`))
	require.False(t, res.IsError, res.Content)

	var out latestOutput
	require.NoError(t, json.Unmarshal([]byte(res.Content), &out))
	assert.Equal(t, 2, out.Iterations)
	assert.Equal(t, "2026-08-20", out.LatestDate)
	assert.True(t, out.Corroboration.OK)
	assert.GreaterOrEqual(t, out.Corroboration.DistinctSources, 2)
}

func TestLatestFinder_NoCorroborationWithoutCredibleAgreement(t *testing.T) {
	// A lone blog post never corroborates a date.
	blog := "https://myblog.substack.com/p/acme"
	backend := &stubBackend{results: []search.Result{{Title: "Acme rumor", URL: blog}}}
	fetcher := &fakeFetcher{pages: map[string]string{blog: articleHTML("2026-08-21T00:00:00Z")}}

	rt := NewRuntime(Deps{Search: backend, Fetcher: fetcher}, 5, 0, nil)
	res := rt.Execute(context.Background(), call(ToolLatestFinder, `{"query":"Acme launch"}`))
	require.False(t, res.IsError)

	var out latestOutput
	require.NoError(t, json.Unmarshal([]byte(res.Content), &out))
	assert.Empty(t, out.LatestDate)
	assert.False(t, out.Corroboration.OK)
}

func TestLatestFinder_CountsAgainstWebBudget(t *testing.T) {
	rt := NewRuntime(Deps{Search: &stubBackend{}, Fetcher: &fakeFetcher{}}, 0, 0, nil)
	res := rt.Execute(context.Background(), call(ToolLatestFinder, `{"query":"Acme launch"}`))
	assert.True(t, res.IsError)
	assert.JSONEq(t, `{"error":"Web search limit reached"}`, res.Content)
}

func TestCorroboratedNewest(t *testing.T) {
	base := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	t.Run("two credible domains within the window agree", func(t *testing.T) {
		got, ok := corroboratedNewest([]dateCandidate{
			{Domain: "reuters.com", Published: base, Authority: 73},
			{Domain: "bloomberg.com", Published: base.Add(24 * time.Hour), Authority: 74},
		})
		require.True(t, ok)
		assert.Equal(t, base.Add(24*time.Hour), got)
	})

	t.Run("same domain twice is not corroboration", func(t *testing.T) {
		_, ok := corroboratedNewest([]dateCandidate{
			{Domain: "reuters.com", Published: base, Authority: 73},
			{Domain: "reuters.com", Published: base.Add(time.Hour), Authority: 73},
		})
		assert.False(t, ok)
	})

	t.Run("agreement outside 48h falls back to an older anchor", func(t *testing.T) {
		got, ok := corroboratedNewest([]dateCandidate{
			{Domain: "ft.com", Published: base.Add(100 * time.Hour), Authority: 72},
			{Domain: "reuters.com", Published: base, Authority: 73},
			{Domain: "bloomberg.com", Published: base.Add(time.Hour), Authority: 74},
		})
		require.True(t, ok)
		assert.Equal(t, base.Add(time.Hour), got)
	})

	t.Run("low-authority candidates are ignored", func(t *testing.T) {
		_, ok := corroboratedNewest([]dateCandidate{
			{Domain: "a.example", Published: base, Authority: 50},
			{Domain: "b.example", Published: base, Authority: 50},
		})
		assert.False(t, ok)
	})
}
