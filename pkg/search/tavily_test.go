package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTavily_Search(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/search", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"results":[
			{"title":"OpenAI revenue","url":"https://example.com/a","content":"revenue grew"},
			{"title":"Profit watch","url":"https://example.com/b","content":"still unprofitable"}
		]}`))
	}))
	defer srv.Close()

	backend := NewTavilyWithBaseURL("test-key", srv.URL)
	results, err := backend.Search(context.Background(), Query{
		Query: "openai profitability", MaxResults: 2, Days: 30, Depth: "advanced",
	})
	require.NoError(t, err)

	assert.Equal(t, "test-key", gotBody["api_key"])
	assert.Equal(t, "openai profitability", gotBody["query"])
	assert.Equal(t, float64(2), gotBody["max_results"])
	assert.Equal(t, "advanced", gotBody["search_depth"])

	require.Len(t, results, 2)
	assert.Equal(t, "https://example.com/a", results[0].URL)
	// Tavily's content doubles as the snippet.
	assert.Equal(t, "revenue grew", results[0].Snippet)
	assert.Equal(t, "revenue grew", results[0].Content)
}

func TestTavily_SearchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	backend := NewTavilyWithBaseURL("bad", srv.URL)
	_, err := backend.Search(context.Background(), Query{Query: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}
