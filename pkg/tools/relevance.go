package tools

import "strings"

// placeholders are template artifacts the model sometimes emits verbatim as
// search queries.
var placeholders = map[string]bool{
	"input": true, "query": true, "search": true, "pipeline": true,
	"title": true, "url": true, "link": true,
}

// stopwords never count as informative tokens.
var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "of": true, "for": true, "and": true,
	"or": true, "in": true, "on": true, "at": true, "to": true, "is": true,
	"are": true, "was": true, "what": true, "who": true, "when": true,
	"where": true, "how": true, "why": true, "does": true, "do": true,
	"did": true, "with": true, "about": true, "its": true, "it": true,
}

// checkRelevance gates a proposed web search: it must carry at least two
// informative tokens, overlap the run's relevance vocabulary, and not be a
// bare placeholder. Returns an explanation on rejection.
func (r *Runtime) checkRelevance(query string) string {
	trimmed := strings.ToLower(strings.TrimSpace(query))
	trimmed = strings.Trim(trimmed, "{}")
	if placeholders[trimmed] {
		return "query is a template placeholder, not a real search"
	}

	tokens := tokenize(query)
	informative := 0
	overlap := false
	for tok := range tokens {
		if stopwords[tok] || len(tok) < 3 {
			continue
		}
		informative++
		if r.relevance[tok] {
			overlap = true
		}
	}

	if informative < 2 {
		return "query needs at least 2 informative tokens"
	}
	if len(r.relevance) > 0 && !overlap {
		return "query shares no vocabulary with the research topic"
	}
	return ""
}

func tokenize(s string) map[string]bool {
	tokens := make(map[string]bool)
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			tokens[current.String()] = true
			current.Reset()
		}
	}
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			current.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return tokens
}

func normalizeToken(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// RelevanceTokens explodes free text into the token form the guard uses.
// The agent builds the run vocabulary from the query, entity, intent target,
// expected variable names, and router boost hints.
func RelevanceTokens(texts ...string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, text := range texts {
		for tok := range tokenize(text) {
			if len(tok) < 3 || stopwords[tok] || seen[tok] {
				continue
			}
			seen[tok] = true
			out = append(out, tok)
		}
	}
	return out
}
