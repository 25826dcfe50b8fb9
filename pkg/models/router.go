package models

// AttrPolicy marks how the router wants a variable name treated.
type AttrPolicy string

const (
	AttrRequired  AttrPolicy = "required"
	AttrAllowed   AttrPolicy = "allowed"
	AttrForbidden AttrPolicy = "forbidden"
)

// VocabHints carry a controlled vocabulary for guarding irrelevant searches.
type VocabHints struct {
	Boost    []string `json:"boost"`
	Penalize []string `json:"penalize"`
}

// EvidencePolicy states the corroboration demands the citation gate enforces.
type EvidencePolicy struct {
	MinCorroboration int  `json:"min_corroboration"`
	RequireAuthority bool `json:"require_authority"`
	FreshnessDays    *int `json:"freshness_days,omitempty"`
}

// RouterOutput is the inference-router pre-pass guiding prompting and the
// citation policy for one agent run.
type RouterOutput struct {
	EntityType      EntityType            `json:"entity_type,omitempty"`
	AttrConstraints map[string]AttrPolicy `json:"attr_constraints"`
	VocabHints      VocabHints            `json:"vocab_hints"`
	EvidencePolicy  EvidencePolicy        `json:"evidence_policy"`
}

// NeutralRouterOutput is the heuristic fallback when the router model fails
// to produce parseable JSON: no constraints, single-source corroboration.
func NeutralRouterOutput() *RouterOutput {
	return &RouterOutput{
		AttrConstraints: map[string]AttrPolicy{},
		VocabHints:      VocabHints{Boost: []string{}, Penalize: []string{}},
		EvidencePolicy:  EvidencePolicy{MinCorroboration: 1},
	}
}
