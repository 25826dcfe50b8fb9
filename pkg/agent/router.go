package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/magpie-ai/magpie/pkg/llm"
	"github.com/magpie-ai/magpie/pkg/models"
	"github.com/magpie-ai/magpie/pkg/services"
)

const routerSystemPrompt = `You configure a research run before it starts. Given the query,
an optional entity hint, and the expected variables, respond with strict JSON:
{
  "entity_type": "company|person|product|place|event|concept|artifact|organization|other",
  "attr_constraints": {"<variable_name>": "required" | "allowed" | "forbidden"},
  "vocab_hints": {"boost": ["topic words that good searches contain"], "penalize": ["words signalling drift"]},
  "evidence_policy": {"min_corroboration": 1, "require_authority": false, "freshness_days": null}
}
min_corroboration is the number of agreeing sources each answer needs (1 to 5).
Set require_authority true only when the answer demands an official or major-outlet source.
No other keys, no prose.`

// routeInference runs the pre-loop router on the cheap model. Any parse
// failure degrades to the neutral output; the parsed output is normalised
// (policy clamps, attr-constraint completion, vocab coercion) before use.
func (e *Engine) routeInference(ctx context.Context, query, entityHint string, vars []models.VariableDef) *models.RouterOutput {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Query: %s\n", query)
	if entityHint != "" {
		fmt.Fprintf(&sb, "Entity hint: %s\n", entityHint)
	}
	for _, v := range vars {
		fmt.Fprintf(&sb, "Expected variable: %s (%s) %s\n", v.Name, v.Type, v.Description)
	}

	out := models.NeutralRouterOutput()
	resp, err := e.reasoner.Chat(ctx, llm.ChatRequest{
		Model:       e.cfg.InferenceModel,
		Temperature: 0.1,
		JSONOnly:    true,
		Messages: []models.ChatMessage{
			{Role: models.RoleSystem, Content: routerSystemPrompt},
			{Role: models.RoleUser, Content: sb.String()},
		},
	})
	if err == nil {
		if parsed := parseRouterOutput(resp.Content); parsed != nil {
			out = parsed
		}
	}
	normalizeRouterOutput(out, vars)
	return out
}

// parseRouterOutput decodes the model's JSON leniently: vocab hints may
// arrive as a single string or a mixed array and are coerced to string
// arrays. Returns nil when the payload is not a JSON object.
func parseRouterOutput(content string) *models.RouterOutput {
	var raw struct {
		EntityType      string            `json:"entity_type"`
		AttrConstraints map[string]string `json:"attr_constraints"`
		VocabHints      struct {
			Boost    any `json:"boost"`
			Penalize any `json:"penalize"`
		} `json:"vocab_hints"`
		EvidencePolicy struct {
			MinCorroboration int  `json:"min_corroboration"`
			RequireAuthority bool `json:"require_authority"`
			FreshnessDays    *int `json:"freshness_days"`
		} `json:"evidence_policy"`
	}
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil
	}

	out := &models.RouterOutput{
		EntityType:      services.NormalizeType(raw.EntityType),
		AttrConstraints: map[string]models.AttrPolicy{},
		VocabHints: models.VocabHints{
			Boost:    coerceStrings(raw.VocabHints.Boost),
			Penalize: coerceStrings(raw.VocabHints.Penalize),
		},
		EvidencePolicy: models.EvidencePolicy{
			MinCorroboration: raw.EvidencePolicy.MinCorroboration,
			RequireAuthority: raw.EvidencePolicy.RequireAuthority,
			FreshnessDays:    raw.EvidencePolicy.FreshnessDays,
		},
	}
	if raw.EntityType == "" {
		out.EntityType = ""
	}
	for name, policy := range raw.AttrConstraints {
		switch models.AttrPolicy(policy) {
		case models.AttrRequired, models.AttrAllowed, models.AttrForbidden:
			out.AttrConstraints[name] = models.AttrPolicy(policy)
		default:
			out.AttrConstraints[name] = models.AttrAllowed
		}
	}
	return out
}

// normalizeRouterOutput completes attr_constraints so every expected
// variable has a policy and clamps min_corroboration to [1,5].
func normalizeRouterOutput(out *models.RouterOutput, vars []models.VariableDef) {
	if out.AttrConstraints == nil {
		out.AttrConstraints = map[string]models.AttrPolicy{}
	}
	for _, v := range vars {
		if _, ok := out.AttrConstraints[v.Name]; !ok {
			out.AttrConstraints[v.Name] = models.AttrAllowed
		}
	}
	if out.EvidencePolicy.MinCorroboration < 1 {
		out.EvidencePolicy.MinCorroboration = 1
	}
	if out.EvidencePolicy.MinCorroboration > 5 {
		out.EvidencePolicy.MinCorroboration = 5
	}
	if out.VocabHints.Boost == nil {
		out.VocabHints.Boost = []string{}
	}
	if out.VocabHints.Penalize == nil {
		out.VocabHints.Penalize = []string{}
	}
}

func coerceStrings(v any) []string {
	switch val := v.(type) {
	case nil:
		return []string{}
	case string:
		if strings.TrimSpace(val) == "" {
			return []string{}
		}
		return []string{val}
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return []string{}
	}
}
