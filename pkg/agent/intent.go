package agent

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/magpie-ai/magpie/pkg/llm"
	"github.com/magpie-ai/magpie/pkg/models"
)

const intentSystemPrompt = `Classify a research query. Respond with strict JSON:
{"intent": "boolean" | "specific" | "contextual", "target": "noun phrase naming what the query is about, or empty"}
boolean: a yes/no question. specific: asks for a concrete fact (a name, date, number, url).
contextual: open-ended, needs a prose answer. No other keys, no prose.`

// booleanLeads are the interrogatives that open a yes/no question.
var booleanLeads = map[string]bool{
	"is": true, "are": true, "was": true, "were": true, "does": true,
	"do": true, "did": true, "has": true, "have": true, "can": true,
	"will": true, "would": true, "should": true,
}

// specificLeads open fact-seeking questions.
var specificLeads = map[string]bool{
	"who": true, "what": true, "when": true, "where": true,
}

// classifyIntent returns the query's intent and an optional target noun
// phrase. The model is the primary path; a leading-interrogative heuristic
// covers parse failures.
func (e *Engine) classifyIntent(ctx context.Context, query string) (models.Intent, string) {
	resp, err := e.reasoner.Chat(ctx, llm.ChatRequest{
		Model:    e.cfg.InferenceModel,
		JSONOnly: true,
		Messages: []models.ChatMessage{
			{Role: models.RoleSystem, Content: intentSystemPrompt},
			{Role: models.RoleUser, Content: query},
		},
	})
	if err == nil {
		var out struct {
			Intent string `json:"intent"`
			Target string `json:"target"`
		}
		if json.Unmarshal([]byte(resp.Content), &out) == nil {
			switch models.Intent(out.Intent) {
			case models.IntentBoolean, models.IntentSpecific, models.IntentContextual:
				return models.Intent(out.Intent), strings.TrimSpace(out.Target)
			}
		}
	}
	return heuristicIntent(query), ""
}

func heuristicIntent(query string) models.Intent {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(query)))
	if len(fields) == 0 {
		return models.IntentContextual
	}
	lead := strings.Trim(fields[0], "?,.!")
	switch {
	case booleanLeads[lead]:
		return models.IntentBoolean
	case specificLeads[lead]:
		return models.IntentSpecific
	}
	return models.IntentContextual
}
