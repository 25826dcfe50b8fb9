package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/magpie-ai/magpie/pkg/llm"
	"github.com/magpie-ai/magpie/pkg/models"
)

const plausibilitySystemPrompt = `You evaluate factual claims for plausibility.
For each claim, judge whether it is plausible given general knowledge and the
provided context. Respond with strict JSON:
{"evaluations": [{"claim": "...", "plausible": true, "confidence": 0.0, "reasoning": "..."}]}
Confidence is in [0,1]. Do not add any other keys or text.`

type plausibilityEvaluation struct {
	Claim      string  `json:"claim"`
	Plausible  bool    `json:"plausible"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

type plausibilityOutput struct {
	Evaluations []plausibilityEvaluation `json:"evaluations"`
}

// evaluatePlausibility adjudicates conflicting claims with the auxiliary
// model.
func (r *Runtime) evaluatePlausibility(ctx context.Context, args map[string]any) ExecResult {
	rawClaims, _ := args["claims"].([]any)
	claims := make([]string, 0, len(rawClaims))
	for _, c := range rawClaims {
		if s, ok := c.(string); ok && strings.TrimSpace(s) != "" {
			claims = append(claims, s)
		}
	}
	if len(claims) == 0 {
		return ExecResult{
			Content: errorPayload("claims must contain at least one non-empty string"),
			IsError: true,
			Reason:  "empty claims",
		}
	}

	var sb strings.Builder
	sb.WriteString("Claims to evaluate:\n")
	for i, c := range claims {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, c)
	}
	if extra := stringArg(args, "context", ""); extra != "" {
		sb.WriteString("\nContext:\n")
		sb.WriteString(extra)
	}

	resp, err := r.deps.Reasoner.Chat(ctx, llm.ChatRequest{
		Model:       r.deps.AuxModel,
		Temperature: 0.1,
		JSONOnly:    true,
		Messages: []models.ChatMessage{
			{Role: models.RoleSystem, Content: plausibilitySystemPrompt},
			{Role: models.RoleUser, Content: sb.String()},
		},
	})
	if err != nil {
		return execError(err, "model failure")
	}

	var out plausibilityOutput
	if err := json.Unmarshal([]byte(resp.Content), &out); err != nil {
		return execError(fmt.Errorf("unparseable evaluation: %w", err), "parse failure")
	}

	payload, _ := json.Marshal(out)
	return ExecResult{Content: string(payload), Quality: len(out.Evaluations)}
}
