package tools

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/magpie-ai/magpie/pkg/models"
)

// knowledgeQuery looks up stored facts for a known entity. It resolves
// through existing entities only; a miss returns ENTITY_UNRESOLVED with
// suggestions and never creates anything. A fact miss with a variable name
// recurses into a nested agent run (depth-bounded) to fetch and persist the
// fact, then retries.
func (r *Runtime) knowledgeQuery(ctx context.Context, args map[string]any) ExecResult {
	entity, _ := args["entity"].(string)
	variableName := stringArg(args, "variable_name", "")
	question := stringArg(args, "question", "")

	ref, err := r.deps.Entities.TryResolveExisting(ctx, entity)
	if err != nil {
		return execError(err, "entity lookup failure")
	}
	if ref == nil {
		return r.unresolvedPayload(ctx, entity)
	}

	if variableName == "" {
		return r.allFacts(ctx, ref.ID, question)
	}

	if res, found := r.lookupFact(ctx, ref.ID, variableName); found {
		return res
	}

	// Recurse into a nested run to research the fact, then retry once.
	if r.deps.NestedResearch != nil && r.depth < maxKnowledgeDepth {
		if err := r.deps.NestedResearch(ctx, ref.Name, variableName, r.depth+1); err != nil {
			return execError(err, "nested research failure")
		}
		if res, found := r.lookupFact(ctx, ref.ID, variableName); found {
			return res
		}
	}

	payload, _ := json.Marshal(map[string]any{
		"code":   "FACT_NOT_FOUND",
		"entity": ref.Name,
		"name":   variableName,
	})
	return ExecResult{Content: string(payload), IsError: true, Reason: "fact not found"}
}

// lookupFact tries the exact name, then similar current-row names.
func (r *Runtime) lookupFact(ctx context.Context, entityID, name string) (ExecResult, bool) {
	fact, err := r.deps.Facts.GetFact(ctx, entityID, name)
	if err != nil {
		return execError(err, "fact lookup failure"), true
	}
	if fact != nil {
		payload, _ := json.Marshal(fact)
		return ExecResult{Content: string(payload), Quality: 1}, true
	}

	similar, err := r.deps.Facts.FindSimilarFactNames(ctx, entityID, name, 5)
	if err != nil {
		return execError(err, "fact lookup failure"), true
	}
	var facts []*models.Fact
	for _, similarName := range similar {
		f, err := r.deps.Facts.GetFact(ctx, entityID, similarName)
		if err == nil && f != nil {
			facts = append(facts, f)
		}
	}
	if len(facts) > 0 {
		payload, _ := json.Marshal(facts)
		return ExecResult{Content: string(payload), Quality: len(facts)}, true
	}
	return ExecResult{}, false
}

// allFacts returns the entity's current facts, optionally filtered by word
// overlap with the question.
func (r *Runtime) allFacts(ctx context.Context, entityID, question string) ExecResult {
	facts, err := r.deps.Facts.GetFactsForEntity(ctx, entityID)
	if err != nil {
		return execError(err, "fact listing failure")
	}

	if question != "" {
		questionTokens := tokenize(question)
		var filtered []*models.Fact
		for _, f := range facts {
			for tok := range tokenize(strings.ReplaceAll(f.Name, "_", " ")) {
				if questionTokens[tok] {
					filtered = append(filtered, f)
					break
				}
			}
		}
		if len(filtered) > 0 {
			facts = filtered
		}
	}

	if facts == nil {
		facts = []*models.Fact{}
	}
	payload, err := json.Marshal(facts)
	if err != nil {
		return execError(err, "encode facts")
	}
	return ExecResult{Content: string(payload), Quality: len(facts)}
}

func (r *Runtime) unresolvedPayload(ctx context.Context, entity string) ExecResult {
	suggestions := []string{}
	if refs, err := r.deps.Entities.SearchByName(ctx, entity, 5); err == nil {
		for _, ref := range refs {
			suggestions = append(suggestions, ref.Name)
		}
	}
	payload, _ := json.Marshal(map[string]any{
		"code":        "ENTITY_UNRESOLVED",
		"entity":      entity,
		"suggestions": suggestions,
	})
	return ExecResult{Content: string(payload), IsError: true, Reason: "entity unresolved"}
}
