package agent

import (
	"fmt"
	"strings"
	"time"

	"github.com/magpie-ai/magpie/pkg/config"
	"github.com/magpie-ai/magpie/pkg/models"
)

// finalAnswerSchema is the shape the model's final JSON must match.
const finalAnswerSchema = `{
  "intent": "boolean|specific|contextual",
  "variables": [
    {
      "subject": {"name": "entity name", "type": "company|person|product|place|event|concept|artifact|organization|other"},
      "name": "snake_case_variable_name",
      "dtype": "boolean|string|number|date|url|text",
      "value": <JSON value matching dtype>,
      "confidence": 0.0,
      "sources": [{"title": "", "url": "", "snippet": ""}]
    }
  ],
  "notes": "optional caveats"
}`

// buildSystemPrompt assembles the per-run system message: current date, the
// tool-use contract, the step and search budget, the corroboration policy,
// and the router's vocabulary and entity-type hints.
func buildSystemPrompt(now time.Time, caps config.Caps, router *models.RouterOutput) string {
	var sb strings.Builder
	sb.WriteString("You are a research agent that answers queries with typed, source-attributed variables.\n")
	fmt.Fprintf(&sb, "Current date: %s.\n\n", now.Format("2006-01-02"))

	sb.WriteString("Tool contract: call tools one at a time and read each result before the next call. ")
	sb.WriteString("Never repeat a call with identical arguments. ")
	sb.WriteString("When you have enough evidence, reply with the final JSON only and no tool calls.\n")
	fmt.Fprintf(&sb, "Budget: at most %d reasoning steps and %d web searches. Spend them on the highest-value lookups first.\n\n",
		caps.MaxSteps, caps.MaxWebSearches)

	fmt.Fprintf(&sb, "Evidence policy: every variable needs at least %d agreeing source(s). ",
		router.EvidencePolicy.MinCorroboration)
	sb.WriteString("Dates, numbers, and short strings always need at least 2 agreeing sources. ")
	if router.EvidencePolicy.RequireAuthority {
		sb.WriteString("At least one source per variable must be authoritative (official registry, .gov/.edu, or a major outlet). ")
	}
	if router.EvidencePolicy.FreshnessDays != nil {
		fmt.Fprintf(&sb, "Prefer sources newer than %d days. ", *router.EvidencePolicy.FreshnessDays)
	}
	sb.WriteString("\n")

	if len(router.VocabHints.Boost) > 0 {
		fmt.Fprintf(&sb, "Good searches mention: %s.\n", strings.Join(router.VocabHints.Boost, ", "))
	}
	if len(router.VocabHints.Penalize) > 0 {
		fmt.Fprintf(&sb, "Avoid searches about: %s.\n", strings.Join(router.VocabHints.Penalize, ", "))
	}
	if router.EntityType != "" {
		fmt.Fprintf(&sb, "The subject is most likely a %s.\n", router.EntityType)
	}
	return sb.String()
}

// buildIntroMessage is the opening user message: the query, the target, the
// expected variables, known stored facts, and the final JSON schema.
func buildIntroMessage(query, target string, vars []models.VariableDef, known []*models.Fact) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Query: %s\n", query)
	if target != "" {
		fmt.Fprintf(&sb, "Target: %s\n", target)
	}
	if len(vars) > 0 {
		sb.WriteString("Expected variables:\n")
		for _, v := range vars {
			fmt.Fprintf(&sb, "- %s", v.Name)
			if v.Type != "" {
				fmt.Fprintf(&sb, " (%s)", v.Type)
			}
			if v.Description != "" {
				fmt.Fprintf(&sb, ": %s", v.Description)
			}
			sb.WriteString("\n")
		}
	}
	if len(known) > 0 {
		sb.WriteString("Known facts (verified, trust over web results):\n")
		for _, f := range known {
			fmt.Fprintf(&sb, "- %s = %s", f.Name, f.Value.String())
			if f.Confidence != nil {
				fmt.Fprintf(&sb, " (confidence %.2f)", *f.Confidence)
			}
			sb.WriteString("\n")
		}
	}
	sb.WriteString("\nYour final answer must be exactly one JSON object of this shape:\n")
	sb.WriteString(finalAnswerSchema)
	sb.WriteString("\n")
	return sb.String()
}
