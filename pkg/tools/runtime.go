// Package tools implements the schema-validated tool runtime the reasoner
// calls into: web_search, latest_finder, knowledge_query, and
// evaluate_plausibility, with per-run deduplication, caching, and budgets.
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/magpie-ai/magpie/pkg/llm"
	"github.com/magpie-ai/magpie/pkg/models"
	"github.com/magpie-ai/magpie/pkg/search"
	"github.com/magpie-ai/magpie/pkg/services"
)

// PageFetcher downloads pages in parallel, keyed by URL. Failed pages are
// simply absent from the map.
type PageFetcher interface {
	FetchAll(ctx context.Context, urls []string) map[string]string
}

// maxKnowledgeDepth bounds the knowledge_query → nested agent run recursion.
const maxKnowledgeDepth = 2

// NestedResearchFunc runs a nested agent run that fetches and persists the
// named fact for the entity. Implemented by the agent package; depth is the
// nesting level of the run that triggered it.
type NestedResearchFunc func(ctx context.Context, entity, variableName string, depth int) error

// Deps are the external capabilities a runtime instance closes over.
type Deps struct {
	Search         search.Backend
	Fetcher        PageFetcher
	Entities       *services.EntityService
	Facts          *services.FactService
	Reasoner       llm.Reasoner
	AuxModel       string
	NestedResearch NestedResearchFunc
	Clock          func() time.Time
}

// Runtime is the per-run tool executor. Not safe for concurrent use: the
// agent loop is strictly sequential, so no locking is needed. State (the
// fingerprint registry, result cache, and web budget) lives for one run.
type Runtime struct {
	deps  Deps
	depth int

	maxWebSearches int
	webUsed        int

	relevance map[string]bool

	registry map[string]bool
	cache    map[string]string
}

// ExecResult is one tool invocation's outcome.
type ExecResult struct {
	Content string
	IsError bool
	// Quality is a coarse success metric (e.g. result count) used by the
	// outcome tracker to steer the model toward productive calls.
	Quality int
	Reason  string
}

// NewRuntime creates a runtime for one agent run. relevanceTokens is the
// vocabulary the web-search guard accepts; depth is the nesting level.
func NewRuntime(deps Deps, maxWebSearches, depth int, relevanceTokens []string) *Runtime {
	if deps.Clock == nil {
		deps.Clock = func() time.Time { return time.Now().UTC() }
	}
	relevance := make(map[string]bool, len(relevanceTokens))
	for _, tok := range relevanceTokens {
		if t := normalizeToken(tok); t != "" {
			relevance[t] = true
		}
	}
	return &Runtime{
		deps:           deps,
		depth:          depth,
		maxWebSearches: maxWebSearches,
		relevance:      relevance,
		registry:       make(map[string]bool),
		cache:          make(map[string]string),
	}
}

// Definitions returns the tool definitions handed to the reasoner.
// A nested run past the knowledge depth limit does not expose
// knowledge_query, breaking the recursion cycle.
func (r *Runtime) Definitions() []llm.ToolDefinition {
	defs := []llm.ToolDefinition{
		{
			Name:        ToolWebSearch,
			Description: "Search the web. Returns an array of {title, url, snippet, content} results.",
			Parameters:  SchemaParameters(ToolWebSearch),
		},
		{
			Name:        ToolLatestFinder,
			Description: "Find the most recent dated development on a topic, corroborated across credible sources.",
			Parameters:  SchemaParameters(ToolLatestFinder),
		},
		{
			Name:        ToolEvaluatePlausibility,
			Description: "Evaluate whether claims are plausible. Use to adjudicate conflicting information.",
			Parameters:  SchemaParameters(ToolEvaluatePlausibility),
		},
	}
	if r.depth < maxKnowledgeDepth {
		defs = append(defs, llm.ToolDefinition{
			Name:        ToolKnowledgeQuery,
			Description: "Look up stored facts about a known entity. Does not create entities.",
			Parameters:  SchemaParameters(ToolKnowledgeQuery),
		})
	}
	return defs
}

// Execute runs one tool call. Panics never escape and thrown errors are
// rewritten into TOOL_EXECUTION_ERROR strings the model can read.
func (r *Runtime) Execute(ctx context.Context, call models.ToolCall) ExecResult {
	fp := Fingerprint(call.Name, call.Arguments)
	if r.registry[fp] {
		if cached, ok := r.cache[fp]; ok {
			return ExecResult{Content: cached, Quality: 1}
		}
		return ExecResult{
			Content: errorPayload("Duplicate tool call blocked"),
			IsError: true,
			Reason:  "duplicate call",
		}
	}
	args, errPayload := validateArgs(call.Name, call.Arguments)
	if errPayload != "" {
		// Not registered: a repeated invalid call should see the repairable
		// schema error again, not a duplicate block.
		return ExecResult{Content: errPayload, IsError: true, Reason: "schema validation"}
	}
	r.registry[fp] = true

	result := r.dispatch(ctx, call.Name, args)
	if !result.IsError && cacheable(call.Name) {
		r.cache[fp] = result.Content
	}
	return result
}

func (r *Runtime) dispatch(ctx context.Context, name string, args map[string]any) (result ExecResult) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("Tool panicked", "tool", name, "panic", rec)
			result = ExecResult{
				Content: fmt.Sprintf("TOOL_EXECUTION_ERROR: %v", rec),
				IsError: true,
				Reason:  fmt.Sprintf("panic: %v", rec),
			}
		}
	}()

	switch name {
	case ToolWebSearch:
		return r.webSearch(ctx, args)
	case ToolLatestFinder:
		return r.latestFinder(ctx, args)
	case ToolKnowledgeQuery:
		return r.knowledgeQuery(ctx, args)
	case ToolEvaluatePlausibility:
		return r.evaluatePlausibility(ctx, args)
	default:
		return ExecResult{Content: errorPayload("unknown tool " + name), IsError: true, Reason: "unknown tool"}
	}
}

// consumeWebBudget reserves one budgeted web call. Both web_search and
// latest_finder draw from the same budget.
func (r *Runtime) consumeWebBudget() bool {
	if r.webUsed >= r.maxWebSearches {
		return false
	}
	r.webUsed++
	return true
}

// WebSearchesUsed reports how many budgeted web calls this run has made.
func (r *Runtime) WebSearchesUsed() int { return r.webUsed }

// cacheable tools replay their first result on duplicate calls; budgeted web
// tools are refused outright so the budget stays meaningful.
func cacheable(name string) bool {
	return name == ToolKnowledgeQuery || name == ToolEvaluatePlausibility
}

func execError(err error, reason string) ExecResult {
	return ExecResult{
		Content: fmt.Sprintf("TOOL_EXECUTION_ERROR: %v", err),
		IsError: true,
		Reason:  reason,
	}
}
