// Package agent orchestrates one research run: intent classification, the
// inference-router pre-pass, the bounded reason-act loop over the tool
// runtime, the citation-gated finalizer, and the session summariser.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/magpie-ai/magpie/pkg/citation"
	"github.com/magpie-ai/magpie/pkg/config"
	"github.com/magpie-ai/magpie/pkg/llm"
	"github.com/magpie-ai/magpie/pkg/models"
	"github.com/magpie-ai/magpie/pkg/search"
	"github.com/magpie-ai/magpie/pkg/services"
	"github.com/magpie-ai/magpie/pkg/session"
	"github.com/magpie-ai/magpie/pkg/tools"
	"github.com/magpie-ai/magpie/pkg/webpage"
)

// Engine wires the capabilities an agent run needs. Safe for concurrent use:
// per-run state (tool registry, budgets, messages) lives on the stack of run.
type Engine struct {
	cfg      *config.Config
	reasoner llm.Reasoner
	search   search.Backend
	fetcher  *webpage.Fetcher
	entities *services.EntityService
	facts    *services.FactService
	memory   *services.MemoryService
	history  *session.HistoryManager
	clock    func() time.Time
}

// New creates an Engine.
func New(
	cfg *config.Config,
	reasoner llm.Reasoner,
	backend search.Backend,
	fetcher *webpage.Fetcher,
	entities *services.EntityService,
	facts *services.FactService,
	memory *services.MemoryService,
	history *session.HistoryManager,
) *Engine {
	return &Engine{
		cfg:      cfg,
		reasoner: reasoner,
		search:   backend,
		fetcher:  fetcher,
		entities: entities,
		facts:    facts,
		memory:   memory,
		history:  history,
		clock:    func() time.Time { return time.Now().UTC() },
	}
}

// Request is one enrichment job.
type Request struct {
	Query       string
	Variables   []models.VariableDef
	SessionID   string
	Username    string
	Entity      string
	Intensity   config.Intensity
	Corrections []models.TrustedFactInput
}

// Enrich applies any corrections, runs the research loop, then lets the
// summariser condense the session into long-term memory.
func (e *Engine) Enrich(ctx context.Context, req Request) (*models.EnrichmentResult, error) {
	notes := e.applyCorrections(ctx, req.Corrections)

	result, err := e.run(ctx, runInput{
		query:      req.Query,
		variables:  req.Variables,
		sessionID:  req.SessionID,
		entityHint: req.Entity,
		intensity:  req.Intensity,
		extraNotes: notes,
	})
	if err != nil {
		return nil, err
	}

	e.summarizeSession(ctx, req.SessionID, req.Username)
	if req.SessionID != "" {
		e.history.Trim(req.SessionID)
	}
	return result, nil
}

// applyCorrections records operator feedback before the run. A correction
// naming an unknown entity creates it with type "other" and retries, so
// feedback is never silently dropped; failures are reported in the notes.
func (e *Engine) applyCorrections(ctx context.Context, corrections []models.TrustedFactInput) []string {
	var notes []string
	for _, c := range corrections {
		err := e.facts.SetTrustedFact(ctx, c)
		if errors.Is(err, services.ErrEntityUnresolved) {
			if _, rerr := e.entities.Resolve(ctx, c.Entity, string(models.EntityOther)); rerr == nil {
				err = e.facts.SetTrustedFact(ctx, c)
			}
		}
		if err != nil {
			slog.Warn("Correction not applied", "entity", c.Entity, "field", c.Field, "error", err)
			notes = append(notes, fmt.Sprintf("correction for %s.%s not applied: %v", c.Entity, c.Field, err))
		}
	}
	return notes
}

type runInput struct {
	query      string
	variables  []models.VariableDef
	sessionID  string
	entityHint string
	intensity  config.Intensity
	depth      int
	extraNotes []string
}

// run executes the bounded reason-act loop and returns the finalized result.
func (e *Engine) run(ctx context.Context, in runInput) (*models.EnrichmentResult, error) {
	caps := e.cfg.CapsFor(in.intensity)
	now := e.clock()

	intent, target := e.classifyIntent(ctx, in.query)
	router := e.routeInference(ctx, in.query, in.entityHint, in.variables)

	defaultSubject, known := e.setupSubject(ctx, in.entityHint, target, router)

	runtime := tools.NewRuntime(tools.Deps{
		Search:         e.search,
		Fetcher:        e.fetcher,
		Entities:       e.entities,
		Facts:          e.facts,
		Reasoner:       e.reasoner,
		AuxModel:       e.cfg.InferenceModel,
		NestedResearch: e.nestedResearch,
		Clock:          e.clock,
	}, caps.MaxWebSearches, in.depth, e.relevanceVocabulary(in, target, router))

	messages := []models.ChatMessage{
		{Role: models.RoleSystem, Content: buildSystemPrompt(now, caps, router)},
	}
	if in.sessionID != "" {
		messages = append(messages, e.history.Get(in.sessionID)...)
	}
	intro := models.ChatMessage{
		Role:    models.RoleUser,
		Content: buildIntroMessage(in.query, target, in.variables, knownFactList(known)),
	}
	messages = append(messages, intro)
	e.remember(in.sessionID, intro)

	tracker := newOutcomeTracker()
	var finalText string

	for step := 1; step <= caps.MaxSteps && finalText == ""; step++ {
		// The final permitted step forbids tools and takes whatever comes back.
		if step == caps.MaxSteps {
			stop := models.ChatMessage{
				Role:    models.RoleUser,
				Content: "Stop using tools now. Produce only the final JSON answer.",
			}
			messages = append(messages, stop)
			e.remember(in.sessionID, stop)

			resp, err := e.reasoner.Chat(ctx, llm.ChatRequest{Model: e.cfg.Model, Messages: messages})
			if err != nil {
				return nil, fmt.Errorf("reasoner failed: %w", err)
			}
			finalText = resp.Content
			e.remember(in.sessionID, models.ChatMessage{Role: models.RoleAssistant, Content: resp.Content})
			break
		}

		resp, err := e.reasoner.Chat(ctx, llm.ChatRequest{
			Model:    e.cfg.Model,
			Messages: messages,
			Tools:    runtime.Definitions(),
		})
		if err != nil {
			return nil, fmt.Errorf("reasoner failed: %w", err)
		}

		assistant := models.ChatMessage{
			Role:      models.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		}
		messages = append(messages, assistant)
		e.remember(in.sessionID, assistant)

		if len(resp.ToolCalls) == 0 {
			accepted, candidate, nudge := reviewCandidate(resp.Content, defaultSubject, router)
			if accepted {
				finalText = candidate
				break
			}
			msg := models.ChatMessage{Role: models.RoleUser, Content: nudge}
			messages = append(messages, msg)
			e.remember(in.sessionID, msg)
			continue
		}

		for _, call := range resp.ToolCalls {
			res := runtime.Execute(ctx, call)
			tracker.record(call.Name, res)
			toolMsg := models.ChatMessage{
				Role:       models.RoleTool,
				Content:    res.Content,
				ToolCallID: call.ID,
				ToolName:   call.Name,
			}
			messages = append(messages, toolMsg)
			e.remember(in.sessionID, toolMsg)
		}
		if msg, ok := tracker.message(); ok {
			messages = append(messages, msg)
			e.remember(in.sessionID, msg)
		}
	}

	slog.Info("Agent run finished",
		"query", in.query, "depth", in.depth, "web_searches", runtime.WebSearchesUsed())

	return e.finalize(ctx, finalText, intent, defaultSubject, router, known, in.extraNotes), nil
}

// setupSubject resolves the entity hint against the store and loads the
// entity's stored facts. An unknown hint (or a bare intent target) still
// yields a default subject so answers can be attributed.
func (e *Engine) setupSubject(ctx context.Context, entityHint, target string, router *models.RouterOutput) (*models.Subject, map[string]*models.Fact) {
	if entityHint != "" {
		ref, err := e.entities.TryResolveExisting(ctx, entityHint)
		if err != nil {
			slog.Warn("Entity hint lookup failed", "entity", entityHint, "error", err)
		}
		if ref != nil {
			subject := &models.Subject{Name: ref.Name, Type: ref.Type, CanonicalID: ref.ID}
			return subject, e.loadKnownFacts(ctx, ref.ID)
		}
		return &models.Subject{Name: entityHint, Type: subjectType(router.EntityType)}, nil
	}
	if target != "" {
		return &models.Subject{Name: target, Type: subjectType(router.EntityType)}, nil
	}
	return nil, nil
}

func (e *Engine) loadKnownFacts(ctx context.Context, entityID string) map[string]*models.Fact {
	facts, err := e.facts.GetFactsForEntity(ctx, entityID)
	if err != nil {
		slog.Warn("Stored fact lookup failed", "entity_id", entityID, "error", err)
		return nil
	}
	byName := make(map[string]*models.Fact, len(facts))
	for _, f := range facts {
		byName[f.Name] = f
	}
	return byName
}

// relevanceVocabulary builds the token set the web-search guard accepts.
func (e *Engine) relevanceVocabulary(in runInput, target string, router *models.RouterOutput) []string {
	names := make([]string, 0, len(in.variables))
	for _, v := range in.variables {
		names = append(names, strings.ReplaceAll(v.Name, "_", " "))
	}
	return tools.RelevanceTokens(
		in.query,
		in.entityHint,
		target,
		strings.Join(names, " "),
		strings.Join(router.VocabHints.Boost, " "),
	)
}

// reviewCandidate inspects a no-tools assistant message as a candidate final
// answer: it injects the default subject, silently drops forbidden variable
// names, and runs the citation gate. A rejection returns the nudge message to
// send; unparseable content is accepted as-is for the finalizer to handle.
func reviewCandidate(content string, defaultSubject *models.Subject, router *models.RouterOutput) (bool, string, string) {
	var candidate models.EnrichmentResult
	if err := json.Unmarshal([]byte(content), &candidate); err != nil {
		return true, content, ""
	}

	kept := make([]models.MagicVariable, 0, len(candidate.Variables))
	var missing []string
	for _, v := range candidate.Variables {
		if router.AttrConstraints[v.Name] == models.AttrForbidden {
			continue
		}
		if v.Subject == nil || strings.TrimSpace(v.Subject.Name) == "" {
			if defaultSubject != nil {
				s := *defaultSubject
				v.Subject = &s
			} else {
				missing = append(missing, v.Name)
			}
		}
		kept = append(kept, v)
	}
	candidate.Variables = kept

	if len(missing) > 0 {
		return false, "", fmt.Sprintf(
			"Every variable needs a subject naming the entity it is about. Missing on: %s. Re-emit the final JSON with subjects filled in.",
			strings.Join(missing, ", "))
	}

	gate := citation.Check(candidate.Variables, router.EvidencePolicy)
	if !gate.OK {
		return false, "", "Citation check failed:\n- " + strings.Join(gate.Issues, "\n- ") +
			"\nRun more searches to gather the missing corroboration, then re-emit the final JSON."
	}

	encoded, err := json.Marshal(candidate)
	if err != nil {
		return true, content, ""
	}
	return true, string(encoded), ""
}

// nestedResearch is injected into the tool runtime so knowledge_query can
// recurse into a bounded low-intensity run that persists the missing fact.
func (e *Engine) nestedResearch(ctx context.Context, entity, variableName string, depth int) error {
	slog.Info("Nested research", "entity", entity, "variable", variableName, "depth", depth)
	_, err := e.run(ctx, runInput{
		query:      fmt.Sprintf("What is the %s of %s?", strings.ReplaceAll(variableName, "_", " "), entity),
		variables:  []models.VariableDef{{Name: variableName}},
		entityHint: entity,
		intensity:  config.IntensityLow,
		depth:      depth,
	})
	return err
}

func (e *Engine) remember(sessionID string, msgs ...models.ChatMessage) {
	if sessionID == "" {
		return
	}
	e.history.Append(sessionID, msgs...)
}

func subjectType(t models.EntityType) models.EntityType {
	if t == "" {
		return models.EntityOther
	}
	return t
}

func knownFactList(known map[string]*models.Fact) []*models.Fact {
	if len(known) == 0 {
		return nil
	}
	names := make([]string, 0, len(known))
	for name := range known {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]*models.Fact, 0, len(names))
	for _, name := range names {
		out = append(out, known[name])
	}
	return out
}
