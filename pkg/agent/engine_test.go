package agent

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magpie-ai/magpie/pkg/config"
	"github.com/magpie-ai/magpie/pkg/llm"
	"github.com/magpie-ai/magpie/pkg/models"
	"github.com/magpie-ai/magpie/pkg/search"
	"github.com/magpie-ai/magpie/pkg/services"
	"github.com/magpie-ai/magpie/pkg/session"
	"github.com/magpie-ai/magpie/pkg/webpage"
	"github.com/magpie-ai/magpie/test/util"
)

// scriptedReasoner routes the auxiliary calls by their system prompt and pops
// main-loop responses from a queue. Every request is recorded for assertions.
type scriptedReasoner struct {
	intent  string
	router  string
	summary string
	main    []llm.ChatResponse

	requests []llm.ChatRequest
}

func (r *scriptedReasoner) Chat(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	r.requests = append(r.requests, req)
	if len(req.Messages) > 0 && req.Messages[0].Role == models.RoleSystem {
		switch req.Messages[0].Content {
		case intentSystemPrompt:
			return &llm.ChatResponse{Content: r.intent}, nil
		case routerSystemPrompt:
			return &llm.ChatResponse{Content: r.router}, nil
		case summarySystemPrompt:
			return &llm.ChatResponse{Content: r.summary}, nil
		}
	}
	if len(r.main) == 0 {
		return &llm.ChatResponse{Content: "{}"}, nil
	}
	resp := r.main[0]
	r.main = r.main[1:]
	return &resp, nil
}

type scriptedSearch struct {
	results []search.Result
	queries []search.Query
}

func (s *scriptedSearch) Search(_ context.Context, q search.Query) ([]search.Result, error) {
	s.queries = append(s.queries, q)
	return s.results, nil
}

type engineFixture struct {
	engine   *Engine
	reasoner *scriptedReasoner
	search   *scriptedSearch
	entities *services.EntityService
	facts    *services.FactService
	memory   *services.MemoryService
	history  *session.HistoryManager
}

func newEngineFixture(t *testing.T, reasoner *scriptedReasoner) *engineFixture {
	t.Helper()
	pool := util.SetupTestDatabase(t)

	cfg := &config.Config{Model: "gpt-test", InferenceModel: "gpt-test-mini", ChatMemoryWindow: 8}
	backend := &scriptedSearch{}
	entities := services.NewEntityService(pool)
	facts := services.NewFactService(pool, entities)
	memory := services.NewMemoryService(pool)
	history := session.NewHistoryManager(cfg.ChatMemoryWindow)

	return &engineFixture{
		engine:   New(cfg, reasoner, backend, webpage.NewFetcher(2), entities, facts, memory, history),
		reasoner: reasoner,
		search:   backend,
		entities: entities,
		facts:    facts,
		memory:   memory,
		history:  history,
	}
}

// sawUserMessage reports whether any recorded request carried a user message
// containing the fragment.
func (r *scriptedReasoner) sawUserMessage(fragment string) bool {
	for _, req := range r.requests {
		for _, m := range req.Messages {
			if m.Role == models.RoleUser && strings.Contains(m.Content, fragment) {
				return true
			}
		}
	}
	return false
}

func TestEnrich_BooleanAnswer(t *testing.T) {
	final := `{"intent":"boolean","variables":[{
		"subject":{"name":"OpenAI","type":"company"},
		"name":"is_profitable","dtype":"boolean","value":false,"confidence":0.7,
		"sources":[{"title":"Reuters","url":"https://www.reuters.com/openai-finances"}]}]}`
	fx := newEngineFixture(t, &scriptedReasoner{
		intent: `{"intent":"boolean","target":"OpenAI"}`,
		router: `{"entity_type":"company","evidence_policy":{"min_corroboration":1}}`,
		main:   []llm.ChatResponse{{Content: final}},
	})

	result, err := fx.engine.Enrich(context.Background(), Request{
		Query:     "Is OpenAI profitable?",
		Intensity: config.IntensityMedium,
	})
	require.NoError(t, err)

	assert.Equal(t, models.IntentBoolean, result.Intent)
	require.Len(t, result.Variables, 1)
	v := result.Variables[0]
	assert.Equal(t, "is_profitable", v.Name)
	assert.Equal(t, models.DTypeBoolean, v.DType)
	assert.Equal(t, models.BoolValue(false), v.Value)
	assert.InDelta(t, 0.7, v.Confidence, 1e-9)
	require.NotNil(t, v.Subject)
	require.NotEmpty(t, v.Subject.CanonicalID)
	require.NotNil(t, v.ObservedAt)

	// the answer was persisted as a current fact
	fact, err := fx.facts.GetFact(context.Background(), v.Subject.CanonicalID, "is_profitable")
	require.NoError(t, err)
	require.NotNil(t, fact)
	assert.Equal(t, models.BoolValue(false), fact.Value)
}

func TestEnrich_TrustedFactOverridesResearch(t *testing.T) {
	fx := newEngineFixture(t, &scriptedReasoner{
		intent: `{"intent":"specific","target":"Acme Robotics"}`,
		router: `{"entity_type":"company","evidence_policy":{"min_corroboration":1}}`,
		main: []llm.ChatResponse{{Content: `{"intent":"specific","variables":[{
			"subject":{"name":"Acme Robotics","type":"company"},
			"name":"ceo_name","dtype":"string","value":"John Doe","confidence":0.6,
			"sources":[{"url":"https://blog.example/acme"},{"url":"https://news.example/acme"}]}]}`}},
	})
	ctx := context.Background()

	_, err := fx.entities.Resolve(ctx, "Acme Robotics", "company")
	require.NoError(t, err)
	require.NoError(t, fx.facts.SetTrustedFact(ctx, models.TrustedFactInput{
		Entity: "Acme Robotics", Field: "ceo_name", Value: models.StringValue("Jane Smith"),
	}))

	result, err := fx.engine.Enrich(ctx, Request{
		Query:     "Who is the CEO of Acme Robotics?",
		Entity:    "Acme Robotics",
		Intensity: config.IntensityMedium,
	})
	require.NoError(t, err)

	require.Len(t, result.Variables, 1)
	v := result.Variables[0]
	assert.Equal(t, "ceo_name", v.Name)
	assert.Equal(t, models.StringValue("Jane Smith"), v.Value)
	assert.InDelta(t, 0.75, v.Confidence, 1e-9)
	require.NotEmpty(t, v.Sources)
	assert.Equal(t, "about:trusted-fact", v.Sources[0].URL)

	// the stored fact was surfaced to the model up front
	assert.True(t, fx.reasoner.sawUserMessage("Known facts"))
	assert.True(t, fx.reasoner.sawUserMessage("ceo_name"))
}

func TestEnrich_CorroborationNudgeThenAccept(t *testing.T) {
	oneSource := `{"intent":"specific","variables":[{
		"subject":{"name":"Google","type":"company"},
		"name":"founding_date","dtype":"date","value":"1998-09-04","confidence":0.8,
		"sources":[{"url":"https://en.wikipedia.org/wiki/Google"}]}]}`
	twoSources := `{"intent":"specific","variables":[{
		"subject":{"name":"Google","type":"company"},
		"name":"founding_date","dtype":"date","value":"1998-09-04","confidence":0.85,
		"sources":[{"url":"https://en.wikipedia.org/wiki/Google"},{"url":"https://www.britannica.com/topic/Google-Inc"}]}]}`
	fx := newEngineFixture(t, &scriptedReasoner{
		intent: `{"intent":"specific","target":"Google"}`,
		router: `{"entity_type":"company","evidence_policy":{"min_corroboration":1}}`,
		main:   []llm.ChatResponse{{Content: oneSource}, {Content: twoSources}},
	})

	result, err := fx.engine.Enrich(context.Background(), Request{
		Query:     "When was Google founded?",
		Variables: []models.VariableDef{{Name: "founding_date", Type: "date"}},
		Intensity: config.IntensityMedium,
	})
	require.NoError(t, err)

	require.Len(t, result.Variables, 1)
	assert.Equal(t, "founding_date", result.Variables[0].Name)
	assert.Len(t, result.Variables[0].Sources, 2)

	// the single-source attempt was rejected with a corroboration nudge
	assert.True(t, fx.reasoner.sawUserMessage("needs >= 2 agreeing sources"))
}

func TestEnrich_ForcedFinalAtStepBudget(t *testing.T) {
	toolCall := func(id, query string) llm.ChatResponse {
		return llm.ChatResponse{ToolCalls: []models.ToolCall{{
			ID:        id,
			Name:      "web_search",
			Arguments: fmt.Sprintf(`{"query":%q,"include_content":false}`, query),
		}}}
	}
	fx := newEngineFixture(t, &scriptedReasoner{
		intent: `{"intent":"contextual","target":"OpenAI"}`,
		router: `{"vocab_hints":{"boost":["revenue","profitability"]}}`,
		main: []llm.ChatResponse{
			toolCall("call_1", "OpenAI profitability"),
			toolCall("call_2", "OpenAI revenue growth"),
			{Content: "OpenAI's finances remain opaque."},
		},
	})
	fx.search.results = []search.Result{{Title: "A", URL: "https://example.com/a", Snippet: "snippet"}}

	// low intensity allows 3 steps: two tool rounds, then the forced final
	result, err := fx.engine.Enrich(context.Background(), Request{
		Query:     "Is OpenAI profitable?",
		Intensity: config.IntensityLow,
	})
	require.NoError(t, err)

	assert.Len(t, fx.search.queries, 2)

	last := fx.reasoner.requests[len(fx.reasoner.requests)-1]
	assert.Empty(t, last.Tools)
	assert.Contains(t, last.Messages[len(last.Messages)-1].Content, "Stop using tools")

	// prose final degrades to the context fallback on the run's subject
	require.Len(t, result.Variables, 1)
	v := result.Variables[0]
	assert.Equal(t, "context", v.Name)
	assert.Equal(t, models.DTypeText, v.DType)
	assert.Contains(t, v.Value.Str, "finances remain opaque")
	require.NotNil(t, v.Subject)
	assert.Equal(t, "OpenAI", v.Subject.Name)
	assert.Contains(t, result.Notes, "not valid JSON")
}

func TestEnrich_ForcedFinalDropsForbiddenVariable(t *testing.T) {
	final := `{"intent":"specific","variables":[
		{"subject":{"name":"Acme","type":"company"},"name":"employee_ssn","dtype":"string","value":"123-45-6789","confidence":0.9,
		 "sources":[{"url":"https://a.example"},{"url":"https://b.example"}]},
		{"subject":{"name":"Acme","type":"company"},"name":"industry","dtype":"text","value":"robotics","confidence":0.8,
		 "sources":[{"url":"https://a.example"}]}]}`
	fx := newEngineFixture(t, &scriptedReasoner{
		intent: `{"intent":"specific","target":"Acme"}`,
		router: `{"entity_type":"company","attr_constraints":{"employee_ssn":"forbidden"},"evidence_policy":{"min_corroboration":1}}`,
		main:   []llm.ChatResponse{{Content: final}},
	})
	// A single permitted step makes the first answer the forced, ungated one.
	fx.engine.cfg.MaxStepsCap = 1
	ctx := context.Background()

	result, err := fx.engine.Enrich(ctx, Request{
		Query:     "Tell me about Acme",
		Intensity: config.IntensityLow,
	})
	require.NoError(t, err)

	last := fx.reasoner.requests[len(fx.reasoner.requests)-1]
	assert.Empty(t, last.Tools)

	// the forbidden name is filtered even on the forced final
	require.Len(t, result.Variables, 1)
	assert.Equal(t, "industry", result.Variables[0].Name)

	ref, err := fx.entities.TryResolveExisting(ctx, "Acme")
	require.NoError(t, err)
	require.NotNil(t, ref)
	forbidden, err := fx.facts.GetFact(ctx, ref.ID, "employee_ssn")
	require.NoError(t, err)
	assert.Nil(t, forbidden)
	persisted, err := fx.facts.GetFact(ctx, ref.ID, "industry")
	require.NoError(t, err)
	assert.NotNil(t, persisted)
}

func TestEnrich_CorrectionCreatesUnknownEntity(t *testing.T) {
	fx := newEngineFixture(t, &scriptedReasoner{
		main: []llm.ChatResponse{{Content: `{"variables":[]}`}},
	})
	ctx := context.Background()

	result, err := fx.engine.Enrich(ctx, Request{
		Query: "Tell me about Newco",
		Corrections: []models.TrustedFactInput{{
			Entity: "Newco", Field: "hq_city", Value: models.StringValue("Berlin"),
		}},
	})
	require.NoError(t, err)
	assert.NotContains(t, result.Notes, "not applied")

	ref, err := fx.entities.TryResolveExisting(ctx, "Newco")
	require.NoError(t, err)
	require.NotNil(t, ref)
	assert.Equal(t, models.EntityOther, ref.Type)

	fact, err := fx.facts.GetFact(ctx, ref.ID, "hq_city")
	require.NoError(t, err)
	require.NotNil(t, fact)
	assert.Equal(t, models.StringValue("Berlin"), fact.Value)
	require.NotNil(t, fact.Confidence)
	assert.InDelta(t, 0.75, *fact.Confidence, 1e-9)
}

func TestEnrich_SessionHistoryCarriesOver(t *testing.T) {
	fx := newEngineFixture(t, &scriptedReasoner{
		intent: `{"intent":"contextual","target":"Acme"}`,
		router: `{}`,
		main:   []llm.ChatResponse{{Content: "Acme builds robots."}},
	})

	_, err := fx.engine.Enrich(context.Background(), Request{
		Query:     "Tell me about Acme",
		SessionID: "sess-1",
		Intensity: config.IntensityLow,
	})
	require.NoError(t, err)

	msgs := fx.history.Get("sess-1")
	require.NotEmpty(t, msgs)
	assert.Equal(t, models.RoleAssistant, msgs[len(msgs)-1].Role)
}

func TestSummarizeSession(t *testing.T) {
	fx := newEngineFixture(t, &scriptedReasoner{
		summary: `{"bullets":["Researches European robotics companies","ok","Prefers revenue figures stated in EUR"]}`,
	})
	fx.engine.history = session.NewHistoryManager(2)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		fx.engine.history.Append("sess-1", models.ChatMessage{
			Role: models.RoleUser, Content: fmt.Sprintf("question %d about robotics", i),
		})
	}
	fx.engine.summarizeSession(ctx, "sess-1", "ana")

	entries, err := fx.memory.Get(ctx, "ana")
	require.NoError(t, err)
	require.Len(t, entries, 2) // the too-short bullet is dropped

	texts := make(map[string]bool)
	for _, e := range entries {
		texts[e.Text] = true
		assert.Contains(t, e.Tags, "summary")
	}
	assert.True(t, texts["Researches European robotics companies"])
	assert.True(t, texts["Prefers revenue figures stated in EUR"])
}

func TestSummarizeSession_SkipsShortSessions(t *testing.T) {
	r := &scriptedReasoner{summary: `{"bullets":["should never be asked"]}`}
	fx := newEngineFixture(t, r)

	fx.engine.history.Append("sess-1", models.ChatMessage{Role: models.RoleUser, Content: "hi"})
	fx.engine.summarizeSession(context.Background(), "sess-1", "ana")

	assert.Empty(t, r.requests)
	entries, err := fx.memory.Get(context.Background(), "ana")
	require.NoError(t, err)
	assert.Empty(t, entries)
}
