package agent

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magpie-ai/magpie/pkg/models"
	"github.com/magpie-ai/magpie/pkg/tools"
)

func TestClampConfidence(t *testing.T) {
	assert.Equal(t, 0.5, clampConfidence(0))
	assert.Equal(t, 0.5, clampConfidence(-3))
	assert.Equal(t, 0.7, clampConfidence(0.7))
	assert.Equal(t, 1.0, clampConfidence(1.0))
	assert.Equal(t, 1.0, clampConfidence(4.2))
}

func TestContextVariable(t *testing.T) {
	subject := &models.Subject{Name: "Acme", Type: models.EntityCompany, CanonicalID: "id-1"}
	now := time.Now().UTC()

	t.Run("wraps raw text", func(t *testing.T) {
		v := contextVariable(subject, "  Acme builds robots.  ", now)
		assert.Equal(t, "context", v.Name)
		assert.Equal(t, models.DTypeText, v.DType)
		assert.Equal(t, models.StringValue("Acme builds robots."), v.Value)
		assert.Equal(t, 0.5, v.Confidence)
		require.NotNil(t, v.Subject)
		assert.Equal(t, "Acme", v.Subject.Name)
	})

	t.Run("truncates long text", func(t *testing.T) {
		v := contextVariable(subject, strings.Repeat("a", 5000), now)
		assert.Len(t, v.Value.Str, contextValueLimit)
	})

	t.Run("truncation never splits a rune", func(t *testing.T) {
		// 3-byte runes, so the byte limit falls mid-rune
		v := contextVariable(subject, strings.Repeat("日", 700), now)
		assert.True(t, utf8.ValidString(v.Value.Str))
		assert.Less(t, len(v.Value.Str), contextValueLimit)
	})

	t.Run("empty text gets a placeholder", func(t *testing.T) {
		v := contextVariable(subject, "   ", now)
		assert.Equal(t, models.StringValue("no answer produced"), v.Value)
	})
}

func TestClip(t *testing.T) {
	s := strings.Repeat("日", 10)
	got := clip(s, 10)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, 9, len(got))
	assert.Equal(t, s, clip(s, len(s)))
	assert.Equal(t, "abc", clip("abc", 5))
}

func TestOverlayKnownFacts(t *testing.T) {
	conf := func(c float64) *float64 { return &c }
	subject := &models.Subject{Name: "Acme", Type: models.EntityCompany, CanonicalID: "ent-1"}

	newVars := func() []models.MagicVariable {
		return []models.MagicVariable{{
			Subject:    subject,
			Name:       "ceo_name",
			DType:      models.DTypeString,
			Value:      models.StringValue("John Doe"),
			Confidence: 0.6,
			Sources:    []models.Source{{URL: "https://example.com/a"}},
		}}
	}

	t.Run("higher stored confidence wins", func(t *testing.T) {
		vars := newVars()
		overlayKnownFacts(vars, map[string]*models.Fact{
			"ceo_name": {
				EntityID:   "ent-1",
				Name:       "ceo_name",
				Value:      models.StringValue("Jane Smith"),
				DType:      models.DTypeString,
				Confidence: conf(0.9),
				Sources:    []models.Source{{Title: "Registry", URL: "https://registry.example/acme"}},
			},
		})
		assert.Equal(t, models.StringValue("Jane Smith"), vars[0].Value)
		assert.Equal(t, 0.9, vars[0].Confidence)
		require.NotEmpty(t, vars[0].Sources)
		assert.Equal(t, "https://registry.example/acme", vars[0].Sources[0].URL)
		assert.Len(t, vars[0].Sources, 2)
	})

	t.Run("sourceless stored fact gets the trusted placeholder", func(t *testing.T) {
		vars := newVars()
		overlayKnownFacts(vars, map[string]*models.Fact{
			"ceo_name": {
				EntityID:   "ent-1",
				Name:       "ceo_name",
				Value:      models.StringValue("Jane Smith"),
				Confidence: conf(0.8),
			},
		})
		assert.Equal(t, "about:trusted-fact", vars[0].Sources[0].URL)
	})

	t.Run("lower stored confidence loses", func(t *testing.T) {
		vars := newVars()
		overlayKnownFacts(vars, map[string]*models.Fact{
			"ceo_name": {EntityID: "ent-1", Name: "ceo_name", Value: models.StringValue("Jane Smith"), Confidence: conf(0.3)},
		})
		assert.Equal(t, models.StringValue("John Doe"), vars[0].Value)
	})

	t.Run("different entity is left alone", func(t *testing.T) {
		vars := newVars()
		overlayKnownFacts(vars, map[string]*models.Fact{
			"ceo_name": {EntityID: "ent-other", Name: "ceo_name", Value: models.StringValue("Jane Smith"), Confidence: conf(0.9)},
		})
		assert.Equal(t, models.StringValue("John Doe"), vars[0].Value)
	})
}

func TestKnownFactList(t *testing.T) {
	assert.Nil(t, knownFactList(nil))

	got := knownFactList(map[string]*models.Fact{
		"revenue":  {Name: "revenue"},
		"ceo_name": {Name: "ceo_name"},
		"hq_city":  {Name: "hq_city"},
	})
	require.Len(t, got, 3)
	assert.Equal(t, "ceo_name", got[0].Name)
	assert.Equal(t, "hq_city", got[1].Name)
	assert.Equal(t, "revenue", got[2].Name)
}

func TestReviewCandidate(t *testing.T) {
	subject := &models.Subject{Name: "Acme", Type: models.EntityCompany}
	router := models.NeutralRouterOutput()

	t.Run("prose is accepted as-is", func(t *testing.T) {
		accepted, candidate, _ := reviewCandidate("Acme makes robots.", subject, router)
		assert.True(t, accepted)
		assert.Equal(t, "Acme makes robots.", candidate)
	})

	t.Run("forbidden variables are dropped silently", func(t *testing.T) {
		r := models.NeutralRouterOutput()
		r.AttrConstraints["salary"] = models.AttrForbidden
		content := `{"variables":[
			{"subject":{"name":"Acme","type":"company"},"name":"salary","dtype":"number","value":1,"confidence":0.9,"sources":[{"url":"https://a.example"},{"url":"https://b.example"}]},
			{"subject":{"name":"Acme","type":"company"},"name":"industry","dtype":"text","value":"robotics","confidence":0.9,"sources":[{"url":"https://a.example"}]}
		]}`
		accepted, candidate, _ := reviewCandidate(content, subject, r)
		require.True(t, accepted)

		var out models.EnrichmentResult
		require.NoError(t, json.Unmarshal([]byte(candidate), &out))
		require.Len(t, out.Variables, 1)
		assert.Equal(t, "industry", out.Variables[0].Name)
	})

	t.Run("default subject is injected", func(t *testing.T) {
		content := `{"variables":[{"name":"industry","dtype":"text","value":"robotics","confidence":0.9,"sources":[{"url":"https://a.example"}]}]}`
		accepted, candidate, _ := reviewCandidate(content, subject, router)
		require.True(t, accepted)

		var out models.EnrichmentResult
		require.NoError(t, json.Unmarshal([]byte(candidate), &out))
		require.NotNil(t, out.Variables[0].Subject)
		assert.Equal(t, "Acme", out.Variables[0].Subject.Name)
	})

	t.Run("missing subject without a default nudges", func(t *testing.T) {
		content := `{"variables":[{"name":"industry","dtype":"text","value":"robotics","confidence":0.9,"sources":[{"url":"https://a.example"}]}]}`
		accepted, _, nudge := reviewCandidate(content, nil, router)
		assert.False(t, accepted)
		assert.Contains(t, nudge, "industry")
		assert.Contains(t, nudge, "subject")
	})

	t.Run("citation failure nudges", func(t *testing.T) {
		content := `{"variables":[{"subject":{"name":"Acme","type":"company"},"name":"founding_date","dtype":"date","value":"1998-09-04","confidence":0.9,"sources":[{"url":"https://a.example"}]}]}`
		accepted, _, nudge := reviewCandidate(content, subject, router)
		assert.False(t, accepted)
		assert.Contains(t, nudge, "Citation check failed")
		assert.Contains(t, nudge, "founding_date")
	})

	t.Run("repeating one url does not satisfy corroboration", func(t *testing.T) {
		content := `{"variables":[{"subject":{"name":"Google","type":"company"},"name":"founding_date","dtype":"date","value":"1998-09-04","confidence":0.9,"sources":[{"url":"https://en.wikipedia.org/wiki/Google"},{"url":"https://en.wikipedia.org/wiki/Google"}]}]}`
		accepted, _, nudge := reviewCandidate(content, subject, router)
		assert.False(t, accepted)
		assert.Contains(t, nudge, "Citation check failed")
	})
}

func TestOutcomeTracker(t *testing.T) {
	tracker := newOutcomeTracker()
	_, ok := tracker.message()
	assert.False(t, ok)

	for i := 0; i < 5; i++ {
		tracker.record("web_search", tools.ExecResult{Quality: i})
	}
	for i := 0; i < 7; i++ {
		tracker.record("latest_finder", tools.ExecResult{IsError: true, Reason: "budget exhausted"})
	}

	msg, ok := tracker.message()
	require.True(t, ok)
	assert.Equal(t, models.RoleUser, msg.Role)

	var payload struct {
		ToolOutcomes struct {
			Successes []toolOutcome `json:"successes"`
			Failures  []toolOutcome `json:"failures"`
		} `json:"tool_outcomes"`
		Instruction string `json:"instruction"`
	}
	require.NoError(t, json.Unmarshal([]byte(msg.Content), &payload))
	assert.Len(t, payload.ToolOutcomes.Successes, outcomeKeepSuccesses)
	assert.Len(t, payload.ToolOutcomes.Failures, outcomeKeepFailures)
	// most recent successes survive
	assert.Equal(t, 4, payload.ToolOutcomes.Successes[len(payload.ToolOutcomes.Successes)-1].Quality)
	assert.Contains(t, payload.Instruction, "Do not repeat")
}
