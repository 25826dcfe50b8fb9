package agent

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/magpie-ai/magpie/pkg/citation"
	"github.com/magpie-ai/magpie/pkg/models"
)

// contextValueLimit caps the synthesised context fallback text.
const contextValueLimit = 2000

// finalize turns the loop's final text into the EnrichmentResult returned to
// the caller: parse, the forbidden-name drop, subject resolution, confidence
// clamping, source normalisation, the stored-fact overlay, and best-effort
// persistence. Forbidden names are filtered here as well as in the loop so
// answers taken verbatim at the step budget get the same treatment.
func (e *Engine) finalize(ctx context.Context, raw string, intent models.Intent, defaultSubject *models.Subject, router *models.RouterOutput, known map[string]*models.Fact, extraNotes []string) *models.EnrichmentResult {
	now := e.clock()
	result := &models.EnrichmentResult{Intent: intent, Variables: []models.MagicVariable{}}
	notes := append([]string{}, extraNotes...)

	var parsed models.EnrichmentResult
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		notes = append(notes, "final answer was not valid JSON; no variables extracted")
	} else {
		result.Variables = parsed.Variables
		if parsed.Notes != "" {
			notes = append(notes, parsed.Notes)
		}
	}

	kept := make([]models.MagicVariable, 0, len(result.Variables))
	for _, v := range result.Variables {
		if router != nil && router.AttrConstraints[v.Name] == models.AttrForbidden {
			continue
		}
		if v.Subject == nil || strings.TrimSpace(v.Subject.Name) == "" {
			if defaultSubject == nil {
				notes = append(notes, "variable "+v.Name+" dropped: no subject")
				continue
			}
			s := *defaultSubject
			v.Subject = &s
		}
		if v.Subject.CanonicalID == "" {
			id, err := e.entities.Resolve(ctx, v.Subject.Name, string(v.Subject.Type))
			if err != nil {
				slog.Warn("Subject resolution failed", "subject", v.Subject.Name, "error", err)
			} else {
				v.Subject.CanonicalID = id
			}
		}
		v.Confidence = clampConfidence(v.Confidence)
		v.Sources = citation.NormalizeSources(v.Sources)
		if v.ObservedAt == nil {
			t := now
			v.ObservedAt = &t
		}
		kept = append(kept, v)
	}
	result.Variables = kept

	if len(result.Variables) == 0 && defaultSubject != nil {
		result.Variables = append(result.Variables, contextVariable(defaultSubject, raw, now))
	}

	overlayKnownFacts(result.Variables, known)
	e.persistVariables(ctx, result.Variables)

	result.Notes = strings.Join(notes, "; ")
	return result
}

// clampConfidence bounds confidence to [0,1]; an absent or non-positive value
// defaults to 0.5.
func clampConfidence(c float64) float64 {
	if c <= 0 {
		return 0.5
	}
	if c > 1 {
		return 1
	}
	return c
}

// contextVariable is the fallback answer when the model produced no variables
// but a default subject exists: a single text variable holding the gathered
// material.
func contextVariable(subject *models.Subject, raw string, now time.Time) models.MagicVariable {
	text := strings.TrimSpace(raw)
	if text == "" {
		text = "no answer produced"
	}
	text = clip(text, contextValueLimit)
	s := *subject
	return models.MagicVariable{
		Subject:    &s,
		Name:       "context",
		DType:      models.DTypeText,
		Value:      models.StringValue(text),
		Confidence: 0.5,
		Sources:    []models.Source{},
		ObservedAt: &now,
	}
}

// clip cuts s to at most n bytes without splitting a multi-byte rune.
func clip(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// overlayKnownFacts replaces a researched value with the stored one when the
// names match on the same entity and the stored confidence is at least as
// high. The stored fact's source is prepended so it leads the citation list.
func overlayKnownFacts(variables []models.MagicVariable, known map[string]*models.Fact) {
	if len(known) == 0 {
		return
	}
	for i := range variables {
		v := &variables[i]
		fact := known[v.Name]
		if fact == nil || v.Subject == nil || v.Subject.CanonicalID != fact.EntityID {
			continue
		}
		confidence := 0.5
		if fact.Confidence != nil {
			confidence = *fact.Confidence
		}
		if confidence < v.Confidence {
			continue
		}
		v.Value = fact.Value
		v.DType = fact.DType
		v.Confidence = confidence

		lead := models.Source{Title: "Trusted fact", URL: "about:trusted-fact"}
		if len(fact.Sources) > 0 {
			lead = fact.Sources[0]
		}
		v.Sources = append([]models.Source{lead}, v.Sources...)
	}
}

// persistVariables writes every attributable variable to the fact store.
// Failures are logged and skipped; persistence never fails the response.
func (e *Engine) persistVariables(ctx context.Context, variables []models.MagicVariable) {
	for i := range variables {
		v := &variables[i]
		if v.Name == "context" || v.Subject == nil || v.Subject.CanonicalID == "" {
			continue
		}
		observedAt := e.clock()
		if v.ObservedAt != nil {
			observedAt = *v.ObservedAt
		}
		if err := e.facts.StoreFact(ctx, v, observedAt); err != nil {
			slog.Warn("Fact persistence failed", "name", v.Name, "entity", v.Subject.CanonicalID, "error", err)
		}
	}
}
