package api

import (
	"fmt"
	"strings"

	"github.com/magpie-ai/magpie/pkg/agent"
	"github.com/magpie-ai/magpie/pkg/config"
	"github.com/magpie-ai/magpie/pkg/models"
)

// EnrichRequest is the HTTP request body for POST /api/enrich.
type EnrichRequest struct {
	Query             string             `json:"query"`
	Variables         []VariableDefInput `json:"variables,omitempty"`
	SessionID         string             `json:"sessionId,omitempty"`
	Username          string             `json:"username,omitempty"`
	Entity            string             `json:"entity,omitempty"`
	ResearchIntensity string             `json:"researchIntensity,omitempty"`
	Corrections       []CorrectionInput  `json:"corrections,omitempty"`
}

// VariableDefInput is an expected-variable hint.
type VariableDefInput struct {
	Name        string `json:"name"`
	Type        string `json:"type,omitempty"`
	Description string `json:"description,omitempty"`
}

// CorrectionInput is one operator correction applied before the run.
type CorrectionInput struct {
	Entity string       `json:"entity"`
	Field  string       `json:"field"`
	Value  models.Value `json:"value"`
	Source string       `json:"source,omitempty"`
}

// Validate returns one detail string per problem; an empty slice means the
// request is acceptable.
func (r *EnrichRequest) Validate() []string {
	var details []string

	if len(strings.TrimSpace(r.Query)) < 2 {
		details = append(details, "query must be at least 2 characters")
	}
	switch r.ResearchIntensity {
	case "", string(config.IntensityLow), string(config.IntensityMedium), string(config.IntensityHigh):
	default:
		details = append(details, fmt.Sprintf("researchIntensity %q must be low, medium, or high", r.ResearchIntensity))
	}
	for i, v := range r.Variables {
		if strings.TrimSpace(v.Name) == "" {
			details = append(details, fmt.Sprintf("variables[%d].name is required", i))
		}
		if v.Type != "" && !models.ValidDType(v.Type) {
			details = append(details, fmt.Sprintf("variables[%d].type %q is not a known type", i, v.Type))
		}
	}
	for i, c := range r.Corrections {
		if strings.TrimSpace(c.Entity) == "" {
			details = append(details, fmt.Sprintf("corrections[%d].entity is required", i))
		}
		if strings.TrimSpace(c.Field) == "" {
			details = append(details, fmt.Sprintf("corrections[%d].field is required", i))
		}
	}
	return details
}

func (r *EnrichRequest) toAgentRequest() agent.Request {
	vars := make([]models.VariableDef, 0, len(r.Variables))
	for _, v := range r.Variables {
		vars = append(vars, models.VariableDef{Name: v.Name, Type: v.Type, Description: v.Description})
	}
	corrections := make([]models.TrustedFactInput, 0, len(r.Corrections))
	for _, c := range r.Corrections {
		corrections = append(corrections, models.TrustedFactInput{
			Entity: c.Entity,
			Field:  c.Field,
			Value:  c.Value,
			Source: c.Source,
		})
	}
	return agent.Request{
		Query:       r.Query,
		Variables:   vars,
		SessionID:   r.SessionID,
		Username:    r.Username,
		Entity:      r.Entity,
		Intensity:   config.ParseIntensity(r.ResearchIntensity),
		Corrections: corrections,
	}
}
