package models

import "time"

// Subject names the entity a magic variable is about. CanonicalID is filled
// by the resolver before persistence.
type Subject struct {
	Name        string     `json:"name"`
	Type        EntityType `json:"type"`
	CanonicalID string     `json:"canonical_id,omitempty"`
}

// MagicVariable is one typed, source-attributed answer unit.
type MagicVariable struct {
	Subject    *Subject   `json:"subject,omitempty"`
	Name       string     `json:"name"`
	DType      DType      `json:"dtype"`
	Value      Value      `json:"value"`
	Confidence float64    `json:"confidence"`
	Sources    []Source   `json:"sources"`
	ObservedAt *time.Time `json:"observed_at,omitempty"`
}

// VariableDef is a caller-supplied hint describing an expected variable.
type VariableDef struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// EnrichmentResult is the structured answer returned to the caller.
type EnrichmentResult struct {
	Intent    Intent          `json:"intent"`
	Variables []MagicVariable `json:"variables"`
	Notes     string          `json:"notes,omitempty"`
}

// Intent classifies the user query.
type Intent string

const (
	IntentBoolean    Intent = "boolean"
	IntentSpecific   Intent = "specific"
	IntentContextual Intent = "contextual"
)
