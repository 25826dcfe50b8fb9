package models

import "time"

// Source attributes a claim to a document on the web (or, for trusted facts,
// to the operator that supplied it).
type Source struct {
	Title   string `json:"title,omitempty"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// Fact is one bitemporal claim about an entity. At most one row per
// (entity_id, name) is current (valid_to null); writes close the previous
// current row instead of rewriting history.
type Fact struct {
	ID         string     `json:"id"`
	EntityID   string     `json:"entity_id"`
	Name       string     `json:"name"`
	Value      Value      `json:"value"`
	DType      DType      `json:"dtype"`
	Confidence *float64   `json:"confidence,omitempty"`
	Sources    []Source   `json:"sources"`
	Notes      string     `json:"notes,omitempty"`
	ObservedAt time.Time  `json:"observed_at"`
	ValidFrom  time.Time  `json:"valid_from"`
	ValidTo    *time.Time `json:"valid_to,omitempty"`
}

// TrustedFactInput is operator feedback applied via the corrections channel.
type TrustedFactInput struct {
	Entity    string `json:"entity"`
	Field     string `json:"field"`
	Value     Value  `json:"value"`
	Source    string `json:"source,omitempty"`
	UpdatedBy string `json:"updated_by,omitempty"`
}

// InferDType maps a value's runtime kind to the dtype recorded for a trusted
// fact. Long strings become text; everything non-scalar degrades to text.
func InferDType(v Value) DType {
	switch v.Kind {
	case ValueBool:
		return DTypeBoolean
	case ValueNumber:
		return DTypeNumber
	case ValueString:
		if len(v.Str) > 200 {
			return DTypeText
		}
		return DTypeString
	default:
		return DTypeText
	}
}
