package models

// EntityType is the lowercased categorical type of a canonical entity.
type EntityType string

const (
	EntityCompany      EntityType = "company"
	EntityPerson       EntityType = "person"
	EntityProduct      EntityType = "product"
	EntityPlace        EntityType = "place"
	EntityEvent        EntityType = "event"
	EntityConcept      EntityType = "concept"
	EntityArtifact     EntityType = "artifact"
	EntityOrganization EntityType = "organization"
	EntityOther        EntityType = "other"
)

// Entity is the canonical subject of facts. The id is deterministic from
// (type, canonical_name) at creation time and never reassigned.
type Entity struct {
	ID            string            `json:"id"`
	Type          EntityType        `json:"type"`
	CanonicalName string            `json:"canonical_name"`
	Aliases       []string          `json:"aliases"`
	ExternalIDs   map[string]string `json:"external_ids"`
}

// EntityRef is the lightweight lookup result returned by resolver searches.
type EntityRef struct {
	ID    string     `json:"id"`
	Name  string     `json:"name"`
	Type  EntityType `json:"type"`
	Score float64    `json:"score,omitempty"`
}
