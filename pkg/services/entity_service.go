// Package services implements the persistence services: canonical entities,
// the bitemporal fact store, and long-term user memory.
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/magpie-ai/magpie/pkg/models"
)

// EntityService maps (name, type) pairs to canonical entity ids and performs
// fuzzy lookups over existing entities.
type EntityService struct {
	pool *pgxpool.Pool
}

// NewEntityService creates a new EntityService.
func NewEntityService(pool *pgxpool.Pool) *EntityService {
	return &EntityService{pool: pool}
}

// typePrefix maps an entity type to its id prefix.
func typePrefix(t models.EntityType) string {
	switch t {
	case models.EntityCompany:
		return "cmp"
	case models.EntityPerson:
		return "per"
	default:
		s := string(t)
		if len(s) > 3 {
			s = s[:3]
		}
		return s
	}
}

// Slug lowercases a name and collapses every non-alphanumeric run to a
// single underscore.
func Slug(name string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

// CanonicalID computes the deterministic id for a (name, type) pair.
func CanonicalID(name string, entityType models.EntityType) string {
	return typePrefix(entityType) + "_" + Slug(name)
}

// NormalizeType trims, lowercases, and validates an entity type string,
// mapping unknown values to "other".
func NormalizeType(s string) models.EntityType {
	t := models.EntityType(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case models.EntityCompany, models.EntityPerson, models.EntityProduct,
		models.EntityPlace, models.EntityEvent, models.EntityConcept,
		models.EntityArtifact, models.EntityOrganization, models.EntityOther:
		return t
	}
	return models.EntityOther
}

// Resolve maps a (name, type) pair to a canonical entity id, creating the
// entity when neither the deterministic id nor a case-insensitive name match
// exists. Ids are never reassigned.
func (s *EntityService) Resolve(ctx context.Context, name, entityType string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", NewValidationError("name", "required")
	}
	if strings.TrimSpace(entityType) == "" {
		return "", NewValidationError("type", "required")
	}

	typ := NormalizeType(entityType)
	id := CanonicalID(name, typ)

	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM entities WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return "", fmt.Errorf("failed to check entity id: %w", err)
	}
	if exists {
		return id, nil
	}

	// Same type, case-insensitive name match: reuse the existing id.
	var existingID string
	err = s.pool.QueryRow(ctx,
		`SELECT id FROM entities WHERE type = $1 AND lower(canonical_name) = lower($2)`,
		string(typ), name).Scan(&existingID)
	if err == nil {
		return existingID, nil
	}
	if err != pgx.ErrNoRows {
		return "", fmt.Errorf("failed to look up entity by name: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO entities (id, type, canonical_name, aliases, external_ids)
		 VALUES ($1, $2, $3, '[]'::jsonb, '{}'::jsonb)
		 ON CONFLICT (id) DO NOTHING`,
		id, string(typ), strings.TrimSpace(name))
	if err != nil {
		return "", fmt.Errorf("failed to create entity: %w", err)
	}
	return id, nil
}

// TryResolveExisting matches a name case-insensitively against canonical
// names and aliases. It never creates; a miss returns (nil, nil).
func (s *EntityService) TryResolveExisting(ctx context.Context, name string) (*models.EntityRef, error) {
	if strings.TrimSpace(name) == "" {
		return nil, NewValidationError("name", "required")
	}

	var ref models.EntityRef
	err := s.pool.QueryRow(ctx,
		`SELECT id, canonical_name, type FROM entities
		 WHERE lower(canonical_name) = lower($1)
		    OR EXISTS (
		        SELECT 1 FROM jsonb_array_elements_text(aliases) AS a
		        WHERE lower(a) = lower($1))
		 LIMIT 1`,
		strings.TrimSpace(name)).Scan(&ref.ID, &ref.Name, &ref.Type)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve entity: %w", err)
	}
	return &ref, nil
}

// SearchByName returns entities ranked by trigram similarity to the query.
// When pg_trgm is unavailable the search falls back to substring matching
// ordered by shorter canonical name first.
func (s *EntityService) SearchByName(ctx context.Context, query string, limit int) ([]models.EntityRef, error) {
	if strings.TrimSpace(query) == "" {
		return nil, NewValidationError("query", "required")
	}
	if limit <= 0 {
		limit = 5
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, canonical_name, type, similarity(canonical_name, $1) AS score
		 FROM entities
		 WHERE similarity(canonical_name, $1) > 0.2
		 ORDER BY score DESC
		 LIMIT $2`,
		query, limit)
	if err == nil {
		refs, scanErr := scanEntityRefs(rows, true)
		if scanErr == nil {
			return refs, nil
		}
		err = scanErr
	}
	slog.Debug("Trigram entity search unavailable, falling back to substring match", "error", err)

	rows, err = s.pool.Query(ctx,
		`SELECT id, canonical_name, type FROM entities
		 WHERE canonical_name ILIKE '%' || $1 || '%'
		 ORDER BY length(canonical_name) ASC
		 LIMIT $2`,
		query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search entities: %w", err)
	}
	return scanEntityRefs(rows, false)
}

func scanEntityRefs(rows pgx.Rows, withScore bool) ([]models.EntityRef, error) {
	defer rows.Close()
	var refs []models.EntityRef
	for rows.Next() {
		var ref models.EntityRef
		var err error
		if withScore {
			err = rows.Scan(&ref.ID, &ref.Name, &ref.Type, &ref.Score)
		} else {
			err = rows.Scan(&ref.ID, &ref.Name, &ref.Type)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read entities: %w", err)
	}
	return refs, nil
}

// Get loads a full entity row by id.
func (s *EntityService) Get(ctx context.Context, id string) (*models.Entity, error) {
	var (
		e           models.Entity
		aliasesRaw  []byte
		externalRaw []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, type, canonical_name, aliases, external_ids FROM entities WHERE id = $1`,
		id).Scan(&e.ID, &e.Type, &e.CanonicalName, &aliasesRaw, &externalRaw)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entity: %w", err)
	}
	if err := json.Unmarshal(aliasesRaw, &e.Aliases); err != nil {
		return nil, fmt.Errorf("failed to decode aliases: %w", err)
	}
	if err := json.Unmarshal(externalRaw, &e.ExternalIDs); err != nil {
		return nil, fmt.Errorf("failed to decode external ids: %w", err)
	}
	return &e, nil
}
