package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/magpie-ai/magpie/pkg/models"
)

// FactService owns the bitemporal fact table. Every write is a close-then-
// insert pair inside one transaction so the "at most one current row per
// (entity_id, name)" invariant survives concurrent writers; the partial
// unique index enforces it at the storage layer as a safety net.
type FactService struct {
	pool     *pgxpool.Pool
	entities *EntityService
}

// NewFactService creates a new FactService.
func NewFactService(pool *pgxpool.Pool, entities *EntityService) *FactService {
	return &FactService{pool: pool, entities: entities}
}

// StoreFact persists a magic variable as the new current fact for
// (entity, name). The subject's canonical id is resolved first, creating the
// entity if needed. Any previously current row is closed at observedAt.
func (s *FactService) StoreFact(ctx context.Context, v *models.MagicVariable, observedAt time.Time) error {
	if v == nil || v.Subject == nil {
		return NewValidationError("subject", "required")
	}
	if strings.TrimSpace(v.Name) == "" {
		return NewValidationError("name", "required")
	}

	if v.Subject.CanonicalID == "" {
		id, err := s.entities.Resolve(ctx, v.Subject.Name, string(v.Subject.Type))
		if err != nil {
			return fmt.Errorf("failed to resolve subject: %w", err)
		}
		v.Subject.CanonicalID = id
	}

	if observedAt.IsZero() {
		observedAt = time.Now().UTC()
	}

	valueJSON, err := json.Marshal(v.Value)
	if err != nil {
		return fmt.Errorf("failed to encode value: %w", err)
	}
	sourcesJSON, err := json.Marshal(sourcesOrEmpty(v.Sources))
	if err != nil {
		return fmt.Errorf("failed to encode sources: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`UPDATE facts SET valid_to = $1
		 WHERE entity_id = $2 AND name = $3 AND valid_to IS NULL`,
		observedAt, v.Subject.CanonicalID, v.Name)
	if err != nil {
		return fmt.Errorf("failed to close current fact: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO facts (id, entity_id, name, value, dtype, confidence, sources, observed_at, valid_from, valid_to)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8, NULL)`,
		uuid.New().String(), v.Subject.CanonicalID, v.Name,
		valueJSON, string(v.DType), v.Confidence, sourcesJSON, observedAt)
	if err != nil {
		return fmt.Errorf("failed to insert fact: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit fact: %w", err)
	}
	return nil
}

// GetFact returns the single current fact for (entityID, name), or nil.
func (s *FactService) GetFact(ctx context.Context, entityID, name string) (*models.Fact, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, entity_id, name, value, dtype, confidence, sources, COALESCE(notes, ''), observed_at, valid_from, valid_to
		 FROM facts
		 WHERE entity_id = $1 AND name = $2 AND valid_to IS NULL`,
		entityID, name)
	fact, err := scanFact(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get fact: %w", err)
	}
	return fact, nil
}

// GetFactsForEntity returns all current facts for an entity, ordered by name.
func (s *FactService) GetFactsForEntity(ctx context.Context, entityID string) ([]*models.Fact, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, entity_id, name, value, dtype, confidence, sources, COALESCE(notes, ''), observed_at, valid_from, valid_to
		 FROM facts
		 WHERE entity_id = $1 AND valid_to IS NULL
		 ORDER BY name`,
		entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to list facts: %w", err)
	}
	defer rows.Close()

	var facts []*models.Fact
	for rows.Next() {
		fact, err := scanFact(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan fact: %w", err)
		}
		facts = append(facts, fact)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read facts: %w", err)
	}
	return facts, nil
}

// FindSimilarFactNames returns distinct current-row fact names containing the
// normalised base name, excluding the exact match. Used as a synonym lookup
// when a knowledge_query misses.
func (s *FactService) FindSimilarFactNames(ctx context.Context, entityID, base string, limit int) ([]string, error) {
	normalized := normalizeFactName(base)
	if normalized == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 5
	}

	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT name FROM facts
		 WHERE entity_id = $1 AND valid_to IS NULL
		   AND name LIKE '%' || $2 || '%'
		   AND name <> $2
		 ORDER BY name
		 LIMIT $3`,
		entityID, normalized, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to find similar fact names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan fact name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read fact names: %w", err)
	}
	return names, nil
}

// SetTrustedFact records operator feedback for an already-resolved entity.
// Confidence moves monotonically toward 1: new = (current + 1) / 2, where a
// missing current fact counts as 0.5.
func (s *FactService) SetTrustedFact(ctx context.Context, input models.TrustedFactInput) error {
	if strings.TrimSpace(input.Field) == "" {
		return NewValidationError("field", "required")
	}

	ref, err := s.entities.TryResolveExisting(ctx, input.Entity)
	if err != nil {
		return err
	}
	if ref == nil {
		return fmt.Errorf("%w: %q", ErrEntityUnresolved, input.Entity)
	}

	current := 0.5
	if fact, err := s.GetFact(ctx, ref.ID, input.Field); err != nil {
		return err
	} else if fact != nil && fact.Confidence != nil {
		current = *fact.Confidence
	}
	confidence := (current + 1.0) / 2.0

	sources := []models.Source{}
	if input.Source != "" {
		sources = append(sources, models.Source{Title: "Trusted fact", URL: input.Source})
	}

	v := &models.MagicVariable{
		Subject: &models.Subject{
			Name:        ref.Name,
			Type:        ref.Type,
			CanonicalID: ref.ID,
		},
		Name:       input.Field,
		DType:      models.InferDType(input.Value),
		Value:      input.Value,
		Confidence: confidence,
		Sources:    sources,
	}
	return s.StoreFact(ctx, v, time.Time{})
}

func normalizeFactName(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		}
	}
	return b.String()
}

func sourcesOrEmpty(sources []models.Source) []models.Source {
	if sources == nil {
		return []models.Source{}
	}
	return sources
}

func scanFact(row pgx.Row) (*models.Fact, error) {
	var (
		f          models.Fact
		valueRaw   []byte
		sourcesRaw []byte
	)
	err := row.Scan(&f.ID, &f.EntityID, &f.Name, &valueRaw, &f.DType, &f.Confidence,
		&sourcesRaw, &f.Notes, &f.ObservedAt, &f.ValidFrom, &f.ValidTo)
	if err != nil {
		return nil, err
	}
	if len(valueRaw) > 0 {
		if err := json.Unmarshal(valueRaw, &f.Value); err != nil {
			return nil, fmt.Errorf("failed to decode fact value: %w", err)
		}
	}
	if err := json.Unmarshal(sourcesRaw, &f.Sources); err != nil {
		return nil, fmt.Errorf("failed to decode fact sources: %w", err)
	}
	return &f, nil
}
