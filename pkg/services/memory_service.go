package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/magpie-ai/magpie/pkg/models"
)

// MemoryService stores durable per-user bullet-point facts. The unique
// (username, text) constraint makes concurrent upserts safe.
type MemoryService struct {
	pool *pgxpool.Pool
}

// NewMemoryService creates a new MemoryService.
func NewMemoryService(pool *pgxpool.Pool) *MemoryService {
	return &MemoryService{pool: pool}
}

// Add upserts a memory entry. A duplicate (username, text) pair refreshes
// created_at instead of inserting a second row.
func (s *MemoryService) Add(ctx context.Context, username, text string, tags []string) error {
	if strings.TrimSpace(username) == "" {
		return NewValidationError("username", "required")
	}
	if strings.TrimSpace(text) == "" {
		return NewValidationError("text", "required")
	}
	if tags == nil {
		tags = []string{}
	}

	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("failed to encode tags: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO user_memory (id, username, text, tags, created_at)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (username, text) DO UPDATE SET created_at = now()`,
		uuid.New().String(), username, strings.TrimSpace(text), tagsJSON)
	if err != nil {
		return fmt.Errorf("failed to upsert memory: %w", err)
	}
	return nil
}

// Get returns up to 200 most recent entries for a user.
func (s *MemoryService) Get(ctx context.Context, username string) ([]models.MemoryEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, username, text, tags, created_at FROM user_memory
		 WHERE username = $1
		 ORDER BY created_at DESC
		 LIMIT 200`,
		username)
	if err != nil {
		return nil, fmt.Errorf("failed to list memory: %w", err)
	}
	defer rows.Close()

	var entries []models.MemoryEntry
	for rows.Next() {
		var (
			entry   models.MemoryEntry
			tagsRaw []byte
		)
		if err := rows.Scan(&entry.ID, &entry.Username, &entry.Text, &tagsRaw, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan memory entry: %w", err)
		}
		if err := json.Unmarshal(tagsRaw, &entry.Tags); err != nil {
			return nil, fmt.Errorf("failed to decode tags: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read memory: %w", err)
	}
	return entries, nil
}
