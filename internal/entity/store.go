package entity

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/quarry-search/quarry/internal/db"
)

// Store manages extracted entities and their relations.
type Store struct {
	db *db.DB
}

// NewStore creates a new entity store.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Upsert records a sighting of an entity. New entities start at
// frequency 1; repeat sightings bump the frequency and merge any new
// variant spellings into the stored list.
func (s *Store) Upsert(ctx context.Context, canonical, entityType string, variants []string) (*Entity, error) {
	canonical = strings.TrimSpace(canonical)
	if canonical == "" {
		return nil, fmt.Errorf("entity canonical form is empty")
	}
	id := strings.ToLower(canonical)
	if entityType == "" {
		entityType = "term"
	}

	existing, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if existing == nil {
		encoded, err := json.Marshal(dedupeVariants(canonical, variants))
		if err != nil {
			return nil, fmt.Errorf("encoding variants: %w", err)
		}
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO entities (id, canonical, type, variants, frequency, created_at, updated_at)
			 VALUES (?, ?, ?, ?, 1, ?, ?)`,
			id, canonical, entityType, string(encoded), now, now)
		if err != nil {
			return nil, fmt.Errorf("inserting entity: %w", err)
		}
		return s.GetByID(ctx, id)
	}

	merged := dedupeVariants(existing.Canonical, append(existing.Variants, variants...))
	encoded, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("encoding variants: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE entities SET frequency = frequency + 1, variants = ?, updated_at = ? WHERE id = ?`,
		string(encoded), now, id)
	if err != nil {
		return nil, fmt.Errorf("updating entity: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID returns an entity, or nil when absent.
func (s *Store) GetByID(ctx context.Context, id string) (*Entity, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, canonical, type, variants, frequency, created_at, updated_at
		 FROM entities WHERE id = ?`, id)
	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

// ListByFrequency returns entities ordered by frequency, most frequent
// first. limit <= 0 returns all.
func (s *Store) ListByFrequency(ctx context.Context, limit int) ([]Entity, error) {
	query := `SELECT id, canonical, type, variants, frequency, created_at, updated_at
		 FROM entities ORDER BY frequency DESC, id ASC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing entities: %w", err)
	}
	defer rows.Close()

	var entities []Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		entities = append(entities, *e)
	}
	return entities, rows.Err()
}

// Delete removes entities by ID. Edges cascade.
func (s *Store) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.Repeat("?,", len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM entities WHERE id IN (`+placeholders[:len(placeholders)-1]+`)`, args...)
	if err != nil {
		return fmt.Errorf("deleting entities: %w", err)
	}
	return nil
}

// DeleteOrphans removes entities seen exactly once that have no edge to
// any other entity. A one-off extraction with no co-occurrences adds
// nothing to query expansion.
func (s *Store) DeleteOrphans(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM entities WHERE frequency = 1 AND NOT EXISTS (
		   SELECT 1 FROM entity_edges
		   WHERE source_entity = entities.id OR target_entity = entities.id)`)
	if err != nil {
		return 0, fmt.Errorf("deleting orphan entities: %w", err)
	}
	return res.RowsAffected()
}

// SetVariants replaces an entity's variant list.
func (s *Store) SetVariants(ctx context.Context, id string, variants []string) error {
	encoded, err := json.Marshal(variants)
	if err != nil {
		return fmt.Errorf("encoding variants: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE entities SET variants = ?, updated_at = datetime('now') WHERE id = ?`,
		string(encoded), id)
	if err != nil {
		return fmt.Errorf("setting variants: %w", err)
	}
	return nil
}

// Count returns the number of stored entities.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entities`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting entities: %w", err)
	}
	return n, nil
}

// UpsertEdge records a relation between two entities, accumulating weight.
func (s *Store) UpsertEdge(ctx context.Context, source, target, relation string, weight float64) error {
	if relation == "" {
		relation = "related"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO entity_edges (source_entity, target_entity, relation, weight) VALUES (?, ?, ?, ?)
		 ON CONFLICT(source_entity, target_entity, relation) DO UPDATE SET weight = entity_edges.weight + excluded.weight`,
		strings.ToLower(source), strings.ToLower(target), relation, weight)
	if err != nil {
		return fmt.Errorf("upserting entity edge: %w", err)
	}
	return nil
}

// Related returns entities connected to the given entity, heaviest first.
func (s *Store) Related(ctx context.Context, id string, limit int) ([]Edge, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT source_entity, target_entity, relation, weight FROM entity_edges
		 WHERE source_entity = ? OR target_entity = ?
		 ORDER BY weight DESC LIMIT ?`,
		strings.ToLower(id), strings.ToLower(id), limit)
	if err != nil {
		return nil, fmt.Errorf("selecting entity edges: %w", err)
	}
	defer rows.Close()

	var edges []Edge
	for rows.Next() {
		var e Edge
		if err := rows.Scan(&e.SourceEntity, &e.TargetEntity, &e.Relation, &e.Weight); err != nil {
			return nil, fmt.Errorf("scanning entity edge: %w", err)
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// dedupeVariants removes duplicates (case-insensitive) and the
// canonical form itself from a variant list.
func dedupeVariants(canonical string, variants []string) []string {
	seen := map[string]bool{strings.ToLower(canonical): true}
	result := make([]string, 0, len(variants))
	for _, v := range variants {
		v = strings.TrimSpace(v)
		key := strings.ToLower(v)
		if v == "" || seen[key] {
			continue
		}
		seen[key] = true
		result = append(result, v)
	}
	return result
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (*Entity, error) {
	var e Entity
	var variants string
	err := row.Scan(&e.ID, &e.Canonical, &e.Type, &variants, &e.Frequency, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning entity: %w", err)
	}
	if err := json.Unmarshal([]byte(variants), &e.Variants); err != nil {
		return nil, fmt.Errorf("decoding variants: %w", err)
	}
	return &e, nil
}
