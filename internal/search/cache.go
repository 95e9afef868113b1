package search

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/quarry-search/quarry/internal/config"
	"github.com/quarry-search/quarry/internal/db"
)

// minCacheableAnswer filters out refusals and "not found" stubs:
// short answers are cheap to regenerate and poison the cache.
const minCacheableAnswer = 100

// Cache stores generated answers keyed by normalized query text.
type Cache struct {
	db  *db.DB
	cfg config.CacheConfig
}

// NewCache creates a response cache.
func NewCache(database *db.DB, cfg config.CacheConfig) *Cache {
	return &Cache{db: database, cfg: cfg}
}

// Key derives the cache key: sha256 of the query lowercased with
// whitespace collapsed, so trivial rephrasings share an entry.
func Key(query string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// Get returns a fresh cached answer for the query, or nil on miss.
// Hits bump the hit counter.
func (c *Cache) Get(ctx context.Context, query string) (*CachedAnswer, error) {
	key := Key(query)
	freshness := time.Duration(c.cfg.FreshnessHours) * time.Hour

	var cached CachedAnswer
	var citations string
	err := c.db.QueryRowContext(ctx,
		`SELECT query, answer, citations, hit_count, created_at FROM response_cache
		 WHERE cache_key = ? AND created_at > ?`,
		key, time.Now().UTC().Add(-freshness),
	).Scan(&cached.Query, &cached.Answer, &citations, &cached.HitCount, &cached.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading response cache: %w", err)
	}

	if err := json.Unmarshal([]byte(citations), &cached.Citations); err != nil {
		return nil, fmt.Errorf("decoding cached citations: %w", err)
	}

	_, err = c.db.ExecContext(ctx,
		`UPDATE response_cache SET hit_count = hit_count + 1, last_accessed_at = ? WHERE cache_key = ?`,
		time.Now().UTC(), key)
	if err != nil {
		return nil, fmt.Errorf("updating cache hit count: %w", err)
	}
	cached.HitCount++
	return &cached, nil
}

// Put stores an answer. Answers below the cacheable minimum are
// silently dropped.
func (c *Cache) Put(ctx context.Context, query, answer string, citations []Citation) error {
	if len(answer) <= minCacheableAnswer {
		return nil
	}

	encoded, err := json.Marshal(citations)
	if err != nil {
		return fmt.Errorf("encoding citations: %w", err)
	}
	if citations == nil {
		encoded = []byte("[]")
	}

	now := time.Now().UTC()
	_, err = c.db.ExecContext(ctx,
		`INSERT INTO response_cache (cache_key, query, answer, citations, hit_count, created_at, last_accessed_at)
		 VALUES (?, ?, ?, ?, 0, ?, ?)
		 ON CONFLICT(cache_key) DO UPDATE SET
		     answer = excluded.answer,
		     citations = excluded.citations,
		     hit_count = 0,
		     created_at = excluded.created_at,
		     last_accessed_at = excluded.last_accessed_at`,
		Key(query), query, answer, string(encoded), now, now)
	if err != nil {
		return fmt.Errorf("writing response cache: %w", err)
	}
	return nil
}

// PurgeAll drops every cached answer. Called after any successful
// ingest: new content can change any answer.
func (c *Cache) PurgeAll(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM response_cache`)
	if err != nil {
		return fmt.Errorf("purging response cache: %w", err)
	}
	return nil
}

// Sweep removes entries past the retention window and returns how many
// were deleted.
func (c *Cache) Sweep(ctx context.Context) (int, error) {
	retention := time.Duration(c.cfg.RetentionDays) * 24 * time.Hour
	result, err := c.db.ExecContext(ctx,
		`DELETE FROM response_cache WHERE created_at < ?`,
		time.Now().UTC().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("sweeping response cache: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

// Stats summarizes cache occupancy.
func (c *Cache) Stats(ctx context.Context) (entries, totalHits int, err error) {
	err = c.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(hit_count), 0) FROM response_cache`).Scan(&entries, &totalHits)
	if err != nil {
		return 0, 0, fmt.Errorf("reading cache stats: %w", err)
	}
	return entries, totalHits, nil
}
