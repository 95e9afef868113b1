package source

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/quarry-search/quarry/internal/db"
)

// Store manages crawl sources and the file index.
type Store struct {
	db *db.DB
}

// NewStore creates a new source store.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// CreateSource registers a directory for crawling.
func (s *Store) CreateSource(ctx context.Context, src CrawlSource) (*CrawlSource, error) {
	if src.ID == "" {
		src.ID = uuid.New().String()
	}
	if src.MaxDepth == 0 {
		src.MaxDepth = 10
	}
	src.CreatedAt = time.Now().UTC()

	fileTypes, err := json.Marshal(src.FileTypes)
	if err != nil {
		return nil, fmt.Errorf("encoding file types: %w", err)
	}
	excludes, err := json.Marshal(src.ExcludePatterns)
	if err != nil {
		return nil, fmt.Errorf("encoding exclude patterns: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO crawl_sources (id, name, path, enabled, recursive, max_depth, file_types, exclude_patterns, schedule, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		src.ID, src.Name, src.Path, src.Enabled, src.Recursive, src.MaxDepth, string(fileTypes), string(excludes), src.Schedule, src.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting crawl source: %w", err)
	}
	return &src, nil
}

// UpdateSource replaces the mutable fields of a crawl source.
func (s *Store) UpdateSource(ctx context.Context, src CrawlSource) error {
	fileTypes, err := json.Marshal(src.FileTypes)
	if err != nil {
		return fmt.Errorf("encoding file types: %w", err)
	}
	excludes, err := json.Marshal(src.ExcludePatterns)
	if err != nil {
		return fmt.Errorf("encoding exclude patterns: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE crawl_sources SET name = ?, path = ?, enabled = ?, recursive = ?, max_depth = ?, file_types = ?, exclude_patterns = ?, schedule = ?
		 WHERE id = ?`,
		src.Name, src.Path, src.Enabled, src.Recursive, src.MaxDepth, string(fileTypes), string(excludes), src.Schedule, src.ID,
	)
	if err != nil {
		return fmt.Errorf("updating crawl source: %w", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("crawl source %s not found", src.ID)
	}
	return nil
}

// DeleteSource removes a source. Its file_index rows go with it via
// the foreign key cascade; ingested documents stay.
func (s *Store) DeleteSource(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM crawl_sources WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting crawl source: %w", err)
	}
	return nil
}

// GetSource retrieves a source by ID, or nil when absent.
func (s *Store) GetSource(ctx context.Context, id string) (*CrawlSource, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, path, enabled, recursive, max_depth, file_types, exclude_patterns, schedule, created_at
		 FROM crawl_sources WHERE id = ?`, id)
	src, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return src, err
}

// ListSources returns all sources. enabledOnly restricts to enabled ones.
func (s *Store) ListSources(ctx context.Context, enabledOnly bool) ([]CrawlSource, error) {
	query := `SELECT id, name, path, enabled, recursive, max_depth, file_types, exclude_patterns, schedule, created_at
		 FROM crawl_sources`
	if enabledOnly {
		query += ` WHERE enabled = 1`
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing crawl sources: %w", err)
	}
	defer rows.Close()

	var sources []CrawlSource
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, *src)
	}
	return sources, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSource(row rowScanner) (*CrawlSource, error) {
	var src CrawlSource
	var fileTypes, excludes string
	err := row.Scan(&src.ID, &src.Name, &src.Path, &src.Enabled, &src.Recursive, &src.MaxDepth, &fileTypes, &excludes, &src.Schedule, &src.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning crawl source: %w", err)
	}
	if err := json.Unmarshal([]byte(fileTypes), &src.FileTypes); err != nil {
		return nil, fmt.Errorf("decoding file types: %w", err)
	}
	if err := json.Unmarshal([]byte(excludes), &src.ExcludePatterns); err != nil {
		return nil, fmt.Errorf("decoding exclude patterns: %w", err)
	}
	return &src, nil
}

// UpsertFile records a discovered file. The row is keyed by file_path.
// Metadata (size, hash, mtime, last_checked_at) is always refreshed;
// status is reset to discovered only when the content hash changed, so
// re-crawling an unchanged tree never re-queues ingested files.
func (s *Store) UpsertFile(ctx context.Context, f File) (*File, error) {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	if f.Status == "" {
		f.Status = StatusDiscovered
	}
	now := time.Now().UTC()
	f.DiscoveredAt = now
	f.LastCheckedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO file_index (id, source_id, file_path, file_name, file_type, file_size, file_hash, file_modified, status, discovered_at, last_checked_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(file_path) DO UPDATE SET
		     source_id = excluded.source_id,
		     file_name = excluded.file_name,
		     file_type = excluded.file_type,
		     file_size = excluded.file_size,
		     file_modified = excluded.file_modified,
		     last_checked_at = excluded.last_checked_at,
		     status = CASE WHEN file_index.file_hash != excluded.file_hash
		                   THEN 'discovered' ELSE file_index.status END,
		     error_message = CASE WHEN file_index.file_hash != excluded.file_hash
		                          THEN NULL ELSE file_index.error_message END,
		     file_hash = excluded.file_hash`,
		f.ID, f.SourceID, f.FilePath, f.FileName, f.FileType, f.FileSize, f.FileHash, f.FileModified, f.Status, f.DiscoveredAt, f.LastCheckedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("upserting file %s: %w", f.FilePath, err)
	}
	return s.GetFileByPath(ctx, f.FilePath)
}

// GetFileByPath retrieves a file_index row by path, or nil when absent.
func (s *Store) GetFileByPath(ctx context.Context, path string) (*File, error) {
	row := s.db.QueryRowContext(ctx, selectFileQuery+` WHERE file_path = ?`, path)
	f, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return f, err
}

// NextBatch returns up to limit files in the given status, oldest first.
func (s *Store) NextBatch(ctx context.Context, status FileStatus, limit int) ([]File, error) {
	rows, err := s.db.QueryContext(ctx,
		selectFileQuery+` WHERE status = ? ORDER BY discovered_at ASC LIMIT ?`,
		status, limit)
	if err != nil {
		return nil, fmt.Errorf("selecting %s files: %w", status, err)
	}
	defer rows.Close()

	var files []File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, *f)
	}
	return files, rows.Err()
}

// NextIngestBatch returns up to limit files awaiting ingestion
// (discovered or queued), oldest first.
func (s *Store) NextIngestBatch(ctx context.Context, limit int) ([]File, error) {
	rows, err := s.db.QueryContext(ctx,
		selectFileQuery+` WHERE status IN ('discovered','queued') ORDER BY discovered_at ASC LIMIT ?`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("selecting ingest batch: %w", err)
	}
	defer rows.Close()

	var files []File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, *f)
	}
	return files, rows.Err()
}

// ListFiles returns file_index rows for a source, newest first.
func (s *Store) ListFiles(ctx context.Context, sourceID string, limit int) ([]File, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx,
		selectFileQuery+` WHERE source_id = ? ORDER BY discovered_at DESC LIMIT ?`,
		sourceID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing files: %w", err)
	}
	defer rows.Close()

	var files []File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, *f)
	}
	return files, rows.Err()
}

// SetStatus moves a file to the given status.
func (s *Store) SetStatus(ctx context.Context, id string, status FileStatus) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE file_index SET status = ?, error_message = NULL, last_checked_at = datetime('now') WHERE id = ?`,
		status, id)
	if err != nil {
		return fmt.Errorf("setting file status: %w", err)
	}
	return nil
}

// MarkFailed records an ingestion failure for a file.
func (s *Store) MarkFailed(ctx context.Context, id, message string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE file_index SET status = 'failed', error_message = ?, last_checked_at = datetime('now') WHERE id = ?`,
		message, id)
	if err != nil {
		return fmt.Errorf("marking file failed: %w", err)
	}
	return nil
}

// MarkIngested links a file to its document and marks it done.
func (s *Store) MarkIngested(ctx context.Context, id, documentID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE file_index SET status = 'ingested', document_id = ?, error_message = NULL, last_checked_at = datetime('now') WHERE id = ?`,
		documentID, id)
	if err != nil {
		return fmt.Errorf("marking file ingested: %w", err)
	}
	return nil
}

// CountByStatus returns file counts grouped by status.
func (s *Store) CountByStatus(ctx context.Context) (map[FileStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM file_index GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("counting files: %w", err)
	}
	defer rows.Close()

	counts := make(map[FileStatus]int)
	for rows.Next() {
		var status FileStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scanning file count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

const selectFileQuery = `SELECT id, source_id, file_path, file_name, file_type, file_size, file_hash, file_modified, status, error_message, document_id, discovered_at, last_checked_at
	 FROM file_index`

func scanFile(row rowScanner) (*File, error) {
	var f File
	var errMsg, docID sql.NullString
	var modified sql.NullTime
	err := row.Scan(&f.ID, &f.SourceID, &f.FilePath, &f.FileName, &f.FileType, &f.FileSize, &f.FileHash, &modified, &f.Status, &errMsg, &docID, &f.DiscoveredAt, &f.LastCheckedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning file: %w", err)
	}
	f.ErrorMessage = errMsg.String
	f.DocumentID = docID.String
	if modified.Valid {
		f.FileModified = &modified.Time
	}
	return &f, nil
}
