package jobs

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

// Store persists job rows.
type Store struct {
	db *db.DB
}

// NewStore creates a new job store.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Create inserts a pending job row.
func (s *Store) Create(ctx context.Context, jobType Type, createdBy, parentJobID string, metadata map[string]any) (*Job, error) {
	job := Job{
		ID:          uuid.New().String(),
		Type:        jobType,
		Status:      StatusPending,
		Metadata:    metadata,
		CreatedBy:   createdBy,
		ParentJobID: parentJobID,
		CreatedAt:   time.Now().UTC(),
	}

	encoded, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("encoding job metadata: %w", err)
	}
	if metadata == nil {
		encoded = []byte("{}")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, type, status, metadata, created_by, parent_job_id, created_at)
		 VALUES (?, ?, ?, ?, ?, NULLIF(?, ''), ?)`,
		job.ID, job.Type, job.Status, string(encoded), job.CreatedBy, job.ParentJobID, job.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting job: %w", err)
	}
	return &job, nil
}

// Get returns a job by ID, or nil when absent.
func (s *Store) Get(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, selectJobQuery+` WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return job, err
}

// List returns jobs newest first, optionally filtered by type.
func (s *Store) List(ctx context.Context, jobType Type, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 50
	}
	query := selectJobQuery
	args := []any{}
	if jobType != "" {
		query += ` WHERE type = ?`
		args = append(args, jobType)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	defer rows.Close()

	var list []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *job)
	}
	return list, rows.Err()
}

// Children returns a pipeline job's sub-jobs, oldest first.
func (s *Store) Children(ctx context.Context, parentID string) ([]Job, error) {
	rows, err := s.db.QueryContext(ctx,
		selectJobQuery+` WHERE parent_job_id = ? ORDER BY created_at ASC`, parentID)
	if err != nil {
		return nil, fmt.Errorf("listing child jobs: %w", err)
	}
	defer rows.Close()

	var list []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *job)
	}
	return list, rows.Err()
}

// MarkRunning transitions a job to running.
func (s *Store) MarkRunning(ctx context.Context, id string) error {
	return s.setStatus(ctx, id, StatusRunning, "", `started_at = datetime('now')`)
}

// MarkCompleted transitions a job to completed.
func (s *Store) MarkCompleted(ctx context.Context, id string) error {
	return s.setStatus(ctx, id, StatusCompleted, "", `completed_at = datetime('now'), progress = 100`)
}

// MarkFailed transitions a job to failed with the given error.
func (s *Store) MarkFailed(ctx context.Context, id, message string) error {
	return s.setStatus(ctx, id, StatusFailed, message, `completed_at = datetime('now')`)
}

// MarkSkipped transitions a job to skipped with a reason.
func (s *Store) MarkSkipped(ctx context.Context, id, reason string) error {
	return s.setStatus(ctx, id, StatusSkipped, reason, `completed_at = datetime('now')`)
}

// MarkCancelled transitions a job to cancelled.
func (s *Store) MarkCancelled(ctx context.Context, id string) error {
	return s.setStatus(ctx, id, StatusCancelled, "", `completed_at = datetime('now')`)
}

func (s *Store) setStatus(ctx context.Context, id string, status Status, message, extra string) error {
	query := `UPDATE jobs SET status = ?, error_message = NULLIF(?, '')`
	if extra != "" {
		query += `, ` + extra
	}
	query += ` WHERE id = ?`

	_, err := s.db.ExecContext(ctx, query, status, message, id)
	if err != nil {
		return fmt.Errorf("marking job %s: %w", status, err)
	}
	return nil
}

// UpdateProgress records processed/total counts and the derived percentage.
func (s *Store) UpdateProgress(ctx context.Context, id string, processed, total int) error {
	percent := 0
	if total > 0 {
		percent = processed * 100 / total
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET processed_items = ?, total_items = ?, progress = ? WHERE id = ?`,
		processed, total, percent, id)
	if err != nil {
		return fmt.Errorf("updating job progress: %w", err)
	}
	return nil
}

const selectJobQuery = `SELECT id, type, status, progress, processed_items, total_items, error_message, metadata, created_by, parent_job_id, created_at, started_at, completed_at
	 FROM jobs`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var job Job
	var errMsg, createdBy, parentID sql.NullString
	var metadata string
	var startedAt, completedAt sql.NullTime

	err := row.Scan(&job.ID, &job.Type, &job.Status, &job.Progress, &job.ProcessedItems, &job.TotalItems,
		&errMsg, &metadata, &createdBy, &parentID, &job.CreatedAt, &startedAt, &completedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning job: %w", err)
	}

	job.ErrorMessage = errMsg.String
	job.CreatedBy = createdBy.String
	job.ParentJobID = parentID.String
	if startedAt.Valid {
		job.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}
	if err := json.Unmarshal([]byte(metadata), &job.Metadata); err != nil {
		return nil, fmt.Errorf("decoding job metadata: %w", err)
	}
	return &job, nil
}
