package jobs

import "time"

// Type identifies what a job does. At most one job of each type runs
// at a time.
type Type string

const (
	TypeCrawl         Type = "crawl"
	TypeIngest        Type = "ingest"
	TypeEmbed         Type = "embed"
	TypeEntityExtract Type = "entity_extract"
	TypeEntityCleanup Type = "entity_cleanup"
	TypeIndexRebuild  Type = "index_rebuild"
	TypePipeline      Type = "pipeline"
)

// Status is a job's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	// StatusSkipped means another job of the same type was already
	// running when this one was enqueued.
	StatusSkipped   Status = "skipped"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether a job in this status will never change again.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusSkipped, StatusCancelled:
		return true
	}
	return false
}

// Job is one background job run.
type Job struct {
	ID             string         `json:"id"`
	Type           Type           `json:"type"`
	Status         Status         `json:"status"`
	Progress       int            `json:"progress"`
	ProcessedItems int            `json:"processedItems"`
	TotalItems     int            `json:"totalItems"`
	ErrorMessage   string         `json:"errorMessage,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedBy      string         `json:"createdBy,omitempty"`
	ParentJobID    string         `json:"parentJobId,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	StartedAt      *time.Time     `json:"startedAt,omitempty"`
	CompletedAt    *time.Time     `json:"completedAt,omitempty"`
}
