package audit

import "time"

// Action describes what was done.
type Action string

const (
	ActionSourceCreated   Action = "source_created"
	ActionSourceUpdated   Action = "source_updated"
	ActionSourceDeleted   Action = "source_deleted"
	ActionDocumentDeleted Action = "document_deleted"
	ActionJobEnqueued     Action = "job_enqueued"
	ActionJobCancelled    Action = "job_cancelled"
	ActionSettingChanged  Action = "setting_changed"
	ActionCachePurged     Action = "cache_purged"
)

// Entry is a single audit trail record.
type Entry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Actor     string    `json:"actor"`
	Action    Action    `json:"action"`
	Resource  string    `json:"resource"`
	Detail    string    `json:"detail,omitempty"`
}
