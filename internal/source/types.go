package source

import "time"

// FileStatus tracks a discovered file through the ingestion pipeline.
type FileStatus string

const (
	StatusDiscovered FileStatus = "discovered"
	StatusQueued     FileStatus = "queued"
	StatusIngesting  FileStatus = "ingesting"
	StatusIngested   FileStatus = "ingested"
	StatusFailed     FileStatus = "failed"
)

// CrawlSource is a directory registered for crawling.
type CrawlSource struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Path            string    `json:"path"`
	Enabled         bool      `json:"enabled"`
	Recursive       bool      `json:"recursive"`
	MaxDepth        int       `json:"maxDepth"`
	FileTypes       []string  `json:"fileTypes"`
	ExcludePatterns []string  `json:"excludePatterns"`
	Schedule        string    `json:"schedule"`
	CreatedAt       time.Time `json:"createdAt"`
}

// File is a file_index row: one filesystem path known to the crawler.
type File struct {
	ID            string     `json:"id"`
	SourceID      string     `json:"sourceId"`
	FilePath      string     `json:"filePath"`
	FileName      string     `json:"fileName"`
	FileType      string     `json:"fileType"`
	FileSize      int64      `json:"fileSize"`
	FileHash      string     `json:"fileHash"`
	FileModified  *time.Time `json:"fileModified,omitempty"`
	Status        FileStatus `json:"status"`
	ErrorMessage  string     `json:"errorMessage,omitempty"`
	DocumentID    string     `json:"documentId,omitempty"`
	DiscoveredAt  time.Time  `json:"discoveredAt"`
	LastCheckedAt time.Time  `json:"lastCheckedAt"`
}
