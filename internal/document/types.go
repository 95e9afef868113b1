package document

import "time"

// Document is an ingested file's extracted text plus provenance.
type Document struct {
	ID          string         `json:"id"`
	ContentHash string         `json:"contentHash"`
	Title       string         `json:"title"`
	RawText     string         `json:"rawText,omitempty"`
	FileName    string         `json:"fileName"`
	FilePath    string         `json:"filePath"`
	FileType    string         `json:"fileType"`
	FileSize    int64          `json:"fileSize"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	IngestedAt  time.Time      `json:"ingestedAt"`
}

// Chunk is one retrievable slice of a document.
type Chunk struct {
	ID                string         `json:"id"`
	DocumentID        string         `json:"documentId"`
	ChunkIndex        int            `json:"chunkIndex"`
	Content           string         `json:"content"`
	ChunkType         string         `json:"chunkType"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	StartChar         int            `json:"startChar"`
	EndChar           int            `json:"endChar"`
	Embedding         []float32      `json:"-"`
	EntitiesExtracted bool           `json:"entitiesExtracted"`
}

// LexicalHit is a full-text match with its BM25-derived score.
// Higher scores are better.
type LexicalHit struct {
	ChunkID    string
	DocumentID string
	Content    string
	ChunkType  string
	Score      float64
}

// DisplayName describes how a document should be cited.
type DisplayName struct {
	DocumentID string `json:"documentId"`
	Name       string `json:"name"`
}
