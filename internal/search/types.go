package search

import "time"

// Result is one retrieved chunk with its scoring breakdown.
type Result struct {
	ChunkID      string  `json:"chunkId"`
	DocumentID   string  `json:"documentId"`
	DocumentName string  `json:"documentName"`
	Content      string  `json:"content"`
	ChunkType    string  `json:"chunkType"`
	VectorScore  float64 `json:"vectorScore"`
	LexicalScore float64 `json:"lexicalScore"`
	Combined     float64 `json:"combined"`
	RRFScore     float64 `json:"rrfScore"`
}

// Citation links a bracketed source number in an answer to a document.
type Citation struct {
	Number       int    `json:"number"`
	DocumentID   string `json:"documentId"`
	DocumentName string `json:"documentName"`
}

// CachedAnswer is a previously generated answer.
type CachedAnswer struct {
	Query     string     `json:"query"`
	Answer    string     `json:"answer"`
	Citations []Citation `json:"citations"`
	HitCount  int        `json:"hitCount"`
	CreatedAt time.Time  `json:"createdAt"`
}

// ChatMessage is one turn of conversation history.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
