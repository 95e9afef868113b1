package entity

import "time"

// Entity is a domain term extracted from the corpus. The ID is the
// lowercased canonical form, so extraction is idempotent across runs.
type Entity struct {
	ID        string    `json:"id"`
	Canonical string    `json:"canonical"`
	Type      string    `json:"type"`
	Variants  []string  `json:"variants"`
	Frequency int       `json:"frequency"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Edge is a co-occurrence relation between two entities.
type Edge struct {
	SourceEntity string  `json:"sourceEntity"`
	TargetEntity string  `json:"targetEntity"`
	Relation     string  `json:"relation"`
	Weight       float64 `json:"weight"`
}

// Match pairs an entity with the query text that triggered it.
type Match struct {
	Entity Entity `json:"entity"`
	Term   string `json:"term"`
}
