// Package chunker splits extracted document text into overlapping,
// classified segments sized for embedding.
package chunker

import (
	"regexp"
	"strings"
)

const (
	// Rough estimate: 1 token ~= 4 characters.
	charsPerToken = 4
	targetTokens  = 1000
	overlapTokens = 200
)

// Chunk is one segment of a document's text, not yet persisted.
type Chunk struct {
	Index     int
	Content   string
	Type      string // "prose" or "table"
	Metadata  Metadata
	StartChar int
	EndChar   int
}

// Metadata holds light per-chunk extractions used for display and filtering.
// Values appear in first-occurrence order; duplicates are retained.
type Metadata struct {
	Amounts     []string `json:"amounts"`
	Percentages []string `json:"percentages"`
	Dates       []string `json:"dates"`
}

// Map renders the metadata as a generic map for JSON storage.
func (m Metadata) Map() map[string]any {
	return map[string]any{
		"amounts":     m.Amounts,
		"percentages": m.Percentages,
		"dates":       m.Dates,
	}
}

var (
	amountRe     = regexp.MustCompile(`\$[\d,.]+[KMBT]?`)
	percentageRe = regexp.MustCompile(`[\d.]+%`)
	dateRe       = regexp.MustCompile(`\b(?:\d{4}-\d{2}-\d{2}|Q[1-4]\s+\d{4})\b`)
)

// Split divides text into overlapping chunks of roughly targetTokens tokens.
// Chunk indices are contiguous and zero-based; spans cover the full input.
// The window start always advances by at least one character, so progress is
// guaranteed even if overlap were configured at or above the target size.
func Split(text string) []Chunk {
	chunkChars := targetTokens * charsPerToken
	overlapChars := overlapTokens * charsPerToken

	var chunks []Chunk
	i := 0
	idx := 0
	for i < len(text) {
		end := i + chunkChars
		if end > len(text) {
			end = len(text)
		}
		content := strings.TrimSpace(text[i:end])
		if content != "" {
			chunks = append(chunks, Chunk{
				Index:     idx,
				Content:   content,
				Type:      classify(content),
				Metadata:  ExtractMetadata(content),
				StartChar: i,
				EndChar:   end,
			})
			idx++
		}
		if end >= len(text) {
			break
		}
		next := end - overlapChars
		if next <= i {
			next = i + 1
		}
		i = next
	}
	return chunks
}

// classify marks a chunk as a table when it carries pipe-delimited rows,
// which is how the format parsers render tabular data.
func classify(content string) string {
	if strings.Contains(content, "|") && strings.Contains(content, "\n") {
		return "table"
	}
	return "prose"
}

// ExtractMetadata pulls currency amounts, percentages, and date-like tokens
// out of a chunk's content.
func ExtractMetadata(content string) Metadata {
	return Metadata{
		Amounts:     matchAll(amountRe, content),
		Percentages: matchAll(percentageRe, content),
		Dates:       matchAll(dateRe, content),
	}
}

func matchAll(re *regexp.Regexp, content string) []string {
	matches := re.FindAllString(content, -1)
	if matches == nil {
		return []string{}
	}
	return matches
}
