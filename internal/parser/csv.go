package parser

import (
	"bytes"
	"encoding/csv"
	"io"
	"path/filepath"
	"strings"
)

// parseCSV renders rows as pipe-delimited lines. Malformed rows are
// tolerated (variable field counts are common in exported reports).
func parseCSV(path string, data []byte) (*Result, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1

	var lines []string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(record) == 1 && strings.TrimSpace(record[0]) == "" {
			continue
		}
		lines = append(lines, "| "+strings.Join(record, " | ")+" |")
	}

	return &Result{
		Title:   filepath.Base(path),
		RawText: strings.Join(lines, "\n"),
		Metadata: map[string]any{
			"rowCount": len(lines),
		},
	}, nil
}
