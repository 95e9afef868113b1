// Package parser converts raw file bytes into plain text plus light
// metadata, dispatching on file extension.
package parser

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Result is the outcome of parsing one file.
type Result struct {
	Title    string
	RawText  string
	Metadata map[string]any
}

// ParseError wraps a per-file parse failure so the ingest stage can record
// it against the file without aborting the batch.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse converts file bytes into a Result based on the file extension.
// Unrecognized extensions fall back to UTF-8 text with the base name as title.
func Parse(path string, data []byte) (*Result, error) {
	var (
		result *Result
		err    error
	)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		result, err = parsePDF(path, data)
	case ".xlsx", ".xls":
		result, err = parseSpreadsheet(path, data)
	case ".csv":
		result, err = parseCSV(path, data)
	case ".docx", ".doc":
		result, err = parseDocx(path, data)
	default:
		result = &Result{
			Title:    filepath.Base(path),
			RawText:  string(data),
			Metadata: map[string]any{},
		}
	}

	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return result, nil
}
