package parser

import (
	"bytes"
	"path/filepath"

	"github.com/ledongthuc/pdf"
)

func parsePDF(path string, data []byte) (*Result, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	textReader, err := reader.GetPlainText()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(textReader); err != nil {
		return nil, err
	}

	return &Result{
		Title:   filepath.Base(path),
		RawText: buf.String(),
		Metadata: map[string]any{
			"pageCount": reader.NumPage(),
		},
	}, nil
}
