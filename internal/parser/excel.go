package parser

import (
	"bytes"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// parseSpreadsheet renders each sheet as a heading followed by
// pipe-delimited row dumps, so downstream chunking classifies the
// content as tabular.
func parseSpreadsheet(path string, data []byte) (*Result, error) {
	workbook, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer workbook.Close()

	var sections []string
	sheetNames := workbook.GetSheetList()
	for _, sheet := range sheetNames {
		rows, err := workbook.GetRows(sheet)
		if err != nil {
			return nil, err
		}
		lines := make([]string, 0, len(rows))
		for _, row := range rows {
			lines = append(lines, strings.Join(row, " | "))
		}
		sections = append(sections, "## "+sheet+"\n"+strings.Join(lines, "\n"))
	}

	return &Result{
		Title:   filepath.Base(path),
		RawText: strings.Join(sections, "\n\n"),
		Metadata: map[string]any{
			"sheetNames": sheetNames,
		},
	}, nil
}
