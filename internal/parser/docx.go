package parser

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"path/filepath"
	"strings"
)

var errNoDocumentXML = errors.New("docx archive has no word/document.xml")

// parseDocx extracts paragraph text from the OOXML document part. A .docx
// file is a ZIP archive; the main body lives in word/document.xml with
// visible text inside <w:t> elements, one <w:p> per paragraph.
func parseDocx(path string, data []byte) (*Result, error) {
	archive, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	var docFile *zip.File
	for _, f := range archive.File {
		if f.Name == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return nil, errNoDocumentXML
	}

	rc, err := docFile.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	text, paragraphs, err := extractDocxText(rc)
	if err != nil {
		return nil, err
	}

	return &Result{
		Title:   filepath.Base(path),
		RawText: text,
		Metadata: map[string]any{
			"paragraphCount": paragraphs,
		},
	}, nil
}

func extractDocxText(r io.Reader) (string, int, error) {
	decoder := xml.NewDecoder(r)

	var sb strings.Builder
	paragraphs := 0
	inText := false

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", 0, err
		}

		switch el := tok.(type) {
		case xml.StartElement:
			if el.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			switch el.Name.Local {
			case "t":
				inText = false
			case "p":
				paragraphs++
				sb.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				sb.Write(el)
			}
		}
	}

	return strings.TrimSpace(sb.String()), paragraphs, nil
}
