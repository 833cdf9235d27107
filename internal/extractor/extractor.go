// Package extractor converts raw document bytes of a known type into plain
// text plus basic metadata, ready for chunking and embedding.
package extractor

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/arlo/knowbase/internal/domain"
)

// Metadata carries basic facts about the extracted text.
type Metadata struct {
	PageCount int `json:"page_count,omitempty"`
	WordCount int `json:"word_count"`
}

// Result is the output of a successful extraction.
type Result struct {
	Text     string
	Metadata Metadata
}

// Extractor dispatches raw bytes to a format-specific parser. Dispatch is
// by filename extension first, falling back to the declared content type.
type Extractor struct{}

// New creates an Extractor.
func New() *Extractor {
	return &Extractor{}
}

// Extract converts document bytes into plain text. Parse and decode
// failures of any kind are reported as ErrExtractionFailed so the worker
// loop gets a clean error to record on the job; they never escape as a
// panic.
func (e *Extractor) Extract(data []byte, filename, contentType string) (result *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("%w: parser panic: %v", domain.ErrExtractionFailed, r)
		}
	}()

	format := detectFormat(filename, contentType)
	if format == "" {
		return nil, fmt.Errorf("%w: %s (%s)", domain.ErrUnsupportedType, filename, contentType)
	}

	var text string
	pageCount := 0

	switch format {
	case "pdf":
		text, pageCount, err = extractPDF(data)
	case "html":
		text, err = extractHTML(data)
	case "csv":
		text, err = extractCSV(data)
	case "xlsx":
		text, err = extractXLSX(data)
	case "text":
		text, err = extractText(data)
	}
	if err != nil {
		return nil, err
	}

	return &Result{
		Text: text,
		Metadata: Metadata{
			PageCount: pageCount,
			WordCount: len(strings.Fields(text)),
		},
	}, nil
}

// detectFormat maps a filename extension, or failing that a declared
// content type, onto an internal format key. Empty means unsupported.
func detectFormat(filename, contentType string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return "pdf"
	case ".html", ".htm":
		return "html"
	case ".csv":
		return "csv"
	case ".xlsx":
		return "xlsx"
	case ".txt", ".md", ".markdown":
		return "text"
	}

	// No usable extension: trust the declared content type.
	ct := strings.ToLower(contentType)
	if idx := strings.Index(ct, ";"); idx != -1 {
		ct = strings.TrimSpace(ct[:idx])
	}
	switch ct {
	case "application/pdf":
		return "pdf"
	case "text/html":
		return "html"
	case "text/csv":
		return "csv"
	case "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		return "xlsx"
	case "text/plain", "text/markdown":
		return "text"
	}

	return ""
}
