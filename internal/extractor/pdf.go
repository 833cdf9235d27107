package extractor

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/arlo/knowbase/internal/domain"
	"github.com/ledongthuc/pdf"
)

// extractPDF parses a PDF and returns its plain text plus page count.
// Pages that fail to decode are skipped rather than failing the document;
// a PDF whose every page is unreadable still yields empty text, which the
// pipeline treats as "no chunks generated" downstream.
func extractPDF(data []byte) (string, int, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", domain.ErrExtractionFailed, err)
	}

	numPages := reader.NumPage()
	var text strings.Builder
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		pageText, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		text.WriteString(pageText)
		text.WriteString("\n\n")
	}

	return strings.TrimSpace(text.String()), numPages, nil
}
