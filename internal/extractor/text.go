package extractor

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/arlo/knowbase/internal/domain"
)

// extractText passes plain or markup text through after a UTF-8 check.
func extractText(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: not valid UTF-8", domain.ErrExtractionFailed)
	}
	return strings.TrimSpace(string(data)), nil
}

var blankLines = regexp.MustCompile(`\n{3,}`)

// extractHTML strips markup and returns the document's visible text with
// paragraph structure approximated by newlines.
func extractHTML(data []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrExtractionFailed, err)
	}

	doc.Find("script, style, noscript").Remove()

	var parts []string
	doc.Find("h1, h2, h3, h4, h5, h6, p, li, td, th, pre, blockquote").Each(func(_ int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); text != "" {
			parts = append(parts, text)
		}
	})

	text := strings.Join(parts, "\n\n")
	if text == "" {
		// No block elements; fall back to the whole body text.
		text = strings.TrimSpace(doc.Find("body").Text())
	}

	return blankLines.ReplaceAllString(text, "\n\n"), nil
}
