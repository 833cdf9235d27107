package extractor

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/arlo/knowbase/internal/domain"
	"github.com/xuri/excelize/v2"
)

// Tabular formats are serialized row-by-row into "Header: value" blocks
// instead of raw delimited text: the chunker and the embedding model both
// work on natural-language-like text, and a bare comma row embeds poorly.

// extractCSV renders a CSV file as one text block per row.
func extractCSV(data []byte) (string, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1 // tolerate ragged rows

	records, err := reader.ReadAll()
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrExtractionFailed, err)
	}
	if len(records) == 0 {
		return "", nil
	}

	return renderRows(records[0], records[1:]), nil
}

// extractXLSX renders every sheet of an XLSX workbook, first row as header.
func extractXLSX(data []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrExtractionFailed, err)
	}
	defer f.Close()

	var blocks []string
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("%w: sheet %s: %v", domain.ErrExtractionFailed, sheet, err)
		}
		if len(rows) == 0 {
			continue
		}

		block := renderRows(rows[0], rows[1:])
		if block != "" {
			blocks = append(blocks, fmt.Sprintf("Sheet: %s\n\n%s", sheet, block))
		}
	}

	return strings.Join(blocks, "\n\n"), nil
}

// renderRows turns header + data rows into blank-line-separated
// "Header: value" blocks, one block per row. Each block becomes one
// paragraph for the chunker.
func renderRows(header []string, rows [][]string) string {
	var blocks []string
	for _, row := range rows {
		var lines []string
		for i, cell := range row {
			cell = strings.TrimSpace(cell)
			if cell == "" {
				continue
			}
			name := fmt.Sprintf("Column %d", i+1)
			if i < len(header) && strings.TrimSpace(header[i]) != "" {
				name = strings.TrimSpace(header[i])
			}
			lines = append(lines, fmt.Sprintf("%s: %s", name, cell))
		}
		if len(lines) > 0 {
			blocks = append(blocks, strings.Join(lines, "\n"))
		}
	}
	return strings.Join(blocks, "\n\n")
}
