package extractor

import (
	"errors"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/arlo/knowbase/internal/domain"
)

func TestExtractPlainText(t *testing.T) {
	e := New()

	result, err := e.Extract([]byte("  Hello ingestion world.\n"), "notes.txt", "text/plain")
	if err != nil {
		t.Fatal(err)
	}
	if result.Text != "Hello ingestion world." {
		t.Errorf("text = %q", result.Text)
	}
	if result.Metadata.WordCount != 3 {
		t.Errorf("word count = %d, want 3", result.Metadata.WordCount)
	}
	if result.Metadata.PageCount != 0 {
		t.Errorf("page count = %d for plain text", result.Metadata.PageCount)
	}
}

func TestExtractMarkdownPassesThrough(t *testing.T) {
	e := New()

	md := "# Title\n\nSome **bold** prose."
	result, err := e.Extract([]byte(md), "README.md", "")
	if err != nil {
		t.Fatal(err)
	}
	if result.Text != md {
		t.Errorf("markdown was altered: %q", result.Text)
	}
}

func TestExtractInvalidUTF8(t *testing.T) {
	e := New()

	_, err := e.Extract([]byte{0xff, 0xfe, 0xfd}, "broken.txt", "text/plain")
	if !errors.Is(err, domain.ErrExtractionFailed) {
		t.Fatalf("error = %v, want ErrExtractionFailed", err)
	}
}

func TestExtractUnsupportedType(t *testing.T) {
	e := New()

	_, err := e.Extract([]byte{0x4d, 0x5a}, "tool.exe", "application/octet-stream")
	if !errors.Is(err, domain.ErrUnsupportedType) {
		t.Fatalf("error = %v, want ErrUnsupportedType", err)
	}
	if domain.IsRetryable(err) {
		t.Error("unsupported type must be permanent")
	}
}

func TestExtractCSV(t *testing.T) {
	e := New()

	csvData := "Name,Role,Team\nAda,Engineer,Core\nGrace,Admiral,\nLin,,Platform\n"
	result, err := e.Extract([]byte(csvData), "people.csv", "text/csv")
	if err != nil {
		t.Fatal(err)
	}

	blocks := strings.Split(result.Text, "\n\n")
	if len(blocks) != 3 {
		t.Fatalf("got %d row blocks, want 3:\n%s", len(blocks), result.Text)
	}
	if blocks[0] != "Name: Ada\nRole: Engineer\nTeam: Core" {
		t.Errorf("block 0 = %q", blocks[0])
	}
	// Empty cells are dropped, not rendered as "Team: ".
	if blocks[1] != "Name: Grace\nRole: Admiral" {
		t.Errorf("block 1 = %q", blocks[1])
	}
	if blocks[2] != "Name: Lin\nTeam: Platform" {
		t.Errorf("block 2 = %q", blocks[2])
	}
}

func TestExtractCSVRaggedRows(t *testing.T) {
	e := New()

	csvData := "A,B\n1,2,3\n4\n"
	result, err := e.Extract([]byte(csvData), "ragged.csv", "")
	if err != nil {
		t.Fatal(err)
	}
	// The third column has no header and falls back to a positional name.
	if !strings.Contains(result.Text, "Column 3: 3") {
		t.Errorf("text = %q", result.Text)
	}
}

func TestExtractXLSX(t *testing.T) {
	f := excelize.NewFile()
	if err := f.SetSheetRow("Sheet1", "A1", &[]interface{}{"Product", "Price"}); err != nil {
		t.Fatal(err)
	}
	if err := f.SetSheetRow("Sheet1", "A2", &[]interface{}{"Widget", 42}); err != nil {
		t.Fatal(err)
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatal(err)
	}

	e := New()
	result, err := e.Extract(buf.Bytes(), "catalog.xlsx", "")
	if err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(result.Text, "Sheet: Sheet1") {
		t.Errorf("missing sheet header:\n%s", result.Text)
	}
	if !strings.Contains(result.Text, "Product: Widget") || !strings.Contains(result.Text, "Price: 42") {
		t.Errorf("row not rendered:\n%s", result.Text)
	}
}

func TestExtractHTML(t *testing.T) {
	e := New()

	html := `<html><head><style>p{color:red}</style></head><body>
		<script>alert("nope")</script>
		<h1>Refund Policy</h1>
		<p>Refunds are processed within 14 days.</p>
		<ul><li>Keep your receipt</li></ul>
	</body></html>`

	result, err := e.Extract([]byte(html), "policy.html", "text/html")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Refund Policy", "Refunds are processed within 14 days.", "Keep your receipt"} {
		if !strings.Contains(result.Text, want) {
			t.Errorf("missing %q in:\n%s", want, result.Text)
		}
	}
	if strings.Contains(result.Text, "alert") || strings.Contains(result.Text, "color:red") {
		t.Errorf("script/style leaked into text:\n%s", result.Text)
	}
}

func TestExtractCorruptPDF(t *testing.T) {
	e := New()

	_, err := e.Extract([]byte("%PDF-1.7 garbage"), "broken.pdf", "application/pdf")
	if !errors.Is(err, domain.ErrExtractionFailed) {
		t.Fatalf("error = %v, want ErrExtractionFailed", err)
	}
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		filename    string
		contentType string
		want        string
	}{
		{"report.pdf", "", "pdf"},
		{"REPORT.PDF", "", "pdf"},
		{"index.htm", "", "html"},
		{"data.csv", "application/octet-stream", "csv"}, // extension wins
		{"book.xlsx", "", "xlsx"},
		{"notes.markdown", "", "text"},
		{"upload-1234", "application/pdf", "pdf"},
		{"upload-1234", "text/plain; charset=utf-8", "text"},
		{"upload-1234", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "xlsx"},
		{"upload-1234", "application/octet-stream", ""},
		{"archive.zip", "", ""},
	}

	for _, tt := range tests {
		if got := detectFormat(tt.filename, tt.contentType); got != tt.want {
			t.Errorf("detectFormat(%q, %q) = %q, want %q", tt.filename, tt.contentType, got, tt.want)
		}
	}
}
