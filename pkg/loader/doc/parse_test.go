package doc

import (
	"archive/zip"
	"bytes"
	"strings"
	"testing"
)

func buildDocx(t *testing.T, documentXML string) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatalf("failed to create zip entry: %v", err)
	}
	if _, err := w.Write([]byte(documentXML)); err != nil {
		t.Fatalf("failed to write document.xml: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("failed to close zip: %v", err)
	}
	return buf.Bytes()
}

func TestParseDocxExtractsParagraphs(t *testing.T) {
	docx := buildDocx(t, `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>First paragraph.</w:t></w:r></w:p>
    <w:p><w:r><w:t>Second paragraph.</w:t></w:r></w:p>
  </w:body>
</w:document>`)

	text, err := parseDocx(docx)
	if err != nil {
		t.Fatalf("expected parse to succeed, got %v", err)
	}
	got := string(text)
	if !strings.Contains(got, "First paragraph.") || !strings.Contains(got, "Second paragraph.") {
		t.Fatalf("unexpected text: %q", got)
	}
}

func TestParseDocxSkipsTrackedDeletions(t *testing.T) {
	docx := buildDocx(t, `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>Kept text.</w:t></w:r></w:p>
    <w:p><w:del><w:r><w:t>Deleted text.</w:t></w:r></w:del></w:p>
  </w:body>
</w:document>`)

	text, err := parseDocx(docx)
	if err != nil {
		t.Fatalf("expected parse to succeed, got %v", err)
	}
	got := string(text)
	if !strings.Contains(got, "Kept text.") {
		t.Fatalf("expected kept text, got %q", got)
	}
	if strings.Contains(got, "Deleted text.") {
		t.Fatalf("tracked deletion leaked into output: %q", got)
	}
}

func TestParseDocxRejectsNonDocx(t *testing.T) {
	if _, err := parseDocx([]byte("not a zip")); err == nil {
		t.Fatal("expected error for invalid docx")
	}
}

func TestParseDocxTableCells(t *testing.T) {
	docx := buildDocx(t, `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:tbl>
      <w:tr>
        <w:tc><w:p><w:r><w:t>A</w:t></w:r></w:p></w:tc>
        <w:tc><w:p><w:r><w:t>B</w:t></w:r></w:p></w:tc>
      </w:tr>
    </w:tbl>
  </w:body>
</w:document>`)

	text, err := parseDocx(docx)
	if err != nil {
		t.Fatalf("expected parse to succeed, got %v", err)
	}
	got := string(text)
	if !strings.Contains(got, "A") || !strings.Contains(got, "B") || !strings.Contains(got, "\t") {
		t.Fatalf("expected both cells separated by a tab, got %q", got)
	}
}
