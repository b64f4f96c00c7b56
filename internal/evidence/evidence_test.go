package evidence

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"trade-validation-service/internal/models"
	"trade-validation-service/internal/ocr"
)

func newTestProcessor() *Processor {
	// Unconfigured OCR client: the OCR-dependent paths degrade.
	return NewProcessor(DefaultConfig(), ocr.NewClient("", 0))
}

func TestPrepareText(t *testing.T) {
	p := newTestProcessor()

	doc := models.NewDocument("manual.txt", models.FileTypeText)
	doc.Content = "  Trade ID: TRS-2024-001\nNotional: 1,000,000 USD  "

	normalized, err := p.Prepare(context.Background(), doc)
	if err != nil {
		t.Fatalf("Failed to prepare text evidence: %v", err)
	}
	if normalized.Content != "Trade ID: TRS-2024-001\nNotional: 1,000,000 USD" {
		t.Errorf("Expected trimmed content, got %q", normalized.Content)
	}
	if normalized.Metadata["source_type"] != "text" {
		t.Errorf("Expected source_type text, got %v", normalized.Metadata["source_type"])
	}
	if normalized.ContentUnavailable {
		t.Error("Expected content to be available")
	}
}

func TestPrepareTextEmpty(t *testing.T) {
	p := newTestProcessor()

	doc := models.NewDocument("manual.txt", models.FileTypeText)
	normalized, err := p.Prepare(context.Background(), doc)
	if err != nil {
		t.Fatalf("Failed to prepare empty text evidence: %v", err)
	}
	if normalized.Content != "" {
		t.Errorf("Expected empty content, got %q", normalized.Content)
	}
	if has, _ := normalized.Metadata["has_content"].(bool); has {
		t.Error("Expected has_content false")
	}
}

func TestPrepareMissingFilePath(t *testing.T) {
	p := newTestProcessor()

	doc := models.NewDocument("confirm.pdf", models.FileTypePDF)
	if _, err := p.Prepare(context.Background(), doc); err == nil {
		t.Fatal("Expected error for document without file path")
	}
}

func TestPrepareImageWithoutOCR(t *testing.T) {
	p := newTestProcessor()

	imagePath := filepath.Join(t.TempDir(), "scan.png")
	if err := os.WriteFile(imagePath, []byte("not a real png"), 0o644); err != nil {
		t.Fatalf("Failed to write test image: %v", err)
	}

	doc := models.NewDocument("scan.png", models.FileTypeImage)
	doc.FilePath = imagePath

	normalized, err := p.Prepare(context.Background(), doc)
	if err != nil {
		t.Fatalf("Failed to prepare image evidence: %v", err)
	}
	if !normalized.ContentUnavailable {
		t.Error("Expected content unavailable without OCR")
	}
	if normalized.Content != placeholderImage {
		t.Errorf("Expected image placeholder, got %q", normalized.Content)
	}
	if normalized.ImagePath != imagePath {
		t.Errorf("Expected image path surfaced for vision extraction, got %q", normalized.ImagePath)
	}
	if len(normalized.Warnings) == 0 {
		t.Error("Expected a warning about missing OCR")
	}
}

func TestPreparePDFUnreadable(t *testing.T) {
	p := newTestProcessor()

	pdfPath := filepath.Join(t.TempDir(), "broken.pdf")
	if err := os.WriteFile(pdfPath, []byte("not a pdf"), 0o644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	doc := models.NewDocument("broken.pdf", models.FileTypePDF)
	doc.FilePath = pdfPath

	normalized, err := p.Prepare(context.Background(), doc)
	if err != nil {
		t.Fatalf("Expected degraded result, got error: %v", err)
	}
	if !normalized.ContentUnavailable {
		t.Error("Expected content unavailable for unreadable PDF")
	}
	if normalized.Content != placeholderPDF {
		t.Errorf("Expected PDF placeholder, got %q", normalized.Content)
	}
	if len(normalized.Warnings) == 0 {
		t.Error("Expected warnings for failed extraction")
	}
}

// writeTestPDF builds a minimal single-page PDF whose text layer is the
// given string, computing the cross-reference offsets as it goes.
func writeTestPDF(t *testing.T, text string) string {
	t.Helper()

	content := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 5 0 R >> >> /Contents 4 0 R >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xrefStart := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, offset := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offset)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xrefStart)

	path := filepath.Join(t.TempDir(), "confirm.pdf")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("Failed to write test pdf: %v", err)
	}
	return path
}

func TestPreparePDFScannedFallsBackToOCR(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ocr" {
			t.Errorf("Expected /ocr path, got %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(ocr.Result{
			FullText: "Trade ID: TRS-2024-001\nNotional: 1,000,000 USD",
			Words: []ocr.Word{
				{Text: "TRS-2024-001", X: 0.1, Y: 0.2, Width: 0.3, Height: 0.05, Confidence: 0.99},
			},
		})
	}))
	defer srv.Close()

	p := NewProcessor(DefaultConfig(), ocr.NewClient(srv.URL, 0))

	// The text layer is well below MinPDFTextLength, so the OCR fallback
	// runs and both sources end up in the combined content.
	doc := models.NewDocument("confirm.pdf", models.FileTypePDF)
	doc.FilePath = writeTestPDF(t, "Scanned copy")

	normalized, err := p.Prepare(context.Background(), doc)
	if err != nil {
		t.Fatalf("Failed to prepare scanned pdf evidence: %v", err)
	}

	if normalized.ContentUnavailable {
		t.Error("Expected content available after OCR fallback")
	}
	if !strings.Contains(normalized.Content, "Scanned copy") {
		t.Errorf("Expected text layer retained, got %q", normalized.Content)
	}
	if !strings.Contains(normalized.Content, "[OCR FALLBACK]") {
		t.Errorf("Expected OCR marker in combined content, got %q", normalized.Content)
	}
	if !strings.Contains(normalized.Content, "TRS-2024-001") {
		t.Errorf("Expected OCR text in combined content, got %q", normalized.Content)
	}
	if used, _ := normalized.Metadata["ocr_used"].(bool); !used {
		t.Error("Expected ocr_used metadata set")
	}
	if pages, _ := normalized.Metadata["ocr_pages_processed"].(int); pages < 1 {
		t.Errorf("Expected at least 1 OCR page processed, got %v", normalized.Metadata["ocr_pages_processed"])
	}
}

func TestCombinePDFText(t *testing.T) {
	tests := []struct {
		name      string
		textLayer string
		ocrText   string
		expected  string
	}{
		{"both sources marked", "layer", "scanned", "layer\n\n[OCR FALLBACK]\nscanned"},
		{"text layer only", "layer", "", "layer"},
		{"ocr only", "  ", "scanned", "scanned"},
		{"neither", "", "  ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := combinePDFText(tt.textLayer, tt.ocrText); got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func writeTestDocx(t *testing.T, documentXML string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "confirm.docx")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create docx file: %v", err)
	}
	defer f.Close()

	w := zip.NewWriter(f)
	entry, err := w.Create("word/document.xml")
	if err != nil {
		t.Fatalf("Failed to create zip entry: %v", err)
	}
	if _, err := entry.Write([]byte(documentXML)); err != nil {
		t.Fatalf("Failed to write document.xml: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Failed to close zip writer: %v", err)
	}
	return path
}

func TestPrepareDocx(t *testing.T) {
	p := newTestProcessor()

	documentXML := `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>Trade Confirmation</w:t></w:r></w:p>
    <w:p><w:r><w:t>Trade ID: TRS-2024-001</w:t></w:r></w:p>
    <w:tbl>
      <w:tr>
        <w:tc><w:p><w:r><w:t>Notional</w:t></w:r></w:p></w:tc>
        <w:tc><w:p><w:r><w:t>1,000,000 USD</w:t></w:r></w:p></w:tc>
      </w:tr>
      <w:tr>
        <w:tc><w:p><w:r><w:t>Currency</w:t></w:r></w:p></w:tc>
        <w:tc><w:p><w:r><w:t>USD</w:t></w:r></w:p></w:tc>
      </w:tr>
    </w:tbl>
  </w:body>
</w:document>`

	doc := models.NewDocument("confirm.docx", models.FileTypeDocx)
	doc.FilePath = writeTestDocx(t, documentXML)

	normalized, err := p.Prepare(context.Background(), doc)
	if err != nil {
		t.Fatalf("Failed to prepare docx evidence: %v", err)
	}

	lines := strings.Split(normalized.Content, "\n")
	if len(lines) != 4 {
		t.Fatalf("Expected 4 lines, got %d: %q", len(lines), normalized.Content)
	}
	if lines[0] != "Trade Confirmation" || lines[1] != "Trade ID: TRS-2024-001" {
		t.Errorf("Expected paragraphs in order, got %q", normalized.Content)
	}
	if lines[2] != "Notional | 1,000,000 USD" {
		t.Errorf("Expected table row joined with pipe, got %q", lines[2])
	}
	if normalized.ContentUnavailable {
		t.Error("Expected content to be available")
	}
}

func TestPrepareDocxEmpty(t *testing.T) {
	p := newTestProcessor()

	documentXML := `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body><w:p></w:p></w:body>
</w:document>`

	doc := models.NewDocument("empty.docx", models.FileTypeDocx)
	doc.FilePath = writeTestDocx(t, documentXML)

	normalized, err := p.Prepare(context.Background(), doc)
	if err != nil {
		t.Fatalf("Failed to prepare docx evidence: %v", err)
	}
	if !normalized.ContentUnavailable || normalized.Content != placeholderDocx {
		t.Errorf("Expected docx placeholder, got %q", normalized.Content)
	}
}

const testEmail = `From: ops@partya.example
To: confirmations@partyb.example
Subject: Trade Confirmation TRS-2024-001
MIME-Version: 1.0
Content-Type: multipart/mixed; boundary="boundary42"

--boundary42
Content-Type: text/plain; charset=utf-8

Please find attached the confirmation for trade TRS-2024-001.
Notional: 1,000,000 USD
--boundary42
Content-Type: application/zip
Content-Disposition: attachment; filename="bundle.zip"
Content-Transfer-Encoding: base64

UEsFBgAAAAAAAAAAAAAAAAAAAAAAAA==
--boundary42
Content-Type: image/png
Content-Disposition: attachment; filename="scan page 1.png"
Content-Transfer-Encoding: base64

iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR4nGNgYGBgAAAABQAB
h6FO1AAAAABJRU5ErkJggg==
--boundary42--
`

func TestPrepareEmail(t *testing.T) {
	p := newTestProcessor()

	dir := t.TempDir()
	emailPath := filepath.Join(dir, "confirmation.eml")
	if err := os.WriteFile(emailPath, []byte(testEmail), 0o644); err != nil {
		t.Fatalf("Failed to write test email: %v", err)
	}

	doc := models.NewDocument("confirmation.eml", models.FileTypeEmail)
	doc.FilePath = emailPath

	normalized, err := p.Prepare(context.Background(), doc)
	if err != nil {
		t.Fatalf("Failed to prepare email evidence: %v", err)
	}

	if !strings.Contains(normalized.Content, "Subject: Trade Confirmation TRS-2024-001") {
		t.Errorf("Expected subject in content, got %q", normalized.Content)
	}
	if !strings.Contains(normalized.Content, "Notional: 1,000,000 USD") {
		t.Errorf("Expected body text in content, got %q", normalized.Content)
	}

	// The zip attachment is skipped with a warning; the image attachment
	// is persisted and surfaced for the vision path.
	foundZipWarning := false
	for _, w := range normalized.Warnings {
		if strings.Contains(w, "zip") {
			foundZipWarning = true
		}
	}
	if !foundZipWarning {
		t.Errorf("Expected zip attachment warning, got %v", normalized.Warnings)
	}

	if normalized.ImagePath == "" {
		t.Fatal("Expected first image attachment path to be surfaced")
	}
	if !strings.Contains(normalized.ImagePath, doc.ID+"_attachments") {
		t.Errorf("Expected attachment stored under the document's attachment dir, got %q", normalized.ImagePath)
	}
	if strings.ContainsAny(filepath.Base(normalized.ImagePath), " ") {
		t.Errorf("Expected sanitized attachment filename, got %q", normalized.ImagePath)
	}
	if _, err := os.Stat(normalized.ImagePath); err != nil {
		t.Errorf("Expected persisted attachment file: %v", err)
	}

	if normalized.Metadata["attachments_processed"] != 1 {
		t.Errorf("Expected 1 processed attachment, got %v", normalized.Metadata["attachments_processed"])
	}
}

func TestPrepareEmailUnparseable(t *testing.T) {
	p := newTestProcessor()

	emailPath := filepath.Join(t.TempDir(), "broken.eml")
	if err := os.WriteFile(emailPath, []byte("\x00\x01\x02"), 0o644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	doc := models.NewDocument("broken.eml", models.FileTypeEmail)
	doc.FilePath = emailPath

	normalized, err := p.Prepare(context.Background(), doc)
	if err != nil {
		t.Fatalf("Expected degraded result, got error: %v", err)
	}
	if !normalized.ContentUnavailable {
		t.Error("Expected content unavailable for unparseable email")
	}
}

func TestSafeAttachmentName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"report.pdf", "report.pdf"},
		{"scan page 1.png", "scan_page_1.png"},
		{"../../etc/passwd", "passwd"},
		{"", "attachment_0"},
	}

	for _, tt := range tests {
		if got := safeAttachmentName(tt.input, 0); got != tt.expected {
			t.Errorf("safeAttachmentName(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}
