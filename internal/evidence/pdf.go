package evidence

import (
	"context"
	"strconv"
	"strings"

	pdf "github.com/ledongthuc/pdf"

	"trade-validation-service/pkg/logger"
)

// preparePDF extracts the PDF text layer, falling back to OCR over the
// leading pages when the text layer is too thin (scanned documents). Both
// sources are kept in the output, separated by an explicit marker, so the
// extractor sees everything that was found.
func (p *Processor) preparePDF(ctx context.Context, filePath string) *Normalized {
	var warnings []string

	textLayer, pageCount, err := extractPDFText(filePath)
	if err != nil {
		warnings = append(warnings, "PDF text extraction failed: "+err.Error())
	}
	textLayer = trimmed(textLayer)

	needsOCR := len(textLayer) < p.config.MinPDFTextLength

	var ocrText string
	ocrPages := 0
	if needsOCR {
		ocrText, ocrPages, warnings = p.pdfOCRFallback(ctx, filePath, pageCount, warnings)
		if trimmed(ocrText) == "" {
			warnings = append(warnings, "PDF OCR fallback produced no text")
		}
	}

	content := combinePDFText(textLayer, ocrText)
	unavailable := false
	if content == "" {
		content = placeholderPDF
		unavailable = true
	}

	return &Normalized{
		Content: content,
		Metadata: map[string]interface{}{
			"source_type":         "pdf",
			"pdf_text_length":     len(textLayer),
			"ocr_used":            needsOCR,
			"ocr_pages_processed": ocrPages,
			"ocr_text_length":     len(ocrText),
		},
		Warnings:           warnings,
		ContentUnavailable: unavailable,
	}
}

// pdfOCRFallback runs OCR over up to MaxPDFOCRPages leading pages. OCR
// being unconfigured is a single warning, not one per page.
func (p *Processor) pdfOCRFallback(ctx context.Context, filePath string, pageCount int, warnings []string) (string, int, []string) {
	if !p.ocr.Available() {
		return "", 0, append(warnings, "OCR service not configured; scanned PDF content unavailable")
	}

	maxPages := pageCount
	if maxPages > p.config.MaxPDFOCRPages {
		maxPages = p.config.MaxPDFOCRPages
	}
	if maxPages < 1 {
		maxPages = 1
	}

	var parts []string
	for page := 0; page < maxPages; page++ {
		result, err := p.ocr.Process(ctx, filePath, page, false)
		if err != nil {
			warnings = append(warnings, "PDF OCR failed for page "+strconv.Itoa(page)+": "+err.Error())
			continue
		}
		if text := trimmed(result.FullText); text != "" {
			parts = append(parts, text)
		}
	}

	p.logger.WithFields(logger.Fields{
		"file":  filePath,
		"pages": maxPages,
	}).Debug("PDF OCR fallback complete")

	return strings.Join(parts, "\n"), maxPages, warnings
}

// extractPDFText reads the text layer of every page, skipping pages that
// fail individually. Returns the joined text and the page count.
func extractPDFText(filePath string) (string, int, error) {
	f, reader, err := pdf.Open(filePath)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	pageCount := reader.NumPage()
	var parts []string
	for i := 1; i <= pageCount; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if text = trimmed(text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n"), pageCount, nil
}

// combinePDFText merges text-layer and OCR output. When both are present
// the OCR portion is marked so the extractor can weigh it accordingly.
func combinePDFText(textLayer, ocrText string) string {
	textLayer = trimmed(textLayer)
	ocrText = trimmed(ocrText)

	if textLayer != "" && ocrText != "" {
		return textLayer + "\n\n[OCR FALLBACK]\n" + ocrText
	}
	if textLayer != "" {
		return textLayer
	}
	return ocrText
}

func trimmed(s string) string {
	return strings.TrimSpace(s)
}
