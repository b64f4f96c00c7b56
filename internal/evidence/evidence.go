// Package evidence normalizes heterogeneous confirmation documents (text,
// PDF, DOCX, image, email) into one canonical text-plus-image payload for
// the extraction adapter. Sub-step failures degrade to warnings wherever a
// best-effort placeholder is possible; only unsupported input fails fast.
package evidence

import (
	"context"

	"trade-validation-service/internal/models"
	"trade-validation-service/internal/ocr"
	apperrors "trade-validation-service/pkg/errors"
	"trade-validation-service/pkg/logger"
)

// Placeholder content recorded when a sub-step yields nothing. The flag on
// Normalized distinguishes these from genuinely empty evidence.
const (
	placeholderPDF   = "[PDF evidence: no extractable text]"
	placeholderDocx  = "[DOCX evidence: no extractable text]"
	placeholderImage = "[Image evidence: OCR text unavailable]"
	placeholderEmail = "[Email evidence: no extractable content]"
)

// Normalized is the canonical evidence payload passed to extraction.
type Normalized struct {
	// Content is the combined textual evidence, possibly a placeholder.
	Content string
	// ImagePath points at a page image for the vision extraction path,
	// empty when the evidence has no image representation.
	ImagePath string
	// Metadata records per-source processing facts (text lengths, OCR
	// usage, attachment inventory).
	Metadata map[string]interface{}
	// Warnings lists degraded sub-steps; processing continued past them.
	Warnings []string
	// ContentUnavailable is set when Content is a placeholder because
	// nothing could be extracted, as opposed to genuinely empty input.
	ContentUnavailable bool
}

// Config holds evidence processing thresholds.
type Config struct {
	// MinPDFTextLength is the minimum text-layer length below which the
	// OCR fallback is attempted.
	MinPDFTextLength int
	// MaxPDFOCRPages caps how many leading pages the OCR fallback renders.
	MaxPDFOCRPages int
}

// DefaultConfig returns the default evidence processing thresholds.
func DefaultConfig() *Config {
	return &Config{
		MinPDFTextLength: 80,
		MaxPDFOCRPages:   3,
	}
}

// Processor turns stored documents into normalized evidence.
type Processor struct {
	config *Config
	ocr    *ocr.Client
	logger logger.Logger
}

// NewProcessor creates a processor. The OCR client may be unconfigured; the
// OCR-dependent paths then degrade to warnings and placeholders.
func NewProcessor(config *Config, ocrClient *ocr.Client) *Processor {
	if config == nil {
		config = DefaultConfig()
	}
	return &Processor{
		config: config,
		ocr:    ocrClient,
		logger: logger.WithComponent("evidence"),
	}
}

// Prepare normalizes one document's raw evidence. Manual text input needs
// no file; every other type requires the stored file path.
func (p *Processor) Prepare(ctx context.Context, doc *models.Document) (*Normalized, error) {
	if doc.FileType == models.FileTypeText {
		return p.prepareText(doc), nil
	}

	if doc.FilePath == "" {
		return nil, apperrors.EvidenceError(apperrors.CodeNoContent, doc.Filename, nil).
			WithSuggestion("the document has no stored file to process")
	}

	switch doc.FileType {
	case models.FileTypeImage:
		return p.prepareImage(ctx, doc.FilePath), nil
	case models.FileTypePDF:
		return p.preparePDF(ctx, doc.FilePath), nil
	case models.FileTypeDocx:
		return p.prepareDocx(doc.FilePath), nil
	case models.FileTypeEmail:
		return p.prepareEmail(ctx, doc.FilePath, doc.ID), nil
	}

	return nil, apperrors.UnsupportedInputError("unsupported file type: " + string(doc.FileType))
}

func (p *Processor) prepareText(doc *models.Document) *Normalized {
	content := trimmed(doc.Content)
	return &Normalized{
		Content: content,
		Metadata: map[string]interface{}{
			"source_type": "text",
			"has_content": content != "",
		},
	}
}
