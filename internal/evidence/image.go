package evidence

import (
	"context"

	"github.com/pkg/errors"

	"trade-validation-service/internal/ocr"
)

// prepareImage runs OCR over an image file. The image path is always
// surfaced so the vision extraction path can read the pixels even when OCR
// produced nothing.
func (p *Processor) prepareImage(ctx context.Context, filePath string) *Normalized {
	var warnings []string
	ocrText := ""

	result, err := p.ocr.Process(ctx, filePath, 0, false)
	switch {
	case errors.Is(err, ocr.ErrUnavailable):
		warnings = append(warnings, "OCR service not configured; image text unavailable")
	case err != nil:
		warnings = append(warnings, "Image OCR failed: "+err.Error())
	default:
		ocrText = trimmed(result.FullText)
	}

	content := ocrText
	unavailable := false
	if content == "" {
		content = placeholderImage
		unavailable = true
	}

	return &Normalized{
		Content:   content,
		ImagePath: filePath,
		Metadata: map[string]interface{}{
			"source_type":     "image",
			"ocr_used":        true,
			"ocr_text_length": len(ocrText),
		},
		Warnings:           warnings,
		ContentUnavailable: unavailable,
	}
}
