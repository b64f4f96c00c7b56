package evidence

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jhillyerd/enmime"

	"trade-validation-service/pkg/logger"
)

// supportedAttachmentExtensions lists the attachment types recursed into.
// Archives are deliberately skipped: unpacking nested containers from
// untrusted mail is not worth the attack surface.
var supportedAttachmentExtensions = map[string]bool{
	".pdf":  true,
	".docx": true,
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".bmp":  true,
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// prepareEmail parses an RFC 5322 message: header block, body (HTML
// stripped when no plain part exists), and supported attachments persisted
// next to the message and recursed into. The first image attachment is
// surfaced for the vision extraction path.
func (p *Processor) prepareEmail(ctx context.Context, filePath, docID string) *Normalized {
	raw, err := os.ReadFile(filePath)
	if err != nil {
		return &Normalized{
			Content:            placeholderEmail,
			Metadata:           map[string]interface{}{"source_type": "eml"},
			Warnings:           []string{"Failed to read email file: " + err.Error()},
			ContentUnavailable: true,
		}
	}

	env, err := enmime.ReadEnvelope(strings.NewReader(string(raw)))
	if err != nil {
		return &Normalized{
			Content:            placeholderEmail,
			Metadata:           map[string]interface{}{"source_type": "eml"},
			Warnings:           []string{"Failed to parse email: " + err.Error()},
			ContentUnavailable: true,
		}
	}

	var warnings []string
	subject := trimmed(env.GetHeader("Subject"))
	sender := trimmed(env.GetHeader("From"))

	body := trimmed(env.Text)
	if body == "" && env.HTML != "" {
		body = stripHTML(env.HTML)
	}

	attachmentDir := filepath.Join(filepath.Dir(filePath), docID+"_attachments")
	attachmentTexts, attachmentMeta, firstImagePath, warnings := p.processAttachments(ctx, env, attachmentDir, warnings)

	var headerLines []string
	if subject != "" {
		headerLines = append(headerLines, "Subject: "+subject)
	}
	if sender != "" {
		headerLines = append(headerLines, "From: "+sender)
	}
	headerLines = append(headerLines, "[Email Body]")
	if body != "" {
		headerLines = append(headerLines, body)
	}

	parts := []string{strings.Join(headerLines, "\n")}
	parts = append(parts, attachmentTexts...)
	content := trimmed(strings.Join(parts, "\n\n"))

	unavailable := false
	if body == "" && len(attachmentTexts) == 0 && subject == "" && sender == "" {
		content = placeholderEmail
		unavailable = true
	}

	p.logger.WithFields(logger.Fields{
		"subject":     subject,
		"attachments": len(attachmentMeta),
	}).Debug("Email evidence normalized")

	return &Normalized{
		Content:   content,
		ImagePath: firstImagePath,
		Metadata: map[string]interface{}{
			"source_type":           "eml",
			"subject":               subject,
			"sender":                sender,
			"attachments_processed": len(attachmentMeta),
			"attachments":           attachmentMeta,
		},
		Warnings:           warnings,
		ContentUnavailable: unavailable,
	}
}

// processAttachments persists supported attachments and extracts text from
// each. Failures on individual attachments degrade to warnings.
func (p *Processor) processAttachments(ctx context.Context, env *enmime.Envelope, attachmentDir string, warnings []string) ([]string, []map[string]interface{}, string, []string) {
	var texts []string
	var meta []map[string]interface{}
	firstImagePath := ""

	if len(env.Attachments) == 0 {
		return nil, nil, "", warnings
	}

	if err := os.MkdirAll(attachmentDir, 0o755); err != nil {
		return nil, nil, "", append(warnings, "Failed to create attachment directory: "+err.Error())
	}

	for index, att := range env.Attachments {
		filename := safeAttachmentName(att.FileName, index)
		ext := strings.ToLower(filepath.Ext(filename))

		if ext == ".zip" {
			warnings = append(warnings, "Ignored zip attachment: "+filename)
			continue
		}
		if !supportedAttachmentExtensions[ext] {
			warnings = append(warnings, "Ignored unsupported attachment type: "+filename)
			continue
		}

		attachmentPath := filepath.Join(attachmentDir, strconv.Itoa(index)+"_"+filename)
		if err := os.WriteFile(attachmentPath, att.Content, 0o644); err != nil {
			warnings = append(warnings, "Failed to save attachment "+filename+": "+err.Error())
			continue
		}

		text, itemMeta := p.extractAttachmentText(ctx, attachmentPath, ext)
		itemMeta["attachment_name"] = filename
		meta = append(meta, itemMeta)

		if warningList, ok := itemMeta["warnings"].([]string); ok {
			warnings = append(warnings, warningList...)
		}

		if trimmed(text) != "" {
			texts = append(texts, "[Attachment: "+filename+"]\n"+trimmed(text))
		}

		if itemMeta["source_type"] == "image" && firstImagePath == "" {
			firstImagePath = attachmentPath
		}
	}

	return texts, meta, firstImagePath, warnings
}

// extractAttachmentText recurses into a persisted attachment using the
// matching single-file normalizer.
func (p *Processor) extractAttachmentText(ctx context.Context, attachmentPath, ext string) (string, map[string]interface{}) {
	switch ext {
	case ".png", ".jpg", ".jpeg", ".gif", ".bmp":
		normalized := p.prepareImage(ctx, attachmentPath)
		return attachmentContent(normalized), map[string]interface{}{
			"source_type":     "image",
			"ocr_text_length": normalized.Metadata["ocr_text_length"],
			"warnings":        normalized.Warnings,
		}
	case ".pdf":
		normalized := p.preparePDF(ctx, attachmentPath)
		return attachmentContent(normalized), map[string]interface{}{
			"source_type":     "pdf",
			"pdf_text_length": normalized.Metadata["pdf_text_length"],
			"ocr_used":        normalized.Metadata["ocr_used"],
			"warnings":        normalized.Warnings,
		}
	case ".docx":
		normalized := p.prepareDocx(attachmentPath)
		return attachmentContent(normalized), map[string]interface{}{
			"source_type": "docx",
			"warnings":    normalized.Warnings,
		}
	}
	return "", map[string]interface{}{"source_type": "unknown", "warnings": []string{"Unsupported attachment extension: " + ext}}
}

// attachmentContent returns the extracted text, suppressing placeholders so
// an empty attachment does not inject marker noise into the email body.
func attachmentContent(normalized *Normalized) string {
	if normalized.ContentUnavailable {
		return ""
	}
	return normalized.Content
}

// stripHTML reduces an HTML body to its visible text.
func stripHTML(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	doc.Find("script,style").Remove()
	return trimmed(regexp.MustCompile(`\s+`).ReplaceAllString(doc.Text(), " "))
}

// safeAttachmentName sanitizes an attachment filename for local storage.
func safeAttachmentName(name string, index int) string {
	safe := filepath.Base(trimmed(name))
	if safe == "." || safe == "" {
		safe = "attachment_" + strconv.Itoa(index)
	}
	safe = unsafeNameChars.ReplaceAllString(safe, "_")
	if safe == "" {
		return "attachment.bin"
	}
	return safe
}
