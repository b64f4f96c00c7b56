package evidence

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"strings"
)

// prepareDocx extracts the textual content of a Word document: body
// paragraphs in order, then table rows with cells joined by " | ".
func (p *Processor) prepareDocx(filePath string) *Normalized {
	var warnings []string

	content, err := extractDocxText(filePath)
	if err != nil {
		warnings = append(warnings, "DOCX extraction failed: "+err.Error())
	}

	unavailable := false
	if content == "" {
		content = placeholderDocx
		unavailable = true
	}

	return &Normalized{
		Content: content,
		Metadata: map[string]interface{}{
			"source_type": "docx",
		},
		Warnings:           warnings,
		ContentUnavailable: unavailable,
	}
}

// extractDocxText streams word/document.xml out of the .docx ZIP container.
// Top-level paragraphs are emitted as lines; table cell text is collected
// per row and joined with " | ".
func extractDocxText(filePath string) (string, error) {
	r, err := zip.OpenReader(filePath)
	if err != nil {
		return "", fmt.Errorf("open docx archive: %w", err)
	}
	defer r.Close()

	var docFile *zip.File
	for _, f := range r.File {
		if f.Name == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return "", fmt.Errorf("word/document.xml not found in archive")
	}

	rc, err := docFile.Open()
	if err != nil {
		return "", fmt.Errorf("open document.xml: %w", err)
	}
	defer rc.Close()

	decoder := xml.NewDecoder(rc)

	var parts []string
	var paragraph strings.Builder
	var cell strings.Builder
	var row []string
	tableDepth := 0
	inParagraph := false
	inText := false

	for {
		tok, err := decoder.Token()
		if err != nil {
			break
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "tbl":
				tableDepth++
			case "tr":
				if tableDepth > 0 {
					row = row[:0]
				}
			case "tc":
				if tableDepth > 0 {
					cell.Reset()
				}
			case "p":
				if tableDepth == 0 {
					inParagraph = true
					paragraph.Reset()
				}
			case "t":
				inText = true
			case "tab":
				writeRun(tableDepth, inParagraph, &paragraph, &cell, "\t")
			case "br":
				writeRun(tableDepth, inParagraph, &paragraph, &cell, "\n")
			}

		case xml.CharData:
			if inText {
				writeRun(tableDepth, inParagraph, &paragraph, &cell, string(t))
			}

		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if tableDepth == 0 && inParagraph {
					inParagraph = false
					if text := trimmed(paragraph.String()); text != "" {
						parts = append(parts, text)
					}
				}
			case "tc":
				if tableDepth > 0 {
					if text := trimmed(cell.String()); text != "" {
						row = append(row, text)
					}
				}
			case "tr":
				if tableDepth > 0 && len(row) > 0 {
					parts = append(parts, strings.Join(row, " | "))
				}
			case "tbl":
				if tableDepth > 0 {
					tableDepth--
				}
			}
		}
	}

	return trimmed(strings.Join(parts, "\n")), nil
}

// writeRun routes a text run to the current table cell or paragraph.
func writeRun(tableDepth int, inParagraph bool, paragraph, cell *strings.Builder, text string) {
	if tableDepth > 0 {
		cell.WriteString(text)
		return
	}
	if inParagraph {
		paragraph.WriteString(text)
	}
}
