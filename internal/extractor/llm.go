package extractor

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"trade-validation-service/internal/models"
	apperrors "trade-validation-service/pkg/errors"
	"trade-validation-service/pkg/logger"
)

// DefaultModel is the language model used when none is configured.
const DefaultModel = "claude-sonnet-4-5-20250929"

// LLMExtractor extracts trade fields through a single language model call.
// Adapter failures fall back to the heuristic extractor so the user-facing
// operation still completes.
type LLMExtractor struct {
	client   sdk.Client
	model    string
	fallback *HeuristicExtractor
	logger   logger.Logger
}

// NewLLMExtractor creates an extractor backed by the Anthropic API.
func NewLLMExtractor(apiKey, model string) *LLMExtractor {
	if model == "" {
		model = DefaultModel
	}
	return &LLMExtractor{
		client:   sdk.NewClient(option.WithAPIKey(apiKey)),
		model:    model,
		fallback: NewHeuristicExtractor(),
		logger:   logger.WithComponent("extractor"),
	}
}

// ExtractTrade sends the evidence to the model and parses the JSON payload
// it returns. When an image path is supplied and readable, it is attached
// as a vision block so image-only evidence still extracts.
func (e *LLMExtractor) ExtractTrade(ctx context.Context, content, imagePath string) (*models.ExtractedTrade, error) {
	blocks := []sdk.ContentBlockParamUnion{}

	if imagePath != "" {
		if block, ok := imageBlock(imagePath); ok {
			blocks = append(blocks, block)
		}
	}
	blocks = append(blocks, sdk.NewTextBlock(buildPrompt(content)))

	msg, err := e.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(e.model),
		MaxTokens: 1024,
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(blocks...)},
	})
	if err != nil {
		e.logger.WithError(err).Warn("LLM extraction failed, falling back to heuristic extraction")
		return e.fallback.ExtractTrade(ctx, content, imagePath)
	}

	var responseText strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			responseText.WriteString(block.Text)
		}
	}

	extracted, err := parseExtractionPayload(responseText.String(), content)
	if err != nil {
		e.logger.WithError(err).Warn("Unparseable LLM payload, falling back to heuristic extraction")
		return e.fallback.ExtractTrade(ctx, content, imagePath)
	}
	return extracted, nil
}

// buildPrompt renders the extraction instructions over the TRS schema with
// the evidence appended.
func buildPrompt(content string) string {
	schema := TRSSchema()

	var b strings.Builder
	b.WriteString("You are a trade data extraction expert. Extract the following fields from the trade confirmation document.\n\n")
	b.WriteString("For Total Return Swap (TRS) trades, extract:\n")
	for _, f := range schema.Fields {
		b.WriteString("- " + f.Name + ": " + f.Description)
		if len(f.AllowedValues) > 0 {
			b.WriteString(" (one of: " + strings.Join(f.AllowedValues, ", ") + ")")
		}
		b.WriteString("\n")
	}
	b.WriteString("\nReturn ONLY a JSON object in this exact format:\n")
	b.WriteString(`{
  "trade_type": "TRS",
  "fields": {
    "trade_id": {"value": "...", "confidence": 0.95},
    "notional_amount": {"value": 1000000, "confidence": 0.85}
  }
}
`)
	b.WriteString("\nInclude every listed field. The confidence score should reflect how certain you are about the extraction (0.0 to 1.0).\n")
	b.WriteString("If a field cannot be found, use null for the value and 0.0 for confidence.\n")
	b.WriteString("\nDocument content:\n")
	b.WriteString(content)
	return b.String()
}

// payloadField mirrors the JSON shape the model is instructed to return.
type payloadField struct {
	Value      interface{} `json:"value"`
	Confidence float64     `json:"confidence"`
}

type extractionPayload struct {
	TradeType string                  `json:"trade_type"`
	Fields    map[string]payloadField `json:"fields"`
}

// parseExtractionPayload decodes the model's JSON response into the typed
// field map. Code fences are tolerated; schema fields missing from the
// payload are filled with nil values at zero confidence.
func parseExtractionPayload(response, rawText string) (*models.ExtractedTrade, error) {
	cleaned := stripCodeFences(response)
	if cleaned == "" {
		return nil, apperrors.ExtractionError(apperrors.CodeInvalidPayload, fmt.Errorf("empty response"))
	}

	var payload extractionPayload
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return nil, apperrors.ExtractionError(apperrors.CodeInvalidPayload, err)
	}
	if len(payload.Fields) == 0 {
		return nil, apperrors.ExtractionError(apperrors.CodeInvalidPayload, fmt.Errorf("payload has no fields"))
	}

	schema := TRSSchema()
	fields := make(map[string]models.ExtractedField, len(schema.Fields))
	for _, f := range schema.Fields {
		pf, ok := payload.Fields[f.Name]
		if !ok {
			fields[f.Name] = models.ExtractedField{Value: nil, Confidence: 0}
			continue
		}
		fields[f.Name] = models.ExtractedField{
			Value:      pf.Value,
			Confidence: pf.Confidence,
			Provenance: &models.FieldProvenance{SourceType: "llm"},
		}
	}

	tradeType := payload.TradeType
	if tradeType == "" {
		tradeType = schema.TradeType
	}

	return &models.ExtractedTrade{
		TradeType:     tradeType,
		Fields:        fields,
		RawText:       rawText,
		SchemaVersion: schema.Version,
	}, nil
}

// stripCodeFences removes a surrounding markdown code fence, if present,
// and isolates the outermost JSON object.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
	}
	s = strings.TrimSpace(s)

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

// imageBlock reads and base64-encodes an image file as a vision content
// block. Unreadable files are skipped; the text path still runs.
func imageBlock(imagePath string) (sdk.ContentBlockParamUnion, bool) {
	raw, err := os.ReadFile(imagePath)
	if err != nil {
		return sdk.ContentBlockParamUnion{}, false
	}

	encoded := base64.StdEncoding.EncodeToString(raw)
	return sdk.NewImageBlockBase64(imageMediaType(imagePath), encoded), true
}

func imageMediaType(imagePath string) string {
	switch strings.ToLower(filepath.Ext(imagePath)) {
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
