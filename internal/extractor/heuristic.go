package extractor

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"trade-validation-service/internal/models"
	"trade-validation-service/pkg/logger"
)

// fieldLabels maps each schema field to the labels it may appear under in a
// confirmation document. Longer labels are listed first so "usd notional"
// wins over "notional".
var fieldLabels = map[string][]string{
	"trade_id":                   {"trade id", "trade reference", "trade ref", "reference"},
	"party_a":                    {"party a"},
	"party_b":                    {"party b"},
	"trade_date":                 {"trade date"},
	"effective_date":             {"effective date", "start date"},
	"scheduled_termination_date": {"scheduled termination date", "termination date", "maturity date"},
	"bond_return_payer":          {"bond return payer"},
	"bond_return_receiver":       {"bond return receiver"},
	"local_currency":             {"local currency"},
	"usd_notional_amount":        {"usd notional amount", "usd notional"},
	"notional_amount":            {"notional amount", "notional"},
	"initial_spot_rate":          {"initial spot rate", "spot rate"},
	"current_market_price":       {"current market price", "market price"},
	"underlier":                  {"underlier", "underlying"},
	"isin":                       {"isin"},
}

// numericFields lists the schema fields coerced to numbers.
var numericFields = map[string]bool{
	"notional_amount":      true,
	"usd_notional_amount":  true,
	"initial_spot_rate":    true,
	"current_market_price": true,
}

var (
	datePattern     = regexp.MustCompile(`\d{4}-\d{2}-\d{2}|\d{2}[/-]\d{2}[/-]\d{4}`)
	numberPattern   = regexp.MustCompile(`-?[\d,]+\.?\d*`)
	currencyPattern = regexp.MustCompile(`\b(USD|EUR|GBP|JPY|CHF|AUD|CAD|HKD|SGD|CNY|KRW|INR|BRL|MXN)\b`)
	isinPattern     = regexp.MustCompile(`\b[A-Z]{2}[A-Z0-9]{9}\d\b`)
)

// heuristicConfidence is the fixed confidence for label-scanned values.
// Deliberately below typical rule thresholds so heuristic extractions land
// in review rather than auto-pass.
const heuristicConfidence = 0.6

// HeuristicExtractor is the offline extraction path: label scanning over
// the evidence lines plus a few format-specific regexes. It keeps the
// pipeline functional without an API key and serves as the fallback when
// the model call fails.
type HeuristicExtractor struct {
	logger logger.Logger
}

// NewHeuristicExtractor creates the offline extractor.
func NewHeuristicExtractor() *HeuristicExtractor {
	return &HeuristicExtractor{logger: logger.WithComponent("extractor")}
}

// ExtractTrade scans the evidence for labeled field values. Only found
// fields are included; the comparator skips the rest.
func (e *HeuristicExtractor) ExtractTrade(ctx context.Context, content, imagePath string) (*models.ExtractedTrade, error) {
	schema := TRSSchema()
	lines := strings.Split(content, "\n")
	fields := make(map[string]models.ExtractedField)

	for _, schemaField := range schema.Fields {
		value, ok := scanForField(schemaField.Name, lines)
		if !ok {
			continue
		}
		fields[schemaField.Name] = models.ExtractedField{
			Value:      value,
			Confidence: heuristicConfidence,
			Provenance: &models.FieldProvenance{SourceType: "heuristic"},
		}
	}

	// Format-specific sweeps for fields that often appear without labels.
	if _, ok := fields["isin"]; !ok {
		if isin := isinPattern.FindString(content); isin != "" {
			fields["isin"] = models.ExtractedField{
				Value:      isin,
				Confidence: heuristicConfidence,
				Provenance: &models.FieldProvenance{SourceType: "heuristic"},
			}
		}
	}
	if _, ok := fields["local_currency"]; !ok {
		if currency := currencyPattern.FindString(strings.ToUpper(content)); currency != "" {
			fields["local_currency"] = models.ExtractedField{
				Value:      currency,
				Confidence: 0.5,
				Provenance: &models.FieldProvenance{SourceType: "heuristic"},
			}
		}
	}

	e.logger.WithField("fields_found", len(fields)).Debug("Heuristic extraction complete")

	return &models.ExtractedTrade{
		TradeType:     schema.TradeType,
		Fields:        fields,
		RawText:       content,
		SchemaVersion: schema.Version,
	}, nil
}

// scanForField looks for a "Label: value" line matching one of the field's
// known labels and coerces the value to the field's type.
func scanForField(fieldName string, lines []string) (interface{}, bool) {
	labels, ok := fieldLabels[fieldName]
	if !ok {
		return nil, false
	}

	for _, line := range lines {
		lower := strings.ToLower(line)
		// A bare "notional" label must not swallow the USD variant.
		if fieldName == "notional_amount" && strings.Contains(lower, "usd") {
			continue
		}
		for _, label := range labels {
			idx := strings.Index(lower, label)
			if idx < 0 {
				continue
			}
			rest := line[idx+len(label):]
			colon := strings.Index(rest, ":")
			if colon < 0 {
				continue
			}
			raw := strings.TrimSpace(rest[colon+1:])
			if raw == "" {
				continue
			}
			return coerceFieldValue(fieldName, raw)
		}
	}
	return nil, false
}

func coerceFieldValue(fieldName, raw string) (interface{}, bool) {
	if numericFields[fieldName] {
		match := numberPattern.FindString(raw)
		if match == "" {
			return nil, false
		}
		f, err := strconv.ParseFloat(strings.ReplaceAll(match, ",", ""), 64)
		if err != nil {
			return nil, false
		}
		return f, true
	}

	if strings.HasSuffix(fieldName, "_date") {
		if match := datePattern.FindString(raw); match != "" {
			return match, true
		}
		return raw, true
	}

	return raw, true
}
