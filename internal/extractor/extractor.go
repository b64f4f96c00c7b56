// Package extractor turns normalized evidence text (plus an optional page
// image) into a typed set of TRS trade fields with per-field confidences.
// The primary adapter calls a language model; a heuristic extractor serves
// as the offline fallback so the pipeline works without an API key.
package extractor

import (
	"context"

	"trade-validation-service/internal/models"
)

// Extractor extracts structured trade fields from evidence content.
type Extractor interface {
	ExtractTrade(ctx context.Context, content, imagePath string) (*models.ExtractedTrade, error)
}

// SchemaField describes one extractable field of the TRS schema.
type SchemaField struct {
	Name          string   `json:"name"`
	Type          string   `json:"type"`
	Description   string   `json:"description"`
	AllowedValues []string `json:"allowed_values,omitempty"`
}

// Schema is the extraction contract served to clients and embedded in the
// LLM prompt. Field order matches the comparator's iteration order.
type Schema struct {
	TradeType string        `json:"trade_type"`
	Version   string        `json:"version"`
	Fields    []SchemaField `json:"fields"`
}

// TRSSchema returns the extraction schema for total return swap
// confirmations.
func TRSSchema() Schema {
	return Schema{
		TradeType: "TRS",
		Version:   "1.0",
		Fields: []SchemaField{
			{Name: "trade_id", Type: "string", Description: "The unique trade identifier or reference number"},
			{Name: "party_a", Type: "string", Description: "Party A legal entity name"},
			{Name: "party_b", Type: "string", Description: "Party B legal entity name"},
			{Name: "trade_date", Type: "date", Description: "The trade date (YYYY-MM-DD format)"},
			{Name: "effective_date", Type: "date", Description: "The effective/start date (YYYY-MM-DD format)"},
			{Name: "scheduled_termination_date", Type: "date", Description: "The scheduled termination/maturity date (YYYY-MM-DD format)"},
			{Name: "bond_return_payer", Type: "string", Description: "Which party pays the bond return", AllowedValues: []string{"PartyA", "PartyB"}},
			{Name: "bond_return_receiver", Type: "string", Description: "Which party receives the bond return", AllowedValues: []string{"PartyA", "PartyB"}},
			{Name: "local_currency", Type: "string", Description: "The local currency ISO code (e.g. USD, EUR)"},
			{Name: "notional_amount", Type: "number", Description: "The notional amount in local currency (numeric only, no symbols)"},
			{Name: "usd_notional_amount", Type: "number", Description: "The notional amount in USD (numeric only)"},
			{Name: "initial_spot_rate", Type: "number", Description: "The initial FX spot rate"},
			{Name: "current_market_price", Type: "number", Description: "The current market price of the underlier"},
			{Name: "underlier", Type: "string", Description: "The underlying bond or security name"},
			{Name: "isin", Type: "string", Description: "The ISIN of the underlying security"},
		},
	}
}
