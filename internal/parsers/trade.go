package parsers

import (
	"encoding/csv"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"trade-validation-service/internal/models"
	apperrors "trade-validation-service/pkg/errors"
	"trade-validation-service/pkg/logger"
)

// tradeDateLayouts are the date spellings accepted in trade files, tried in
// order. Parsed dates are normalized to ISO form before storage.
var tradeDateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"01/02/2006",
	"2006/01/02",
	"02-01-2006",
	"01-02-2006",
}

// TradeParser parses book-of-record TRS trade CSV files.
type TradeParser struct {
	logger logger.Logger
}

// NewTradeParser creates a trade parser.
func NewTradeParser() *TradeParser {
	return &TradeParser{logger: logger.WithComponent("trade_parser")}
}

// ParseFile parses a trade CSV file from disk.
func (tp *TradeParser) ParseFile(filePath string) ([]models.TRSTrade, *ParseStats, error) {
	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, apperrors.New(apperrors.CategoryFile, apperrors.CodeFileNotFound,
				"trade file not found: "+filePath)
		}
		return nil, nil, apperrors.Wrap(err, apperrors.CategoryFile, apperrors.CodeFileNotFound,
			"failed to open trade file: "+filePath)
	}
	defer file.Close()

	return tp.Parse(file)
}

// Parse parses trade CSV content from a reader. Rows that fail to parse or
// validate are skipped and reported in the stats; the valid rows still
// import.
func (tp *TradeParser) Parse(r io.Reader) ([]models.TRSTrade, *ParseStats, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	stats := &ParseStats{}

	headers, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, stats, apperrors.New(apperrors.CategoryFile, apperrors.CodeUnsupportedType,
				"trade file is empty").
				WithSuggestion("provide a CSV file with a header row and data rows")
		}
		return nil, stats, apperrors.Wrap(err, apperrors.CategoryFile, apperrors.CodeUnsupportedType,
			"failed to read trade file header")
	}
	stats.TotalLines++

	columns, missing := buildColumnMap(headers)
	if len(missing) > 0 {
		return nil, stats, apperrors.New(apperrors.CategoryFile, apperrors.CodeUnsupportedType,
			"trade file is missing required columns: "+strings.Join(missing, ", ")).
			WithSuggestion("check the header row against the TRS trade schema")
	}

	var trades []models.TRSTrade
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		stats.TotalLines++
		if err != nil {
			stats.AddError(&ParseError{
				Line:    stats.TotalLines,
				Field:   "record",
				Message: "failed to read record",
				Err:     err,
			})
			continue
		}
		if isEmptyRecord(record) {
			continue
		}
		stats.RecordsParsed++

		trade, parseErr := tp.tradeFromRecord(record, columns, stats.TotalLines)
		if parseErr != nil {
			stats.AddError(parseErr)
			continue
		}
		if err := trade.Validate(); err != nil {
			stats.AddError(&ParseError{
				Line:    stats.TotalLines,
				Field:   "trade",
				Value:   trade.TradeID,
				Message: "trade validation failed",
				Err:     err,
			})
			continue
		}

		trades = append(trades, *trade)
		stats.RecordsValid++
	}

	tp.logger.WithFields(logger.Fields{
		"total_lines":    stats.TotalLines,
		"records_parsed": stats.RecordsParsed,
		"records_valid":  stats.RecordsValid,
		"error_count":    len(stats.Errors),
	}).Info("Trade parsing completed")
	if stats.HasErrors() {
		tp.logger.WithField("sample_errors", stats.SampleErrors(3)).Warn("Encountered errors during trade parsing")
	}

	return trades, stats, nil
}

// tradeFromRecord builds one trade from a resolved CSV row.
func (tp *TradeParser) tradeFromRecord(record []string, columns map[string]int, line int) (*models.TRSTrade, *ParseError) {
	field := func(name string) string {
		idx, ok := columns[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	trade := &models.TRSTrade{
		TradeID:            field("trade_id"),
		PartyA:             field("party_a"),
		PartyB:             field("party_b"),
		BondReturnPayer:    field("bond_return_payer"),
		BondReturnReceiver: field("bond_return_receiver"),
		LocalCurrency:      strings.ToUpper(field("local_currency")),
		Underlier:          field("underlier"),
		ISIN:               strings.ToUpper(field("isin")),
	}

	for _, dateField := range []struct {
		name string
		dst  *string
	}{
		{"trade_date", &trade.TradeDate},
		{"effective_date", &trade.EffectiveDate},
		{"scheduled_termination_date", &trade.ScheduledTerminationDate},
	} {
		raw := field(dateField.name)
		normalized, err := normalizeDate(raw)
		if err != nil {
			return nil, &ParseError{
				Line:    line,
				Field:   dateField.name,
				Value:   raw,
				Message: "unrecognized date format",
				Err:     err,
			}
		}
		*dateField.dst = normalized
	}

	for _, amountField := range []struct {
		name string
		dst  *float64
	}{
		{"notional_amount", &trade.NotionalAmount},
		{"usd_notional_amount", &trade.USDNotionalAmount},
		{"initial_spot_rate", &trade.InitialSpotRate},
		{"current_market_price", &trade.CurrentMarketPrice},
	} {
		raw := field(amountField.name)
		value, err := parseAmount(raw)
		if err != nil {
			return nil, &ParseError{
				Line:    line,
				Field:   amountField.name,
				Value:   raw,
				Message: "invalid numeric value",
				Err:     err,
			}
		}
		*amountField.dst = value
	}

	return trade, nil
}

// parseAmount parses a decimal amount, tolerating thousands separators and
// a leading currency symbol.
func parseAmount(raw string) (float64, error) {
	cleaned := strings.TrimLeft(strings.ReplaceAll(raw, ",", ""), "$€£ ")
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return 0, err
	}
	return d.InexactFloat64(), nil
}

// normalizeDate parses a date in any accepted layout and returns it in ISO
// form.
func normalizeDate(raw string) (string, error) {
	var lastErr error
	for _, layout := range tradeDateLayouts {
		t, err := time.Parse(layout, raw)
		if err == nil {
			return t.Format("2006-01-02"), nil
		}
		lastErr = err
	}
	return "", lastErr
}

func isEmptyRecord(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
