// Package parsers provides CSV parsing for book-of-record TRS trade files.
//
// Trade files come from several upstream systems with slightly different
// header conventions, so columns are resolved through per-field alias lists
// rather than fixed positions. Rows that fail to parse or validate are
// collected as per-line errors; one bad row never aborts an import.
package parsers

import (
	"fmt"
	"sort"
	"strings"
)

// ParseError describes a failure on a single CSV line.
type ParseError struct {
	Line    int
	Field   string
	Value   string
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse error at line %d (%s=%q): %s: %v",
			e.Line, e.Field, e.Value, e.Message, e.Err)
	}
	return fmt.Sprintf("parse error at line %d (%s=%q): %s",
		e.Line, e.Field, e.Value, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ParseStats summarizes one import run.
type ParseStats struct {
	TotalLines    int
	RecordsParsed int
	RecordsValid  int
	Errors        []*ParseError
}

// AddError records a per-line failure.
func (ps *ParseStats) AddError(err *ParseError) {
	ps.Errors = append(ps.Errors, err)
}

// HasErrors reports whether any rows failed.
func (ps *ParseStats) HasErrors() bool {
	return len(ps.Errors) > 0
}

// String returns a human-readable summary of the run.
func (ps *ParseStats) String() string {
	return fmt.Sprintf("Parsed %d lines, %d records (%d valid), %d errors",
		ps.TotalLines, ps.RecordsParsed, ps.RecordsValid, len(ps.Errors))
}

// SampleErrors returns up to maxSamples error strings for logging.
func (ps *ParseStats) SampleErrors(maxSamples int) []string {
	limit := len(ps.Errors)
	if maxSamples > 0 && maxSamples < limit {
		limit = maxSamples
	}
	var samples []string
	for i := 0; i < limit; i++ {
		samples = append(samples, ps.Errors[i].Error())
	}
	return samples
}

// headerAliases maps each canonical trade column to the header spellings
// accepted for it. Lookup is case-insensitive with spaces treated as
// underscores.
var headerAliases = map[string][]string{
	"trade_id":                   {"trade_id", "trade_ref", "trade_reference"},
	"party_a":                    {"party_a"},
	"party_b":                    {"party_b"},
	"trade_date":                 {"trade_date"},
	"effective_date":             {"effective_date", "start_date"},
	"scheduled_termination_date": {"scheduled_termination_date", "termination_date", "maturity_date"},
	"bond_return_payer":          {"bond_return_payer"},
	"bond_return_receiver":       {"bond_return_receiver"},
	"local_currency":             {"local_currency", "currency"},
	"notional_amount":            {"notional_amount", "notional"},
	"usd_notional_amount":        {"usd_notional_amount", "usd_notional"},
	"initial_spot_rate":          {"initial_spot_rate", "spot_rate"},
	"current_market_price":       {"current_market_price", "market_price"},
	"underlier":                  {"underlier", "underlying"},
	"isin":                       {"isin"},
}

// optionalColumns may be absent from the file entirely.
var optionalColumns = map[string]bool{
	"underlier": true,
	"isin":      true,
}

func normalizeHeader(header string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(header)), " ", "_")
}

// buildColumnMap resolves the header row into canonical-column indices.
// Missing required columns are returned by name.
func buildColumnMap(headers []string) (map[string]int, []string) {
	indexByHeader := make(map[string]int, len(headers))
	for i, h := range headers {
		indexByHeader[normalizeHeader(h)] = i
	}

	columns := make(map[string]int)
	var missing []string
	for canonical, aliases := range headerAliases {
		found := false
		for _, alias := range aliases {
			if idx, ok := indexByHeader[alias]; ok {
				columns[canonical] = idx
				found = true
				break
			}
		}
		if !found && !optionalColumns[canonical] {
			missing = append(missing, canonical)
		}
	}
	sort.Strings(missing)
	return columns, missing
}
