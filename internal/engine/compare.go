package engine

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/agext/levenshtein"
	"github.com/shopspring/decimal"

	"trade-validation-service/internal/models"
)

// fuzzyMatchThreshold is the similarity ratio above which two strings count
// as WITHIN_TOLERANCE; at or above fuzzyExactThreshold they count as MATCH.
const (
	fuzzyExactThreshold = 0.95
	fuzzyMatchThreshold = 0.8
)

// dateLayouts is the ordered list of accepted date formats. The first layout
// that parses wins, so ambiguous day/month values resolve in list order.
var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"01/02/2006",
	"2006/01/02",
	"02-01-2006",
	"01-02-2006",
}

// CompareValues classifies a single extracted/system value pair under the
// engine's rules. The confidence gate is checked before any value
// comparison: a below-threshold extraction is LOW_CONFIDENCE no matter what
// the values are. Comparison never fails; unparseable inputs classify as
// MISMATCH.
func (e *Engine) CompareValues(fieldName string, extractedValue, systemValue interface{}, confidence float64) models.FieldComparison {
	rule := e.ruleFor(fieldName)

	minConfidence := 0.0
	if rule != nil {
		minConfidence = rule.MinConfidence
	}

	comparison := models.FieldComparison{
		FieldName:             fieldName,
		ExtractedValue:        extractedValue,
		SystemValue:           systemValue,
		Confidence:            confidence,
		MinRequiredConfidence: minConfidence,
	}

	if confidence < minConfidence {
		comparison.MatchStatus = models.StatusLowConfidence
		comparison.RuleApplied = "min_confidence_" + formatFloat(minConfidence)
		return comparison
	}

	if rule == nil {
		comparison.MatchStatus = defaultExactMatch(extractedValue, systemValue)
		comparison.RuleApplied = "default_exact"
		return comparison
	}

	switch rule.RuleType {
	case models.RuleExact:
		comparison.MatchStatus = exactMatch(extractedValue, systemValue)
	case models.RuleTolerance:
		comparison.MatchStatus = toleranceMatch(extractedValue, systemValue, rule.ToleranceValue, rule.ToleranceUnit)
	case models.RuleFuzzy:
		comparison.MatchStatus = fuzzyMatch(extractedValue, systemValue)
	case models.RuleDateTolerance:
		comparison.MatchStatus = dateToleranceMatch(extractedValue, systemValue, int(rule.ToleranceValue))
	default:
		comparison.MatchStatus = rawEqualityMatch(extractedValue, systemValue)
	}

	comparison.RuleApplied = ruleDescriptor(rule)
	return comparison
}

// ruleDescriptor builds the stable audit descriptor recorded on every
// comparison, e.g. "tolerance_1.5percent" or "fuzzy_".
func ruleDescriptor(rule *models.MatchingRule) string {
	tolerance := ""
	if rule.ToleranceValue != 0 {
		tolerance = formatFloat(rule.ToleranceValue)
	}
	return fmt.Sprintf("%s_%s%s", rule.RuleType, tolerance, rule.ToleranceUnit)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// defaultExactMatch is the fallback policy when no rule covers the field:
// case-insensitive trimmed string equality over the values' string forms.
func defaultExactMatch(val1, val2 interface{}) models.MatchStatus {
	if normalizeString(val1) == normalizeString(val2) {
		return models.StatusMatch
	}
	return models.StatusMismatch
}

// exactMatch compares strings case-insensitively after trimming; any other
// type pair is compared by raw equality.
func exactMatch(val1, val2 interface{}) models.MatchStatus {
	s1, ok1 := val1.(string)
	s2, ok2 := val2.(string)
	if ok1 && ok2 {
		if strings.EqualFold(strings.TrimSpace(s1), strings.TrimSpace(s2)) {
			return models.StatusMatch
		}
		return models.StatusMismatch
	}
	return rawEqualityMatch(val1, val2)
}

func rawEqualityMatch(val1, val2 interface{}) models.MatchStatus {
	if val1 == val2 {
		return models.StatusMatch
	}
	// Cross-type numeric pairs still count as equal when both coerce to
	// the same number (extracted JSON numbers arrive as float64).
	v1, ok1 := coerceFloat(val1)
	v2, ok2 := coerceFloat(val2)
	if ok1 && ok2 && v1 == v2 {
		return models.StatusMatch
	}
	return models.StatusMismatch
}

// toleranceMatch compares numeric values within a percent or absolute
// tolerance. Coercion failure on either side fails closed to MISMATCH.
func toleranceMatch(val1, val2 interface{}, tolerance float64, unit models.ToleranceUnit) models.MatchStatus {
	f1, ok1 := coerceFloat(val1)
	f2, ok2 := coerceFloat(val2)
	if !ok1 || !ok2 {
		return models.StatusMismatch
	}

	v1 := decimal.NewFromFloat(f1)
	v2 := decimal.NewFromFloat(f2)
	tol := decimal.NewFromFloat(tolerance)
	diff := v1.Sub(v2).Abs()

	if unit == models.UnitPercent {
		if v2.IsZero() {
			if v1.IsZero() {
				return models.StatusMatch
			}
			return models.StatusMismatch
		}
		diffPercent := diff.Div(v2.Abs()).Mul(decimal.NewFromInt(100))
		if diffPercent.IsZero() {
			return models.StatusMatch
		}
		if diffPercent.LessThanOrEqual(tol) {
			return models.StatusWithinTolerance
		}
		return models.StatusMismatch
	}

	if diff.IsZero() {
		return models.StatusMatch
	}
	if diff.LessThanOrEqual(tol) {
		return models.StatusWithinTolerance
	}
	return models.StatusMismatch
}

// fuzzyMatch compares the lower-cased trimmed string forms by normalized
// edit similarity. Equal strings are MATCH without computing the ratio.
func fuzzyMatch(val1, val2 interface{}) models.MatchStatus {
	s1 := normalizeString(val1)
	s2 := normalizeString(val2)
	if s1 == s2 {
		return models.StatusMatch
	}

	ratio := levenshtein.Similarity(s1, s2, nil)
	switch {
	case ratio >= fuzzyExactThreshold:
		return models.StatusMatch
	case ratio >= fuzzyMatchThreshold:
		return models.StatusWithinTolerance
	default:
		return models.StatusMismatch
	}
}

// dateToleranceMatch parses both values against the fixed layout list and
// compares the whole-day difference. Unparseable dates fail closed to
// MISMATCH; swapping the operands never changes the outcome.
func dateToleranceMatch(val1, val2 interface{}, toleranceDays int) models.MatchStatus {
	d1, ok1 := parseDate(val1)
	d2, ok2 := parseDate(val2)
	if !ok1 || !ok2 {
		return models.StatusMismatch
	}

	diff := d1.Sub(d2)
	if diff < 0 {
		diff = -diff
	}
	diffDays := int(diff.Hours() / 24)

	if diffDays == 0 {
		return models.StatusMatch
	}
	if diffDays <= toleranceDays {
		return models.StatusWithinTolerance
	}
	return models.StatusMismatch
}

func parseDate(value interface{}) (time.Time, bool) {
	s := strings.TrimSpace(stringify(value))
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// coerceFloat converts the dynamic value types that reach the comparator
// (JSON numbers, typed model attributes, extracted strings) to float64.
func coerceFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

func normalizeString(value interface{}) string {
	return strings.ToLower(strings.TrimSpace(stringify(value)))
}

func stringify(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}
