package engine

import (
	"math"
	"strings"

	"trade-validation-service/internal/models"
	"trade-validation-service/pkg/logger"
)

// matchScoreWeights assigns a candidate-scoring weight to each per-field
// outcome. MISMATCH contributes nothing.
var matchScoreWeights = map[models.MatchStatus]float64{
	models.StatusMatch:           1.0,
	models.StatusWithinTolerance: 0.6,
	models.StatusLowConfidence:   0.25,
	models.StatusMismatch:        0.0,
}

// UnmatchedTradeID marks a validation result built without any system record.
const UnmatchedTradeID = "NOT_FOUND"

// CompareTrade compares one extracted trade against one system record and
// returns a fresh validation result. Fields absent on either side are
// skipped rather than penalized: a missing optional attribute is a
// structural gap, not a disagreement.
func (e *Engine) CompareTrade(extracted *models.ExtractedTrade, systemTrade *models.TRSTrade, documentID string) *models.ValidationResult {
	var comparisons []models.FieldComparison

	for _, fieldName := range models.TradeFieldNames {
		extractedField, ok := extracted.Fields[fieldName]
		if !ok {
			continue
		}

		systemValue, ok := systemTrade.AttributeValue(fieldName)
		if !ok {
			continue
		}

		comparisons = append(comparisons, e.CompareValues(
			fieldName,
			extractedField.Value,
			systemValue,
			extractedField.Confidence,
		))
	}

	status := determineOverallStatus(comparisons)

	e.logger.WithFields(logger.Fields{
		"document_id":     documentID,
		"system_trade_id": systemTrade.TradeID,
		"fields_compared": len(comparisons),
		"status":          status,
	}).Debug("Trade comparison complete")

	notional := systemTrade.NotionalAmount
	return &models.ValidationResult{
		ID:                       models.NewID(),
		DocumentID:               documentID,
		SystemTradeID:            systemTrade.TradeID,
		Status:                   status,
		FieldComparisons:         comparisons,
		CreatedAt:                models.NowISO(),
		PartyA:                   systemTrade.PartyA,
		PartyB:                   systemTrade.PartyB,
		Product:                  "TRS",
		TradeDate:                systemTrade.TradeDate,
		EffectiveDate:            systemTrade.EffectiveDate,
		ScheduledTerminationDate: systemTrade.ScheduledTerminationDate,
		LocalCurrency:            systemTrade.LocalCurrency,
		NotionalAmount:           &notional,
		MachineConfidence:        averageComparisonConfidence(comparisons),
		CheckerDecision:          models.CheckerPending,
	}
}

// FindBestMatch selects the candidate system record that best matches the
// extracted trade, or nil when no candidate is usable. When the extraction
// carries a trade identifier, a case-insensitive exact identifier hit
// short-circuits scoring entirely: an identifier match beats any
// coincidental field overlap on an unrelated trade.
func (e *Engine) FindBestMatch(extracted *models.ExtractedTrade, candidates []*models.TRSTrade, documentID string) *models.ValidationResult {
	if len(candidates) == 0 {
		return nil
	}

	if idField, ok := extracted.Fields["trade_id"]; ok && idField.Value != nil {
		wanted := strings.ToLower(strings.TrimSpace(stringify(idField.Value)))
		if wanted != "" {
			for _, trade := range candidates {
				if strings.ToLower(strings.TrimSpace(trade.TradeID)) == wanted {
					e.logger.WithFields(logger.Fields{
						"document_id": documentID,
						"trade_id":    trade.TradeID,
					}).Debug("Identifier short-circuit hit")
					return e.CompareTrade(extracted, trade, documentID)
				}
			}
		}
	}

	var bestResult *models.ValidationResult
	bestScore := -1.0

	for _, trade := range candidates {
		result := e.CompareTrade(extracted, trade, documentID)

		var score float64
		for _, c := range result.FieldComparisons {
			score += matchScoreWeights[c.MatchStatus]
		}

		// Strict > keeps the earliest candidate on ties.
		if score > bestScore {
			bestScore = score
			bestResult = result
		}
	}

	// A winner with no compared fields has no schema overlap at all; that
	// is no match, not a weak one.
	if bestResult != nil && len(bestResult.FieldComparisons) == 0 {
		return nil
	}

	return bestResult
}

// BuildUnmatchedResult constructs the explicit not-found result recorded
// when no system record could be matched. Display fields are filled from
// the extraction itself so reviewers still see what the document claimed.
func (e *Engine) BuildUnmatchedResult(extracted *models.ExtractedTrade, documentID string) *models.ValidationResult {
	return &models.ValidationResult{
		ID:                       models.NewID(),
		DocumentID:               documentID,
		SystemTradeID:            UnmatchedTradeID,
		Status:                   models.OverallMismatch,
		FieldComparisons:         []models.FieldComparison{},
		CreatedAt:                models.NowISO(),
		PartyA:                   extractedString(extracted, "party_a"),
		PartyB:                   extractedString(extracted, "party_b"),
		Product:                  "TRS",
		TradeDate:                extractedString(extracted, "trade_date"),
		EffectiveDate:            extractedString(extracted, "effective_date"),
		ScheduledTerminationDate: extractedString(extracted, "scheduled_termination_date"),
		LocalCurrency:            extractedString(extracted, "local_currency"),
		NotionalAmount:           extractedFloat(extracted, "notional_amount"),
		MachineConfidence:        roundedAverageConfidence(extracted),
		CheckerDecision:          models.CheckerPending,
	}
}

// averageComparisonConfidence returns the mean confidence over the compared
// fields rounded to four decimals, or nil when nothing was compared.
func averageComparisonConfidence(comparisons []models.FieldComparison) *float64 {
	if len(comparisons) == 0 {
		return nil
	}
	var sum float64
	for _, c := range comparisons {
		sum += c.Confidence
	}
	avg := roundTo4(sum / float64(len(comparisons)))
	return &avg
}

func roundedAverageConfidence(extracted *models.ExtractedTrade) *float64 {
	avg := extracted.AverageConfidence()
	if avg == nil {
		return nil
	}
	rounded := roundTo4(*avg)
	return &rounded
}

func roundTo4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

func extractedString(extracted *models.ExtractedTrade, fieldName string) string {
	field, ok := extracted.Fields[fieldName]
	if !ok || field.Value == nil {
		return ""
	}
	return stringify(field.Value)
}

func extractedFloat(extracted *models.ExtractedTrade, fieldName string) *float64 {
	field, ok := extracted.Fields[fieldName]
	if !ok || field.Value == nil {
		return nil
	}
	f, ok := coerceFloat(field.Value)
	if !ok {
		return nil
	}
	return &f
}
