package engine

import "trade-validation-service/internal/models"

// determineOverallStatus reduces per-field comparison outcomes to a
// document-level status. The reduction is order-independent: only the
// per-status counts matter.
//
//   - no comparisons at all: PENDING
//   - no mismatches and nothing degraded: MATCH
//   - no mismatches but some tolerance or low-confidence hits: PARTIAL
//   - mismatches outweighed by matches plus tolerance hits: PARTIAL
//   - otherwise: MISMATCH
//
// A tie between agreeing and mismatching fields resolves to MISMATCH.
func determineOverallStatus(comparisons []models.FieldComparison) models.OverallStatus {
	if len(comparisons) == 0 {
		return models.OverallPending
	}

	var matches, withinTolerance, lowConfidence, mismatches int
	for _, c := range comparisons {
		switch c.MatchStatus {
		case models.StatusMatch:
			matches++
		case models.StatusWithinTolerance:
			withinTolerance++
		case models.StatusLowConfidence:
			lowConfidence++
		case models.StatusMismatch:
			mismatches++
		}
	}

	if mismatches == 0 && withinTolerance == 0 && lowConfidence == 0 {
		return models.OverallMatch
	}
	if mismatches == 0 {
		return models.OverallPartial
	}
	if matches+withinTolerance > mismatches {
		return models.OverallPartial
	}
	return models.OverallMismatch
}
