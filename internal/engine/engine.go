// Package engine implements the rule-driven comparison of extracted trade
// fields against book-of-record trades: per-field comparison strategies,
// overall status aggregation, and best-match candidate selection.
package engine

import (
	"trade-validation-service/internal/models"
	"trade-validation-service/pkg/logger"
)

// Engine compares extracted trade data against system records using a fixed
// snapshot of matching rules. An Engine is constructed per request; the rule
// set it holds is never mutated after construction, so concurrent use is safe.
type Engine struct {
	rules  []models.MatchingRule
	logger logger.Logger
}

// NewEngine creates an engine over the given rule snapshot. The slice is
// copied so later mutation by the caller cannot leak into in-flight
// comparisons.
func NewEngine(rules []models.MatchingRule) *Engine {
	snapshot := make([]models.MatchingRule, len(rules))
	copy(snapshot, rules)

	return &Engine{
		rules:  snapshot,
		logger: logger.WithComponent("engine"),
	}
}

// ruleFor returns the first enabled rule for the field, or nil when no rule
// applies and the default exact policy should be used. Rule precedence is
// list order, which the store keeps deterministic.
func (e *Engine) ruleFor(fieldName string) *models.MatchingRule {
	for i := range e.rules {
		if e.rules[i].FieldName == fieldName && e.rules[i].Enabled {
			return &e.rules[i]
		}
	}
	return nil
}

// Rules returns the engine's rule snapshot.
func (e *Engine) Rules() []models.MatchingRule {
	return e.rules
}
