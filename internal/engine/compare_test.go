package engine

import (
	"testing"

	"trade-validation-service/internal/models"
)

func createTestRules() []models.MatchingRule {
	return []models.MatchingRule{
		{
			ID:             "rule-notional",
			FieldName:      "notional_amount",
			RuleType:       models.RuleTolerance,
			ToleranceValue: 1.0,
			ToleranceUnit:  models.UnitAbsolute,
			MinConfidence:  0.7,
			Enabled:        true,
		},
		{
			ID:             "rule-spot",
			FieldName:      "initial_spot_rate",
			RuleType:       models.RuleTolerance,
			ToleranceValue: 0.5,
			ToleranceUnit:  models.UnitPercent,
			MinConfidence:  0.7,
			Enabled:        true,
		},
		{
			ID:            "rule-party-a",
			FieldName:     "party_a",
			RuleType:      models.RuleFuzzy,
			MinConfidence: 0.6,
			Enabled:       true,
		},
		{
			ID:             "rule-trade-date",
			FieldName:      "trade_date",
			RuleType:       models.RuleDateTolerance,
			ToleranceValue: 2,
			ToleranceUnit:  models.UnitDays,
			MinConfidence:  0.7,
			Enabled:        true,
		},
		{
			ID:            "rule-currency",
			FieldName:     "local_currency",
			RuleType:      models.RuleExact,
			MinConfidence: 0.5,
			Enabled:       true,
		},
		{
			ID:            "rule-disabled",
			FieldName:     "isin",
			RuleType:      models.RuleFuzzy,
			MinConfidence: 0.9,
			Enabled:       false,
		},
	}
}

func TestCompareValuesConfidenceGate(t *testing.T) {
	e := NewEngine(createTestRules())

	// Identical values still classify LOW_CONFIDENCE below the threshold.
	c := e.CompareValues("notional_amount", 1000000.0, 1000000.0, 0.5)
	if c.MatchStatus != models.StatusLowConfidence {
		t.Errorf("Expected LOW_CONFIDENCE, got %s", c.MatchStatus)
	}
	if c.RuleApplied != "min_confidence_0.7" {
		t.Errorf("Expected rule_applied min_confidence_0.7, got %s", c.RuleApplied)
	}
	if c.MinRequiredConfidence != 0.7 {
		t.Errorf("Expected min required confidence 0.7, got %v", c.MinRequiredConfidence)
	}
}

func TestCompareValuesDefaultExact(t *testing.T) {
	e := NewEngine(nil)

	tests := []struct {
		name      string
		extracted interface{}
		system    interface{}
		expected  models.MatchStatus
	}{
		{"case insensitive", "ABC-1", "abc-1", models.StatusMatch},
		{"trims whitespace", "  ABC-1  ", "ABC-1", models.StatusMatch},
		{"different values", "ABC-1", "ABC-2", models.StatusMismatch},
		{"numeric equal", 100.0, 100.0, models.StatusMatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := e.CompareValues("trade_id", tt.extracted, tt.system, 1.0)
			if c.MatchStatus != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, c.MatchStatus)
			}
			if c.RuleApplied != "default_exact" {
				t.Errorf("Expected rule_applied default_exact, got %s", c.RuleApplied)
			}
		})
	}
}

func TestCompareValuesAbsoluteTolerance(t *testing.T) {
	e := NewEngine(createTestRules())

	tests := []struct {
		name      string
		extracted interface{}
		system    interface{}
		expected  models.MatchStatus
	}{
		{"zero difference", 1000000.0, 1000000.0, models.StatusMatch},
		{"within tolerance", 1000000.0, 1000000.5, models.StatusWithinTolerance},
		{"exactly at tolerance", 1000001.0, 1000000.0, models.StatusWithinTolerance},
		{"beyond tolerance", 1000002.0, 1000000.0, models.StatusMismatch},
		{"string coercion", "1000000.5", 1000000.0, models.StatusWithinTolerance},
		{"unparseable extracted", "one million", 1000000.0, models.StatusMismatch},
		{"nil extracted", nil, 1000000.0, models.StatusMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := e.CompareValues("notional_amount", tt.extracted, tt.system, 0.9)
			if c.MatchStatus != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, c.MatchStatus)
			}
		})
	}
}

func TestCompareValuesPercentTolerance(t *testing.T) {
	e := NewEngine(createTestRules())

	tests := []struct {
		name      string
		extracted interface{}
		system    interface{}
		expected  models.MatchStatus
	}{
		{"zero difference", 1.25, 1.25, models.StatusMatch},
		{"within half percent", 1.25, 1.2550, models.StatusWithinTolerance},
		{"beyond half percent", 1.25, 1.30, models.StatusMismatch},
		{"system zero extracted zero", 0.0, 0.0, models.StatusMatch},
		{"system zero extracted nonzero", 0.01, 0.0, models.StatusMismatch},
		{"negative system value", -1.2550, -1.25, models.StatusWithinTolerance},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := e.CompareValues("initial_spot_rate", tt.extracted, tt.system, 0.9)
			if c.MatchStatus != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, c.MatchStatus)
			}
		})
	}
}

func TestCompareValuesFuzzy(t *testing.T) {
	e := NewEngine(createTestRules())

	tests := []struct {
		name      string
		extracted interface{}
		system    interface{}
		expected  models.MatchStatus
	}{
		{"identical after normalize", "Goldman Sachs ", "goldman sachs", models.StatusMatch},
		{"single char difference", "Goldman Sachs International", "Goldman Sachs Internationel", models.StatusMatch},
		{"close variant", "Goldman Sachs Grp", "Goldman Sachs Group", models.StatusWithinTolerance},
		{"unrelated names", "Goldman Sachs", "Morgan Stanley", models.StatusMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := e.CompareValues("party_a", tt.extracted, tt.system, 0.9)
			if c.MatchStatus != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, c.MatchStatus)
			}
		})
	}
}

func TestCompareValuesDateTolerance(t *testing.T) {
	e := NewEngine(createTestRules())

	tests := []struct {
		name      string
		extracted interface{}
		system    interface{}
		expected  models.MatchStatus
	}{
		{"same date same format", "2024-01-15", "2024-01-15", models.StatusMatch},
		{"same date mixed format", "15/01/2024", "2024-01-15", models.StatusMatch},
		{"one day apart", "2024-01-16", "2024-01-15", models.StatusWithinTolerance},
		{"two days apart", "2024-01-17", "2024-01-15", models.StatusWithinTolerance},
		{"three days apart", "2024-01-18", "2024-01-15", models.StatusMismatch},
		{"unparseable extracted", "January 15th", "2024-01-15", models.StatusMismatch},
		{"unparseable system", "2024-01-15", "someday", models.StatusMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := e.CompareValues("trade_date", tt.extracted, tt.system, 0.9)
			if c.MatchStatus != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, c.MatchStatus)
			}
		})
	}
}

func TestCompareValuesDateSymmetry(t *testing.T) {
	e := NewEngine(createTestRules())

	pairs := [][2]string{
		{"2024-01-15", "2024-01-16"},
		{"2024-01-15", "2024-01-18"},
		{"15/01/2024", "2024-01-17"},
	}

	for _, p := range pairs {
		forward := e.CompareValues("trade_date", p[0], p[1], 0.9).MatchStatus
		backward := e.CompareValues("trade_date", p[1], p[0], 0.9).MatchStatus
		if forward != backward {
			t.Errorf("Date comparison not symmetric for %v: %s vs %s", p, forward, backward)
		}
	}
}

func TestCompareValuesExactRule(t *testing.T) {
	e := NewEngine(createTestRules())

	c := e.CompareValues("local_currency", " usd ", "USD", 0.9)
	if c.MatchStatus != models.StatusMatch {
		t.Errorf("Expected MATCH for case-insensitive currency, got %s", c.MatchStatus)
	}

	c = e.CompareValues("local_currency", "USD", "EUR", 0.9)
	if c.MatchStatus != models.StatusMismatch {
		t.Errorf("Expected MISMATCH for different currency, got %s", c.MatchStatus)
	}
}

func TestCompareValuesDisabledRuleIgnored(t *testing.T) {
	e := NewEngine(createTestRules())

	// isin has only a disabled rule, so the default exact policy applies
	// and its min_confidence never gates.
	c := e.CompareValues("isin", "US0378331005", "US0378331005", 0.1)
	if c.MatchStatus != models.StatusMatch {
		t.Errorf("Expected MATCH under default policy, got %s", c.MatchStatus)
	}
	if c.RuleApplied != "default_exact" {
		t.Errorf("Expected rule_applied default_exact, got %s", c.RuleApplied)
	}
}

func TestRuleDescriptor(t *testing.T) {
	e := NewEngine(createTestRules())

	c := e.CompareValues("notional_amount", 100.0, 100.0, 0.9)
	if c.RuleApplied != "tolerance_1absolute" {
		t.Errorf("Expected rule_applied tolerance_1absolute, got %s", c.RuleApplied)
	}

	c = e.CompareValues("party_a", "A", "A", 0.9)
	if c.RuleApplied != "fuzzy_" {
		t.Errorf("Expected rule_applied fuzzy_, got %s", c.RuleApplied)
	}
}

func TestRuleSnapshotIsolation(t *testing.T) {
	rules := createTestRules()
	e := NewEngine(rules)

	// Mutating the caller's slice after construction must not affect the
	// engine's snapshot.
	rules[0].Enabled = false
	rules[0].MinConfidence = 1.0

	c := e.CompareValues("notional_amount", 1000000.0, 1000000.0, 0.9)
	if c.MatchStatus != models.StatusMatch {
		t.Errorf("Expected MATCH from snapshot rules, got %s", c.MatchStatus)
	}
}
