package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MatchStatus classifies the outcome of a single field comparison.
type MatchStatus string

const (
	// StatusMatch indicates the extracted and system values agree exactly.
	StatusMatch MatchStatus = "MATCH"
	// StatusMismatch indicates the values disagree beyond any tolerance.
	StatusMismatch MatchStatus = "MISMATCH"
	// StatusWithinTolerance indicates the values differ but within the rule's tolerance.
	StatusWithinTolerance MatchStatus = "WITHIN_TOLERANCE"
	// StatusLowConfidence indicates the extraction confidence was below the rule's minimum.
	StatusLowConfidence MatchStatus = "LOW_CONFIDENCE"
)

// String returns the string representation of MatchStatus.
func (s MatchStatus) String() string {
	return string(s)
}

// IsValid checks if the match status is one of the known values.
func (s MatchStatus) IsValid() bool {
	switch s {
	case StatusMatch, StatusMismatch, StatusWithinTolerance, StatusLowConfidence:
		return true
	}
	return false
}

// OverallStatus is the document-level validation status.
type OverallStatus string

const (
	OverallMatch    OverallStatus = "MATCH"
	OverallMismatch OverallStatus = "MISMATCH"
	OverallPartial  OverallStatus = "PARTIAL"
	OverallPending  OverallStatus = "PENDING"
)

// IsValid checks if the overall status is one of the known values.
func (s OverallStatus) IsValid() bool {
	switch s {
	case OverallMatch, OverallMismatch, OverallPartial, OverallPending:
		return true
	}
	return false
}

// CheckerDecision is the human disposition applied on top of a machine result.
type CheckerDecision string

const (
	CheckerPending    CheckerDecision = "PENDING"
	CheckerApproved   CheckerDecision = "APPROVED"
	CheckerRejected   CheckerDecision = "REJECTED"
	CheckerOverridden CheckerDecision = "OVERRIDDEN"
)

// DocumentStatus tracks a document through the extract/validate lifecycle.
type DocumentStatus string

const (
	DocumentPending    DocumentStatus = "PENDING"
	DocumentProcessing DocumentStatus = "PROCESSING"
	DocumentExtracted  DocumentStatus = "EXTRACTED"
	DocumentValidated  DocumentStatus = "VALIDATED"
	DocumentError      DocumentStatus = "ERROR"
)

// FileType identifies the raw evidence container format.
type FileType string

const (
	FileTypeText  FileType = "text"
	FileTypePDF   FileType = "pdf"
	FileTypeDocx  FileType = "docx"
	FileTypeImage FileType = "image"
	FileTypeEmail FileType = "eml"
)

// IsValid checks if the file type is supported.
func (f FileType) IsValid() bool {
	switch f {
	case FileTypeText, FileTypePDF, FileTypeDocx, FileTypeImage, FileTypeEmail:
		return true
	}
	return false
}

// RuleType selects the comparison strategy for a matching rule.
type RuleType string

const (
	RuleExact         RuleType = "exact"
	RuleTolerance     RuleType = "tolerance"
	RuleFuzzy         RuleType = "fuzzy"
	RuleDateTolerance RuleType = "date_tolerance"
)

// ToleranceUnit qualifies a rule's tolerance value.
type ToleranceUnit string

const (
	UnitPercent  ToleranceUnit = "percent"
	UnitAbsolute ToleranceUnit = "absolute"
	UnitDays     ToleranceUnit = "days"
)

// TradeFieldNames is the fixed ordered list of TRS schema fields the
// comparator iterates. Both the extraction adapter and TRSTrade attributes
// are keyed by these names.
var TradeFieldNames = []string{
	"trade_id",
	"party_a",
	"party_b",
	"trade_date",
	"effective_date",
	"scheduled_termination_date",
	"bond_return_payer",
	"bond_return_receiver",
	"local_currency",
	"notional_amount",
	"usd_notional_amount",
	"initial_spot_rate",
	"current_market_price",
	"underlier",
	"isin",
}

// NewID generates a unique identifier for stored entities.
func NewID() string {
	return uuid.NewString()
}

// NowISO returns the current time in RFC 3339 form, the timestamp format
// used across all stored records.
func NowISO() string {
	return time.Now().Format(time.RFC3339)
}

// TRSTrade is a book-of-record total return swap trade.
type TRSTrade struct {
	ID                       string  `json:"id"`
	TradeID                  string  `json:"trade_id"`
	PartyA                   string  `json:"party_a"`
	PartyB                   string  `json:"party_b"`
	TradeDate                string  `json:"trade_date"`
	EffectiveDate            string  `json:"effective_date"`
	ScheduledTerminationDate string  `json:"scheduled_termination_date"`
	BondReturnPayer          string  `json:"bond_return_payer"`
	BondReturnReceiver       string  `json:"bond_return_receiver"`
	LocalCurrency            string  `json:"local_currency"`
	NotionalAmount           float64 `json:"notional_amount"`
	USDNotionalAmount        float64 `json:"usd_notional_amount"`
	InitialSpotRate          float64 `json:"initial_spot_rate"`
	CurrentMarketPrice       float64 `json:"current_market_price"`
	Underlier                string  `json:"underlier,omitempty"`
	ISIN                     string  `json:"isin,omitempty"`
	CreatedAt                string  `json:"created_at"`
	UpdatedAt                string  `json:"updated_at"`
}

// Validate performs basic validation on the TRSTrade.
func (t *TRSTrade) Validate() error {
	if strings.TrimSpace(t.TradeID) == "" {
		return fmt.Errorf("trade ID cannot be empty")
	}
	if strings.TrimSpace(t.PartyA) == "" || strings.TrimSpace(t.PartyB) == "" {
		return fmt.Errorf("both parties must be set")
	}
	if t.BondReturnPayer != "PartyA" && t.BondReturnPayer != "PartyB" {
		return fmt.Errorf("invalid bond return payer: %s", t.BondReturnPayer)
	}
	if t.BondReturnReceiver != "PartyA" && t.BondReturnReceiver != "PartyB" {
		return fmt.Errorf("invalid bond return receiver: %s", t.BondReturnReceiver)
	}
	if t.NotionalAmount == 0 {
		return fmt.Errorf("notional amount cannot be zero")
	}
	return nil
}

// AttributeValue returns the value of the named schema field, or ok=false
// when the trade does not carry the attribute. Empty optional fields count
// as absent so the comparator skips them instead of comparing against
// nothing.
func (t *TRSTrade) AttributeValue(fieldName string) (interface{}, bool) {
	switch fieldName {
	case "trade_id":
		return t.TradeID, true
	case "party_a":
		return t.PartyA, true
	case "party_b":
		return t.PartyB, true
	case "trade_date":
		return t.TradeDate, true
	case "effective_date":
		return t.EffectiveDate, true
	case "scheduled_termination_date":
		return t.ScheduledTerminationDate, true
	case "bond_return_payer":
		return t.BondReturnPayer, true
	case "bond_return_receiver":
		return t.BondReturnReceiver, true
	case "local_currency":
		return t.LocalCurrency, true
	case "notional_amount":
		return t.NotionalAmount, true
	case "usd_notional_amount":
		return t.USDNotionalAmount, true
	case "initial_spot_rate":
		return t.InitialSpotRate, true
	case "current_market_price":
		return t.CurrentMarketPrice, true
	case "underlier":
		if t.Underlier == "" {
			return nil, false
		}
		return t.Underlier, true
	case "isin":
		if t.ISIN == "" {
			return nil, false
		}
		return t.ISIN, true
	}
	return nil, false
}

// String returns a string representation of the trade.
func (t *TRSTrade) String() string {
	return fmt.Sprintf("TRSTrade{TradeID: %s, PartyA: %s, PartyB: %s, Notional: %.2f %s}",
		t.TradeID, t.PartyA, t.PartyB, t.NotionalAmount, t.LocalCurrency)
}

// FieldProvenance records where an extracted value was found.
type FieldProvenance struct {
	SourceType string             `json:"source_type"`
	SourceName string             `json:"source_name,omitempty"`
	Page       int                `json:"page,omitempty"`
	BBox       map[string]float64 `json:"bbox,omitempty"`
}

// ExtractedField is a single field value produced by the extraction adapter,
// immutable once extraction completes.
type ExtractedField struct {
	Value      interface{}      `json:"value"`
	Confidence float64          `json:"confidence"`
	Provenance *FieldProvenance `json:"provenance,omitempty"`
}

// ExtractedTrade is the typed field set extracted from one document.
type ExtractedTrade struct {
	TradeType     string                    `json:"trade_type"`
	Fields        map[string]ExtractedField `json:"fields"`
	RawText       string                    `json:"raw_text,omitempty"`
	SchemaVersion string                    `json:"schema_version,omitempty"`
}

// AverageConfidence returns the mean per-field extraction confidence, or
// nil when there are no fields.
func (e *ExtractedTrade) AverageConfidence() *float64 {
	if len(e.Fields) == 0 {
		return nil
	}
	var sum float64
	for _, f := range e.Fields {
		sum += f.Confidence
	}
	avg := sum / float64(len(e.Fields))
	return &avg
}

// MatchingRule is a per-field policy selecting a comparison strategy.
type MatchingRule struct {
	ID             string        `json:"id"`
	FieldName      string        `json:"field_name"`
	RuleType       RuleType      `json:"rule_type"`
	ToleranceValue float64       `json:"tolerance_value,omitempty"`
	ToleranceUnit  ToleranceUnit `json:"tolerance_unit,omitempty"`
	MinConfidence  float64       `json:"min_confidence"`
	Enabled        bool          `json:"enabled"`
}

// Validate performs basic validation on the MatchingRule.
func (r *MatchingRule) Validate() error {
	if strings.TrimSpace(r.FieldName) == "" {
		return fmt.Errorf("rule field name cannot be empty")
	}
	switch r.RuleType {
	case RuleExact, RuleTolerance, RuleFuzzy, RuleDateTolerance:
	default:
		return fmt.Errorf("invalid rule type: %s", r.RuleType)
	}
	if r.MinConfidence < 0 || r.MinConfidence > 1 {
		return fmt.Errorf("min confidence must be in [0,1], got %v", r.MinConfidence)
	}
	if r.ToleranceValue < 0 {
		return fmt.Errorf("tolerance value cannot be negative")
	}
	return nil
}

// FieldComparison is the classified outcome of comparing one field pair.
// Produced fresh on every comparison and never mutated.
type FieldComparison struct {
	FieldName             string      `json:"field_name"`
	ExtractedValue        interface{} `json:"extracted_value"`
	SystemValue           interface{} `json:"system_value"`
	MatchStatus           MatchStatus `json:"match_status"`
	Confidence            float64     `json:"confidence"`
	MinRequiredConfidence float64     `json:"min_required_confidence"`
	RuleApplied           string      `json:"rule_applied"`
}

// ValidationResult aggregates one document's comparison against one chosen
// system record, with display copies of the record's key attributes and the
// checker workflow state layered on top.
type ValidationResult struct {
	ID               string            `json:"id"`
	DocumentID       string            `json:"document_id"`
	SystemTradeID    string            `json:"system_trade_id"`
	Status           OverallStatus     `json:"status"`
	FieldComparisons []FieldComparison `json:"field_comparisons"`
	CreatedAt        string            `json:"created_at"`

	// Display copies for the review dashboard.
	PartyA                   string   `json:"party_a,omitempty"`
	PartyB                   string   `json:"party_b,omitempty"`
	Product                  string   `json:"product"`
	TradeDate                string   `json:"trade_date,omitempty"`
	EffectiveDate            string   `json:"effective_date,omitempty"`
	ScheduledTerminationDate string   `json:"scheduled_termination_date,omitempty"`
	LocalCurrency            string   `json:"local_currency,omitempty"`
	NotionalAmount           *float64 `json:"notional_amount,omitempty"`

	MachineConfidence *float64 `json:"machine_confidence,omitempty"`
	AutoPassed        bool     `json:"auto_passed"`

	// Checker workflow fields, mutated by a human action after creation.
	CheckerDecision        CheckerDecision `json:"checker_decision"`
	CheckerComment         string          `json:"checker_comment,omitempty"`
	CheckerOverrideStatus  OverallStatus   `json:"checker_override_status,omitempty"`
	CheckerOverrideTradeID string          `json:"checker_override_trade_id,omitempty"`
	CheckedAt              string          `json:"checked_at,omitempty"`
}

// Document carries a piece of evidence through the validation lifecycle.
type Document struct {
	ID                 string                 `json:"id"`
	Filename           string                 `json:"filename"`
	FileType           FileType               `json:"file_type"`
	UploadDate         string                 `json:"upload_date"`
	Status             DocumentStatus         `json:"status"`
	FilePath           string                 `json:"file_path,omitempty"`
	Content            string                 `json:"content,omitempty"`
	ExtractedData      *ExtractedTrade        `json:"extracted_data,omitempty"`
	EvidenceMetadata   map[string]interface{} `json:"evidence_metadata,omitempty"`
	ValidationResult   *ValidationResult      `json:"validation_result,omitempty"`
	ProcessingWarnings []string               `json:"processing_warnings,omitempty"`
}

// NewDocument creates a pending document with a fresh ID and upload timestamp.
func NewDocument(filename string, fileType FileType) *Document {
	return &Document{
		ID:         NewID(),
		Filename:   filename,
		FileType:   fileType,
		UploadDate: NowISO(),
		Status:     DocumentPending,
	}
}

// CheckerActionType identifies the human action applied to a validation.
type CheckerActionType string

const (
	ActionApprove  CheckerActionType = "APPROVE"
	ActionReject   CheckerActionType = "REJECT"
	ActionOverride CheckerActionType = "OVERRIDE"
)

// CheckerAction is a human decision applied atop a stored validation result.
type CheckerAction struct {
	Decision              CheckerActionType `json:"decision"`
	OverrideStatus        OverallStatus     `json:"override_status,omitempty"`
	OverrideSystemTradeID string            `json:"override_system_trade_id,omitempty"`
	Comment               string            `json:"comment,omitempty"`
}

// Validate checks the checker action for structural validity. OVERRIDE
// requires an override status; APPROVE and REJECT stand alone.
func (a *CheckerAction) Validate() error {
	switch a.Decision {
	case ActionApprove, ActionReject:
		return nil
	case ActionOverride:
		if a.OverrideStatus == "" {
			return fmt.Errorf("override_status is required for OVERRIDE")
		}
		switch a.OverrideStatus {
		case OverallMatch, OverallMismatch, OverallPartial:
			return nil
		default:
			return fmt.Errorf("invalid override status: %s", a.OverrideStatus)
		}
	default:
		return fmt.Errorf("invalid checker decision: %s", a.Decision)
	}
}

// ResolveFileType maps a filename extension to a supported evidence type.
// Unknown extensions fail fast at the boundary before any processing begins.
func ResolveFileType(filename string) (FileType, error) {
	lower := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(lower, ".pdf"):
		return FileTypePDF, nil
	case strings.HasSuffix(lower, ".docx"):
		return FileTypeDocx, nil
	case strings.HasSuffix(lower, ".eml"):
		return FileTypeEmail, nil
	case strings.HasSuffix(lower, ".txt"):
		return FileTypeText, nil
	}
	for _, ext := range []string{".png", ".jpg", ".jpeg", ".gif", ".bmp"} {
		if strings.HasSuffix(lower, ext) {
			return FileTypeImage, nil
		}
	}
	return "", fmt.Errorf("file type not allowed: %s", filename)
}
