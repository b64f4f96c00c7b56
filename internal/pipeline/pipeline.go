// Package pipeline orchestrates the document lifecycle: evidence
// normalization and field extraction, validation against the record store,
// and the human checker workflow layered on stored results.
package pipeline

import (
	"context"
	"fmt"

	"trade-validation-service/internal/engine"
	"trade-validation-service/internal/evidence"
	"trade-validation-service/internal/extractor"
	"trade-validation-service/internal/models"
	"trade-validation-service/internal/store"
	apperrors "trade-validation-service/pkg/errors"
	"trade-validation-service/pkg/logger"
)

// Config holds pipeline thresholds.
type Config struct {
	// AutoPassThreshold is the minimum machine confidence at which a
	// clean MATCH is auto-approved without a human checker.
	AutoPassThreshold float64
}

// DefaultConfig returns the default pipeline configuration.
func DefaultConfig() *Config {
	return &Config{AutoPassThreshold: 0.85}
}

// Pipeline wires the evidence processor, extractor, comparison engine and
// record store into the document operations the API exposes.
type Pipeline struct {
	store     *store.Store
	evidence  *evidence.Processor
	extractor extractor.Extractor
	config    *Config
	logger    logger.Logger
}

// New creates a pipeline over the given collaborators.
func New(recordStore *store.Store, evidenceProcessor *evidence.Processor, ext extractor.Extractor, config *Config) *Pipeline {
	if config == nil {
		config = DefaultConfig()
	}
	return &Pipeline{
		store:     recordStore,
		evidence:  evidenceProcessor,
		extractor: ext,
		config:    config,
		logger:    logger.WithComponent("pipeline"),
	}
}

// ExtractDocument normalizes a document's evidence and extracts trade
// fields from it. The document moves PENDING→PROCESSING→EXTRACTED; any
// failure lands it in ERROR with the cause recorded on the document, never
// silently lost.
func (p *Pipeline) ExtractDocument(ctx context.Context, docID string) (*models.Document, error) {
	doc, err := p.store.GetDocument(docID)
	if err != nil {
		return nil, err
	}

	if _, err := p.store.UpdateDocument(docID, func(d *models.Document) {
		d.Status = models.DocumentProcessing
	}); err != nil {
		return nil, err
	}

	normalized, err := p.evidence.Prepare(ctx, doc)
	if err != nil {
		return nil, p.failDocument(docID, err)
	}

	extracted, err := p.extractor.ExtractTrade(ctx, normalized.Content, normalized.ImagePath)
	if err != nil {
		return nil, p.failDocument(docID, err)
	}

	updated, err := p.store.UpdateDocument(docID, func(d *models.Document) {
		d.Status = models.DocumentExtracted
		d.Content = normalized.Content
		d.ExtractedData = extracted
		d.EvidenceMetadata = normalized.Metadata
		d.ProcessingWarnings = normalized.Warnings
	})
	if err != nil {
		return nil, err
	}

	p.logger.WithFields(logger.Fields{
		"document_id":         docID,
		"fields_extracted":    len(extracted.Fields),
		"content_unavailable": normalized.ContentUnavailable,
		"warnings":            len(normalized.Warnings),
	}).Info("Document extracted")

	return updated, nil
}

// failDocument records an extraction failure on the document and returns
// the original error for the caller.
func (p *Pipeline) failDocument(docID string, cause error) error {
	if _, err := p.store.UpdateDocument(docID, func(d *models.Document) {
		d.Status = models.DocumentError
		d.ProcessingWarnings = append(d.ProcessingWarnings, cause.Error())
	}); err != nil {
		p.logger.WithError(err).Error("Failed to record document error state")
	}
	return cause
}

// ValidateDocument compares a document's extracted fields against the
// stored trades under a fresh rule snapshot, persists the result, and
// stamps the document VALIDATED. A clean MATCH at high machine confidence
// is auto-approved.
func (p *Pipeline) ValidateDocument(ctx context.Context, docID string) (*models.Document, error) {
	doc, err := p.store.GetDocument(docID)
	if err != nil {
		return nil, err
	}
	if doc.ExtractedData == nil {
		return nil, apperrors.New(apperrors.CategoryComparison, apperrors.CodeNotExtracted,
			"document has not been extracted yet").
			WithContext("document_id", docID)
	}

	rules, err := p.store.GetRules()
	if err != nil {
		return nil, err
	}
	trades, err := p.store.ListTrades()
	if err != nil {
		return nil, err
	}

	candidates := make([]*models.TRSTrade, len(trades))
	for i := range trades {
		candidates[i] = &trades[i]
	}

	eng := engine.NewEngine(rules)
	result := eng.FindBestMatch(doc.ExtractedData, candidates, docID)
	if result == nil {
		result = eng.BuildUnmatchedResult(doc.ExtractedData, docID)
	}

	p.applyAutoPass(result)

	if _, err := p.store.CreateValidation(result); err != nil {
		return nil, err
	}

	updated, err := p.store.UpdateDocument(docID, func(d *models.Document) {
		d.Status = models.DocumentValidated
		d.ValidationResult = result
	})
	if err != nil {
		return nil, err
	}

	p.logger.WithFields(logger.Fields{
		"document_id":     docID,
		"system_trade_id": result.SystemTradeID,
		"status":          result.Status,
		"auto_passed":     result.AutoPassed,
	}).Info("Document validated")

	return updated, nil
}

// applyAutoPass approves a clean MATCH whose machine confidence meets the
// threshold, so only uncertain results queue for a human checker.
func (p *Pipeline) applyAutoPass(result *models.ValidationResult) {
	machineConfidence := 0.0
	if result.MachineConfidence != nil {
		machineConfidence = *result.MachineConfidence
	}

	if result.Status != models.OverallMatch || machineConfidence < p.config.AutoPassThreshold {
		return
	}

	result.AutoPassed = true
	result.CheckerDecision = models.CheckerApproved
	result.CheckedAt = models.NowISO()
	result.CheckerComment = fmt.Sprintf("Auto-approved by threshold >= %.2f", p.config.AutoPassThreshold)
}

// ApplyCheckerAction records a human decision on a stored validation
// result and propagates the updated snapshot onto the owning document.
func (p *Pipeline) ApplyCheckerAction(validationID string, action *models.CheckerAction) (*models.ValidationResult, error) {
	if err := action.Validate(); err != nil {
		return nil, apperrors.New(apperrors.CategoryComparison, apperrors.CodeInvalidPayload, err.Error())
	}

	updated, err := p.store.UpdateValidation(validationID, func(v *models.ValidationResult) {
		v.CheckedAt = models.NowISO()
		v.CheckerComment = action.Comment

		switch action.Decision {
		case models.ActionApprove:
			v.CheckerDecision = models.CheckerApproved
		case models.ActionReject:
			v.CheckerDecision = models.CheckerRejected
		case models.ActionOverride:
			v.CheckerDecision = models.CheckerOverridden
			v.CheckerOverrideStatus = action.OverrideStatus
			v.Status = action.OverrideStatus
			if action.OverrideSystemTradeID != "" {
				v.CheckerOverrideTradeID = action.OverrideSystemTradeID
				v.SystemTradeID = action.OverrideSystemTradeID
			}
		}
	})
	if err != nil {
		return nil, err
	}

	// Keep the document's snapshot in sync with the stored result.
	if _, err := p.store.UpdateDocument(updated.DocumentID, func(d *models.Document) {
		d.ValidationResult = updated
	}); err != nil && !apperrors.IsNotFound(err) {
		return nil, err
	}

	p.logger.WithFields(logger.Fields{
		"validation_id": validationID,
		"decision":      updated.CheckerDecision,
	}).Info("Checker action applied")

	return updated, nil
}
