// Package store persists all application records in a single JSON snapshot
// file. Every read loads the full snapshot and every write persists it
// whole; a process-local mutex serializes access, so the last writer wins.
// This is deliberately simple: the record volumes are small and the file
// doubles as a human-inspectable audit artifact.
package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"trade-validation-service/internal/models"
	apperrors "trade-validation-service/pkg/errors"
	"trade-validation-service/pkg/logger"
)

// Store is a JSON-file backed record store for trades, documents, matching
// rules, and validation results.
type Store struct {
	path   string
	mu     sync.Mutex
	logger logger.Logger
}

// snapshot is the on-disk shape of the store file.
type snapshot struct {
	TRSTrades         []models.TRSTrade         `json:"trs_trades"`
	Documents         []models.Document         `json:"documents"`
	MatchingRules     []models.MatchingRule     `json:"matching_rules"`
	ValidationResults []models.ValidationResult `json:"validation_results"`
}

func emptySnapshot() *snapshot {
	return &snapshot{
		TRSTrades:         []models.TRSTrade{},
		Documents:         []models.Document{},
		MatchingRules:     []models.MatchingRule{},
		ValidationResults: []models.ValidationResult{},
	}
}

// NewStore opens the store at the given file path, creating the file and
// its parent directory on first use.
func NewStore(path string) (*Store, error) {
	s := &Store{
		path:   path,
		logger: logger.WithComponent("store"),
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, apperrors.StoreError("create data directory", err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := s.persist(emptySnapshot()); err != nil {
			return nil, err
		}
		s.logger.WithField("path", path).Info("Initialized empty record store")
	}

	return s, nil
}

// load reads and decodes the full snapshot. Callers must hold s.mu.
func (s *Store) load() (*snapshot, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, apperrors.StoreError("read snapshot", err)
	}

	snap := emptySnapshot()
	if err := json.Unmarshal(raw, snap); err != nil {
		return nil, apperrors.StoreError("decode snapshot", err)
	}
	return snap, nil
}

// persist encodes and writes the full snapshot. Callers must hold s.mu.
func (s *Store) persist(snap *snapshot) error {
	raw, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return apperrors.StoreError("encode snapshot", err)
	}
	if err := os.WriteFile(s.path, raw, 0o644); err != nil {
		return apperrors.StoreError("write snapshot", err)
	}
	return nil
}

// ListTrades returns all system trades in insertion order.
func (s *Store) ListTrades() ([]models.TRSTrade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.load()
	if err != nil {
		return nil, err
	}
	return snap.TRSTrades, nil
}

// GetTrade looks a trade up by record id or business trade_id.
func (s *Store) GetTrade(id string) (*models.TRSTrade, error) {
	trades, err := s.ListTrades()
	if err != nil {
		return nil, err
	}
	for i := range trades {
		if trades[i].ID == id || trades[i].TradeID == id {
			return &trades[i], nil
		}
	}
	return nil, apperrors.NotFoundError("trade", id)
}

// CreateTrade stores a new trade, assigning its record id and timestamps.
func (s *Store) CreateTrade(trade *models.TRSTrade) (*models.TRSTrade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.load()
	if err != nil {
		return nil, err
	}

	trade.ID = models.NewID()
	trade.CreatedAt = models.NowISO()
	trade.UpdatedAt = trade.CreatedAt
	snap.TRSTrades = append(snap.TRSTrades, *trade)

	if err := s.persist(snap); err != nil {
		return nil, err
	}
	return trade, nil
}

// UpdateTrade replaces an existing trade's attributes, preserving the
// record id and creation timestamp.
func (s *Store) UpdateTrade(id string, trade *models.TRSTrade) (*models.TRSTrade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.load()
	if err != nil {
		return nil, err
	}

	for i := range snap.TRSTrades {
		if snap.TRSTrades[i].ID == id {
			trade.ID = id
			trade.CreatedAt = snap.TRSTrades[i].CreatedAt
			trade.UpdatedAt = models.NowISO()
			snap.TRSTrades[i] = *trade
			if err := s.persist(snap); err != nil {
				return nil, err
			}
			return trade, nil
		}
	}
	return nil, apperrors.NotFoundError("trade", id)
}

// DeleteTrade removes a trade by record id.
func (s *Store) DeleteTrade(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.load()
	if err != nil {
		return err
	}

	kept := snap.TRSTrades[:0]
	for _, t := range snap.TRSTrades {
		if t.ID != id {
			kept = append(kept, t)
		}
	}
	if len(kept) == len(snap.TRSTrades) {
		return apperrors.NotFoundError("trade", id)
	}
	snap.TRSTrades = kept
	return s.persist(snap)
}

// ImportTrades appends a batch of trades in one write, assigning ids and
// timestamps. Returns the number of trades stored.
func (s *Store) ImportTrades(trades []models.TRSTrade) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.load()
	if err != nil {
		return 0, err
	}

	now := models.NowISO()
	for i := range trades {
		trades[i].ID = models.NewID()
		trades[i].CreatedAt = now
		trades[i].UpdatedAt = now
		snap.TRSTrades = append(snap.TRSTrades, trades[i])
	}

	if err := s.persist(snap); err != nil {
		return 0, err
	}
	return len(trades), nil
}

// ListDocuments returns all documents in insertion order.
func (s *Store) ListDocuments() ([]models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.load()
	if err != nil {
		return nil, err
	}
	return snap.Documents, nil
}

// GetDocument looks a document up by id.
func (s *Store) GetDocument(id string) (*models.Document, error) {
	docs, err := s.ListDocuments()
	if err != nil {
		return nil, err
	}
	for i := range docs {
		if docs[i].ID == id {
			return &docs[i], nil
		}
	}
	return nil, apperrors.NotFoundError("document", id)
}

// CreateDocument stores a new document record.
func (s *Store) CreateDocument(doc *models.Document) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.load()
	if err != nil {
		return nil, err
	}

	snap.Documents = append(snap.Documents, *doc)
	if err := s.persist(snap); err != nil {
		return nil, err
	}
	return doc, nil
}

// UpdateDocument applies a mutation to the stored document and persists the
// result. The mutator sees the current stored state.
func (s *Store) UpdateDocument(id string, mutate func(*models.Document)) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.load()
	if err != nil {
		return nil, err
	}

	for i := range snap.Documents {
		if snap.Documents[i].ID == id {
			mutate(&snap.Documents[i])
			if err := s.persist(snap); err != nil {
				return nil, err
			}
			doc := snap.Documents[i]
			return &doc, nil
		}
	}
	return nil, apperrors.NotFoundError("document", id)
}

// GetRules returns the matching rule list in stored order. Rule precedence
// in the comparison engine follows this order.
func (s *Store) GetRules() ([]models.MatchingRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.load()
	if err != nil {
		return nil, err
	}
	return snap.MatchingRules, nil
}

// ReplaceRules replaces the entire rule set wholesale, assigning ids to
// rules that lack one.
func (s *Store) ReplaceRules(rules []models.MatchingRule) ([]models.MatchingRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.load()
	if err != nil {
		return nil, err
	}

	for i := range rules {
		if rules[i].ID == "" {
			rules[i].ID = models.NewID()
		}
	}
	snap.MatchingRules = rules

	if err := s.persist(snap); err != nil {
		return nil, err
	}
	return rules, nil
}

// ListValidations returns all validation results in insertion order.
func (s *Store) ListValidations() ([]models.ValidationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.load()
	if err != nil {
		return nil, err
	}
	return snap.ValidationResults, nil
}

// GetValidation looks a validation result up by id.
func (s *Store) GetValidation(id string) (*models.ValidationResult, error) {
	results, err := s.ListValidations()
	if err != nil {
		return nil, err
	}
	for i := range results {
		if results[i].ID == id {
			return &results[i], nil
		}
	}
	return nil, apperrors.NotFoundError("validation", id)
}

// CreateValidation stores a new validation result.
func (s *Store) CreateValidation(result *models.ValidationResult) (*models.ValidationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.load()
	if err != nil {
		return nil, err
	}

	snap.ValidationResults = append(snap.ValidationResults, *result)
	if err := s.persist(snap); err != nil {
		return nil, err
	}
	return result, nil
}

// UpdateValidation applies a mutation to the stored validation result and
// persists it.
func (s *Store) UpdateValidation(id string, mutate func(*models.ValidationResult)) (*models.ValidationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.load()
	if err != nil {
		return nil, err
	}

	for i := range snap.ValidationResults {
		if snap.ValidationResults[i].ID == id {
			mutate(&snap.ValidationResults[i])
			if err := s.persist(snap); err != nil {
				return nil, err
			}
			result := snap.ValidationResults[i]
			return &result, nil
		}
	}
	return nil, apperrors.NotFoundError("validation", id)
}
