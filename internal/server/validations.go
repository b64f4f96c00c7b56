package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"trade-validation-service/internal/extractor"
	"trade-validation-service/internal/models"
	"trade-validation-service/internal/reporter"
	apperrors "trade-validation-service/pkg/errors"
)

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, extractor.TRSSchema())
}

func (s *Server) handleGetRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.store.GetRules()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rules)
}

// handleReplaceRules replaces the matching rule set wholesale. Rules apply
// to the next validation run; stored results keep the rules they ran under.
func (s *Server) handleReplaceRules(w http.ResponseWriter, r *http.Request) {
	var rules []models.MatchingRule
	if err := decodeJSON(r, &rules); err != nil {
		writeError(w, err)
		return
	}
	for i := range rules {
		if err := rules[i].Validate(); err != nil {
			writeError(w, apperrors.New(apperrors.CategoryComparison, apperrors.CodeInvalidRule, err.Error()).
				WithContext("field_name", rules[i].FieldName))
			return
		}
	}

	stored, err := s.store.ReplaceRules(rules)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

func (s *Server) handleListValidations(w http.ResponseWriter, r *http.Request) {
	results, err := s.store.ListValidations()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleGetValidation(w http.ResponseWriter, r *http.Request) {
	result, err := s.store.GetValidation(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCheckerAction(w http.ResponseWriter, r *http.Request) {
	var action models.CheckerAction
	if err := decodeJSON(r, &action); err != nil {
		writeError(w, err)
		return
	}

	updated, err := s.pipeline.ApplyCheckerAction(chi.URLParam(r, "id"), &action)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// handleValidationReport streams all stored results as a CSV download.
func (s *Server) handleValidationReport(w http.ResponseWriter, r *http.Request) {
	results, err := s.store.ListValidations()
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="`+reporter.ReportFilename+`"`)
	if err := reporter.WriteReport(w, results); err != nil {
		s.logger.WithError(err).Error("Failed to write validation report")
	}
}
