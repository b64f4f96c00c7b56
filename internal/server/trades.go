package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"trade-validation-service/internal/models"
	apperrors "trade-validation-service/pkg/errors"
	"trade-validation-service/pkg/logger"
)

func (s *Server) handleListTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := s.store.ListTrades()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trades)
}

func (s *Server) handleCreateTrade(w http.ResponseWriter, r *http.Request) {
	var trade models.TRSTrade
	if err := decodeJSON(r, &trade); err != nil {
		writeError(w, err)
		return
	}
	if err := trade.Validate(); err != nil {
		writeError(w, apperrors.New(apperrors.CategoryFile, apperrors.CodeInvalidPayload, err.Error()))
		return
	}

	created, err := s.store.CreateTrade(&trade)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetTrade(w http.ResponseWriter, r *http.Request) {
	trade, err := s.store.GetTrade(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trade)
}

func (s *Server) handleUpdateTrade(w http.ResponseWriter, r *http.Request) {
	var trade models.TRSTrade
	if err := decodeJSON(r, &trade); err != nil {
		writeError(w, err)
		return
	}
	if err := trade.Validate(); err != nil {
		writeError(w, apperrors.New(apperrors.CategoryFile, apperrors.CodeInvalidPayload, err.Error()))
		return
	}

	updated, err := s.store.UpdateTrade(chi.URLParam(r, "id"), &trade)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteTrade(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteTrade(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// handleImportTrades bulk-imports trades from an uploaded CSV file. Rows
// that fail to parse are reported but do not abort the import.
func (s *Server) handleImportTrades(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(s.config.MaxUploadBytes); err != nil {
		writeError(w, apperrors.New(apperrors.CategoryFile, apperrors.CodeInvalidPayload,
			"invalid multipart form: "+err.Error()))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, apperrors.New(apperrors.CategoryFile, apperrors.CodeInvalidPayload,
			"missing file field"))
		return
	}
	defer file.Close()

	trades, stats, err := s.parser.Parse(file)
	if err != nil {
		writeError(w, err)
		return
	}

	imported, err := s.store.ImportTrades(trades)
	if err != nil {
		writeError(w, err)
		return
	}

	s.logger.WithFields(logger.Fields{
		"filename": header.Filename,
		"imported": imported,
		"skipped":  len(stats.Errors),
	}).Info("Trade import completed")

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"imported": imported,
		"skipped":  len(stats.Errors),
		"errors":   stats.SampleErrors(10),
	})
}
