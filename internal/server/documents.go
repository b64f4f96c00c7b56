package server

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"trade-validation-service/internal/models"
	"trade-validation-service/internal/ocr"
	apperrors "trade-validation-service/pkg/errors"
	"trade-validation-service/pkg/logger"
)

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.store.ListDocuments()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.store.GetDocument(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// handleUploadDocument accepts one evidence file, validates its type and
// size at the boundary, and persists it under the upload directory.
func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
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

	if header.Size > s.config.MaxUploadBytes {
		writeError(w, apperrors.New(apperrors.CategoryFile, apperrors.CodeFileTooLarge,
			"uploaded file exceeds the size limit").
			WithContext("size", header.Size).
			WithContext("limit", s.config.MaxUploadBytes))
		return
	}

	fileType, err := models.ResolveFileType(header.Filename)
	if err != nil {
		writeError(w, apperrors.UnsupportedInputError(err.Error()))
		return
	}

	doc := models.NewDocument(filepath.Base(header.Filename), fileType)

	if err := os.MkdirAll(s.config.UploadDir, 0o755); err != nil {
		writeError(w, apperrors.InternalError("create upload directory", err))
		return
	}
	storedPath := filepath.Join(s.config.UploadDir, doc.ID+"_"+doc.Filename)
	dst, err := os.Create(storedPath)
	if err != nil {
		writeError(w, apperrors.InternalError("store uploaded file", err))
		return
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		writeError(w, apperrors.InternalError("store uploaded file", err))
		return
	}
	dst.Close()
	doc.FilePath = storedPath

	created, err := s.store.CreateDocument(doc)
	if err != nil {
		writeError(w, err)
		return
	}

	s.logger.WithFields(logger.Fields{
		"document_id": created.ID,
		"filename":    created.Filename,
		"file_type":   created.FileType,
	}).Info("Document uploaded")

	writeJSON(w, http.StatusCreated, created)
}

type textDocumentRequest struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

// handleTextDocument registers pasted confirmation text as a document
// without any file behind it.
func (s *Server) handleTextDocument(w http.ResponseWriter, r *http.Request) {
	var req textDocumentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, apperrors.New(apperrors.CategoryFile, apperrors.CodeInvalidPayload,
			"content is required"))
		return
	}
	if req.Filename == "" {
		req.Filename = "pasted_text.txt"
	}

	doc := models.NewDocument(req.Filename, models.FileTypeText)
	doc.Content = req.Content

	created, err := s.store.CreateDocument(doc)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

type scanFolderRequest struct {
	FolderPath string `json:"folder_path"`
}

// handleScanFolder registers every supported file in a local folder as a
// pending document. Unsupported files are counted but skipped.
func (s *Server) handleScanFolder(w http.ResponseWriter, r *http.Request) {
	var req scanFolderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	entries, err := os.ReadDir(req.FolderPath)
	if err != nil {
		if os.IsNotExist(err) {
			writeError(w, apperrors.New(apperrors.CategoryFile, apperrors.CodeFileNotFound,
				"folder not found: "+req.FolderPath))
			return
		}
		writeError(w, apperrors.InternalError("scan folder", err))
		return
	}

	var created []models.Document
	skipped := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		fileType, err := models.ResolveFileType(entry.Name())
		if err != nil {
			skipped++
			continue
		}

		doc := models.NewDocument(entry.Name(), fileType)
		doc.FilePath = filepath.Join(req.FolderPath, entry.Name())
		stored, err := s.store.CreateDocument(doc)
		if err != nil {
			writeError(w, err)
			return
		}
		created = append(created, *stored)
	}

	s.logger.WithFields(logger.Fields{
		"folder":  req.FolderPath,
		"created": len(created),
		"skipped": skipped,
	}).Info("Folder scan completed")

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"created":   len(created),
		"skipped":   skipped,
		"documents": created,
	})
}

func (s *Server) handleExtractDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.pipeline.ExtractDocument(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleValidateDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.pipeline.ValidateDocument(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// viewerResponse is the evidence viewer payload: one rendered page with the
// recognized words and the extracted fields located on it.
type viewerResponse struct {
	DocumentID       string                         `json:"document_id"`
	Filename         string                         `json:"filename"`
	Page             int                            `json:"page"`
	ImageBase64      string                         `json:"image_base64"`
	ImageWidth       int                            `json:"image_width"`
	ImageHeight      int                            `json:"image_height"`
	OCRWords         []ocr.Word                     `json:"ocr_words"`
	FieldCoordinates map[string]ocr.FieldCoordinate `json:"field_coordinates"`
	ExtractedData    *models.ExtractedTrade         `json:"extracted_data,omitempty"`
}

// handleDocumentViewer renders one page of a pdf or image document with
// bounding boxes for the extracted fields.
func (s *Server) handleDocumentViewer(w http.ResponseWriter, r *http.Request) {
	doc, err := s.store.GetDocument(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	if (doc.FileType != models.FileTypePDF && doc.FileType != models.FileTypeImage) || doc.FilePath == "" {
		writeError(w, apperrors.New(apperrors.CategoryFile, apperrors.CodeUnsupportedType,
			"viewer requires a pdf or image document with a stored file"))
		return
	}

	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			page = parsed
		}
	}

	if !s.ocr.Available() {
		writeError(w, apperrors.CapabilityError("ocr",
			"configure the OCR service endpoint to use the document viewer", nil))
		return
	}

	result, err := s.ocr.Process(r.Context(), doc.FilePath, page, true)
	if err != nil {
		writeError(w, err)
		return
	}

	fieldValues := make(map[string]string)
	if doc.ExtractedData != nil {
		for name, field := range doc.ExtractedData.Fields {
			if value := displayString(field.Value); value != "" {
				fieldValues[name] = value
			}
		}
	}

	writeJSON(w, http.StatusOK, viewerResponse{
		DocumentID:       doc.ID,
		Filename:         doc.Filename,
		Page:             page,
		ImageBase64:      result.ImageBase64,
		ImageWidth:       result.ImageWidth,
		ImageHeight:      result.ImageHeight,
		OCRWords:         result.Words,
		FieldCoordinates: ocr.FieldCoordinates(fieldValues, result.Words),
		ExtractedData:    doc.ExtractedData,
	})
}

// displayString renders an extracted value for word matching. Floats keep
// their shortest decimal form so "1000000" matches the page text.
func displayString(v interface{}) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", value)
	}
}
