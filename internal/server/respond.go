package server

import (
	"encoding/json"
	"net/http"

	apperrors "trade-validation-service/pkg/errors"
	"trade-validation-service/pkg/logger"
)

// errorBody is the JSON error envelope for all API failures.
type errorBody struct {
	Category   string            `json:"category"`
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Suggestion string            `json:"suggestion,omitempty"`
	Context    apperrors.Context `json:"context,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

// writeError maps an application error onto an HTTP status and JSON body.
// Unrecognized errors surface as 500 without leaking internals.
func writeError(w http.ResponseWriter, err error) {
	ve, ok := apperrors.AsValidatorError(err)
	if !ok {
		ve = apperrors.InternalError("request", err)
	}

	status := ve.HTTPStatus()
	if status >= http.StatusInternalServerError {
		logger.GetGlobalLogger().WithComponent("server").WithError(err).Error("Request failed")
	}

	writeJSON(w, status, errorBody{
		Category:   string(ve.Category),
		Code:       string(ve.Code),
		Message:    ve.Message,
		Suggestion: ve.Suggestion,
		Context:    ve.Context,
	})
}

// decodeJSON decodes a request body, rejecting unknown fields.
func decodeJSON(r *http.Request, dst interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return apperrors.New(apperrors.CategoryFile, apperrors.CodeInvalidPayload,
			"invalid request body: "+err.Error())
	}
	return nil
}
