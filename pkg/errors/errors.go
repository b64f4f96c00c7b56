package errors

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// ErrorCategory represents different categories of errors
type ErrorCategory string

const (
	CategoryFile       ErrorCategory = "file"
	CategoryEvidence   ErrorCategory = "evidence"
	CategoryExtraction ErrorCategory = "extraction"
	CategoryComparison ErrorCategory = "comparison"
	CategoryStore      ErrorCategory = "store"
	CategoryCapability ErrorCategory = "capability"
	CategoryNetwork    ErrorCategory = "network"
	CategoryInternal   ErrorCategory = "internal"
)

// ErrorCode represents specific error codes within categories
type ErrorCode string

const (
	// File errors
	CodeFileNotFound    ErrorCode = "file_not_found"
	CodeFileTooLarge    ErrorCode = "file_too_large"
	CodeUnsupportedType ErrorCode = "unsupported_type"

	// Evidence errors
	CodeNoContent       ErrorCode = "no_content"
	CodeAttachmentError ErrorCode = "attachment_error"

	// Extraction errors
	CodeAdapterFailed  ErrorCode = "adapter_failed"
	CodeInvalidPayload ErrorCode = "invalid_payload"

	// Comparison errors
	CodeNotExtracted ErrorCode = "not_extracted"
	CodeInvalidRule  ErrorCode = "invalid_rule"

	// Store errors
	CodeNotFound     ErrorCode = "not_found"
	CodePersistError ErrorCode = "persist_error"

	// Capability errors
	CodeMissingDependency ErrorCode = "missing_dependency"

	// Network errors
	CodeConnectionFailed ErrorCode = "connection_failed"
	CodeTimeout          ErrorCode = "timeout"

	// Internal errors
	CodeUnexpectedError ErrorCode = "unexpected_error"
)

// ValidatorError is the base error type for all application errors
type ValidatorError struct {
	Category   ErrorCategory     `json:"category"`
	Code       ErrorCode         `json:"code"`
	Message    string            `json:"message"`
	Suggestion string            `json:"suggestion,omitempty"`
	Context    Context           `json:"context,omitempty"`
	Cause      error             `json:"-"`
	StackTrace errors.StackTrace `json:"-"`
}

// Context provides additional information about the error
type Context map[string]interface{}

// Error implements the error interface
func (e *ValidatorError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s (suggestion: %s)", e.Message, e.Suggestion)
	}
	return e.Message
}

// Unwrap returns the underlying cause error
func (e *ValidatorError) Unwrap() error {
	return e.Cause
}

// GetExitCode returns an appropriate exit code for the error
func (e *ValidatorError) GetExitCode() int {
	switch e.Category {
	case CategoryFile:
		return 2
	case CategoryEvidence, CategoryExtraction:
		return 3
	case CategoryComparison, CategoryStore:
		return 4
	case CategoryCapability:
		return 5
	case CategoryNetwork:
		return 6
	default:
		return 1
	}
}

// HTTPStatus maps the error to the status code the API surfaces.
// Not-found lookups are 404, boundary rejections 400, missing optional
// capability 501, everything else 500.
func (e *ValidatorError) HTTPStatus() int {
	switch e.Code {
	case CodeNotFound, CodeFileNotFound:
		return http.StatusNotFound
	case CodeUnsupportedType, CodeFileTooLarge, CodeNotExtracted, CodeInvalidRule, CodeInvalidPayload:
		return http.StatusBadRequest
	case CodeMissingDependency:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// WithContext adds context information to the error
func (e *ValidatorError) WithContext(key string, value interface{}) *ValidatorError {
	if e.Context == nil {
		e.Context = make(Context)
	}
	e.Context[key] = value
	return e
}

// WithSuggestion adds a suggestion for fixing the error
func (e *ValidatorError) WithSuggestion(suggestion string) *ValidatorError {
	e.Suggestion = suggestion
	return e
}

// New creates a new ValidatorError
func New(category ErrorCategory, code ErrorCode, message string) *ValidatorError {
	return &ValidatorError{
		Category:   category,
		Code:       code,
		Message:    message,
		StackTrace: errors.New("").(stackTracer).StackTrace(),
	}
}

// Wrap wraps an existing error with ValidatorError context
func Wrap(err error, category ErrorCategory, code ErrorCode, message string) *ValidatorError {
	if err == nil {
		return nil
	}

	return &ValidatorError{
		Category:   category,
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: errors.WithStack(err).(stackTracer).StackTrace(),
	}
}

// stackTracer interface for extracting stack traces
type stackTracer interface {
	StackTrace() errors.StackTrace
}

// Specific error constructors

// NotFoundError creates a store lookup error for a missing entity.
func NotFoundError(entity, id string) *ValidatorError {
	return New(CategoryStore, CodeNotFound, fmt.Sprintf("%s not found: %s", entity, id)).
		WithContext("entity", entity).
		WithContext("id", id)
}

// UnsupportedInputError creates a boundary rejection for an unknown
// file extension or document type.
func UnsupportedInputError(detail string) *ValidatorError {
	return New(CategoryFile, CodeUnsupportedType, detail).
		WithSuggestion("supported types: pdf, docx, eml, txt, png, jpg, jpeg, gif, bmp")
}

// CapabilityError creates a fail-fast error for a missing optional parser
// dependency where no partial result is possible.
func CapabilityError(capability, remedy string, err error) *ValidatorError {
	message := fmt.Sprintf("%s support unavailable", capability)
	var result *ValidatorError
	if err != nil {
		result = Wrap(err, CategoryCapability, CodeMissingDependency, message)
	} else {
		result = New(CategoryCapability, CodeMissingDependency, message)
	}
	return result.
		WithSuggestion(remedy).
		WithContext("capability", capability)
}

// EvidenceError creates a degraded-extraction error for an evidence sub-step.
func EvidenceError(code ErrorCode, source string, err error) *ValidatorError {
	message := fmt.Sprintf("evidence processing failed for %s", source)
	if code == CodeNoContent {
		message = fmt.Sprintf("no extractable content in %s", source)
	}
	var result *ValidatorError
	if err != nil {
		result = Wrap(err, CategoryEvidence, code, message)
	} else {
		result = New(CategoryEvidence, code, message)
	}
	return result.WithContext("source", source)
}

// ExtractionError creates an adapter-failure error.
func ExtractionError(code ErrorCode, err error) *ValidatorError {
	var message, suggestion string
	switch code {
	case CodeAdapterFailed:
		message = "extraction adapter call failed"
		suggestion = "check the API key and network; the mock extractor remains available offline"
	case CodeInvalidPayload:
		message = "extraction adapter returned an unparseable payload"
		suggestion = "inspect the raw adapter response in the logs"
	default:
		message = "extraction error"
		suggestion = "retry the extraction"
	}

	var result *ValidatorError
	if err != nil {
		result = Wrap(err, CategoryExtraction, code, message)
	} else {
		result = New(CategoryExtraction, code, message)
	}
	return result.WithSuggestion(suggestion)
}

// StoreError creates a persistence error.
func StoreError(operation string, err error) *ValidatorError {
	return Wrap(err, CategoryStore, CodePersistError,
		fmt.Sprintf("record store operation failed: %s", operation)).
		WithSuggestion("check the data directory exists and is writable").
		WithContext("operation", operation)
}

// NetworkError creates a network-related error for an external adapter.
func NetworkError(code ErrorCode, endpoint string, err error) *ValidatorError {
	var message, suggestion string
	switch code {
	case CodeConnectionFailed:
		message = fmt.Sprintf("connection failed to %s", endpoint)
		suggestion = "check network connectivity and endpoint availability"
	case CodeTimeout:
		message = fmt.Sprintf("timeout connecting to %s", endpoint)
		suggestion = "increase timeout setting or check network speed"
	default:
		message = fmt.Sprintf("network error: %s", endpoint)
		suggestion = "check network connection and try again"
	}

	var result *ValidatorError
	if err != nil {
		result = Wrap(err, CategoryNetwork, code, message)
	} else {
		result = New(CategoryNetwork, code, message)
	}
	return result.
		WithSuggestion(suggestion).
		WithContext("endpoint", endpoint)
}

// InternalError creates an internal error
func InternalError(operation string, err error) *ValidatorError {
	return Wrap(err, CategoryInternal, CodeUnexpectedError,
		fmt.Sprintf("unexpected error during %s", operation)).
		WithSuggestion("this is likely a bug - please report it with the error details").
		WithContext("operation", operation)
}

// Utility functions

// IsValidatorError checks if an error is a ValidatorError
func IsValidatorError(err error) bool {
	_, ok := err.(*ValidatorError)
	return ok
}

// AsValidatorError extracts a ValidatorError from an error chain
func AsValidatorError(err error) (*ValidatorError, bool) {
	var validatorErr *ValidatorError
	if errors.As(err, &validatorErr) {
		return validatorErr, true
	}
	return nil, false
}

// IsNotFound reports whether the error chain contains a not-found lookup.
func IsNotFound(err error) bool {
	if ve, ok := AsValidatorError(err); ok {
		return ve.Code == CodeNotFound || ve.Code == CodeFileNotFound
	}
	return false
}

// WrapIfNeeded wraps an error if it's not already a ValidatorError
func WrapIfNeeded(err error, category ErrorCategory, code ErrorCode, message string) *ValidatorError {
	if err == nil {
		return nil
	}

	if validatorErr, ok := AsValidatorError(err); ok {
		return validatorErr
	}

	return Wrap(err, category, code, message)
}
