package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	CategoryClient   ErrorCategory = "client"
	CategoryServer   ErrorCategory = "server"
	CategoryExternal ErrorCategory = "external"
)

// Common error codes
const (
	// Client errors (4xx)
	CodeValidationError = "VALIDATION_ERROR"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeNotFound        = "NOT_FOUND"
	CodeConflict        = "CONFLICT"
	CodeUploadError     = "UPLOAD_ERROR"

	// Authentication specific
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeInvalidToken       = "INVALID_TOKEN"
	CodeTokenReused        = "TOKEN_REUSED"

	// Server errors (5xx)
	CodeInternalError = "INTERNAL_ERROR"
)

// AppError represents a structured application error
type AppError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Category   ErrorCategory  `json:"-"`
	HTTPStatus int            `json:"-"`
	Details    map[string]any `json:"details,omitempty"`
	Cause      error          `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details map[string]any) *AppError {
	e.Details = details
	return e
}

// WithCause sets the underlying cause of the error
func (e *AppError) WithCause(err error) *AppError {
	e.Cause = err
	return e
}

// Envelope is the uniform JSON body for both successful and failed responses.
type Envelope struct {
	Status    int            `json:"status"`
	Code      string         `json:"code,omitempty"`
	Data      any            `json:"data,omitempty"`
	Message   string         `json:"message"`
	Success   bool           `json:"success"`
	RequestID string         `json:"request_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// New creates a new AppError
func New(code string, message string, category ErrorCategory, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		Category:   category,
		HTTPStatus: httpStatus,
	}
}

// Client error constructors

func ValidationError(message string) *AppError {
	return New(CodeValidationError, message, CategoryClient, http.StatusBadRequest)
}

func Unauthorized(message string) *AppError {
	return New(CodeUnauthorized, message, CategoryClient, http.StatusUnauthorized)
}

func InvalidCredentials(message string) *AppError {
	return New(CodeInvalidCredentials, message, CategoryClient, http.StatusUnauthorized)
}

func InvalidToken(message string) *AppError {
	return New(CodeInvalidToken, message, CategoryClient, http.StatusUnauthorized)
}

func TokenReused() *AppError {
	return New(CodeTokenReused, "refresh token is expired or used", CategoryClient, http.StatusUnauthorized)
}

func NotFound(message string) *AppError {
	return New(CodeNotFound, message, CategoryClient, http.StatusNotFound)
}

func Conflict(message string) *AppError {
	return New(CodeConflict, message, CategoryClient, http.StatusConflict)
}

// UploadError is reported as a client error: the media store gave back no URL
// for the submitted file.
func UploadError(message string) *AppError {
	return New(CodeUploadError, message, CategoryExternal, http.StatusBadRequest)
}

// Server error constructors

func InternalError(message string) *AppError {
	return New(CodeInternalError, message, CategoryServer, http.StatusInternalServerError)
}

// AsAppError converts an error to an AppError if one is in its chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// WriteError writes the error envelope to the HTTP response writer
func WriteError(w http.ResponseWriter, requestID string, err error) {
	appErr, ok := AsAppError(err)
	if !ok {
		// Wrap unknown errors as internal errors
		appErr = InternalError("an unexpected error occurred").WithCause(err)
	}

	resp := Envelope{
		Status:    appErr.HTTPStatus,
		Code:      appErr.Code,
		Message:   appErr.Message,
		Success:   false,
		RequestID: requestID,
		Details:   appErr.Details,
	}

	w.Header().Set("Content-Type", "application/json")
	if requestID != "" {
		w.Header().Set(RequestIDHeader, requestID)
	}
	w.WriteHeader(appErr.HTTPStatus)
	json.NewEncoder(w).Encode(resp)
}

// WriteJSON writes the success envelope with the request ID header
func WriteJSON(w http.ResponseWriter, requestID string, status int, data any, message string) {
	w.Header().Set("Content-Type", "application/json")
	if requestID != "" {
		w.Header().Set(RequestIDHeader, requestID)
	}
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Envelope{
		Status:  status,
		Data:    data,
		Message: message,
		Success: status < http.StatusBadRequest,
	})
}
