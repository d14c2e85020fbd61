// Package errors provides the error handling used across the studyhall server.
// It includes structured error types, JSON response formatting, request ID
// tracking, and integrated logging with Uber's zap logger.
//
// Every failure a client can observe falls into one of a few kinds:
//
//   - Input errors (ValidationError): the request was malformed and no call
//     to the language model was made.
//   - Service errors (ServiceError): the language model call failed. The
//     underlying message is carried in Details.
//   - Formatting errors (FormattingError): the model answered but the reply
//     could not be converted to markup. Reported like a service error.
//
// Basic usage:
//
//	errors.WriteError(w, errors.NewValidationError(requestID, "Invalid request: messages must be an array"))
//
//	errors.WriteError(w, errors.NewServiceError(requestID, "Language model request failed", err))
package errors

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// DefaultLogger is the default zap logger instance used throughout the package.
// It is initialized to a production configuration but can be overridden using SetLogger.
var DefaultLogger *zap.Logger

func init() {
	var err error
	DefaultLogger, err = zap.NewProduction()
	if err != nil {
		DefaultLogger = zap.NewNop()
	}
}

// SetLogger replaces DefaultLogger. A nil logger is ignored so logging
// cannot be disabled by accident.
func SetLogger(logger *zap.Logger) {
	if logger != nil {
		DefaultLogger = logger
	}
}

// ErrorType categorizes an error for clients and for metrics labels.
type ErrorType string

const (
	// ValidationError represents malformed or missing request fields
	ValidationError ErrorType = "invalid_request"

	// ServiceError represents a failed call to the language model service
	ServiceError ErrorType = "service_error"

	// FormattingError represents model output that could not be converted to markup
	FormattingError ErrorType = "formatting_error"

	// RateLimitError represents a client that exceeded its request budget
	RateLimitError ErrorType = "rate_limit_error"

	// NotFoundError represents an unknown route
	NotFoundError ErrorType = "not_found"

	// InternalError represents unexpected internal server errors
	InternalError ErrorType = "internal_error"
)

// TutorError is the error type written to clients. The JSON shape is
// {"type", "error", "details", "request_id"}, so clients that only look at
// "error" and "details" keep working.
type TutorError struct {
	// Type categorizes the error for client handling
	Type ErrorType `json:"type"`

	// Message is the human-readable error description
	Message string `json:"error"`

	// Details carries the underlying failure text, if any
	Details string `json:"details,omitempty"`

	// Code is the HTTP status code (not exposed in JSON)
	Code int `json:"-"`

	// RequestID links the error to a specific request
	RequestID string `json:"request_id,omitempty"`

	err error
}

// Error implements the error interface.
func (e *TutorError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error.
func (e *TutorError) Unwrap() error {
	return e.err
}

// Is matches on Type only, so errors.Is(err, &TutorError{Type: ServiceError})
// works regardless of message or request ID.
func (e *TutorError) Is(target error) bool {
	t, ok := target.(*TutorError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithRequestID returns a copy of the error bound to requestID.
func (e *TutorError) WithRequestID(requestID string) *TutorError {
	cp := *e
	cp.RequestID = requestID
	return &cp
}

// WriteError writes err as a JSON response with its status code.
func WriteError(w http.ResponseWriter, err *TutorError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Code)
	if encErr := json.NewEncoder(w).Encode(err); encErr != nil {
		DefaultLogger.Error("failed to encode error response",
			zap.Error(encErr),
			zap.String("request_id", err.RequestID),
		)
	}
}

// ErrorWithType is a drop-in replacement for http.Error that writes a
// TutorError of the given type. The request ID is taken from the response
// headers when the RequestID middleware already set it.
func ErrorWithType(w http.ResponseWriter, message string, errType ErrorType, code int) {
	WriteError(w, &TutorError{
		Type:      errType,
		Message:   message,
		Code:      code,
		RequestID: w.Header().Get("X-Request-ID"),
	})
}
