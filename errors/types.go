package errors

import (
	"fmt"
	"net/http"
)

// NewError creates a TutorError with full control over its fields. Prefer
// one of the specialized constructors below.
//
// Example:
//
//	err := NewError(InternalError, "encode failed", 500, "req_123", "", encErr)
func NewError(errType ErrorType, message string, code int, requestID, details string, err error) *TutorError {
	return &TutorError{
		Type:      errType,
		Message:   message,
		Code:      code,
		RequestID: requestID,
		Details:   details,
		err:       err,
	}
}

// NewValidationError creates an input error. Use it for anything rejected
// before the language model is called:
//   - body is not JSON
//   - messages missing, empty, or not an array
//   - last message is not a user turn
//
// Example:
//
//	err := NewValidationError("req_123", "Invalid request: messages must be an array")
func NewValidationError(requestID, message string) *TutorError {
	return &TutorError{
		Type:      ValidationError,
		Message:   message,
		Code:      http.StatusBadRequest,
		RequestID: requestID,
	}
}

// NewServiceError creates a service error. The underlying error text is
// exposed to the client as details.
//
// Example:
//
//	err := NewServiceError("req_123", "Language model request failed", apiErr)
func NewServiceError(requestID, message string, err error) *TutorError {
	details := ""
	if err != nil {
		details = err.Error()
	}
	return &TutorError{
		Type:      ServiceError,
		Message:   message,
		Code:      http.StatusInternalServerError,
		RequestID: requestID,
		Details:   details,
		err:       err,
	}
}

// NewFormattingError creates an error for model output that could not be
// turned into markup. Clients see it as a 500, like a service error.
func NewFormattingError(requestID string, err error) *TutorError {
	details := ""
	if err != nil {
		details = err.Error()
	}
	return &TutorError{
		Type:      FormattingError,
		Message:   "Failed to format response",
		Code:      http.StatusInternalServerError,
		RequestID: requestID,
		Details:   details,
		err:       err,
	}
}

// NewRateLimitError creates a rate limit error.
//
// Example:
//
//	err := NewRateLimitError("req_123", 30)
func NewRateLimitError(requestID string, retryAfter int) *TutorError {
	return &TutorError{
		Type:      RateLimitError,
		Message:   "Rate limit exceeded",
		Code:      http.StatusTooManyRequests,
		RequestID: requestID,
		Details:   fmt.Sprintf("retry after %ds", retryAfter),
	}
}

// NewNotFoundError creates an error for unknown routes.
func NewNotFoundError(requestID, path string) *TutorError {
	return &TutorError{
		Type:      NotFoundError,
		Message:   "Not found",
		Code:      http.StatusNotFound,
		RequestID: requestID,
		Details:   path,
	}
}

// NewInternalError creates an internal server error for anything not
// covered above, such as panics or encoding failures.
func NewInternalError(requestID string, err error) *TutorError {
	return &TutorError{
		Type:      InternalError,
		Message:   "An internal error occurred",
		Code:      http.StatusInternalServerError,
		RequestID: requestID,
		err:       err,
	}
}
