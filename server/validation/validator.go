// Package validation checks chat requests before they reach the model.
package validation

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/teilomillet/studyhall/server/processing"
)

// Error messages returned to clients.
const (
	MsgInvalidFields = "Invalid request: message fields failed validation"
	MsgTooLong       = "Invalid request: conversation exceeds the context limit"
)

// ValidationErrorDetail describes one rejected field.
type ValidationErrorDetail struct {
	Field   string `json:"field"`           // The field that failed validation
	Message string `json:"message"`         // Human-readable error message
	Code    string `json:"code"`            // Machine-readable error code
	Value   string `json:"value,omitempty"` // The invalid value (if safe to return)
}

// Error is a rejected request.
type Error struct {
	Message string
	Details []ValidationErrorDetail
}

func (e *Error) Error() string {
	if len(e.Details) == 0 {
		return e.Message
	}
	return e.Message + ": " + e.Summary()
}

// Summary joins the details into one line.
func (e *Error) Summary() string {
	parts := make([]string, 0, len(e.Details))
	for _, d := range e.Details {
		parts = append(parts, d.Field+": "+d.Message)
	}
	return strings.Join(parts, "; ")
}

// Validator checks the wire shape of a request and, optionally, its size.
type Validator struct {
	validate         *validator.Validate
	counter          *TokenCounter
	maxContextTokens int
}

// New returns a Validator. Token counting is skipped when counter is nil
// or maxContextTokens is not positive.
func New(counter *TokenCounter, maxContextTokens int) *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{validate: v, counter: counter, maxContextTokens: maxContextTokens}
}

// Validate returns nil or an *Error.
func (v *Validator) Validate(req *processing.Request) error {
	if req == nil || len(req.Messages) == 0 {
		return &Error{Message: processing.MsgNoMessages}
	}

	if err := v.validate.Struct(req); err != nil {
		verrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return &Error{Message: MsgInvalidFields, Details: []ValidationErrorDetail{{Field: "body", Message: err.Error(), Code: "invalid"}}}
		}
		details := make([]ValidationErrorDetail, 0, len(verrs))
		for _, fe := range verrs {
			details = append(details, detail(fe))
		}
		return &Error{Message: MsgInvalidFields, Details: details}
	}

	last := req.Messages[len(req.Messages)-1]
	if last.Role != processing.RoleUser || strings.TrimSpace(last.Content) == "" {
		return &Error{
			Message: processing.MsgBadLastTurn,
			Details: []ValidationErrorDetail{{
				Field:   fmt.Sprintf("messages[%d]", len(req.Messages)-1),
				Message: "must be a user message with content",
				Code:    "last_turn",
			}},
		}
	}

	if v.counter != nil && v.maxContextTokens > 0 {
		if err := v.counter.ValidateTokens(req, v.maxContextTokens); err != nil {
			return &Error{
				Message: MsgTooLong,
				Details: []ValidationErrorDetail{{
					Field:   "messages",
					Message: err.Error(),
					Code:    "token_limit_exceeded",
					Value:   fmt.Sprintf("%d", v.maxContextTokens),
				}},
			}
		}
	}

	return nil
}

func detail(fe validator.FieldError) ValidationErrorDetail {
	// Namespace is "Request.messages[1].role"; drop the type name.
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}

	var msg string
	switch fe.Tag() {
	case "required":
		msg = "is required"
	case "oneof":
		msg = "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "max":
		msg = "must be at most " + fe.Param() + " characters"
	case "min":
		msg = "must contain at least " + fe.Param() + " item"
	default:
		msg = "failed " + fe.Tag() + " validation"
	}

	return ValidationErrorDetail{
		Field:   field,
		Message: msg,
		Code:    fe.Tag() + "_validation_failed",
		Value:   fmt.Sprintf("%v", fe.Value()),
	}
}
