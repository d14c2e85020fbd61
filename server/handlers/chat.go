// Package handlers provides the HTTP handlers for the tutoring server.
//
// Every error answer is a JSON errors.TutorError carrying the request ID,
// and every failed request is logged with that ID.
package handlers

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/teilomillet/studyhall/errors"
	"github.com/teilomillet/studyhall/server/middleware"
	"github.com/teilomillet/studyhall/server/processing"
	"github.com/teilomillet/studyhall/server/validation"
)

// Messages for bodies that cannot be decoded.
const (
	MsgNotAnArray   = "Invalid request: messages must be an array"
	MsgMalformed    = "Invalid request: body must be a JSON object"
	MsgBodyTooLarge = "Invalid request: body too large"
)

// ChatResponse wraps the assistant reply.
type ChatResponse struct {
	Message *processing.Reply `json:"message"`
}

// ChatHandler answers POST /chat.
type ChatHandler struct {
	processor    *processing.Processor
	validator    *validation.Validator
	logger       *zap.Logger
	maxBodyBytes int64
}

// NewChatHandler creates a chat handler. A nil validator falls back to the
// processor's own checks; maxBodyBytes <= 0 disables the body limit.
func NewChatHandler(p *processing.Processor, v *validation.Validator, logger *zap.Logger, maxBodyBytes int64) *ChatHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatHandler{
		processor:    p,
		validator:    v,
		logger:       logger,
		maxBodyBytes: maxBodyBytes,
	}
}

func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	logger := h.logger.With(zap.String("request_id", requestID))

	if h.maxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	}

	var req processing.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, logger, requestID, decodeError(err))
		return
	}

	if h.validator != nil {
		if err := h.validator.Validate(&req); err != nil {
			terr := errors.NewValidationError("", err.Error())
			var verr *validation.Error
			if stderrors.As(err, &verr) {
				terr.Message = verr.Message
				terr.Details = verr.Summary()
			}
			h.fail(w, logger, requestID, terr)
			return
		}
	}

	logger.Debug("chat turn",
		zap.String("subject", req.Subject),
		zap.Int("messages", len(req.Messages)),
	)

	reply, err := h.processor.Reply(r.Context(), &req)
	if err != nil {
		var terr *errors.TutorError
		if !stderrors.As(err, &terr) {
			terr = errors.NewInternalError("", err)
		}
		h.fail(w, logger, requestID, terr)
		return
	}

	writeJSON(w, logger, http.StatusOK, ChatResponse{Message: reply})
}

func (h *ChatHandler) fail(w http.ResponseWriter, logger *zap.Logger, requestID string, err *errors.TutorError) {
	err = err.WithRequestID(requestID)
	errors.LogError(logger, err, requestID)
	errors.WriteError(w, err)
}

func decodeError(err error) *errors.TutorError {
	var maxErr *http.MaxBytesError
	if stderrors.As(err, &maxErr) {
		return errors.NewError(errors.ValidationError, MsgBodyTooLarge, http.StatusRequestEntityTooLarge, "", err.Error(), err)
	}

	var typeErr *json.UnmarshalTypeError
	if stderrors.As(err, &typeErr) && typeErr.Field == "messages" {
		return errors.NewError(errors.ValidationError, MsgNotAnArray, http.StatusBadRequest, "", err.Error(), err)
	}

	return errors.NewError(errors.ValidationError, MsgMalformed, http.StatusBadRequest, "", err.Error(), err)
}

func writeJSON(w http.ResponseWriter, logger *zap.Logger, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", zap.Error(err))
	}
}
