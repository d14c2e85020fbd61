package errors

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"
)

// ErrorHandler recovers panics from next, logs them with a stack trace and
// answers with an internal error.
func ErrorHandler(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					requestID := w.Header().Get("X-Request-ID")
					logger.Error("panic recovered",
						zap.Any("error", rec),
						zap.ByteString("stacktrace", debug.Stack()),
						zap.String("request_id", requestID),
					)
					WriteError(w, NewInternalError(requestID, fmt.Errorf("panic: %v", rec)))
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// LogError logs an error with its context
func LogError(logger *zap.Logger, err error, requestID string) {
	var tutorErr *TutorError
	if errors.As(err, &tutorErr) {
		logger.Error("request error",
			zap.String("error_type", string(tutorErr.Type)),
			zap.String("message", tutorErr.Message),
			zap.String("details", tutorErr.Details),
			zap.Int("code", tutorErr.Code),
			zap.String("request_id", requestID),
		)
		return
	}
	logger.Error("unexpected error",
		zap.Error(err),
		zap.String("request_id", requestID),
	)
}

// As is a wrapper around errors.As so callers importing this package do not
// also need the standard library package under another name.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
