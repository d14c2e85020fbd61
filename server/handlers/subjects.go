package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/teilomillet/studyhall/subject"
)

// SubjectsResponse lists the subjects a client can offer.
type SubjectsResponse struct {
	Subjects []subject.Profile `json:"subjects"`
}

// SubjectsHandler answers GET /subjects. Prompts are never exposed.
func SubjectsHandler(catalog *subject.Catalog, logger *zap.Logger) http.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, logger, http.StatusOK, SubjectsResponse{Subjects: catalog.Profiles()})
	}
}

// HealthHandler answers GET /health.
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}` + "\n"))
}
