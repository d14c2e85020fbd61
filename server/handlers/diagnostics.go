package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/teilomillet/studyhall/server/middleware"
	"github.com/teilomillet/studyhall/server/processing"
	"github.com/teilomillet/studyhall/server/provider"
)

// ProbePrompt is the trivial prompt sent by the model diagnostic.
const ProbePrompt = "Hello"

// ProbeResult is the body of GET /test-models.
type ProbeResult struct {
	Success  bool   `json:"success"`
	Model    string `json:"model,omitempty"`
	Response string `json:"response,omitempty"`
	Error    string `json:"error,omitempty"`
	Details  string `json:"details,omitempty"`
}

// TestModelsHandler checks that the configured model answers at all.
type TestModelsHandler struct {
	generator provider.Generator
	logger    *zap.Logger
}

// NewTestModelsHandler creates the diagnostic handler.
func NewTestModelsHandler(generator provider.Generator, logger *zap.Logger) *TestModelsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TestModelsHandler{generator: generator, logger: logger}
}

func (h *TestModelsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With(zap.String("request_id", middleware.GetRequestID(r.Context())))

	prompt := provider.NewPrompt(processing.Turn{Role: provider.RoleUser, Content: ProbePrompt})
	text, err := h.generator.Generate(r.Context(), prompt)
	if err != nil {
		logger.Error("model test failed",
			zap.String("provider", h.generator.GetProvider()),
			zap.String("model", h.generator.GetModel()),
			zap.Error(err),
		)
		writeJSON(w, logger, http.StatusInternalServerError, ProbeResult{
			Success: false,
			Error:   processing.MsgServiceFailed,
			Details: err.Error(),
		})
		return
	}

	writeJSON(w, logger, http.StatusOK, ProbeResult{
		Success:  true,
		Model:    h.generator.GetModel(),
		Response: text,
	})
}
