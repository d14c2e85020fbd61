package handlers

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teilomillet/gollm"
	"go.uber.org/zap/zaptest"

	"github.com/teilomillet/studyhall/server/middleware"
	"github.com/teilomillet/studyhall/server/mocks"
	"github.com/teilomillet/studyhall/server/processing"
	"github.com/teilomillet/studyhall/server/validation"
	"github.com/teilomillet/studyhall/subject"
)

func newChatHandler(t *testing.T, gen *mocks.MockLLM, maxBody int64) http.Handler {
	t.Helper()
	p, err := processing.NewProcessor(gen, subject.Builtin(), zaptest.NewLogger(t), nil)
	require.NoError(t, err)
	return middleware.RequestID(NewChatHandler(p, validation.New(nil, 0), zaptest.NewLogger(t), maxBody))
}

func post(h http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func TestChat_Success(t *testing.T) {
	gen := mocks.Reply("2 + 2 = 4")
	h := newChatHandler(t, gen, 1<<20)

	rec := post(h, `{"subject":"math","messages":[
		{"role":"assistant","content":"Welcome"},
		{"role":"user","content":"I need help with Mathematics"},
		{"role":"assistant","content":"Sure"},
		{"role":"user","content":"What is 2 + 2?"}
	]}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Message)
	assert.Equal(t, processing.Reply{Role: "assistant", Content: "2 + 2 = 4", Format: "plain"}, *resp.Message)

	require.Equal(t, 1, gen.Calls())
	msgs := gen.LastPrompt().Messages
	assert.Equal(t, gollm.PromptMessage{Role: "user", Content: "What is 2 + 2?"}, msgs[len(msgs)-1])
	assert.Len(t, msgs, 4)
}

func TestChat_FormattedSubject(t *testing.T) {
	h := newChatHandler(t, mocks.Reply("**Cells** are small."), 0)

	rec := post(h, `{"subject":"science","messages":[{"role":"user","content":"cells?"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, processing.FormatFormatted, resp.Message.Format)
	assert.Contains(t, resp.Message.Content, "<strong>Cells</strong>")
}

func TestChat_InputErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		msg    string
	}{
		{"not json", `hello`, http.StatusBadRequest, MsgMalformed},
		{"messages not an array", `{"messages":"hi"}`, http.StatusBadRequest, MsgNotAnArray},
		{"messages is an object", `{"messages":{"role":"user"}}`, http.StatusBadRequest, MsgNotAnArray},
		{"body is an array", `[1,2]`, http.StatusBadRequest, MsgMalformed},
		{"missing messages", `{"subject":"math"}`, http.StatusBadRequest, processing.MsgNoMessages},
		{"empty messages", `{"messages":[]}`, http.StatusBadRequest, processing.MsgNoMessages},
		{"bad role", `{"messages":[{"role":"system","content":"x"}]}`, http.StatusBadRequest, validation.MsgInvalidFields},
		{"last turn from assistant", `{"messages":[{"role":"user","content":"a"},{"role":"assistant","content":"b"}]}`, http.StatusBadRequest, processing.MsgBadLastTurn},
		{"too large", `{"messages":[{"role":"user","content":"` + strings.Repeat("x", 200) + `"}]}`, http.StatusRequestEntityTooLarge, MsgBodyTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := mocks.Reply("never")
			h := newChatHandler(t, gen, 128)

			rec := post(h, tt.body)
			assert.Equal(t, tt.status, rec.Code)

			body := decode(t, rec)
			assert.Equal(t, tt.msg, body["error"])
			assert.Equal(t, "invalid_request", body["type"])
			assert.Equal(t, rec.Header().Get(middleware.RequestIDHeader), body["request_id"])
			assert.Zero(t, gen.Calls())
		})
	}
}

func TestChat_ValidationDetails(t *testing.T) {
	h := newChatHandler(t, mocks.Reply("never"), 0)

	rec := post(h, `{"messages":[{"role":"user","content":"x","format":"html"}]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec)["details"], "messages[0].format")
}

func TestChat_ServiceError(t *testing.T) {
	gen := mocks.Fail(stderrors.New("model unavailable"))
	h := newChatHandler(t, gen, 0)

	rec := post(h, `{"messages":[{"role":"user","content":"hi"}]}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, processing.MsgServiceFailed, body["error"])
	assert.Equal(t, "model unavailable", body["details"])
	assert.Equal(t, 1, gen.Calls())
}

func TestChat_WithoutValidator(t *testing.T) {
	p, err := processing.NewProcessor(mocks.Reply("x"), subject.Builtin(), nil, nil)
	require.NoError(t, err)
	h := NewChatHandler(p, nil, nil, 0)

	rec := post(h, `{"messages":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, processing.MsgNoMessages, decode(t, rec)["error"])
}

func TestTestModels(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		gen := mocks.NewMockLLMWithConfig("gemini", "gemini-1.5-pro", func(_ context.Context, p *gollm.Prompt) (string, error) {
			return "Hi there", nil
		})
		h := NewTestModelsHandler(gen, zaptest.NewLogger(t))

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test-models", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var res ProbeResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		assert.Equal(t, ProbeResult{Success: true, Model: "gemini-1.5-pro", Response: "Hi there"}, res)
		assert.Equal(t, []gollm.PromptMessage{{Role: "user", Content: ProbePrompt}}, gen.LastPrompt().Messages)
	})

	t.Run("failure", func(t *testing.T) {
		h := NewTestModelsHandler(mocks.Fail(stderrors.New("bad key")), zaptest.NewLogger(t))

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test-models", nil))

		require.Equal(t, http.StatusInternalServerError, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, processing.MsgServiceFailed, body["error"])
		assert.Equal(t, "bad key", body["details"])
	})
}

func TestSubjects(t *testing.T) {
	rec := httptest.NewRecorder()
	SubjectsHandler(subject.Builtin(), nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/subjects", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "prompt")

	var resp SubjectsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Subjects, subject.Builtin().Len())
	assert.Equal(t, "math", resp.Subjects[0].Key)
	assert.Equal(t, "Mathematics", resp.Subjects[0].Name)
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
