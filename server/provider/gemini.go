package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/teilomillet/gollm"
	"github.com/teilomillet/gollm/llm"
)

// DefaultGeminiEndpoint is the public Generative Language API.
const DefaultGeminiEndpoint = "https://generativelanguage.googleapis.com/v1beta"

// GeminiConfig configures a GeminiClient.
type GeminiConfig struct {
	APIKey   string
	Model    string
	Endpoint string
	// Options maps temperature, top_p, top_k and max_tokens onto the
	// request's generationConfig.
	Options map[string]interface{}

	// HTTPClient defaults to a client without its own timeout; the
	// caller's context bounds each call.
	HTTPClient *http.Client
}

// GeminiClient calls the generateContent endpoint.
type GeminiClient struct {
	cfg    GeminiConfig
	client *http.Client
}

// NewGeminiClient returns a client for cfg.
func NewGeminiClient(cfg GeminiConfig) *GeminiClient {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultGeminiEndpoint
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &GeminiClient{cfg: cfg, client: client}
}

func (g *GeminiClient) GetProvider() string { return "gemini" }
func (g *GeminiClient) GetModel() string    { return g.cfg.Model }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig map[string]interface{} `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

type geminiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Generate sends the whole prompt as one generateContent call. Assistant
// turns are sent with the service's "model" role; everything else is "user".
func (g *GeminiClient) Generate(ctx context.Context, prompt *gollm.Prompt, _ ...llm.GenerateOption) (string, error) {
	if g.cfg.APIKey == "" {
		return "", ErrMissingAPIKey
	}
	if prompt == nil || len(prompt.Messages) == 0 {
		return "", ErrEmptyPrompt
	}

	body, err := json.Marshal(g.buildRequest(prompt))
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		g.cfg.Endpoint, url.PathEscape(g.cfg.Model), url.QueryEscape(g.cfg.APIKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", redactKey(err, g.cfg.APIKey)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		var ge geminiError
		if json.Unmarshal(raw, &ge) == nil && ge.Error.Message != "" {
			apiErr.Message = ge.Error.Message
			apiErr.Status = ge.Error.Status
		}
		return "", apiErr
	}

	var result geminiResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	if len(result.Candidates) == 0 {
		if result.PromptFeedback.BlockReason != "" {
			return "", fmt.Errorf("%w: blocked (%s)", ErrNoCandidates, result.PromptFeedback.BlockReason)
		}
		return "", ErrNoCandidates
	}

	var sb strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String(), nil
}

func (g *GeminiClient) buildRequest(prompt *gollm.Prompt) geminiRequest {
	req := geminiRequest{Contents: make([]geminiContent, 0, len(prompt.Messages))}
	for _, m := range prompt.Messages {
		role := RoleUser
		if m.Role == RoleAssistant {
			role = "model"
		}
		req.Contents = append(req.Contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: m.Content}},
		})
	}

	gen := make(map[string]interface{})
	for key, value := range g.cfg.Options {
		switch key {
		case "temperature":
			gen["temperature"] = value
		case "top_p":
			gen["topP"] = value
		case "top_k":
			gen["topK"] = value
		case "max_tokens":
			gen["maxOutputTokens"] = value
		}
	}
	if len(gen) > 0 {
		req.GenerationConfig = gen
	}
	return req
}

// redactKey keeps the credential out of transport errors, which quote the
// request URL.
func redactKey(err error, key string) error {
	var uerr *url.Error
	if key != "" && errors.As(err, &uerr) {
		uerr.URL = strings.ReplaceAll(uerr.URL, url.QueryEscape(key), "REDACTED")
	}
	return err
}
