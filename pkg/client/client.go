// Package client talks to a studyhall server.
//
// It mirrors what the browser client does: keep the conversation, post it
// on every turn and render the reply.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/teilomillet/studyhall/subject"
)

// Roles and formats used on the wire.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	FormatPlain     = "plain"
	FormatFormatted = "formatted"
)

// maxErrorBody bounds how much of an unparseable error body is kept.
const maxErrorBody = 512

// Message is one conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Format  string `json:"format,omitempty"`
}

// ProbeResult is the answer of the model diagnostic.
type ProbeResult struct {
	Success  bool   `json:"success"`
	Model    string `json:"model,omitempty"`
	Response string `json:"response,omitempty"`
	Error    string `json:"error,omitempty"`
	Details  string `json:"details,omitempty"`
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int    `json:"-"`
	Type       string `json:"type,omitempty"`
	Message    string `json:"error"`
	Details    string `json:"details,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
	if e.Details != "" {
		msg += " (" + e.Details + ")"
	}
	return msg
}

// Client posts conversations to a server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type chatRequest struct {
	Messages []Message `json:"messages"`
	Subject  string    `json:"subject,omitempty"`
}

// Send posts the whole conversation and returns the assistant reply.
func (c *Client) Send(ctx context.Context, messages []Message, subjectKey string) (Message, error) {
	body, err := json.Marshal(chatRequest{Messages: messages, Subject: subjectKey})
	if err != nil {
		return Message{}, fmt.Errorf("encode request: %w", err)
	}

	data, err := c.do(ctx, http.MethodPost, "/chat", body)
	if err != nil {
		return Message{}, err
	}
	return decodeReply(data)
}

// decodeReply accepts both {"message": {...}} and a bare message.
func decodeReply(data []byte) (Message, error) {
	var wrapped struct {
		Message *Message `json:"message"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.Message != nil {
		return normalize(*wrapped.Message), nil
	}

	var bare Message
	if err := json.Unmarshal(data, &bare); err != nil {
		return Message{}, fmt.Errorf("decode reply: %w", err)
	}
	if bare.Role == "" && bare.Content == "" {
		return Message{}, fmt.Errorf("decode reply: no message in response")
	}
	return normalize(bare), nil
}

func normalize(m Message) Message {
	if m.Role == "" {
		m.Role = RoleAssistant
	}
	if m.Format == "" {
		m.Format = FormatPlain
	}
	return m
}

// Subjects lists the subjects the server offers.
func (c *Client) Subjects(ctx context.Context) ([]subject.Profile, error) {
	data, err := c.do(ctx, http.MethodGet, "/subjects", nil)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Subjects []subject.Profile `json:"subjects"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode subjects: %w", err)
	}
	return resp.Subjects, nil
}

// TestModels runs the server's model diagnostic. A failed probe returns
// the result together with an *APIError.
func (c *Client) TestModels(ctx context.Context) (*ProbeResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/test-models", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var result ProbeResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, apiError(resp.StatusCode, data)
	}
	if !result.Success || resp.StatusCode >= 300 {
		return &result, &APIError{StatusCode: resp.StatusCode, Message: result.Error, Details: result.Details}
	}
	return &result, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apiError(resp.StatusCode, data)
	}
	return data, nil
}

func apiError(status int, data []byte) *APIError {
	e := &APIError{}
	if err := json.Unmarshal(data, e); err != nil || e.Message == "" {
		e.Message = http.StatusText(status)
		text := strings.TrimSpace(string(data))
		if len(text) > maxErrorBody {
			text = text[:maxErrorBody]
		}
		e.Details = text
	}
	e.StatusCode = status
	return e
}
