// Package provider connects the server to a generative-language service.
//
// Every backend is exposed as a Generator: one prompt in, one text out, one
// outbound call per invocation. Gemini is spoken to directly over its REST
// API; every other provider goes through gollm.
package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/teilomillet/gollm"
	"github.com/teilomillet/gollm/llm"
	"go.uber.org/zap"

	"github.com/teilomillet/studyhall/config"
)

// Generator issues a single blocking call to a language model.
// gollm.LLM satisfies it.
type Generator interface {
	Generate(ctx context.Context, prompt *gollm.Prompt, opts ...llm.GenerateOption) (string, error)
	GetProvider() string
	GetModel() string
}

// Role names used in prompts. The system prompt travels as a user turn.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// New builds the Generator selected by cfg.
func New(cfg config.LLMConfig, logger *zap.Logger) (Generator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch strings.ToLower(cfg.Provider) {
	case "gemini", "google":
		return NewGeminiClient(GeminiConfig{
			APIKey:   cfg.APIKey,
			Model:    cfg.Model,
			Endpoint: cfg.Endpoint,
			Options:  cfg.Options,
		}), nil
	case "":
		return nil, ErrNoProvider
	}

	opts := []gollm.ConfigOption{
		gollm.SetProvider(cfg.Provider),
		gollm.SetModel(cfg.Model),
	}
	if cfg.APIKey != "" {
		opts = append(opts, gollm.SetAPIKey(cfg.APIKey))
	}

	client, err := gollm.NewLLM(opts...)
	if err != nil {
		return nil, fmt.Errorf("create %s client: %w", cfg.Provider, err)
	}

	if cfg.Endpoint != "" {
		if strings.EqualFold(cfg.Provider, "ollama") {
			if err := client.SetOllamaEndpoint(cfg.Endpoint); err != nil {
				return nil, fmt.Errorf("set ollama endpoint: %w", err)
			}
		} else {
			client.SetEndpoint(cfg.Endpoint)
		}
	}
	for key, value := range cfg.Options {
		client.SetOption(key, value)
	}

	logger.Info("LLM client created",
		zap.String("provider", client.GetProvider()),
		zap.String("model", client.GetModel()),
	)

	return client, nil
}

// NewPrompt builds a prompt from alternating role/content turns.
func NewPrompt(messages ...gollm.PromptMessage) *gollm.Prompt {
	return &gollm.Prompt{Messages: messages}
}
