package processing

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/teilomillet/studyhall/errors"
	"github.com/teilomillet/studyhall/formatter"
	"github.com/teilomillet/studyhall/server/metrics"
	"github.com/teilomillet/studyhall/server/provider"
	"github.com/teilomillet/studyhall/subject"
)

// Messages returned to clients for rejected or failed turns.
const (
	MsgNoMessages    = "Invalid request: messages must be a non-empty array"
	MsgBadLastTurn   = "Invalid request: the last message must be a non-empty user message"
	MsgServiceFailed = "Model service error"
)

// Processor answers one user turn with exactly one model call. It holds no
// per-request state and is safe for concurrent use.
type Processor struct {
	generator provider.Generator
	catalog   *subject.Catalog
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// NewProcessor creates a processor. logger and m may be nil.
func NewProcessor(generator provider.Generator, catalog *subject.Catalog, logger *zap.Logger, m *metrics.Metrics) (*Processor, error) {
	if generator == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("subject catalog is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		generator: generator,
		catalog:   catalog,
		logger:    logger,
		metrics:   m,
	}, nil
}

// Catalog returns the subjects the processor resolves against.
func (p *Processor) Catalog() *subject.Catalog {
	return p.catalog
}

// Generator returns the model the processor calls.
func (p *Processor) Generator() provider.Generator {
	return p.generator
}

// Reply validates the turn, calls the model once and wraps the answer.
// Errors are *errors.TutorError values without a request ID.
func (p *Processor) Reply(ctx context.Context, req *Request) (*Reply, error) {
	if req == nil || len(req.Messages) == 0 {
		return nil, errors.NewValidationError("", MsgNoMessages)
	}
	last := req.Messages[len(req.Messages)-1]
	if last.Role != RoleUser || strings.TrimSpace(last.Content) == "" {
		return nil, errors.NewValidationError("", MsgBadLastTurn)
	}

	profile := p.catalog.Resolve(req.Subject)

	history, newMessage, err := BuildHistory(req.Messages, profile.Prompt)
	if err != nil {
		return nil, errors.NewValidationError("", MsgNoMessages)
	}
	prompt := provider.NewPrompt(append(history, Turn{Role: RoleUser, Content: newMessage})...)

	p.logger.Debug("sending turn",
		zap.String("subject", profile.Key),
		zap.Int("messages", len(req.Messages)),
		zap.Int("replayed", len(history)-1),
	)

	text, err := p.generator.Generate(ctx, prompt)
	if err != nil {
		return nil, errors.NewServiceError("", MsgServiceFailed, err)
	}

	reply := &Reply{Role: RoleAssistant, Content: text, Format: FormatPlain}
	if profile.Format.Formatted() {
		markup, err := render(text, profile.Format)
		if err != nil {
			return nil, errors.NewFormattingError("", err)
		}
		reply.Content = markup
		reply.Format = FormatFormatted
	}

	if p.metrics != nil {
		key := profile.Key
		if key == "" {
			key = "default"
		}
		p.metrics.RepliesTotal.WithLabelValues(key, reply.Format).Inc()
	}

	return reply, nil
}

// render converts model text into sanitized markup for mode.
func render(text string, mode subject.FormatMode) (markup string, err error) {
	if !utf8.ValidString(text) {
		return "", fmt.Errorf("model output is not valid UTF-8")
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("formatter panic: %v", r)
		}
	}()

	profile := formatter.Basic
	if mode == subject.FormatRich {
		profile = formatter.Rich
	}
	return formatter.Render(text, profile), nil
}
