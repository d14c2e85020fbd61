package provider

import (
	"context"
	"errors"
	"time"

	"github.com/teilomillet/gollm"
	"github.com/teilomillet/gollm/llm"
	"go.uber.org/zap"

	"github.com/teilomillet/studyhall/server/metrics"
)

// Instrumented records latency and outcome of every call made through the
// wrapped Generator.
type Instrumented struct {
	Generator
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// Instrument wraps g. A nil m disables recording.
func Instrument(g Generator, m *metrics.Metrics, logger *zap.Logger) *Instrumented {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Instrumented{Generator: g, metrics: m, logger: logger}
}

// Generate implements Generator.
func (i *Instrumented) Generate(ctx context.Context, prompt *gollm.Prompt, opts ...llm.GenerateOption) (string, error) {
	start := time.Now()
	text, err := i.Generator.Generate(ctx, prompt, opts...)
	elapsed := time.Since(start)

	outcome := "success"
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		outcome = "canceled"
	default:
		outcome = "error"
	}

	if i.metrics != nil {
		provider := i.GetProvider()
		i.metrics.GenerationsTotal.WithLabelValues(provider, outcome).Inc()
		i.metrics.GenerationDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
	}

	messages := 0
	if prompt != nil {
		messages = len(prompt.Messages)
	}
	i.logger.Debug("generation finished",
		zap.String("provider", i.GetProvider()),
		zap.String("model", i.GetModel()),
		zap.String("outcome", outcome),
		zap.Duration("duration", elapsed),
		zap.Int("messages", messages),
	)

	return text, err
}
