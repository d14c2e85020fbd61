// Package circuitbreaker stops calling the model service while it keeps
// failing. It never retries: a rejected turn fails immediately and the
// caller sees the error.
package circuitbreaker

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"github.com/teilomillet/gollm"
	"github.com/teilomillet/gollm/llm"
	"go.uber.org/zap"

	"github.com/teilomillet/studyhall/server/metrics"
	"github.com/teilomillet/studyhall/server/provider"
)

// ErrCircuitOpen rejects a turn without calling the model.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Config holds configuration for the circuit breaker
type Config struct {
	Name             string
	FailureThreshold uint32        // Consecutive failures before opening the circuit
	MaxRequests      uint32        // Requests let through while half-open
	Interval         time.Duration // Closed-state counter reset period (0 never resets)
	Timeout          time.Duration // Open period before trying half-open
}

// Breaker guards a provider.Generator.
type Breaker struct {
	next    provider.Generator
	cb      *gobreaker.CircuitBreaker
	logger  *zap.Logger
	metrics *metrics.Metrics
	name    string
}

// New wraps next. A nil m disables the state gauge.
func New(next provider.Generator, cfg Config, logger *zap.Logger, m *metrics.Metrics) *Breaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Name == "" {
		cfg.Name = next.GetProvider()
	}
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}

	b := &Breaker{
		next:    next,
		logger:  logger,
		metrics: m,
		name:    cfg.Name,
	}

	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.setGauge(to)
			logger.Warn("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		// A caller that went away says nothing about the service.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	b.setGauge(gobreaker.StateClosed)

	return b
}

// Generate forwards to the wrapped generator unless the circuit is open.
func (b *Breaker) Generate(ctx context.Context, prompt *gollm.Prompt, opts ...llm.GenerateOption) (string, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Generate(ctx, prompt, opts...)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", ErrCircuitOpen
	}
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

func (b *Breaker) GetProvider() string { return b.next.GetProvider() }
func (b *Breaker) GetModel() string    { return b.next.GetModel() }

// State returns the current breaker state.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

func (b *Breaker) setGauge(s gobreaker.State) {
	if b.metrics != nil {
		b.metrics.BreakerState.WithLabelValues(b.name).Set(float64(s))
	}
}
