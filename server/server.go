// Package server wires configuration, the model client and the HTTP stack
// into a running tutoring server.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/teilomillet/studyhall/config"
	"github.com/teilomillet/studyhall/server/circuitbreaker"
	"github.com/teilomillet/studyhall/server/handlers"
	"github.com/teilomillet/studyhall/server/metrics"
	"github.com/teilomillet/studyhall/server/middleware"
	"github.com/teilomillet/studyhall/server/processing"
	"github.com/teilomillet/studyhall/server/provider"
	"github.com/teilomillet/studyhall/server/routing"
	"github.com/teilomillet/studyhall/server/validation"
)

// Handler names accepted in route configuration.
const (
	HandlerChat       = "chat"
	HandlerTestModels = "test-models"
	HandlerSubjects   = "subjects"
	HandlerHealth     = "health"
	HandlerMetrics    = "metrics"

	MiddlewareRateLimit = "rate-limit"
)

// Server is the HTTP server for the tutoring API.
type Server struct {
	httpServer *http.Server
	cfg        *config.Config
	logger     *zap.Logger
	metrics    *metrics.Metrics
	generator  provider.Generator
	processor  *processing.Processor
}

// Option customizes a Server.
type Option func(*Server)

// WithGenerator replaces the configured model client. Instrumentation and
// the circuit breaker still wrap it.
func WithGenerator(g provider.Generator) Option {
	return func(s *Server) { s.generator = g }
}

// WithMetrics uses m instead of a fresh registry.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// NewServer builds the server from cfg. cfg must already be validated.
func NewServer(cfg *config.Config, logger *zap.Logger, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.NewMetrics()
	}

	if s.generator == nil {
		g, err := provider.New(cfg.LLM, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create model client: %w", err)
		}
		s.generator = g
	}

	var gen provider.Generator = provider.Instrument(s.generator, s.metrics, logger)
	if cfg.CircuitBreaker.Enabled {
		gen = circuitbreaker.New(gen, circuitbreaker.Config{
			FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
			MaxRequests:      cfg.CircuitBreaker.MaxRequests,
			Interval:         cfg.CircuitBreaker.Interval,
			Timeout:          cfg.CircuitBreaker.Timeout,
		}, logger, s.metrics)
	}
	s.generator = gen

	catalog, err := cfg.Catalog()
	if err != nil {
		return nil, fmt.Errorf("invalid subjects: %w", err)
	}

	s.processor, err = processing.NewProcessor(gen, catalog, logger, s.metrics)
	if err != nil {
		return nil, err
	}

	validator, err := newValidator(cfg.Validation)
	if err != nil {
		return nil, err
	}

	handlerMap := map[string]http.Handler{
		HandlerChat:       handlers.NewChatHandler(s.processor, validator, logger, cfg.Server.MaxBodyBytes),
		HandlerTestModels: handlers.NewTestModelsHandler(gen, logger),
		HandlerSubjects:   handlers.SubjectsHandler(catalog, logger),
		HandlerHealth:     http.HandlerFunc(handlers.HealthHandler),
		HandlerMetrics:    s.metrics.Handler(),
	}

	mw := map[string]routing.Middleware{
		MiddlewareRateLimit: func(next http.Handler) http.Handler { return next },
	}
	if cfg.RateLimit.Enabled {
		mw[MiddlewareRateLimit] = middleware.NewRateLimiter(cfg.RateLimit, s.metrics).Handler
	}

	router := routing.NewRouter(cfg, handlerMap, mw, s.metrics, logger)

	s.httpServer = &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        router,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	return s, nil
}

func newValidator(cfg config.ValidationConfig) (*validation.Validator, error) {
	if cfg.MaxContextTokens <= 0 {
		return validation.New(nil, 0), nil
	}
	counter, err := validation.NewTokenCounter(cfg.TokenizerModel)
	if err != nil {
		return nil, err
	}
	return validation.New(counter, cfg.MaxContextTokens), nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Generator returns the fully wrapped model client.
func (s *Server) Generator() provider.Generator {
	return s.generator
}

// Metrics returns the server's metrics.
func (s *Server) Metrics() *metrics.Metrics {
	return s.metrics
}

// Start listens on the configured port and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then shuts down
// gracefully within the configured shutdown timeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("Server started",
			zap.String("address", ln.Addr().String()),
			zap.String("provider", s.generator.GetProvider()),
			zap.String("model", s.generator.GetModel()),
		)
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		timeout := s.cfg.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		s.logger.Info("Shutting down server", zap.Duration("timeout", timeout))
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("error during server shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// NewLogger builds a zap logger from the logging configuration. The json
// format uses the production encoder; text uses the console encoder.
func NewLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(level)
	if cfg.Format == "text" {
		zcfg.Encoding = "console"
		zcfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	return zcfg.Build()
}
