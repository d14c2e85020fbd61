// Package config provides configuration management for the studyhall server.
// Configuration is read once at startup from a YAML or TOML file, overlaid
// with a small environment surface, validated, and never changed afterwards.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/teilomillet/studyhall/subject"
)

// Environment variables that override file values.
const (
	EnvAPIKey      = "GOOGLE_API_KEY"
	EnvPort        = "PORT"
	EnvFrontendURL = "FRONTEND_URL"
)

// Config represents the complete server configuration.
type Config struct {
	Server         ServerConfig         `yaml:"server" toml:"server"`
	LLM            LLMConfig            `yaml:"llm" toml:"llm"`
	Subjects       []SubjectConfig      `yaml:"subjects" toml:"subjects"`
	Logging        LoggingConfig        `yaml:"logging" toml:"logging"`
	Routes         []RouteConfig        `yaml:"routes" toml:"routes"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit" toml:"rate_limit"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker" toml:"circuit_breaker"`
	Validation     ValidationConfig     `yaml:"validation" toml:"validation"`
}

// ServerConfig holds settings for the HTTP listener.
type ServerConfig struct {
	// Port specifies the HTTP server port (default: 5000)
	Port int `yaml:"port" toml:"port"`

	// ReadTimeout is the maximum duration for reading the entire request,
	// including the body (default: 30s)
	ReadTimeout time.Duration `yaml:"read_timeout" toml:"read_timeout"`

	// WriteTimeout bounds the whole response, which includes the model call
	// (default: 120s)
	WriteTimeout time.Duration `yaml:"write_timeout" toml:"write_timeout"`

	// MaxHeaderBytes controls the maximum number of bytes the server will
	// read parsing the request header (default: 1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes" toml:"max_header_bytes"`

	// MaxBodyBytes caps the size of a /chat request body (default: 1MB)
	MaxBodyBytes int64 `yaml:"max_body_bytes" toml:"max_body_bytes"`

	// ShutdownTimeout specifies how long to wait for in-flight requests
	// on shutdown (default: 30s)
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" toml:"shutdown_timeout"`

	// AllowedOrigin is the single browser origin allowed by CORS
	// (default: http://localhost:3000)
	AllowedOrigin string `yaml:"allowed_origin" toml:"allowed_origin"`
}

// LLMConfig selects the generative-language service.
type LLMConfig struct {
	// Provider is "gemini" or any provider gollm supports
	// ("openai", "anthropic", "ollama", ...)
	Provider string `yaml:"provider" toml:"provider"`

	// Model is the model identifier (default: gemini-1.5-pro)
	Model string `yaml:"model" toml:"model"`

	// APIKey is the service credential. Prefer GOOGLE_API_KEY or ${VAR}
	// expansion over literal keys.
	APIKey string `yaml:"api_key" toml:"api_key"`

	// Endpoint overrides the service base URL
	Endpoint string `yaml:"endpoint" toml:"endpoint"`

	// Options contains provider-specific generation parameters
	// (temperature, max_tokens, ...)
	Options map[string]interface{} `yaml:"options" toml:"options"`
}

// SubjectConfig overrides a builtin subject or adds a new one. Empty
// fields keep the builtin value.
type SubjectConfig struct {
	Key         string `yaml:"key" toml:"key"`
	Name        string `yaml:"name" toml:"name"`
	Description string `yaml:"description" toml:"description"`
	Icon        string `yaml:"icon" toml:"icon"`
	Prompt      string `yaml:"prompt" toml:"prompt"`
	Format      string `yaml:"format" toml:"format"`
}

// LoggingConfig holds logging-specific configuration.
type LoggingConfig struct {
	// Level sets logging verbosity: debug, info, warn, error
	Level string `yaml:"level" toml:"level"`

	// Format specifies log output format: json or text
	Format string `yaml:"format" toml:"format"`
}

// RouteConfig binds a path to one of the server's handlers.
type RouteConfig struct {
	// Path is the URL path to match
	Path string `yaml:"path" toml:"path"`

	// Handler is one of: chat, test-models, subjects, health, metrics
	Handler string `yaml:"handler" toml:"handler"`

	// Methods specifies the allowed HTTP methods for this route
	Methods []string `yaml:"methods" toml:"methods"`

	// Middleware specifies the route-specific middleware (rate-limit)
	Middleware []string `yaml:"middleware,omitempty" toml:"middleware"`
}

// RateLimitConfig configures the per-client token bucket.
type RateLimitConfig struct {
	Enabled bool `yaml:"enabled" toml:"enabled"`

	// RequestsPerSecond is the sustained rate per client IP
	RequestsPerSecond float64 `yaml:"requests_per_second" toml:"requests_per_second"`

	// Burst is the bucket size
	Burst int `yaml:"burst" toml:"burst"`
}

// CircuitBreakerConfig configures fail-fast behavior when the model service
// keeps failing. An open breaker rejects turns immediately; nothing is retried.
type CircuitBreakerConfig struct {
	Enabled bool `yaml:"enabled" toml:"enabled"`

	// MaxRequests is maximum number of requests allowed to pass through when in half-open state
	MaxRequests uint32 `yaml:"max_requests" toml:"max_requests"`

	// Interval is the cyclic period of the closed state for the circuit breaker
	Interval time.Duration `yaml:"interval" toml:"interval"`

	// Timeout is the period of the open state until it becomes half-open
	Timeout time.Duration `yaml:"timeout" toml:"timeout"`

	// FailureThreshold is the number of consecutive failures needed to trip the circuit
	FailureThreshold uint32 `yaml:"failure_threshold" toml:"failure_threshold"`
}

// ValidationConfig configures request validation beyond the wire shape.
type ValidationConfig struct {
	// MaxContextTokens caps the token count of a conversation.
	// 0 disables counting.
	MaxContextTokens int `yaml:"max_context_tokens" toml:"max_context_tokens"`

	// TokenizerModel picks the tiktoken encoding used for counting
	TokenizerModel string `yaml:"tokenizer_model" toml:"tokenizer_model"`
}

// DefaultConfig returns the configuration used when no file is given. It
// matches the behavior of a bare deployment: Gemini, port 5000 and a local
// frontend on port 3000.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            5000,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second,
			MaxHeaderBytes:  1 << 20,
			MaxBodyBytes:    1 << 20,
			ShutdownTimeout: 30 * time.Second,
			AllowedOrigin:   "http://localhost:3000",
		},

		LLM: LLMConfig{
			Provider: "gemini",
			Model:    "gemini-1.5-pro",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},

		Routes: DefaultRoutes(),

		RateLimit: RateLimitConfig{
			Enabled:           false,
			RequestsPerSecond: 1,
			Burst:             5,
		},

		CircuitBreaker: CircuitBreakerConfig{
			Enabled:          true,
			MaxRequests:      1,
			Interval:         60 * time.Second,
			Timeout:          30 * time.Second,
			FailureThreshold: 5,
		},

		Validation: ValidationConfig{
			MaxContextTokens: 0,
			TokenizerModel:   "gpt-4",
		},
	}
}

// DefaultRoutes returns the stock route table.
func DefaultRoutes() []RouteConfig {
	return []RouteConfig{
		{Path: "/chat", Handler: "chat", Methods: []string{"POST"}, Middleware: []string{"rate-limit"}},
		{Path: "/test-models", Handler: "test-models", Methods: []string{"GET"}},
		{Path: "/subjects", Handler: "subjects", Methods: []string{"GET"}},
		{Path: "/health", Handler: "health", Methods: []string{"GET"}},
		{Path: "/metrics", Handler: "metrics", Methods: []string{"GET"}},
	}
}

// Format is a configuration file syntax.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatOf picks the syntax from a file extension. Anything that is not
// .toml is read as YAML.
func FormatOf(filename string) Format {
	if strings.EqualFold(filepath.Ext(filename), ".toml") {
		return FormatTOML
	}
	return FormatYAML
}

// LoadFile loads configuration from a YAML or TOML file.
func LoadFile(filename string) (*Config, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	return Decode(f, FormatOf(filename))
}

// Load loads YAML configuration from an io.Reader.
func Load(r io.Reader) (*Config, error) {
	return Decode(r, FormatYAML)
}

// FromEnv builds a configuration from defaults and the environment only.
func FromEnv() (*Config, error) {
	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Decode reads configuration in the given format on top of DefaultConfig,
// applies environment overrides and validates the result.
func Decode(r io.Reader, format Format) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := expandEnvVars(string(data))

	cfg := DefaultConfig()
	switch format {
	case FormatTOML:
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	default:
		// An empty document is valid and leaves the defaults alone.
		if strings.TrimSpace(expanded) != "" {
			if err := yaml.NewDecoder(strings.NewReader(expanded)).Decode(cfg); err != nil {
				return nil, fmt.Errorf("decode config: %w", err)
			}
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// expandEnvVars resolves ${VAR} and ${VAR:-default} references.
// Unset variables without a default expand to the empty string.
func expandEnvVars(s string) string {
	return os.Expand(s, func(key string) string {
		if i := strings.Index(key, ":-"); i >= 0 {
			if val := os.Getenv(key[:i]); val != "" {
				return val
			}
			return key[i+2:]
		}
		return os.Getenv(key)
	})
}

// ApplyEnv overlays GOOGLE_API_KEY, PORT and FRONTEND_URL. Unset or empty
// variables leave the current values alone.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv(EnvAPIKey); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvPort, v, err)
		}
		c.Server.Port = port
	}
	if v := os.Getenv(EnvFrontendURL); v != "" {
		c.Server.AllowedOrigin = v
	}
	return nil
}

// Catalog returns the builtin subjects merged with the configured ones.
func (c *Config) Catalog() (*subject.Catalog, error) {
	overrides := make([]subject.Profile, 0, len(c.Subjects))
	for _, s := range c.Subjects {
		overrides = append(overrides, subject.Profile{
			Key:         s.Key,
			Name:        s.Name,
			Description: s.Description,
			Icon:        s.Icon,
			Prompt:      s.Prompt,
			Format:      subject.FormatMode(s.Format),
		})
	}
	return subject.Builtin().Merge(overrides...)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Server validation
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Server.ReadTimeout < 0 {
		return fmt.Errorf("negative read timeout: %v", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout < 0 {
		return fmt.Errorf("negative write timeout: %v", c.Server.WriteTimeout)
	}
	if c.Server.MaxHeaderBytes < 0 {
		return fmt.Errorf("negative max header bytes: %d", c.Server.MaxHeaderBytes)
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("max body bytes must be positive: %d", c.Server.MaxBodyBytes)
	}
	if c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("negative shutdown timeout: %v", c.Server.ShutdownTimeout)
	}
	if c.Server.AllowedOrigin == "" {
		return fmt.Errorf("empty allowed origin")
	}

	// LLM validation
	if c.LLM.Provider == "" {
		return fmt.Errorf("empty LLM provider")
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("empty LLM model")
	}

	// Subjects are checked by building the catalog they produce
	if _, err := c.Catalog(); err != nil {
		return fmt.Errorf("invalid subjects: %w", err)
	}

	// Logging validation
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	// Route validation
	for i, route := range c.Routes {
		if route.Path == "" {
			return fmt.Errorf("empty path in route %d", i)
		}
		if route.Handler == "" {
			return fmt.Errorf("empty handler in route %d", i)
		}
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate limit requests per second must be positive: %v", c.RateLimit.RequestsPerSecond)
		}
		if c.RateLimit.Burst <= 0 {
			return fmt.Errorf("rate limit burst must be positive: %d", c.RateLimit.Burst)
		}
	}

	if c.CircuitBreaker.Enabled && c.CircuitBreaker.FailureThreshold == 0 {
		return fmt.Errorf("circuit breaker failure threshold must be positive")
	}

	if c.Validation.MaxContextTokens < 0 {
		return fmt.Errorf("negative max context tokens: %d", c.Validation.MaxContextTokens)
	}
	if c.Validation.MaxContextTokens > 0 && c.Validation.TokenizerModel == "" {
		return fmt.Errorf("token counting enabled but no tokenizer model set")
	}

	return nil
}
