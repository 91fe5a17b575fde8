package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	DefaultBaseURL             = "https://api.proxyapi.ru"
	DefaultModel               = "gpt-3.5-turbo"
	DefaultMaxTokens           = 1000
	DefaultTemperature         = 0.7
	DefaultTimeoutMS           = 30000
	DefaultMaxConcurrent       = 4
	DefaultConfidenceThreshold = 0.7
	DefaultGatewayHost         = "0.0.0.0"
	DefaultGatewayPort         = 18790
	DefaultWorkers             = 8
	DefaultCurrency            = "RUB"

	BackendOpenAI  = "openai"
	BackendFantasy = "fantasy"

	envConfigPath = "ROUTERBOT_CONFIG"
)

// Config is the root runtime configuration loaded from config.json and the environment.
type Config struct {
	Generation GenerationConfig `json:"generation"`
	Classifier ClassifierConfig `json:"classifier"`
	Channels   ChannelsConfig   `json:"channels"`
	Gateway    GatewayConfig    `json:"gateway"`
	Logging    LoggingConfig    `json:"logging,omitempty"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `json:"format,omitempty"`
	Level     string `json:"level,omitempty"`
	AddSource bool   `json:"add_source,omitempty"`
}

// GenerationConfig configures the remote text-generation endpoint.
type GenerationConfig struct {
	Enabled       *bool   `json:"enabled,omitempty"`
	Backend       string  `env:"ROUTERBOT_GENERATION_BACKEND" json:"backend"`
	APIKey        string  `env:"PROXYAPI_KEY"                 json:"api_key"`
	BaseURL       string  `env:"PROXYAPI_URL"                 json:"base_url"`
	Model         string  `env:"PROXYAPI_MODEL"               json:"model"`
	MaxTokens     int     `env:"PROXYAPI_MAX_TOKENS"          json:"max_tokens"`
	Temperature   *float64 `env:"PROXYAPI_TEMPERATURE"        json:"temperature,omitempty"`
	TimeoutMS     int     `env:"PROXYAPI_TIMEOUT"             json:"timeout_ms"`
	MaxConcurrent int     `env:"ROUTERBOT_MAX_CONCURRENT"     json:"max_concurrent"`
	PriceTable    string  `env:"ROUTERBOT_PRICE_TABLE"        json:"price_table"`
	Currency      string  `json:"currency"`
}

// IsEnabled reports whether generation is switched on. It defaults to true.
func (g GenerationConfig) IsEnabled() bool {
	return g.Enabled == nil || *g.Enabled
}

// SamplingTemperature returns the configured temperature. An explicit 0 is kept.
func (g GenerationConfig) SamplingTemperature() float64 {
	if g.Temperature == nil {
		return DefaultTemperature
	}
	return *g.Temperature
}

// Timeout returns the per-call deadline.
func (g GenerationConfig) Timeout() time.Duration {
	return time.Duration(g.TimeoutMS) * time.Millisecond
}

// ClassifierConfig configures LLM-assisted intent classification.
type ClassifierConfig struct {
	Enabled             *bool   `json:"enabled,omitempty"`
	ConfidenceThreshold *float64 `env:"ROUTERBOT_CONFIDENCE_THRESHOLD" json:"confidence_threshold,omitempty"`
}

// Threshold returns the minimum confidence for a classified reply.
func (c ClassifierConfig) Threshold() float64 {
	if c.ConfidenceThreshold == nil {
		return DefaultConfidenceThreshold
	}
	return *c.ConfidenceThreshold
}

// IsEnabled reports whether LLM-assisted classification is switched on. It defaults to true.
func (c ClassifierConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// ChannelsConfig stores transport adapter settings.
type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
}

// TelegramConfig configures Telegram channel integration.
type TelegramConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `env:"TELEGRAM_BOT_TOKEN" json:"token"`
}

// GatewayConfig configures the status server and the dispatch worker pool.
type GatewayConfig struct {
	Host    string `json:"host"`
	Port    int    `env:"ROUTERBOT_GATEWAY_PORT" json:"port"`
	Workers int    `json:"workers"`
}

// ConfigurationError reports a missing or invalid setting. It is fatal at startup.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "configuration error: " + e.Reason
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// Invalid builds a ConfigurationError for field.
func Invalid(field, format string, args ...any) error {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsConfigurationError reports whether err carries a ConfigurationError.
func IsConfigurationError(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

// LoadConfig resolves config.json (optional), unmarshals it, applies environment
// overrides and defaults, and validates the result.
func LoadConfig() (*Config, error) {
	configPath, err := findConfigPath()
	if err != nil {
		return nil, err
	}

	var cfg Config
	if configPath != "" {
		content, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := json.Unmarshal(content, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyEnvOverrides injects env-driven settings on top of file config.
func applyEnvOverrides(cfg *Config) error {
	if cfg == nil {
		return nil
	}
	if err := env.Parse(cfg); err != nil {
		return &ConfigurationError{Reason: err.Error()}
	}

	cfg.Channels.Telegram.Token = strings.TrimSpace(cfg.Channels.Telegram.Token)
	if cfg.Channels.Telegram.Token != "" && os.Getenv("TELEGRAM_BOT_TOKEN") != "" {
		cfg.Channels.Telegram.Enabled = true
	}

	return nil
}

// ApplyDefaults fills unset values.
func (c *Config) ApplyDefaults() {
	g := &c.Generation
	g.Backend = strings.ToLower(strings.TrimSpace(g.Backend))
	if g.Backend == "" {
		g.Backend = BackendOpenAI
	}
	g.APIKey = strings.TrimSpace(g.APIKey)
	g.BaseURL = strings.TrimRight(strings.TrimSpace(g.BaseURL), "/")
	if g.BaseURL == "" {
		g.BaseURL = DefaultBaseURL
	}
	g.Model = strings.TrimSpace(g.Model)
	if g.Model == "" {
		g.Model = DefaultModel
	}
	if g.MaxTokens == 0 {
		g.MaxTokens = DefaultMaxTokens
	}
	if g.Temperature == nil {
		g.Temperature = ptr(DefaultTemperature)
	}
	if g.TimeoutMS == 0 {
		g.TimeoutMS = DefaultTimeoutMS
	}
	if g.MaxConcurrent == 0 {
		g.MaxConcurrent = DefaultMaxConcurrent
	}
	if strings.TrimSpace(g.Currency) == "" {
		g.Currency = DefaultCurrency
	}

	if c.Classifier.ConfidenceThreshold == nil {
		c.Classifier.ConfidenceThreshold = ptr(DefaultConfidenceThreshold)
	}

	if strings.TrimSpace(c.Gateway.Host) == "" {
		c.Gateway.Host = DefaultGatewayHost
	}
	if c.Gateway.Port == 0 {
		c.Gateway.Port = DefaultGatewayPort
	}
	if c.Gateway.Workers == 0 {
		c.Gateway.Workers = DefaultWorkers
	}
}

// Validate checks required settings and value ranges.
func (c *Config) Validate() error {
	g := c.Generation
	if g.Backend != BackendOpenAI && g.Backend != BackendFantasy {
		return Invalid("generation.backend", "unsupported backend %q", g.Backend)
	}
	if g.IsEnabled() && g.APIKey == "" {
		return Invalid("generation.api_key", "API key is required (set PROXYAPI_KEY)")
	}
	if g.Model == "" {
		return Invalid("generation.model", "model id is required")
	}
	if g.MaxTokens < 0 {
		return Invalid("generation.max_tokens", "must be positive, got %d", g.MaxTokens)
	}
	if t := g.SamplingTemperature(); t < 0 || t > 2 {
		return Invalid("generation.temperature", "must be within [0, 2], got %g", t)
	}
	if g.TimeoutMS < 0 {
		return Invalid("generation.timeout_ms", "must be positive, got %d", g.TimeoutMS)
	}
	if g.MaxConcurrent < 0 {
		return Invalid("generation.max_concurrent", "must be positive, got %d", g.MaxConcurrent)
	}

	threshold := c.Classifier.Threshold()
	if threshold < 0 || threshold > 1 {
		return Invalid("classifier.confidence_threshold", "must be within [0, 1], got %g", threshold)
	}

	if c.Channels.Telegram.Enabled && c.Channels.Telegram.Token == "" {
		return Invalid("channels.telegram.token", "token is required when telegram is enabled (set TELEGRAM_BOT_TOKEN)")
	}

	if c.Gateway.Port < 0 || c.Gateway.Port > 65535 {
		return Invalid("gateway.port", "out of range: %d", c.Gateway.Port)
	}
	if c.Gateway.Workers < 0 {
		return Invalid("gateway.workers", "must be positive, got %d", c.Gateway.Workers)
	}

	return nil
}

func ptr[T any](v T) *T {
	return &v
}

// findConfigPath resolves the active config file location.
//
// Precedence is ROUTERBOT_CONFIG first, then cwd-local fallback paths. A missing
// file is not an error: defaults and the environment are enough to run.
func findConfigPath() (string, error) {
	if value := strings.TrimSpace(os.Getenv(envConfigPath)); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", Invalid(envConfigPath, "does not point to a file: %s", value)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current working directory: %w", err)
	}

	candidates := []string{
		filepath.Join(cwd, "config.json"),
		filepath.Join(cwd, "config", "config.json"),
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", nil
}
