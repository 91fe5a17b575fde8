package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"routerbot/pkg/config"
)

const (
	DefaultSystemPrompt = "Ты - полезный ассистент для классификации и обработки сообщений. " +
		"Отвечай кратко и по существу. Используй русский язык."

	probePrompt       = "Тест соединения"
	probeSystemPrompt = `Ты - тестовый бот. Ответь одним словом: "OK"`
	probeMaxTokens    = 5
	probeTemperature  = 0.1
	probeTimeout      = 10 * time.Second
)

var ErrEmptyPrompt = errors.New("prompt is required")

// Generator produces one completion per call. Implementations never retry.
type Generator interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

// Request is one generation call. Zero fields take the client defaults.
type Request struct {
	Prompt       string
	SystemPrompt string
	Model        string
	MaxTokens    int
	Temperature  float64
	Timeout      time.Duration
}

// Response is the result of a successful call.
type Response struct {
	Content          string
	Model            string
	PromptTokens     int64
	CompletionTokens int64
	TokensUsed       int64
	CostEstimate     Cost
	Duration         time.Duration
}

// completion is what a backend extracts from the provider envelope.
type completion struct {
	content          string
	promptTokens     int64
	completionTokens int64
	totalTokens      int64
}

type backend interface {
	name() string
	complete(ctx context.Context, providerPath string, req Request) (completion, error)
}

// Client is the Generation Client: defaults, timeout, concurrency bound, cost
// estimation and error classification around one backend.
type Client struct {
	defaults Request
	catalog  *Catalog
	sem      *semaphore.Weighted
	backend  backend
	log      *slog.Logger
}

// New builds a client for the configured backend. Missing API key or model is
// a configuration error.
func New(cfg config.GenerationConfig, catalog *Catalog, log *slog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, config.Invalid("generation.api_key", "API key is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, config.Invalid("generation.model", "model id is required")
	}
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	if log == nil {
		log = slog.Default()
	}

	var b backend
	var err error
	switch cfg.Backend {
	case "", config.BackendOpenAI:
		b = newOpenAIBackend(cfg.APIKey, cfg.BaseURL)
	case config.BackendFantasy:
		b, err = newFantasyBackend(cfg.APIKey, cfg.BaseURL)
	default:
		err = config.Invalid("generation.backend", "unsupported backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	return newClient(cfg, catalog, b, log), nil
}

func newClient(cfg config.GenerationConfig, catalog *Catalog, b backend, log *slog.Logger) *Client {
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = config.DefaultMaxConcurrent
	}

	defaults := Request{
		SystemPrompt: DefaultSystemPrompt,
		Model:        strings.TrimSpace(cfg.Model),
		MaxTokens:    cfg.MaxTokens,
		Temperature:  cfg.SamplingTemperature(),
		Timeout:      cfg.Timeout(),
	}
	if defaults.MaxTokens <= 0 {
		defaults.MaxTokens = config.DefaultMaxTokens
	}
	if defaults.Timeout <= 0 {
		defaults.Timeout = time.Duration(config.DefaultTimeoutMS) * time.Millisecond
	}

	return &Client{
		defaults: defaults,
		catalog:  catalog,
		sem:      semaphore.NewWeighted(int64(maxConcurrent)),
		backend:  b,
		log:      log.With("component", "generation.client", "backend", b.name()),
	}
}

// Model returns the default model id.
func (c *Client) Model() string {
	return c.defaults.Model
}

// Catalog returns the price table used for estimates.
func (c *Client) Catalog() *Catalog {
	return c.catalog
}

// Ready reports whether the client can accept calls.
func (c *Client) Ready() bool {
	return c != nil && c.backend != nil
}

// Generate issues exactly one request. Failures are *GenerationError.
func (c *Client) Generate(ctx context.Context, req Request) (Response, error) {
	req = c.applyDefaults(req)
	if strings.TrimSpace(req.Prompt) == "" {
		return Response{}, &GenerationError{Cause: CauseBadResponse, Model: req.Model, Err: ErrEmptyPrompt}
	}

	callCtx, cancel := context.WithTimeout(ctx, req.Timeout)
	defer cancel()

	providerPath := ProviderPath(req.Model, c.catalog)
	log := c.log.With("model", req.Model, "provider", providerPath)
	startedAt := time.Now()

	if err := c.sem.Acquire(callCtx, 1); err != nil {
		genErr := classify(callCtx, req.Model, err)
		log.Debug("generation request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "cause", genErr.Cause, "error", err)
		return Response{}, genErr
	}
	defer c.sem.Release(1)

	log.Debug("generation request started", "prompt_length", len(req.Prompt), "max_tokens", req.MaxTokens)

	out, err := c.backend.complete(callCtx, providerPath, req)
	if err == nil && strings.TrimSpace(out.content) == "" {
		err = errEmptyContent
	}
	if err != nil {
		genErr := classify(callCtx, req.Model, err)
		log.Debug("generation request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "cause", genErr.Cause, "error", err)
		return Response{}, genErr
	}

	total := out.totalTokens
	if total <= 0 {
		total = out.promptTokens + out.completionTokens
	}

	resp := Response{
		Content:          out.content,
		Model:            req.Model,
		PromptTokens:     max(out.promptTokens, 0),
		CompletionTokens: max(out.completionTokens, 0),
		TokensUsed:       max(total, 0),
		CostEstimate:     c.catalog.Estimate(req.Model, out.promptTokens, out.completionTokens),
		Duration:         time.Since(startedAt),
	}

	log.Debug("generation request completed",
		"duration_ms", resp.Duration.Milliseconds(),
		"tokens", resp.TokensUsed,
		"cost", fmt.Sprintf("%.4f %s", resp.CostEstimate.Total, resp.CostEstimate.Currency),
	)

	return resp, nil
}

// Probe sends a minimal request to check that the endpoint answers.
func (c *Client) Probe(ctx context.Context) error {
	_, err := c.Generate(ctx, Request{
		Prompt:       probePrompt,
		SystemPrompt: probeSystemPrompt,
		MaxTokens:    probeMaxTokens,
		Temperature:  probeTemperature,
		Timeout:      probeTimeout,
	})
	if err != nil {
		return fmt.Errorf("generation probe: %w", err)
	}
	return nil
}

func (c *Client) applyDefaults(req Request) Request {
	if strings.TrimSpace(req.SystemPrompt) == "" {
		req.SystemPrompt = c.defaults.SystemPrompt
	}
	if strings.TrimSpace(req.Model) == "" {
		req.Model = c.defaults.Model
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = c.defaults.MaxTokens
	}
	if req.Temperature <= 0 {
		// A zero request temperature means the configured one, which may itself be 0.
		req.Temperature = c.defaults.Temperature
	}
	if req.Timeout <= 0 {
		req.Timeout = c.defaults.Timeout
	}
	return req
}
