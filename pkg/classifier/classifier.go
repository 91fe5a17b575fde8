package classifier

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"routerbot/pkg/generation"
	"routerbot/pkg/logger"
)

const (
	SourceLLM       Source = "llm"
	SourceHeuristic Source = "heuristic"

	unknownCategoryName = "Неизвестно"

	classifyMaxTokens   = 200
	classifyTemperature = 0.3
)

// Source tells which path produced a Result.
type Source string

// Context carries optional hints for a classification call.
type Context struct {
	UserHistory []string
}

// Result is one classification outcome.
type Result struct {
	CategoryID     string        `json:"category_id"`
	CategoryName   string        `json:"category_name"`
	Confidence     float64       `json:"confidence"`
	Reasoning      string        `json:"reasoning"`
	Source         Source        `json:"source"`
	ProcessingTime time.Duration `json:"processing_time"`
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithLogger sets the classifier logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Classifier) {
		if log != nil {
			c.log = log
		}
	}
}

// WithEnabled switches LLM-assisted classification on or off. A disabled
// classifier still answers Classify from heuristics.
func WithEnabled(enabled bool) Option {
	return func(c *Classifier) {
		c.enabled = enabled
	}
}

// Classifier assigns an intent category to message text. It asks the
// generator first and falls back to keyword heuristics.
type Classifier struct {
	gen     generation.Generator
	enabled bool
	log     *slog.Logger

	mu         sync.RWMutex
	categories []Category
}

// New builds a classifier with the default categories. gen may be nil.
func New(gen generation.Generator, opts ...Option) *Classifier {
	c := &Classifier{
		gen:        gen,
		enabled:    true,
		log:        slog.Default(),
		categories: DefaultCategories(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With("component", "classifier")
	return c
}

// Enabled reports whether the LLM path is switched on.
func (c *Classifier) Enabled() bool {
	return c != nil && c.enabled
}

// Ready reports whether the LLM path can be used right now.
func (c *Classifier) Ready() bool {
	if !c.Enabled() || c.gen == nil {
		return false
	}
	if r, ok := c.gen.(interface{ Ready() bool }); ok {
		return r.Ready()
	}
	return true
}

// Classify never fails: generation and parse errors degrade to heuristics.
func (c *Classifier) Classify(ctx context.Context, text string, cctx Context) Result {
	startedAt := time.Now()

	var result Result
	if c.Ready() {
		var err error
		result, err = c.classifyWithLLM(ctx, text, cctx)
		if err != nil {
			c.log.Warn("llm classification failed, using heuristics",
				"error", err,
				"cause", generation.CauseOf(err),
				"text_preview", logger.Preview(text),
			)
			result = c.heuristic(text, err)
		}
	} else {
		result = c.heuristic(text, nil)
	}

	result.ProcessingTime = time.Since(startedAt)
	c.log.Debug("message classified",
		"category", result.CategoryID,
		"confidence", result.Confidence,
		"source", result.Source,
		"duration_ms", result.ProcessingTime.Milliseconds(),
	)
	return result
}

func (c *Classifier) classifyWithLLM(ctx context.Context, text string, cctx Context) (Result, error) {
	resp, err := c.gen.Generate(ctx, generation.Request{
		Prompt:       buildPrompt(c.Categories(), text, cctx),
		SystemPrompt: systemPrompt,
		MaxTokens:    classifyMaxTokens,
		Temperature:  classifyTemperature,
	})
	if err != nil {
		return Result{}, err
	}

	parsed, err := parseReply(resp.Content)
	if err != nil {
		return Result{}, err
	}

	category, ok := c.lookup(parsed.CategoryID)
	if !ok {
		return Result{}, &ParseError{Reply: resp.Content, Reason: "unknown category " + parsed.CategoryID}
	}

	reasoning := strings.TrimSpace(parsed.Reasoning)
	if reasoning == "" {
		reasoning = "LLM classification"
	}

	return Result{
		CategoryID:   category.ID,
		CategoryName: category.Name,
		Confidence:   parsed.confidence(),
		Reasoning:    reasoning,
		Source:       SourceLLM,
	}, nil
}

func (c *Classifier) heuristic(text string, cause error) Result {
	rule := matchHeuristic(text)

	name := unknownCategoryName
	if category, ok := c.lookup(rule.category); ok {
		name = category.Name
	}

	reasoning := "heuristic: " + rule.reason
	if cause != nil {
		var parseErr *ParseError
		switch {
		case errors.As(cause, &parseErr):
			reasoning += " (llm reply unusable)"
		default:
			reasoning += " (llm unavailable)"
		}
	}

	return Result{
		CategoryID:   rule.category,
		CategoryName: name,
		Confidence:   rule.confidence,
		Reasoning:    reasoning,
		Source:       SourceHeuristic,
	}
}
