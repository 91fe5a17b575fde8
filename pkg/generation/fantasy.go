package generation

import (
	"context"
	"fmt"
	"strings"
	"sync"

	core "charm.land/fantasy"
	provideropenai "charm.land/fantasy/providers/openai"
)

type languageModelProvider interface {
	LanguageModel(ctx context.Context, modelID string) (core.LanguageModel, error)
}

// fantasyBackend runs each call as a single-turn fantasy agent. One provider is
// kept per gateway path.
type fantasyBackend struct {
	apiKey  string
	baseURL string

	newProvider func(apiKey, baseURL string) (languageModelProvider, error)
	generate    func(context.Context, core.LanguageModel, core.AgentCall) (*core.AgentResult, error)

	mu        sync.Mutex
	providers map[string]languageModelProvider
}

func newFantasyBackend(apiKey, baseURL string) (*fantasyBackend, error) {
	b := &fantasyBackend{
		apiKey:      apiKey,
		baseURL:     baseURL,
		newProvider: newFantasyOpenAIProvider,
		generate:    generateWithFantasyAgent,
		providers:   make(map[string]languageModelProvider),
	}

	// Fail fast on option errors rather than on the first message.
	if _, err := b.provider(ProviderOpenAI); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *fantasyBackend) name() string {
	return "fantasy"
}

func (b *fantasyBackend) complete(ctx context.Context, providerPath string, req Request) (completion, error) {
	provider, err := b.provider(providerPath)
	if err != nil {
		return completion{}, err
	}

	model, err := provider.LanguageModel(ctx, req.Model)
	if err != nil {
		return completion{}, fmt.Errorf("resolve language model: %w", err)
	}

	maxTokens := int64(req.MaxTokens)
	temperature := req.Temperature
	result, err := b.generate(ctx, model, core.AgentCall{
		Prompt: req.Prompt,
		Messages: []core.Message{{
			Role:    core.MessageRoleSystem,
			Content: []core.MessagePart{core.TextPart{Text: req.SystemPrompt}},
		}},
		MaxOutputTokens: &maxTokens,
		Temperature:     &temperature,
	})
	if err != nil {
		return completion{}, err
	}
	if result == nil {
		return completion{}, errNoChoices
	}

	return completion{
		content:          extractText(result.Response.Content),
		promptTokens:     result.TotalUsage.InputTokens,
		completionTokens: result.TotalUsage.OutputTokens,
		totalTokens:      result.TotalUsage.TotalTokens,
	}, nil
}

func (b *fantasyBackend) provider(providerPath string) (languageModelProvider, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if p, ok := b.providers[providerPath]; ok {
		return p, nil
	}

	p, err := b.newProvider(b.apiKey, endpointBase(b.baseURL, providerPath))
	if err != nil {
		return nil, fmt.Errorf("initialize fantasy provider for %s: %w", providerPath, err)
	}
	b.providers[providerPath] = p
	return p, nil
}

func newFantasyOpenAIProvider(apiKey, baseURL string) (languageModelProvider, error) {
	return provideropenai.New(
		provideropenai.WithAPIKey(apiKey),
		provideropenai.WithBaseURL(baseURL),
	)
}

func extractText(content core.ResponseContent) string {
	lines := make([]string, 0, len(content))
	for _, part := range content {
		if part.GetType() != core.ContentTypeText {
			continue
		}
		text, ok := core.AsContentType[core.TextContent](part)
		if !ok {
			continue
		}
		if line := strings.TrimSpace(text.Text); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// generateWithFantasyAgent sends exactly one request; failed calls are not retried.
func generateWithFantasyAgent(ctx context.Context, model core.LanguageModel, call core.AgentCall) (*core.AgentResult, error) {
	return core.NewAgent(model, core.WithMaxRetries(0)).Generate(ctx, call)
}
