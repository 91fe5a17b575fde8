package generation

import (
	"context"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// openaiBackend speaks the chat completions wire format through openai-go.
type openaiBackend struct {
	client  openai.Client
	baseURL string
}

func newOpenAIBackend(apiKey, baseURL string, opts ...option.RequestOption) *openaiBackend {
	opts = append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}, opts...)

	return &openaiBackend{
		client:  openai.NewClient(opts...),
		baseURL: baseURL,
	}
}

func (b *openaiBackend) name() string {
	return "openai"
}

func (b *openaiBackend) complete(ctx context.Context, providerPath string, req Request) (completion, error) {
	params := openai.ChatCompletionNewParams{
		Model: req.Model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.SystemPrompt),
			openai.UserMessage(req.Prompt),
		},
		MaxTokens:   openai.Int(int64(req.MaxTokens)),
		Temperature: openai.Float(req.Temperature),
	}

	resp, err := b.client.Chat.Completions.New(ctx, params, option.WithBaseURL(endpointBase(b.baseURL, providerPath)))
	if err != nil {
		return completion{}, err
	}
	if resp == nil || len(resp.Choices) == 0 {
		return completion{}, errNoChoices
	}

	return completion{
		content:          resp.Choices[0].Message.Content,
		promptTokens:     resp.Usage.PromptTokens,
		completionTokens: resp.Usage.CompletionTokens,
		totalTokens:      resp.Usage.TotalTokens,
	}, nil
}
