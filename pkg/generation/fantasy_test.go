package generation

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	core "charm.land/fantasy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"routerbot/pkg/config"
)

type fakeLanguageModelProvider struct {
	model  core.LanguageModel
	err    error
	lastID string
}

func (f *fakeLanguageModelProvider) LanguageModel(_ context.Context, modelID string) (core.LanguageModel, error) {
	f.lastID = modelID
	if f.err != nil {
		return nil, f.err
	}
	return f.model, nil
}

type fakeLanguageModel struct{}

func (f *fakeLanguageModel) Generate(context.Context, core.Call) (*core.Response, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeLanguageModel) Stream(context.Context, core.Call) (core.StreamResponse, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeLanguageModel) GenerateObject(context.Context, core.ObjectCall) (*core.ObjectResponse, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeLanguageModel) StreamObject(context.Context, core.ObjectCall) (core.ObjectStreamResponse, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeLanguageModel) Provider() string { return "openai" }
func (f *fakeLanguageModel) Model() string    { return "gpt-4o" }

func newFakeFantasyClient(provider *fakeLanguageModelProvider, generate func(context.Context, core.LanguageModel, core.AgentCall) (*core.AgentResult, error)) (*Client, *[]string) {
	var baseURLs []string
	backend := &fantasyBackend{
		apiKey:  "sk-test",
		baseURL: "http://proxy",
		newProvider: func(_ string, baseURL string) (languageModelProvider, error) {
			baseURLs = append(baseURLs, baseURL)
			return provider, nil
		},
		generate:  generate,
		providers: make(map[string]languageModelProvider),
	}

	cfg := config.GenerationConfig{Model: "gpt-4o", MaxTokens: 100, Temperature: ptr(0.5), TimeoutMS: 1000}
	return newClient(cfg, DefaultCatalog(), backend, quietLogger()), &baseURLs
}

func TestFantasyBackendGenerate(t *testing.T) {
	provider := &fakeLanguageModelProvider{model: &fakeLanguageModel{}}
	var gotCall core.AgentCall

	client, baseURLs := newFakeFantasyClient(provider, func(_ context.Context, _ core.LanguageModel, call core.AgentCall) (*core.AgentResult, error) {
		gotCall = call
		return &core.AgentResult{
			Response: core.Response{
				Content: core.ResponseContent{
					core.TextContent{Text: "  first "},
					core.TextContent{Text: ""},
					core.TextContent{Text: "second"},
				},
			},
			TotalUsage: core.Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15},
		}, nil
	})

	resp, err := client.Generate(context.Background(), Request{Prompt: "hello", Model: "claude-3-haiku"})
	require.NoError(t, err)

	assert.Equal(t, "first\nsecond", resp.Content)
	assert.EqualValues(t, 15, resp.TokensUsed)
	assert.Equal(t, "claude-3-haiku", provider.lastID)
	assert.Equal(t, []string{"http://proxy/anthropic/v1/"}, *baseURLs)

	assert.Equal(t, "hello", gotCall.Prompt)
	require.NotNil(t, gotCall.MaxOutputTokens)
	assert.EqualValues(t, 100, *gotCall.MaxOutputTokens)
	require.NotNil(t, gotCall.Temperature)
	assert.InDelta(t, 0.5, *gotCall.Temperature, 1e-9)
	require.Len(t, gotCall.Messages, 1)
	assert.Equal(t, core.MessageRoleSystem, gotCall.Messages[0].Role)
}

func TestFantasyBackendReusesProviderPerPath(t *testing.T) {
	provider := &fakeLanguageModelProvider{model: &fakeLanguageModel{}}
	client, baseURLs := newFakeFantasyClient(provider, func(context.Context, core.LanguageModel, core.AgentCall) (*core.AgentResult, error) {
		return &core.AgentResult{Response: core.Response{Content: core.ResponseContent{core.TextContent{Text: "ok"}}}}, nil
	})

	for range 3 {
		_, err := client.Generate(context.Background(), Request{Prompt: "hello"})
		require.NoError(t, err)
	}
	assert.Len(t, *baseURLs, 1)
}

func TestFantasyBackendErrors(t *testing.T) {
	provider := &fakeLanguageModelProvider{model: &fakeLanguageModel{}}

	empty, _ := newFakeFantasyClient(provider, func(context.Context, core.LanguageModel, core.AgentCall) (*core.AgentResult, error) {
		return &core.AgentResult{}, nil
	})
	_, err := empty.Generate(context.Background(), Request{Prompt: "hello"})
	assert.Equal(t, CauseBadResponse, CauseOf(err))

	slow, _ := newFakeFantasyClient(provider, func(ctx context.Context, _ core.LanguageModel, _ core.AgentCall) (*core.AgentResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	_, err = slow.Generate(context.Background(), Request{Prompt: "hello", Timeout: 20 * time.Millisecond})
	assert.Equal(t, CauseTimeout, CauseOf(err))

	provider.err = errors.New("no such model")
	broken, _ := newFakeFantasyClient(provider, nil)
	_, err = broken.Generate(context.Background(), Request{Prompt: "hello"})
	require.Error(t, err)
	assert.Equal(t, CauseBadResponse, CauseOf(err))
}

func TestFantasyBackendHTTPErrorsAreNotRetried(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   Cause
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, want: CauseRateLimited},
		{name: "bad gateway", status: http.StatusBadGateway, want: CauseBadResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				hits.Add(1)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":{"message":"upstream said no","type":"error"}}`))
			}))
			defer srv.Close()

			cfg := testConfig(srv.URL)
			cfg.Backend = config.BackendFantasy
			client := newTestClient(t, cfg)

			_, err := client.Generate(context.Background(), Request{Prompt: "hello"})
			require.Error(t, err)

			var genErr *GenerationError
			require.ErrorAs(t, err, &genErr)
			assert.Equal(t, tt.want, genErr.Cause)
			assert.Equal(t, tt.status, genErr.StatusCode)
			assert.EqualValues(t, 1, hits.Load())
		})
	}
}
