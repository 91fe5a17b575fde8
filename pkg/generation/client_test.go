package generation

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"routerbot/pkg/config"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

const okBody = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "model": "gpt-4o",
  "choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "I don't understand"}}],
  "usage": {"prompt_tokens": 8, "completion_tokens": 4, "total_tokens": 12}
}`

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ptr(v float64) *float64 {
	return &v
}

func testConfig(baseURL string) config.GenerationConfig {
	return config.GenerationConfig{
		Backend:       config.BackendOpenAI,
		APIKey:        "sk-test",
		BaseURL:       baseURL,
		Model:         "gpt-4o",
		MaxTokens:     1000,
		Temperature:   ptr(0.7),
		TimeoutMS:     2000,
		MaxConcurrent: 2,
	}
}

func newTestClient(t *testing.T, cfg config.GenerationConfig) *Client {
	t.Helper()
	client, err := New(cfg, DefaultCatalog(), quietLogger())
	require.NoError(t, err)
	return client
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func TestGenerateSendsChatCompletionRequest(t *testing.T) {
	var gotPath, gotAuth string
	var got chatRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		writeJSON(w, http.StatusOK, okBody)
	}))
	defer server.Close()

	client := newTestClient(t, testConfig(server.URL))
	resp, err := client.Generate(context.Background(), Request{Prompt: "asdkjaslkdj random gibberish"})
	require.NoError(t, err)

	assert.Equal(t, "/openai/v1/chat/completions", gotPath)
	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "gpt-4o", got.Model)
	assert.Equal(t, 1000, got.MaxTokens)
	assert.InDelta(t, 0.7, got.Temperature, 1e-9)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, DefaultSystemPrompt, got.Messages[0].Content)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Equal(t, "asdkjaslkdj random gibberish", got.Messages[1].Content)

	assert.Equal(t, "I don't understand", resp.Content)
	assert.EqualValues(t, 12, resp.TokensUsed)
	assert.EqualValues(t, 8, resp.PromptTokens)
	assert.EqualValues(t, 4, resp.CompletionTokens)
	assert.False(t, resp.CostEstimate.Approximate)
	assert.InDelta(t, 8.0/1000*612+4.0/1000*2448, resp.CostEstimate.Total, 1e-9)
}

func TestGenerateKeepsConfiguredZeroTemperature(t *testing.T) {
	var got struct {
		Temperature *float64 `json:"temperature"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		writeJSON(w, http.StatusOK, okBody)
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.Temperature = ptr(0)
	client := newTestClient(t, cfg)

	_, err := client.Generate(context.Background(), Request{Prompt: "hi"})
	require.NoError(t, err)

	require.NotNil(t, got.Temperature)
	assert.Zero(t, *got.Temperature)
}

func TestGenerateRoutesByModelPrefix(t *testing.T) {
	var gotPath, gotModel string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		var body chatRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotModel = body.Model
		writeJSON(w, http.StatusOK, okBody)
	}))
	defer server.Close()

	client := newTestClient(t, testConfig(server.URL))
	_, err := client.Generate(context.Background(), Request{Prompt: "hi", Model: "claude-3-haiku", MaxTokens: 200, Temperature: 0.3})
	require.NoError(t, err)

	assert.Equal(t, "/anthropic/v1/chat/completions", gotPath)
	assert.Equal(t, "claude-3-haiku", gotModel)
}

func TestGenerateErrorCauses(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantCause  Cause
		wantStatus int
	}{
		{name: "server error", status: http.StatusInternalServerError, body: `{"error": {"message": "boom"}}`, wantCause: CauseBadResponse, wantStatus: 500},
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"error": {"message": "bad key"}}`, wantCause: CauseBadResponse, wantStatus: 401},
		{name: "rate limited", status: http.StatusTooManyRequests, body: `{"error": {"message": "slow down"}}`, wantCause: CauseRateLimited, wantStatus: 429},
		{name: "malformed body", status: http.StatusOK, body: `{"choices": [`, wantCause: CauseBadResponse},
		{name: "no choices", status: http.StatusOK, body: `{"choices": [], "usage": {"total_tokens": 1}}`, wantCause: CauseBadResponse},
		{name: "empty content", status: http.StatusOK, body: `{"choices": [{"message": {"content": "  "}}]}`, wantCause: CauseBadResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				calls.Add(1)
				writeJSON(w, tt.status, tt.body)
			}))
			defer server.Close()

			client := newTestClient(t, testConfig(server.URL))
			resp, err := client.Generate(context.Background(), Request{Prompt: "hello"})
			require.Error(t, err)
			assert.Empty(t, resp.Content)

			var genErr *GenerationError
			require.ErrorAs(t, err, &genErr)
			assert.Equal(t, tt.wantCause, genErr.Cause)
			assert.Equal(t, tt.wantStatus, genErr.StatusCode)
			assert.EqualValues(t, 1, calls.Load(), "generation must not retry")
		})
	}
}

func TestGenerateTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		writeJSON(w, http.StatusOK, okBody)
	}))
	defer server.Close()

	client := newTestClient(t, testConfig(server.URL))
	startedAt := time.Now()
	_, err := client.Generate(context.Background(), Request{Prompt: "hello", Timeout: 50 * time.Millisecond})

	require.Error(t, err)
	assert.Equal(t, CauseTimeout, CauseOf(err))
	assert.Less(t, time.Since(startedAt), time.Second)
}

func TestGenerateNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	baseURL := server.URL
	server.Close()

	client := newTestClient(t, testConfig(baseURL))
	_, err := client.Generate(context.Background(), Request{Prompt: "hello"})

	require.Error(t, err)
	assert.Equal(t, CauseNetworkError, CauseOf(err))
}

func TestGenerateRejectsEmptyPrompt(t *testing.T) {
	client := newTestClient(t, testConfig("http://127.0.0.1:1"))
	_, err := client.Generate(context.Background(), Request{Prompt: "   "})

	require.ErrorIs(t, err, ErrEmptyPrompt)
	assert.Equal(t, CauseBadResponse, CauseOf(err))
}

func TestGenerateBoundsConcurrency(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 4)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entered <- struct{}{}
		select {
		case <-release:
		case <-r.Context().Done():
		}
		writeJSON(w, http.StatusOK, okBody)
	}))
	defer server.Close()
	defer close(release)

	cfg := testConfig(server.URL)
	cfg.MaxConcurrent = 1
	client := newTestClient(t, cfg)

	go func() {
		_, _ = client.Generate(context.Background(), Request{Prompt: "first", Timeout: 2 * time.Second})
	}()
	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("first request never reached the server")
	}

	_, err := client.Generate(context.Background(), Request{Prompt: "second", Timeout: 50 * time.Millisecond})
	require.Error(t, err)
	assert.Equal(t, CauseTimeout, CauseOf(err))
	assert.Len(t, entered, 0, "second request must wait for a slot")
}

func TestProbeUsesMinimalRequest(t *testing.T) {
	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		writeJSON(w, http.StatusOK, okBody)
	}))
	defer server.Close()

	client := newTestClient(t, testConfig(server.URL))
	require.NoError(t, client.Probe(context.Background()))
	assert.Equal(t, probeMaxTokens, got.MaxTokens)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, probeSystemPrompt, got.Messages[0].Content)
}

func TestNewRequiresSettings(t *testing.T) {
	cfg := testConfig("http://localhost")
	cfg.APIKey = ""
	_, err := New(cfg, nil, nil)
	assert.True(t, config.IsConfigurationError(err), "missing key: %v", err)

	cfg = testConfig("http://localhost")
	cfg.Model = " "
	_, err = New(cfg, nil, nil)
	assert.True(t, config.IsConfigurationError(err), "missing model: %v", err)

	cfg = testConfig("http://localhost")
	cfg.Backend = "grpc"
	_, err = New(cfg, nil, nil)
	assert.True(t, config.IsConfigurationError(err), "unknown backend: %v", err)
}

func TestGenerationErrorMessage(t *testing.T) {
	err := &GenerationError{Cause: CauseRateLimited, Model: "gpt-4o", StatusCode: 429, Err: errors.New("slow down")}
	assert.Equal(t, "generation failed (rate_limited) status 429 model gpt-4o: slow down", err.Error())
	assert.Equal(t, Cause(""), CauseOf(errors.New("plain")))
}
