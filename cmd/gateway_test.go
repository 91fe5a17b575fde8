package cmd

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"routerbot/pkg/bus"
	channelpkg "routerbot/pkg/channel"
	"routerbot/pkg/config"
	"routerbot/pkg/generation"
)

type testAdapter struct {
	name string
	sent []bus.OutboundMessage
}

func (a *testAdapter) Name() string { return a.name }

func (a *testAdapter) Run(_ context.Context, _ channelpkg.Handler) error { return nil }

func (a *testAdapter) Send(_ context.Context, msg bus.OutboundMessage) error {
	a.sent = append(a.sent, msg)
	return nil
}

func (a *testAdapter) SendTyping(context.Context, string) error { return nil }

func TestEnabledChannelsRequiresAtLeastOneChannel(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	_, err := enabledChannels(cfg, nil)
	if !config.IsConfigurationError(err) {
		t.Fatalf("enabledChannels error = %v, want configuration error", err)
	}
}

func TestEnabledChannelsRejectsMissingToken(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{Channels: config.ChannelsConfig{Telegram: config.TelegramConfig{Enabled: true}}}
	if _, err := enabledChannels(cfg, nil); !config.IsConfigurationError(err) {
		t.Fatalf("enabledChannels error = %v, want configuration error", err)
	}
}

func TestEnabledChannelNames(t *testing.T) {
	t.Parallel()

	adapters := []channelpkg.Adapter{&testAdapter{name: "telegram"}, &testAdapter{name: "console"}}
	if got := enabledChannelNames(adapters); got != "telegram,console" {
		t.Fatalf("enabledChannelNames = %q, want %q", got, "telegram,console")
	}
}

func TestNewAppWithoutGeneration(t *testing.T) {
	t.Parallel()

	disabled := false
	cfg := &config.Config{Generation: config.GenerationConfig{Enabled: &disabled}}
	cfg.ApplyDefaults()

	adapter := &testAdapter{name: "telegram"}
	bot, err := newApp(cfg, channelpkg.NewRegistry(adapter), nil)
	if err != nil {
		t.Fatalf("newApp error = %v", err)
	}
	defer bot.close()

	if bot.generator != nil {
		t.Fatal("expected no generation client when generation is disabled")
	}
	if got := len(bot.serviceOptions(nil)); got != 1 {
		t.Fatalf("serviceOptions = %d options, want logger only", got)
	}

	bot.dispatcher.Handle(context.Background(), bus.InboundMessage{Channel: "telegram", ChatID: "1", Text: "как дела?"})
	if len(adapter.sent) != 1 {
		t.Fatalf("sent %d replies, want 1", len(adapter.sent))
	}
	if strings.Contains(adapter.sent[0].Content, "Вы написали") {
		t.Fatalf("reply = %q, want status template", adapter.sent[0].Content)
	}
}

func TestNewAppWithGeneration(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{Generation: config.GenerationConfig{APIKey: "test-key"}}
	cfg.ApplyDefaults()

	bot, err := newApp(cfg, channelpkg.NewRegistry(&testAdapter{name: "telegram"}), nil)
	if err != nil {
		t.Fatalf("newApp error = %v", err)
	}
	defer bot.close()

	if bot.generator == nil {
		t.Fatal("expected a generation client")
	}
	if got := len(bot.serviceOptions(nil)); got != 2 {
		t.Fatalf("serviceOptions = %d options, want logger and prober", got)
	}
}

func TestLoadCatalog(t *testing.T) {
	t.Parallel()

	catalog, err := loadCatalog(config.GenerationConfig{Currency: "USD"})
	if err != nil {
		t.Fatalf("loadCatalog error = %v", err)
	}
	if catalog.Currency() != "USD" {
		t.Fatalf("Currency = %q, want USD", catalog.Currency())
	}

	_, err = loadCatalog(config.GenerationConfig{PriceTable: filepath.Join(t.TempDir(), "missing.yaml")})
	if !config.IsConfigurationError(err) {
		t.Fatalf("loadCatalog error = %v, want configuration error", err)
	}
}

func TestRenderModelsMarksDefault(t *testing.T) {
	t.Parallel()

	models := []generation.ModelDescriptor{
		{ID: "gpt-4o", Name: "GPT-4o", Provider: "openai", MaxTokens: 4096, PricePerKInput: 0.5, PricePerKOutput: 1.5, IsActive: true},
		{ID: "claude-3-haiku", Name: "Claude 3 Haiku", Provider: "anthropic", MaxTokens: 4096, PricePerKInput: 0.25, PricePerKOutput: 1.25},
	}

	out := renderModels(models, "gpt-4o", "RUB")
	for _, want := range []string{"* gpt-4o", "claude-3-haiku", "IN /1K RUB", "1.25", "anthropic"} {
		if !strings.Contains(out, want) {
			t.Fatalf("renderModels output missing %q:\n%s", want, out)
		}
	}

	if got := renderModels(nil, "", "RUB"); got != "no models in catalog" {
		t.Fatalf("renderModels(nil) = %q", got)
	}
}

func TestChatLogWriter(t *testing.T) {
	t.Parallel()

	w, closeLog, err := chatLogWriter("")
	if err != nil || w == nil {
		t.Fatalf("chatLogWriter(\"\") = %v, %v", w, err)
	}
	closeLog()

	path := filepath.Join(t.TempDir(), "chat.log")
	w, closeLog, err = chatLogWriter(path)
	if err != nil {
		t.Fatalf("chatLogWriter error = %v", err)
	}
	if _, err := w.Write([]byte("line\n")); err != nil {
		t.Fatalf("write error = %v", err)
	}
	closeLog()

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if string(content) != "line\n" {
		t.Fatalf("log content = %q", content)
	}
}

func TestSelectModels(t *testing.T) {
	t.Parallel()

	catalog, err := generation.ParseCatalog([]byte(`
currency: RUB
models:
  - {id: gpt-4o, name: GPT-4o, provider: openai, max_tokens: 128000, price_input: 1, price_output: 2, active: true}
  - {id: gpt-4, name: GPT-4, provider: openai, max_tokens: 8192, price_input: 3, price_output: 4, active: false}
  - {id: claude-3-haiku, name: Claude 3 Haiku, provider: anthropic, max_tokens: 4096, price_input: 5, price_output: 6, active: true}
`))
	if err != nil {
		t.Fatalf("ParseCatalog error = %v", err)
	}

	ids := func(models []generation.ModelDescriptor) string {
		out := make([]string, 0, len(models))
		for _, m := range models {
			out = append(out, m.ID)
		}
		return strings.Join(out, ",")
	}

	tests := []struct {
		provider string
		all      bool
		want     string
	}{
		{provider: "", all: false, want: "claude-3-haiku,gpt-4o"},
		{provider: "", all: true, want: "claude-3-haiku,gpt-4,gpt-4o"},
		{provider: "OpenAI", all: false, want: "gpt-4o"},
		{provider: "openai", all: true, want: "gpt-4,gpt-4o"},
		{provider: "google", all: true, want: ""},
	}
	for _, tt := range tests {
		if got := ids(selectModels(catalog, tt.provider, tt.all)); got != tt.want {
			t.Fatalf("selectModels(%q, %v) = %q, want %q", tt.provider, tt.all, got, tt.want)
		}
	}
}

func TestLogFinalStats(t *testing.T) {
	t.Parallel()

	disabled := false
	cfg := &config.Config{Generation: config.GenerationConfig{Enabled: &disabled}}
	cfg.ApplyDefaults()

	adapter := &testAdapter{name: "telegram"}
	bot, err := newApp(cfg, channelpkg.NewRegistry(adapter), nil)
	if err != nil {
		t.Fatalf("newApp error = %v", err)
	}
	defer bot.close()

	bot.dispatcher.Handle(context.Background(), bus.InboundMessage{Channel: "telegram", ChatID: "1", Text: "привет"})
	bot.dispatcher.Handle(context.Background(), bus.InboundMessage{Channel: "matrix", ChatID: "2", Text: "привет"})

	var out bytes.Buffer
	bot.logFinalStats(slog.New(slog.NewTextHandler(&out, nil)))

	line := out.String()
	for _, want := range []string{"Final stats", "messages_processed=1", "errors=1", "last_error=", "unknown channel", "routed=1", "uptime="} {
		if !strings.Contains(line, want) {
			t.Fatalf("final stats log missing %q:\n%s", want, line)
		}
	}
}
