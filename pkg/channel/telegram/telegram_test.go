package telegram

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/mymmrac/telego"

	"routerbot/pkg/bus"
	"routerbot/pkg/config"
)

type fakeBot struct {
	messages []*telego.SendMessageParams
	actions  []*telego.SendChatActionParams
	err      error
}

func (f *fakeBot) SendMessage(_ context.Context, params *telego.SendMessageParams) (*telego.Message, error) {
	f.messages = append(f.messages, params)
	if f.err != nil {
		return nil, f.err
	}
	return &telego.Message{}, nil
}

func (f *fakeBot) SendChatAction(_ context.Context, params *telego.SendChatActionParams) error {
	f.actions = append(f.actions, params)
	return f.err
}

func newFakeAdapter(bot *fakeBot) *Adapter {
	return &Adapter{api: bot, log: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func TestNewAdapterRequiresToken(t *testing.T) {
	_, err := NewAdapter(config.TelegramConfig{Token: "  "}, nil)
	if !config.IsConfigurationError(err) {
		t.Fatalf("NewAdapter error = %v, want configuration error", err)
	}
}

func TestToInboundText(t *testing.T) {
	update := telego.Update{
		UpdateID: 7,
		Message: &telego.Message{
			MessageID: 3,
			Date:      1700000000,
			Chat:      telego.Chat{ID: -100, Type: "supergroup", Title: "Bots"},
			From:      &telego.User{ID: 42, FirstName: "Ana", LastName: "K", Username: "ana_k"},
			Text:      "/start",
		},
	}

	inbound, ok := toInbound(update)
	if !ok {
		t.Fatal("toInbound skipped a text message")
	}
	if inbound.ChatID != "-100" {
		t.Fatalf("ChatID = %q, want %q", inbound.ChatID, "-100")
	}
	if inbound.ChatType != "supergroup" || inbound.ChatTitle != "Bots" {
		t.Fatalf("chat = %q %q, want supergroup Bots", inbound.ChatType, inbound.ChatTitle)
	}
	if inbound.Sender != (bus.Sender{ID: "42", FirstName: "Ana", LastName: "K", Username: "ana_k"}) {
		t.Fatalf("Sender = %+v, want Ana", inbound.Sender)
	}
	if inbound.Kind() != bus.KindCommand {
		t.Fatalf("Kind = %q, want %q", inbound.Kind(), bus.KindCommand)
	}
	if got := inbound.ReceivedAt; !got.Equal(time.Unix(1700000000, 0)) {
		t.Fatalf("ReceivedAt = %v", got)
	}
	if inbound.Metadata["update_id"] != "7" || inbound.Metadata["message_id"] != "3" {
		t.Fatalf("Metadata = %v", inbound.Metadata)
	}
	if inbound.Media != nil {
		t.Fatalf("Media = %+v, want nil", inbound.Media)
	}
}

func TestToInboundMedia(t *testing.T) {
	tests := []struct {
		name    string
		message telego.Message
		want    bus.Media
	}{
		{
			name:    "photo sizes count as one image",
			message: telego.Message{Photo: []telego.PhotoSize{{Width: 90}, {Width: 320}, {Width: 1280}}},
			want:    bus.Media{Type: bus.MediaPhoto, Count: 1},
		},
		{
			name:    "document",
			message: telego.Message{Document: &telego.Document{FileName: "report.pdf", FileSize: 204800, MimeType: "application/pdf"}},
			want:    bus.Media{Type: bus.MediaDocument, FileName: "report.pdf", Size: 204800, MimeType: "application/pdf"},
		},
		{
			name:    "voice",
			message: telego.Message{Voice: &telego.Voice{Duration: 75}},
			want:    bus.Media{Type: bus.MediaVoice, Duration: 75 * time.Second},
		},
		{
			name:    "audio",
			message: telego.Message{Audio: &telego.Audio{Duration: 200, Title: "Song", Performer: "Band"}},
			want:    bus.Media{Type: bus.MediaAudio, Duration: 200 * time.Second, Title: "Song", Performer: "Band"},
		},
		{
			name:    "sticker",
			message: telego.Message{Sticker: &telego.Sticker{Emoji: "🔥", SetName: "fire"}},
			want:    bus.Media{Type: bus.MediaSticker, Emoji: "🔥", SetName: "fire"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			message := tt.message
			inbound, ok := toInbound(telego.Update{Message: &message})
			if !ok {
				t.Fatal("toInbound skipped a media message")
			}
			if inbound.Media == nil {
				t.Fatal("Media = nil")
			}
			if *inbound.Media != tt.want {
				t.Fatalf("Media = %+v, want %+v", *inbound.Media, tt.want)
			}
			if inbound.Kind() != bus.KindMedia {
				t.Fatalf("Kind = %q, want media", inbound.Kind())
			}
			if inbound.Sender != (bus.Sender{}) {
				t.Fatalf("Sender = %+v, want empty", inbound.Sender)
			}
		})
	}
}

func TestToInboundSkipsUpdatesWithoutMessage(t *testing.T) {
	if _, ok := toInbound(telego.Update{UpdateID: 1}); ok {
		t.Fatal("toInbound accepted an update without a message")
	}
}

func TestSendUsesHTMLParseMode(t *testing.T) {
	bot := &fakeBot{}
	adapter := newFakeAdapter(bot)

	err := adapter.Send(context.Background(), bus.OutboundMessage{ChatID: "42", Content: "<b>hi</b>", HTML: true})
	if err != nil {
		t.Fatalf("Send error = %v", err)
	}
	if len(bot.messages) != 1 {
		t.Fatalf("sent %d messages, want 1", len(bot.messages))
	}
	got := bot.messages[0]
	if got.ChatID.ID != 42 || got.Text != "<b>hi</b>" || got.ParseMode != telego.ModeHTML {
		t.Fatalf("SendMessage params = %+v", got)
	}

	if err := adapter.Send(context.Background(), bus.OutboundMessage{ChatID: "42", Content: "plain"}); err != nil {
		t.Fatalf("Send plain error = %v", err)
	}
	if bot.messages[1].ParseMode != "" {
		t.Fatalf("plain ParseMode = %q, want empty", bot.messages[1].ParseMode)
	}
}

func TestSendErrors(t *testing.T) {
	adapter := newFakeAdapter(&fakeBot{err: errors.New("Forbidden: bot was blocked by the user")})

	if err := adapter.Send(context.Background(), bus.OutboundMessage{ChatID: "42", Content: "x"}); err == nil {
		t.Fatal("Send error = nil, want platform error")
	}
	if err := adapter.Send(context.Background(), bus.OutboundMessage{ChatID: "abc", Content: "x"}); err == nil {
		t.Fatal("Send error = nil, want invalid chat id")
	}
}

func TestSendTyping(t *testing.T) {
	bot := &fakeBot{}
	adapter := newFakeAdapter(bot)

	if err := adapter.SendTyping(context.Background(), "-5"); err != nil {
		t.Fatalf("SendTyping error = %v", err)
	}
	if len(bot.actions) != 1 || bot.actions[0].Action != telego.ChatActionTyping || bot.actions[0].ChatID.ID != -5 {
		t.Fatalf("SendChatAction params = %+v", bot.actions)
	}
}
