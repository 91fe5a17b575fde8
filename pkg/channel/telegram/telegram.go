package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"routerbot/pkg/bus"
	"routerbot/pkg/channel"
	"routerbot/pkg/config"
	"routerbot/pkg/logger"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

const channelName = "telegram"

// botAPI is the subset of *telego.Bot used for outbound calls.
type botAPI interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
	SendChatAction(ctx context.Context, params *telego.SendChatActionParams) error
}

// Adapter bridges Telegram long polling into inbound messages and sends
// replies back with HTML parse mode.
type Adapter struct {
	bot *telego.Bot
	api botAPI
	log *slog.Logger
}

// NewAdapter validates Telegram configuration and constructs an adapter instance.
func NewAdapter(cfg config.TelegramConfig, log *slog.Logger) (*Adapter, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, config.Invalid("channels.telegram.token", "token is required")
	}

	if log == nil {
		log = slog.Default()
	}

	bot, err := telego.NewBot(token)
	if err != nil {
		return nil, config.Invalid("channels.telegram.token", "initialize telegram bot: %v", err)
	}

	return &Adapter{
		bot: bot,
		api: bot,
		log: log.With("component", "channel.telegram"),
	}, nil
}

// Name returns the channel identifier used in bus messages and logs.
func (a *Adapter) Name() string {
	return channelName
}

// Run starts Telegram long polling and hands every usable message to handler.
func (a *Adapter) Run(ctx context.Context, handler channel.Handler) error {
	if handler == nil {
		return errors.New("handler is required")
	}
	if a.bot == nil {
		return errors.New("telegram bot is not initialized")
	}

	updates, err := a.bot.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return fmt.Errorf("start long polling: %w", err)
	}

	a.log.Info("Telegram channel started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				if err := ctx.Err(); err != nil {
					return nil
				}
				return errors.New("telegram updates channel closed")
			}

			inbound, ok := toInbound(update)
			if !ok {
				continue
			}
			handler(ctx, inbound)
		}
	}
}

// Send delivers one reply. HTML replies use the HTML parse mode.
func (a *Adapter) Send(ctx context.Context, msg bus.OutboundMessage) error {
	chatID, err := parseChatID(msg.ChatID)
	if err != nil {
		return err
	}

	params := tu.Message(tu.ID(chatID), msg.Content)
	if msg.HTML {
		params = params.WithParseMode(telego.ModeHTML)
	}

	if _, err := a.api.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	a.log.Debug("Sent message", "chat_id", msg.ChatID, "content", logger.Preview(msg.Content))
	return nil
}

// SendTyping shows the typing indicator in chatID.
func (a *Adapter) SendTyping(ctx context.Context, chatID string) error {
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}
	return a.api.SendChatAction(ctx, tu.ChatAction(tu.ID(id), telego.ChatActionTyping))
}

// toInbound converts an update into a bus message. Updates without a message
// are skipped; messages without text or known media are passed on so the
// dispatcher can log and ignore them.
func toInbound(update telego.Update) (bus.InboundMessage, bool) {
	message := update.Message
	if message == nil {
		return bus.InboundMessage{}, false
	}

	inbound := bus.InboundMessage{
		Channel:    channelName,
		ChatID:     strconv.FormatInt(message.Chat.ID, 10),
		ChatType:   message.Chat.Type,
		ChatTitle:  message.Chat.Title,
		Text:       message.Text,
		Media:      mediaOf(message),
		ReceivedAt: time.Unix(message.Date, 0).UTC(),
		Metadata: map[string]string{
			"update_id":  strconv.Itoa(update.UpdateID),
			"message_id": strconv.Itoa(message.MessageID),
		},
	}
	if message.Date == 0 {
		inbound.ReceivedAt = time.Now().UTC()
	}
	if from := message.From; from != nil {
		inbound.Sender = bus.Sender{
			ID:        strconv.FormatInt(from.ID, 10),
			FirstName: from.FirstName,
			LastName:  from.LastName,
			Username:  from.Username,
		}
	}
	return inbound, true
}

func mediaOf(message *telego.Message) *bus.Media {
	seconds := func(n int) time.Duration { return time.Duration(n) * time.Second }

	switch {
	case len(message.Photo) > 0:
		// Photo lists size variants of one image.
		return &bus.Media{Type: bus.MediaPhoto, Count: 1}
	case message.Document != nil:
		doc := message.Document
		return &bus.Media{Type: bus.MediaDocument, FileName: doc.FileName, Size: doc.FileSize, MimeType: doc.MimeType}
	case message.Voice != nil:
		return &bus.Media{Type: bus.MediaVoice, Duration: seconds(message.Voice.Duration), Size: message.Voice.FileSize}
	case message.Video != nil:
		return &bus.Media{Type: bus.MediaVideo, Duration: seconds(message.Video.Duration), Size: message.Video.FileSize}
	case message.Audio != nil:
		audio := message.Audio
		return &bus.Media{
			Type:      bus.MediaAudio,
			Duration:  seconds(audio.Duration),
			Title:     audio.Title,
			Performer: audio.Performer,
			Size:      audio.FileSize,
		}
	case message.Sticker != nil:
		return &bus.Media{Type: bus.MediaSticker, Emoji: message.Sticker.Emoji, SetName: message.Sticker.SetName}
	default:
		return nil
	}
}

func parseChatID(chatID string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(chatID), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid telegram chat id %q: %w", chatID, err)
	}
	return id, nil
}
