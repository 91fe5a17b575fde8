package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"routerbot/pkg/bus"
	"routerbot/pkg/channel"
	"routerbot/pkg/logger"
	"routerbot/pkg/router"
)

const (
	typingRefreshInterval = 4 * time.Second

	textApology    = "❌ Произошла ошибка при обработке вашего сообщения. Попробуйте позже."
	commandApology = "❌ Произошла ошибка при обработке команды. Попробуйте позже."
	mediaApology   = "❌ Произошла ошибка при обработке медиа. Попробуйте позже."
)

// Messengers resolves the outbound side of a channel.
type Messengers interface {
	For(name string) (channel.Messenger, error)
}

// TextRouter answers free text.
type TextRouter interface {
	Process(ctx context.Context, text string, rc router.Context) router.Reply
	Stats() router.Stats
}

// DeliveryError reports a reply the messaging platform did not accept.
type DeliveryError struct {
	Channel string
	ChatID  string
	Err     error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver reply to %s chat %s: %v", e.Channel, e.ChatID, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the dispatcher logger.
func WithLogger(log *slog.Logger) Option {
	return func(d *Dispatcher) {
		if log != nil {
			d.log = log
		}
	}
}

// WithBus publishes processing events on mb.
func WithBus(mb *bus.MessageBus) Option {
	return func(d *Dispatcher) {
		d.bus = mb
	}
}

// WithTypingInterval overrides how often the typing indicator is refreshed.
func WithTypingInterval(interval time.Duration) Option {
	return func(d *Dispatcher) {
		if interval > 0 {
			d.typingInterval = interval
		}
	}
}

// WithClock overrides the time source used by /time.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// Dispatcher is the per-message entry point. Every well-formed message gets
// exactly one reply; failures become apologies.
type Dispatcher struct {
	messengers     Messengers
	router         TextRouter
	bus            *bus.MessageBus
	log            *slog.Logger
	typingInterval time.Duration
	now            func() time.Time
	commands       []Command
	stats          *statsRecorder
}

func New(messengers Messengers, textRouter TextRouter, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		messengers:     messengers,
		router:         textRouter,
		log:            slog.Default(),
		typingInterval: typingRefreshInterval,
		now:            time.Now,
		stats:          newStatsRecorder(time.Now()),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.log = d.log.With("component", "dispatcher")
	d.commands = d.builtinCommands()
	return d
}

// Handle processes one inbound message. It never panics and never returns an
// error; outcomes are logged, counted and published as events.
func (d *Dispatcher) Handle(ctx context.Context, msg bus.InboundMessage) {
	requestID := uuid.NewString()
	kind := msg.Kind()
	log := d.log.With("request_id", requestID, "channel", msg.Channel, "chat_id", msg.ChatID, "kind", kind)

	d.publish(ctx, bus.Event{Type: bus.EventMessageReceived, RequestID: requestID, Channel: msg.Channel, ChatID: msg.ChatID, Kind: kind})
	log.Info("Received message", "sender_id", msg.Sender.ID, "text_preview", logger.Preview(msg.Text))

	if kind == bus.KindUnknown {
		log.Debug("Ignoring message without text or media")
		return
	}

	messenger, err := d.messengers.For(msg.Channel)
	if err != nil {
		log.Error("No messenger for channel", "error", err)
		d.fail(ctx, requestID, msg, kind, err)
		return
	}

	startedAt := time.Now()
	reply, handled, err := d.respond(ctx, msg, kind, messenger, log)
	if !handled {
		log.Debug("Ignoring unknown command", "command", commandName(msg.Text))
		return
	}
	if err != nil {
		log.Error("Failed to process message", "error", err)
		d.fail(ctx, requestID, msg, kind, err)
		reply = apologyFor(kind)
	}

	d.deliver(ctx, requestID, msg, kind, messenger, reply, log)
	d.stats.recordProcessed()
	log.Debug("Message processed", "duration_ms", time.Since(startedAt).Milliseconds())
}

// respond builds the reply for msg. handled is false for commands that are not
// registered.
func (d *Dispatcher) respond(ctx context.Context, msg bus.InboundMessage, kind bus.Kind, messenger channel.Messenger, log *slog.Logger) (reply string, handled bool, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			handled = true
			err = fmt.Errorf("panic: %v", recovered)
		}
	}()

	switch kind {
	case bus.KindCommand:
		return d.runCommand(ctx, msg)
	case bus.KindMedia:
		reply, err = describeMedia(msg.Media)
		return reply, true, err
	default:
		return d.answerText(ctx, msg, messenger, log), true, nil
	}
}

func (d *Dispatcher) answerText(ctx context.Context, msg bus.InboundMessage, messenger channel.Messenger, log *slog.Logger) string {
	if d.router == nil {
		panic("dispatcher: text router is not configured")
	}

	stopTyping := d.keepTyping(ctx, messenger, msg.ChatID, log)
	defer stopTyping()

	reply := d.router.Process(ctx, msg.Text, router.Context{ChatID: msg.ChatID})

	if reply.Err != nil {
		d.stats.recordError(reply.Err, bus.KindText)
	}
	log.Debug("Text routed", "outcome", reply.Outcome, "binding", reply.BindingID)
	return reply.Text
}

// keepTyping sends a typing action before returning, then refreshes it every
// typingInterval until the returned stop function is called. Failures are only
// logged.
func (d *Dispatcher) keepTyping(ctx context.Context, messenger channel.Messenger, chatID string, log *slog.Logger) func() {
	typingCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	sendTyping := func() {
		if err := messenger.SendTyping(typingCtx, chatID); err != nil && typingCtx.Err() == nil {
			log.Debug("Failed to send typing indicator", "error", err)
		}
	}
	sendTyping()

	go func() {
		defer close(done)

		ticker := time.NewTicker(d.typingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-typingCtx.Done():
				return
			case <-ticker.C:
				sendTyping()
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

// deliver sends reply and, when that fails, makes one attempt to send the
// apology instead.
func (d *Dispatcher) deliver(ctx context.Context, requestID string, msg bus.InboundMessage, kind bus.Kind, messenger channel.Messenger, reply string, log *slog.Logger) {
	log.Info("Sending reply", "text_preview", logger.Preview(reply))

	err := messenger.Send(ctx, msg.Reply(reply))
	if err == nil {
		d.publish(ctx, bus.Event{Type: bus.EventMessageReplied, RequestID: requestID, Channel: msg.Channel, ChatID: msg.ChatID, Kind: kind})
		return
	}

	deliveryErr := &DeliveryError{Channel: msg.Channel, ChatID: msg.ChatID, Err: err}
	log.Error("Failed to deliver reply", "error", deliveryErr)
	d.fail(ctx, requestID, msg, kind, deliveryErr)

	apology := apologyFor(kind)
	if reply == apology {
		return
	}
	if err := messenger.Send(ctx, msg.Reply(apology)); err != nil {
		log.Error("Failed to deliver apology", "error", err)
	}
}

func (d *Dispatcher) fail(ctx context.Context, requestID string, msg bus.InboundMessage, kind bus.Kind, err error) {
	d.stats.recordError(err, kind)
	d.publish(ctx, bus.Event{
		Type:      bus.EventMessageFailed,
		RequestID: requestID,
		Channel:   msg.Channel,
		ChatID:    msg.ChatID,
		Kind:      kind,
		Error:     err.Error(),
	})
}

func (d *Dispatcher) publish(ctx context.Context, event bus.Event) {
	if d.bus == nil {
		return
	}
	d.bus.PublishEvent(ctx, event)
}

func apologyFor(kind bus.Kind) string {
	switch kind {
	case bus.KindCommand:
		return commandApology
	case bus.KindMedia:
		return mediaApology
	default:
		return textApology
	}
}

func commandName(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	name := strings.TrimPrefix(fields[0], "/")
	name, _, _ = strings.Cut(name, "@")
	return strings.ToLower(name)
}
