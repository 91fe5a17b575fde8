package dispatcher

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode"

	"routerbot/pkg/bus"
	"routerbot/pkg/router"
)

const defaultUserName = "Пользователь"

// moscow is used by /time. The fixed zone covers hosts without tzdata.
var moscow = loadLocation("Europe/Moscow", time.FixedZone("MSK", 3*60*60))

var genitiveMonths = [...]string{
	"января", "февраля", "марта", "апреля", "мая", "июня",
	"июля", "августа", "сентября", "октября", "ноября", "декабря",
}

// Command is a slash command with a fixed responder.
type Command struct {
	Name        string
	Usage       string
	Description string
	Run         func(ctx context.Context, msg bus.InboundMessage) (string, error)
}

// Commands returns the registered commands in help order.
func (d *Dispatcher) Commands() []Command {
	return slices.Clone(d.commands)
}

func (d *Dispatcher) builtinCommands() []Command {
	return []Command{
		{Name: "start", Description: "Начать работу с ботом", Run: d.handleStart},
		{Name: "help", Description: "Показать справку по командам", Run: d.handleHelp},
		{Name: "echo", Usage: "[текст]", Description: "Повторить ваш текст", Run: d.handleEcho},
		{Name: "info", Description: "Информация о чате", Run: d.handleInfo},
		{Name: "time", Description: "Текущее время", Run: d.handleTime},
		{Name: "stats", Description: "Показать статистику работы", Run: d.handleStats},
	}
}

func (d *Dispatcher) runCommand(ctx context.Context, msg bus.InboundMessage) (string, bool, error) {
	name := commandName(msg.Text)
	idx := slices.IndexFunc(d.commands, func(c Command) bool { return c.Name == name })
	if idx < 0 {
		return "", false, nil
	}

	reply, err := d.commands[idx].Run(ctx, msg)
	if err != nil {
		return "", true, fmt.Errorf("command /%s: %w", name, err)
	}
	return reply, true, nil
}

func (d *Dispatcher) handleStart(_ context.Context, msg bus.InboundMessage) (string, error) {
	return "Привет, <b>" + router.Escape(displayName(msg.Sender)) + "</b>! 👋\n\n" +
		"Я телеграм бот с поллингом. " +
		"Используй команду <code>/help</code> для получения списка доступных команд.\n\n" +
		"🚀 Готов к работе!", nil
}

func (d *Dispatcher) handleHelp(context.Context, bus.InboundMessage) (string, error) {
	var b strings.Builder
	b.WriteString("🤖 <b>Доступные команды:</b>\n\n")
	for _, c := range d.commands {
		usage := "/" + c.Name
		if c.Usage != "" {
			usage += " " + c.Usage
		}
		fmt.Fprintf(&b, "<code>%s</code> - %s\n", router.Escape(usage), c.Description)
	}
	b.WriteString("\n💡 <i>Просто отправьте мне любое сообщение, и я отвечу!</i>")
	return b.String(), nil
}

func (d *Dispatcher) handleEcho(_ context.Context, msg bus.InboundMessage) (string, error) {
	text := commandArgs(msg.Text)
	if text == "" {
		return "Использование: <code>/echo [текст]</code>", nil
	}
	return "🔊 Эхо: " + router.Escape(text), nil
}

func (d *Dispatcher) handleInfo(_ context.Context, msg bus.InboundMessage) (string, error) {
	user := strings.TrimSpace(msg.Sender.FirstName + " " + msg.Sender.LastName)
	username := "не указан"
	if u := strings.TrimSpace(msg.Sender.Username); u != "" {
		username = "@" + u
	}

	var b strings.Builder
	b.WriteString("📊 <b>Информация о чате:</b>\n\n")
	fmt.Fprintf(&b, "ID чата: <code>%s</code>\n", router.Escape(msg.ChatID))
	fmt.Fprintf(&b, "Тип чата: %s\n", router.Escape(orDefault(msg.ChatType, "неизвестно")))
	fmt.Fprintf(&b, "Название: %s\n", router.Escape(orDefault(msg.ChatTitle, "Личный чат")))
	fmt.Fprintf(&b, "Пользователь: %s\n", router.Escape(orDefault(user, defaultUserName)))
	fmt.Fprintf(&b, "Username: %s", router.Escape(username))
	return b.String(), nil
}

func (d *Dispatcher) handleTime(context.Context, bus.InboundMessage) (string, error) {
	return "🕐 Текущее время: " + formatMoscowTime(d.now()), nil
}

func (d *Dispatcher) handleStats(context.Context, bus.InboundMessage) (string, error) {
	s := d.Snapshot()

	var b strings.Builder
	b.WriteString("📊 <b>Статистика работы</b>\n\n")
	fmt.Fprintf(&b, "⏱️ Время работы: %s\n", FormatUptime(s.Uptime))
	fmt.Fprintf(&b, "📨 Сообщений обработано: %d\n", s.MessagesProcessed)
	fmt.Fprintf(&b, "❌ Ошибок: %d\n", s.ErrorCount)
	if s.Router != nil {
		r := s.Router
		fmt.Fprintf(&b, "\n🧭 <b>Маршрутизация</b>\n")
		fmt.Fprintf(&b, "Всего запросов: %d\n", r.TotalRequests)
		fmt.Fprintf(&b, "По классификации: %d\n", r.ClassifiedRequests)
		fmt.Fprintf(&b, "По шаблонам: %d\n", r.PatternRequests)
		fmt.Fprintf(&b, "Через LLM: %d\n", r.GenerationRequests)
		fmt.Fprintf(&b, "Ответ по умолчанию: %d\n", r.DefaultRequests)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func displayName(sender bus.Sender) string {
	if name := strings.TrimSpace(sender.FirstName); name != "" {
		return name
	}
	if username := strings.TrimSpace(sender.Username); username != "" {
		return "@" + username
	}
	return defaultUserName
}

// commandArgs returns the text after the command word.
func commandArgs(text string) string {
	text = strings.TrimSpace(text)
	idx := strings.IndexFunc(text, unicode.IsSpace)
	if idx < 0 {
		return ""
	}
	return strings.TrimSpace(text[idx:])
}

// formatMoscowTime renders t like "19 октября 2026 г., 14:05:09".
func formatMoscowTime(t time.Time) string {
	t = t.In(moscow)
	return fmt.Sprintf("%d %s %d г., %s", t.Day(), genitiveMonths[t.Month()-1], t.Year(), t.Format("15:04:05"))
}

func loadLocation(name string, fallback *time.Location) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return fallback
	}
	return loc
}
