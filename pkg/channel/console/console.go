package console

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"routerbot/pkg/bus"
	"routerbot/pkg/channel"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	channelName = "console"
	localChatID = "local"
)

var errNotRunning = errors.New("console is not running")

// Option configures an Adapter.
type Option func(*Adapter)

// WithSender sets the identity attached to typed messages.
func WithSender(sender bus.Sender) Option {
	return func(a *Adapter) {
		a.sender = sender
	}
}

// WithLogger sets the adapter logger.
func WithLogger(log *slog.Logger) Option {
	return func(a *Adapter) {
		if log != nil {
			a.log = log
		}
	}
}

// WithOnQuit registers a callback invoked when the user leaves the chat.
func WithOnQuit(fn func()) Option {
	return func(a *Adapter) {
		a.onQuit = fn
	}
}

// WithProgramOptions passes extra options to the bubbletea program.
func WithProgramOptions(opts ...tea.ProgramOption) Option {
	return func(a *Adapter) {
		a.programOpts = append(a.programOpts, opts...)
	}
}

// Adapter is a local terminal chat that talks to the bot through the same
// dispatch path as remote channels.
type Adapter struct {
	sender      bus.Sender
	log         *slog.Logger
	onQuit      func()
	programOpts []tea.ProgramOption

	mu      sync.RWMutex
	program *tea.Program
}

func NewAdapter(opts ...Option) *Adapter {
	a := &Adapter{
		sender: bus.Sender{ID: localChatID},
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.log = a.log.With("component", "channel.console")
	return a
}

// Name returns the channel identifier used in bus messages and logs.
func (a *Adapter) Name() string {
	return channelName
}

// Run shows the chat UI until ctx is done or the user quits.
func (a *Adapter) Run(ctx context.Context, handler channel.Handler) error {
	if handler == nil {
		return errors.New("handler is required")
	}

	submit := func(text string) {
		handler(ctx, bus.InboundMessage{
			Channel:    channelName,
			ChatID:     localChatID,
			ChatType:   "private",
			Sender:     a.sender,
			Text:       text,
			ReceivedAt: time.Now().UTC(),
		})
	}

	opts := append([]tea.ProgramOption{tea.WithContext(ctx), tea.WithMouseCellMotion()}, a.programOpts...)
	program := tea.NewProgram(newModel(submit, a.sender), opts...)

	a.mu.Lock()
	a.program = program
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		a.program = nil
		a.mu.Unlock()
	}()

	a.log.Info("Console channel started")
	_, err := program.Run()
	if err != nil && !(errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil) {
		return fmt.Errorf("run console: %w", err)
	}

	if ctx.Err() == nil {
		fmt.Println(renderGoodbyeBanner())
		if a.onQuit != nil {
			a.onQuit()
		}
	}
	return nil
}

// Send shows a bot reply in the chat.
func (a *Adapter) Send(_ context.Context, msg bus.OutboundMessage) error {
	content := msg.Content
	if msg.HTML {
		content = renderHTML(content)
	}
	return a.send(replyMsg{content: content})
}

// SendTyping shows the typing indicator until the next reply.
func (a *Adapter) SendTyping(_ context.Context, _ string) error {
	return a.send(typingMsg{})
}

func (a *Adapter) send(msg tea.Msg) error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.program == nil {
		return errNotRunning
	}
	a.program.Send(msg)
	return nil
}

func renderGoodbyeBanner() string {
	style := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("230")).
		Background(lipgloss.Color("24")).
		Padding(1, 2)

	return style.Render("🤖 До встречи!")
}

func isExitCommand(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "exit", "/exit", "quit", ":q":
		return true
	default:
		return false
	}
}
