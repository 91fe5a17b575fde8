package console

import (
	"fmt"
	"strings"

	"routerbot/pkg/bus"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	roleUser = "user"
	roleBot  = "bot"

	wheelStep = 3
)

type chatMessage struct {
	role    string
	content string
}

type replyMsg struct {
	content string
}

type typingMsg struct{}

type submittedMsg struct{}

type model struct {
	submit func(text string)
	sender bus.Sender

	theme     theme
	spinner   spinner.Model
	input     textinput.Model
	viewport  viewport.Model
	messages  []chatMessage
	width     int
	height    int
	isReady   bool
	typing    bool
	followLog bool
	replies   int
}

func newModel(submit func(text string), sender bus.Sender) *model {
	spin := spinner.New()
	spin.Spinner = spinner.Points
	spin.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("44"))

	in := textinput.New()
	in.Prompt = ""
	in.Placeholder = "Напишите сообщение или /help..."
	in.Focus()
	in.CharLimit = 0

	return &model{
		submit:    submit,
		sender:    sender,
		theme:     defaultTheme(),
		spinner:   spin,
		input:     in,
		viewport:  viewport.New(80, 12),
		width:     100,
		height:    28,
		followLog: true,
	}
}

func (m *model) Init() tea.Cmd {
	return textinput.Blink
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = typed.Width
		m.height = typed.Height
		m.resizeComponents()
		m.refreshViewport(false)
		m.isReady = true
		return m, nil
	case tea.MouseMsg:
		m.handleViewportMouse(typed)
		return m, nil
	case tea.KeyMsg:
		switch typed.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		}

		if m.handleViewportKey(typed) {
			return m, nil
		}

		if typed.String() == "enter" {
			text := strings.TrimSpace(m.input.Value())
			if text == "" {
				return m, nil
			}
			if isExitCommand(text) {
				return m, tea.Quit
			}

			m.messages = append(m.messages, chatMessage{role: roleUser, content: text})
			m.input.SetValue("")
			m.followLog = true
			m.refreshViewport(true)
			return m, submitCmd(m.submit, text)
		}
	case typingMsg:
		if m.typing {
			return m, nil
		}
		m.typing = true
		return m, m.spinner.Tick
	case spinner.TickMsg:
		if !m.typing {
			return m, nil
		}
		m.spinner, cmd = m.spinner.Update(typed)
		return m, cmd
	case replyMsg:
		m.typing = false
		m.replies++
		m.messages = append(m.messages, chatMessage{role: roleBot, content: typed.content})
		m.refreshViewport(false)
		return m, nil
	case submittedMsg:
		return m, nil
	}

	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *model) View() string {
	if !m.isReady {
		m.resizeComponents()
		m.refreshViewport(false)
	}

	header := m.theme.header.Width(m.width - 2).Render("🤖 Routerbot · локальный чат")
	meta := m.theme.headerMeta.Render(fmt.Sprintf(
		"channel:%s · user:%s · sent:%d · replies:%d",
		channelName,
		displayOrNA(m.sender.FirstName),
		countRole(m.messages, roleUser),
		m.replies,
	))
	line := m.theme.divider.Width(m.width - 2).Render(strings.Repeat("─", max(8, m.width-2)))

	status := m.theme.status.Render("💡 Enter отправить  ·  PgUp/PgDn прокрутка  ·  End к последнему  ·  Ctrl+C/Esc выход")
	if m.typing {
		status = m.theme.statusBusy.Render(fmt.Sprintf("%s бот печатает...", m.spinner.View()))
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		meta,
		line,
		m.theme.viewport.Width(m.width-2).Render(m.viewport.View()),
		status,
		m.theme.inputLabel.Render("👤 Вы")+" "+m.theme.hint.Render("(exit, quit или :q для выхода)"),
		m.theme.input.Width(m.width-2).Render(m.input.View()),
	)
}

func (m *model) resizeComponents() {
	w := max(40, m.width-6)
	h := max(6, m.height-10)

	m.viewport.Width = w
	m.viewport.Height = h
	m.input.Width = w - 2
}

func (m *model) refreshViewport(forceBottom bool) {
	previousOffset := m.viewport.YOffset
	sections := make([]string, 0, len(m.messages))
	for _, item := range m.messages {
		content := strings.TrimSpace(item.content)
		switch item.role {
		case roleUser:
			sections = append(sections, m.renderCard(m.theme.userTitle.Render("👤 Вы"), m.theme.userBox.Width(m.viewport.Width).Render(content)))
		case roleBot:
			sections = append(sections, m.renderCard(m.theme.botTitle.Render("🤖 Бот"), m.theme.botBox.Width(m.viewport.Width).Render(content)))
		}
	}

	m.viewport.SetContent(strings.Join(sections, "\n\n"))
	if m.followLog || forceBottom {
		m.viewport.GotoBottom()
		m.followLog = true
		return
	}

	maxOffset := max(0, m.viewport.TotalLineCount()-m.viewport.Height)
	m.viewport.SetYOffset(min(previousOffset, maxOffset))
}

func (m *model) renderCard(title string, body string) string {
	return lipgloss.JoinVertical(lipgloss.Left, title, body)
}

func (m *model) handleViewportKey(msg tea.KeyMsg) bool {
	switch msg.String() {
	case "pgup", "ctrl+b", "alt+up", "ctrl+up":
		m.viewport.PageUp()
		m.followLog = false
		return true
	case "pgdown", "ctrl+f", "alt+down", "ctrl+down":
		m.viewport.PageDown()
		m.followLog = m.viewport.AtBottom()
		return true
	case "home":
		m.viewport.GotoTop()
		m.followLog = false
		return true
	case "end":
		m.viewport.GotoBottom()
		m.followLog = true
		return true
	default:
		return false
	}
}

// handleViewportMouse scrolls on wheel events. Scrolling up detaches the view
// from the newest message until it is scrolled back to the bottom.
func (m *model) handleViewportMouse(msg tea.MouseMsg) bool {
	if msg.Action != tea.MouseActionPress {
		return false
	}

	switch msg.Button {
	case tea.MouseButtonWheelUp:
		m.viewport.SetYOffset(m.viewport.YOffset - wheelStep)
		m.followLog = false
		return true
	case tea.MouseButtonWheelDown:
		m.viewport.SetYOffset(m.viewport.YOffset + wheelStep)
		m.followLog = m.viewport.AtBottom()
		return true
	default:
		return false
	}
}

func submitCmd(submit func(string), text string) tea.Cmd {
	return func() tea.Msg {
		if submit != nil {
			submit(text)
		}
		return submittedMsg{}
	}
}

func displayOrNA(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "n/a"
	}
	return trimmed
}

func countRole(messages []chatMessage, role string) int {
	count := 0
	for _, message := range messages {
		if message.role == role {
			count++
		}
	}
	return count
}
