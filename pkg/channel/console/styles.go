package console

import "github.com/charmbracelet/lipgloss"

// theme groups reusable styles for chat UI regions.
type theme struct {
	header     lipgloss.Style
	headerMeta lipgloss.Style
	divider    lipgloss.Style
	userBox    lipgloss.Style
	userTitle  lipgloss.Style
	botBox     lipgloss.Style
	botTitle   lipgloss.Style
	status     lipgloss.Style
	statusBusy lipgloss.Style
	hint       lipgloss.Style
	inputLabel lipgloss.Style
	input      lipgloss.Style
	viewport   lipgloss.Style
}

func defaultTheme() theme {
	return theme{
		header: lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("24")),
		headerMeta: lipgloss.NewStyle().
			Foreground(lipgloss.Color("152")),
		divider: lipgloss.NewStyle().
			Foreground(lipgloss.Color("31")),
		userBox: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("214")).
			Padding(0, 1),
		userTitle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("16")).
			Background(lipgloss.Color("214")).
			Padding(0, 1),
		botBox: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("44")).
			Padding(0, 1),
		botTitle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("16")).
			Background(lipgloss.Color("44")).
			Padding(0, 1),
		status: lipgloss.NewStyle().
			Foreground(lipgloss.Color("250")).
			Bold(true),
		statusBusy: lipgloss.NewStyle().
			Foreground(lipgloss.Color("222")).
			Bold(true),
		hint: lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")),
		inputLabel: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("229")),
		input: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("31")).
			Padding(0, 1),
		viewport: lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("31")).
			Padding(0, 1),
	}
}
