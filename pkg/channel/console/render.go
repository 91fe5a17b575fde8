package console

import (
	"html"
	"regexp"

	"github.com/charmbracelet/lipgloss"
)

var (
	boldTag = regexp.MustCompile(`(?s)<b>(.*?)</b>`)
	codeTag = regexp.MustCompile(`(?s)<code>(.*?)</code>`)
	anyTag  = regexp.MustCompile(`</?[a-zA-Z][^>]*>`)

	boldStyle = lipgloss.NewStyle().Bold(true)
	codeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("215"))
)

// renderHTML turns the bold/code reply markup into terminal styling and
// decodes escaped entities. Other tags are dropped.
func renderHTML(content string) string {
	content = boldTag.ReplaceAllStringFunc(content, func(match string) string {
		return boldStyle.Render(boldTag.FindStringSubmatch(match)[1])
	})
	content = codeTag.ReplaceAllStringFunc(content, func(match string) string {
		return codeStyle.Render(codeTag.FindStringSubmatch(match)[1])
	})
	content = anyTag.ReplaceAllString(content, "")
	return html.UnescapeString(content)
}
