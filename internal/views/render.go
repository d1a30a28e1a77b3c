package views

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

// Page is one screenful of CLI output.
type Page struct {
	Header     string
	Body       string
	Aside      string
	StatusLine string
	Footer     string
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	panelStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	footerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

func RenderPage(p Page) string {
	body := panelStyle.Render(p.Body)
	if p.Aside != "" {
		body = lipgloss.JoinHorizontal(lipgloss.Top, body, panelStyle.Render(p.Aside))
	}

	lines := make([]string, 0, 4)
	if p.Header != "" {
		lines = append(lines, headerStyle.Render(p.Header))
	}
	lines = append(lines, body)
	if p.StatusLine != "" {
		status := statusStyle.Render(p.StatusLine)
		if strings.Contains(strings.ToLower(p.StatusLine), "error") {
			status = errorStyle.Render(p.StatusLine)
		}
		lines = append(lines, status)
	}
	if p.Footer != "" {
		lines = append(lines, footerStyle.Render(p.Footer))
	}
	return strings.Join(lines, "\n")
}

func RenderMarkdown(md string) string {
	if strings.TrimSpace(md) == "" {
		return ""
	}
	out, err := glamour.Render(md, "dark")
	if err != nil {
		return md
	}
	return strings.TrimSpace(out)
}
