package tui

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	faintStyle   = lipgloss.NewStyle().Faint(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	boxStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)

	highlightBoxStyle = boxStyle.BorderForeground(lipgloss.Color("11"))
)

// StatusLine renders a relay result for plain terminal output.
func StatusLine(ok bool, msg string) string {
	if ok {
		return successStyle.Render("Success! ") + msg
	}
	return errorStyle.Render("Server Error: ") + msg
}

// ErrorLine renders a transport failure.
func ErrorLine(msg string) string {
	return errorStyle.Render("Network Error: ") + msg
}

// Hint renders faint follow-up advice.
func Hint(msg string) string {
	return faintStyle.Render(msg)
}

// Box frames a block such as a code preview.
func Box(title, body string) string {
	return boxStyle.Render(labelStyle.Render(title) + "\n" + body)
}
