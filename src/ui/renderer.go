package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const Logo = `
██╗      █████╗ ████████╗████████╗██╗ ██████╗███████╗
██║     ██╔══██╗╚══██╔══╝╚══██╔══╝██║██╔════╝██╔════╝
██║     ███████║   ██║      ██║   ██║██║     █████╗
██║     ██╔══██║   ██║      ██║   ██║██║     ██╔══╝
███████╗██║  ██║   ██║      ██║   ██║╚██████╗███████╗
╚══════╝╚═╝  ╚═╝   ╚═╝      ╚═╝   ╚═╝ ╚═════╝╚══════╝
              P Y T H O N  ·  S C R I P T  M A K E R
`

// Render generates the full UI string based on the provided state.
func Render(s State, styles Styles) string {
	header := renderHeader(styles)
	body := renderBody(s, styles)
	footer := renderFooter(s, styles)

	return lipgloss.JoinVertical(lipgloss.Left, header, body, footer)
}

// HeaderHeight and FooterHeight let the model size its viewport.
func HeaderHeight(styles Styles) int { return lipgloss.Height(renderHeader(styles)) }

func FooterHeight(s State, styles Styles) int { return lipgloss.Height(renderFooter(s, styles)) }

func renderHeader(styles Styles) string {
	logoStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#AD8CFF")).Bold(true).
		Background(lipgloss.Color("#000000")).UnsetBackground()
	subtitle := styles.Header.Render("Protocol Lattice · PyMaker")
	styledLogo := logoStyle.Render(Logo)

	return lipgloss.JoinVertical(lipgloss.Left, styledLogo, subtitle)
}

func renderFooter(s State, styles Styles) string {
	help := "ctrl+c: quit"
	switch s.Mode {
	case ModeChat:
		help += " | enter: send | /help: commands | pgup/pgdn: scroll"
	case ModeAsk:
		help += " | enter: answer | esc: cancel"
	case ModeHistory:
		help += " | ↑/↓: browse | esc: back"
	}
	return styles.Footer.Render(help)
}

func renderBody(s State, styles Styles) string {
	switch s.Mode {
	case ModeChat, ModeAsk:
		return renderChat(s, styles)
	case ModeHistory:
		return renderHistory(s, styles)
	default:
		return ""
	}
}

func renderChat(s State, styles Styles) string {
	var statusItems []string
	statusItems = append(statusItems, styles.Status.Render(fmt.Sprintf("SESSION: %s", shortID(s.SessionID))))
	c := s.Counters
	statusItems = append(statusItems, styles.StatusRight.Render(
		fmt.Sprintf("REQ: %d  OK: %d  FAIL: %d  API ERR: %d", c.Requests, c.Succeeded, c.Failed, c.APIErrors)))
	status := lipgloss.JoinHorizontal(lipgloss.Top, statusItems...)

	metaLines := []string{styles.Subtitle.Render(fmt.Sprintf("Model: %s", s.Model))}
	if s.ScriptsDir != "" {
		metaLines = append(metaLines, styles.Subtle.Render(fmt.Sprintf("Scripts: %s", s.ScriptsDir)))
	}

	parts := []string{
		lipgloss.JoinVertical(lipgloss.Left, metaLines...),
		s.Viewport.View(),
		status,
		renderThinking(s, styles),
	}
	if s.Mode == ModeAsk && s.Question != "" {
		parts = append(parts, styles.Question.Render(s.Question))
	}
	parts = append(parts, s.TextArea.View())
	return styles.ChatContainer.Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

func renderThinking(s State, styles Styles) string {
	if !s.IsThinking {
		return ""
	}
	return styles.Thinking.Render(fmt.Sprintf("Lattice %s %s", s.Spinner.View(), s.ThinkingText))
}

func renderHistory(s State, styles Styles) string {
	return lipgloss.JoinVertical(lipgloss.Left,
		styles.ListHeader.Render("Conversation History"),
		styles.List.Render(s.History.View()),
	)
}

// RenderCode frames code with a title bar and highlights Python lines:
// comments, def/class lines and imports.
func RenderCode(code string, styles Styles) string {
	var b strings.Builder
	b.WriteString(styles.CodeTitle.Render("━━━━━━━━━━━ Generated Code ━━━━━━━━━━━"))
	b.WriteString("\n")
	b.WriteString(HighlightPython(code, styles))
	b.WriteString("\n")
	b.WriteString(styles.CodeTitle.Render(strings.Repeat("━", 39)))
	b.WriteString("\n")
	return b.String()
}

// HighlightPython colors whole lines by their leading keyword.
func HighlightPython(code string, styles Styles) string {
	lines := strings.Split(code, "\n")
	for i, line := range lines {
		trimmed := strings.TrimLeft(line, " \t")
		switch {
		case strings.HasPrefix(trimmed, "#"):
			lines[i] = styles.Comment.Render(line)
		case strings.HasPrefix(trimmed, "def "), strings.HasPrefix(trimmed, "class "),
			strings.HasPrefix(trimmed, "async def "):
			lines[i] = styles.Def.Render(line)
		case strings.HasPrefix(trimmed, "import "), strings.HasPrefix(trimmed, "from "):
			lines[i] = styles.Import.Render(line)
		}
	}
	return strings.Join(lines, "\n")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	if id == "" {
		return "-"
	}
	return id
}
