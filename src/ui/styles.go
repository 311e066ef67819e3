package ui

import "github.com/charmbracelet/lipgloss"

type Styles struct {
	Header        lipgloss.Style
	Subtitle      lipgloss.Style
	List          lipgloss.Style
	ListHeader    lipgloss.Style
	Help          lipgloss.Style
	Footer        lipgloss.Style
	Accent        lipgloss.Style
	Error         lipgloss.Style
	Warning       lipgloss.Style
	Success       lipgloss.Style
	Thinking      lipgloss.Style
	Question      lipgloss.Style
	Status        lipgloss.Style
	StatusRight   lipgloss.Style
	ChatContainer lipgloss.Style
	Subtle        lipgloss.Style

	// Python highlighting
	CodeTitle lipgloss.Style
	Comment   lipgloss.Style
	Def       lipgloss.Style
	Import    lipgloss.Style
}

func NewStyles() Styles {
	return Styles{
		Header: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#555")).
			Faint(true).
			Padding(0, 1),

		Subtitle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#999999")).
			Padding(0, 1),

		List: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#AD8CFF")),

		ListHeader: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#AD8CFF")).
			Bold(true).
			Padding(0, 1),

		Help: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#777777")),

		Footer: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#777777")).
			Faint(true),

		Accent: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#AD8CFF")),

		Error: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5C5C")).
			Bold(true),

		Warning: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFC857")),

		Success: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#3DDC97")).
			Bold(true),

		Thinking: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#3DDC97")),

		Question: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00E6B8")).
			Bold(true),

		Status: lipgloss.NewStyle().
			Background(lipgloss.Color("#AD8CFF")).
			Foreground(lipgloss.Color("#FFFFFF")).
			Padding(0, 1),

		StatusRight: lipgloss.NewStyle().
			Inherit(lipgloss.NewStyle().
				Background(lipgloss.Color("#AD8CFF")).
				Foreground(lipgloss.Color("#FFFFFF")).
				Padding(0, 1)).Align(lipgloss.Right),

		ChatContainer: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#AD8CFF")).Padding(0, 1),

		Subtle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#999999")),

		CodeTitle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#3DDC97")).
			Bold(true),

		Comment: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6C6C6C")).
			TabWidth(lipgloss.NoTabConversion),

		Def: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFD75F")).
			TabWidth(lipgloss.NoTabConversion),

		Import: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF87FF")).
			TabWidth(lipgloss.NoTabConversion),
	}
}
