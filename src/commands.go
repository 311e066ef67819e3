package src

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/Protocol-Lattice/lattice-pymaker/src/convo"
)

// Command is a parsed slash command such as "/save out.py".
type Command struct {
	Name string
	Arg  string
}

// Known reports whether Name is one of the supported commands.
func (c Command) Known() bool {
	for _, h := range commandHelp {
		for _, n := range h.names {
			if n == c.Name {
				return true
			}
		}
	}
	return false
}

// ParseCommand splits a line that starts with "/". Anything else is a
// generation request and yields ok == false.
func ParseCommand(line string) (cmd Command, ok bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return Command{}, false
	}
	name, arg, _ := strings.Cut(line[1:], " ")
	return Command{Name: strings.ToLower(name), Arg: strings.TrimSpace(arg)}, true
}

var commandHelp = []struct {
	names []string
	usage string
	desc  string
}{
	{[]string{"quit", "exit"}, "/quit, /exit", "Exit the program"},
	{[]string{"help"}, "/help", "Show this help"},
	{[]string{"clear"}, "/clear", "Clear conversation history"},
	{[]string{"refine"}, "/refine [change]", "Refine the last generated code"},
	{[]string{"save"}, "/save [file]", "Save last code to a file"},
	{[]string{"run"}, "/run [file]", "Run the last code again, or an existing script"},
	{[]string{"history"}, "/history", "Show conversation history"},
	{[]string{"stats"}, "/stats", "Show session statistics"},
}

// HelpText lists the commands, one per line.
func HelpText() string {
	var b strings.Builder
	b.WriteString("Available Commands:\n")
	for _, h := range commandHelp {
		fmt.Fprintf(&b, "  %-18s %s\n", h.usage, h.desc)
	}
	return b.String()
}

const previewRunes = 100

// Preview shortens s to 100 runes for the history listing.
func Preview(s string) string {
	if utf8.RuneCountInString(s) <= previewRunes {
		return s
	}
	r := []rune(s)
	return string(r[:previewRunes]) + "..."
}

// FormatHistory renders the numbered /history listing.
func FormatHistory(turns []convo.Turn) string {
	if len(turns) == 0 {
		return "No conversation history yet.\n"
	}
	var b strings.Builder
	b.WriteString("Conversation History:\n")
	for i, t := range turns {
		fmt.Fprintf(&b, "\n%d. [%s]\n%s\n", i+1, t.Role, Preview(t.Content))
	}
	return b.String()
}

// FormatMetrics renders the /stats and end-of-session summary.
func FormatMetrics(m Metrics) string {
	var b strings.Builder
	b.WriteString("Session Statistics:\n")
	fmt.Fprintf(&b, "  Total requests:        %d\n", m.TotalRequests)
	fmt.Fprintf(&b, "  Successful executions: %d\n", m.SuccessfulExecutions)
	fmt.Fprintf(&b, "  Failed executions:     %d\n", m.FailedExecutions)
	fmt.Fprintf(&b, "  API errors:            %d\n", m.APIErrors)
	if m.SuccessfulExecutions+m.FailedExecutions > 0 {
		fmt.Fprintf(&b, "  Success rate:          %.1f%%\n", m.SuccessRate())
	}
	return b.String()
}
