package src

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Protocol-Lattice/lattice-pymaker/src/convo"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line string
		want Command
		ok   bool
	}{
		{"/quit", Command{Name: "quit"}, true},
		{"  /SAVE  out.py ", Command{Name: "save", Arg: "out.py"}, true},
		{"/refine add a docstring please", Command{Name: "refine", Arg: "add a docstring please"}, true},
		{"write a script", Command{}, false},
		{"", Command{}, false},
	}
	for _, tt := range tests {
		got, ok := ParseCommand(tt.line)
		assert.Equal(t, tt.ok, ok, "line %q", tt.line)
		assert.Equal(t, tt.want, got, "line %q", tt.line)
	}
}

func TestCommandKnown(t *testing.T) {
	for _, name := range []string{"quit", "exit", "help", "clear", "refine", "save", "run", "history", "stats"} {
		assert.True(t, Command{Name: name}.Known(), name)
	}
	assert.False(t, Command{Name: "deploy"}.Known())
}

func TestHelpTextListsCommands(t *testing.T) {
	help := HelpText()

	for _, want := range []string{"/quit, /exit", "/help", "/clear", "/refine", "/save", "/run", "/history", "/stats"} {
		assert.Contains(t, help, want)
	}
}

func TestPreview(t *testing.T) {
	short := "print('hi')"
	assert.Equal(t, short, Preview(short))

	long := strings.Repeat("é", 150)
	got := Preview(long)
	assert.Equal(t, strings.Repeat("é", 100)+"...", got)
}

func TestFormatHistory(t *testing.T) {
	assert.Equal(t, "No conversation history yet.\n", FormatHistory(nil))

	got := FormatHistory([]convo.Turn{
		{Role: convo.User, Content: "make a script"},
		{Role: convo.Assistant, Content: "print(1)"},
	})

	assert.Contains(t, got, "1. [user]\nmake a script\n")
	assert.Contains(t, got, "2. [assistant]\nprint(1)\n")
}

func TestFormatMetrics(t *testing.T) {
	got := FormatMetrics(Metrics{TotalRequests: 2, SuccessfulExecutions: 1, FailedExecutions: 1})

	assert.Contains(t, got, "Total requests:        2")
	assert.Contains(t, got, "Success rate:          50.0%")
	assert.NotContains(t, FormatMetrics(Metrics{}), "Success rate")
}
