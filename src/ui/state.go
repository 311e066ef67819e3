package ui

import (
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
)

// Mode represents the current UI state
type Mode int

const (
	// ModeChat takes prompts and slash commands.
	ModeChat Mode = iota
	// ModeAsk shows a question (confirmation, file name, refinement) above
	// the input.
	ModeAsk
	// ModeHistory browses the conversation in a list.
	ModeHistory
)

// Counters mirrors the session metrics shown in the status bar.
type Counters struct {
	Requests  int
	Succeeded int
	Failed    int
	APIErrors int
}

// State contains all the data required to render the UI.
// This decouples the renderer from the main application logic.
type State struct {
	Mode         Mode
	SessionID    string
	Model        string
	ScriptsDir   string
	Counters     Counters
	Question     string
	IsThinking   bool
	ThinkingText string

	// Bubble Tea models
	History  list.Model
	TextArea textarea.Model
	Viewport viewport.Model
	Spinner  spinner.Model
}
