package src

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Protocol-Lattice/lattice-pymaker/src/convo"
	"github.com/Protocol-Lattice/lattice-pymaker/src/runner"
	"github.com/Protocol-Lattice/lattice-pymaker/src/ui"
)

// question is what the input box is currently answering.
type question int

const (
	askNone question = iota
	askExecute
	askInstall
	askMode
	askSaveName
	askRefine
)

type historyItem struct {
	index int
	turn  convo.Turn
}

func (h historyItem) Title() string       { return fmt.Sprintf("%d. [%s]", h.index, h.turn.Role) }
func (h historyItem) Description() string { return Preview(h.turn.Content) }
func (h historyItem) FilterValue() string { return h.turn.Content }

// Messages from background work carry a metrics snapshot taken on the
// worker goroutine, so View never reads the pipeline while it is busy.
type generatedMsg struct {
	gen     Generation
	err     error
	metrics Metrics
}

type installedMsg struct {
	err error
}

type executedMsg struct {
	rec     runner.Record
	err     error
	metrics Metrics
}

// pendingRun holds the decisions collected before a script runs.
type pendingRun struct {
	pkgs      []string
	suggested runner.Mode
	// path is set for /run <file>; otherwise the last generated code runs.
	path string
}

type model struct {
	ctx        context.Context
	pipe       *Pipeline
	runner     *runner.Runner
	modelName  string
	scriptsDir string

	mode       ui.Mode
	asking     question
	question   string
	pending    pendingRun
	isThinking bool
	thinking   string
	metrics    Metrics

	history  list.Model
	textarea textarea.Model
	viewport viewport.Model
	spinner  spinner.Model
	output   string
	width    int
	height   int
	style    ui.Styles

	Program *tea.Program
}

// TUIOptions describes what the status area shows.
type TUIOptions struct {
	Model      string
	ScriptsDir string
}

// NewModel builds the Bubble Tea model. r must be the runner behind p; its
// streams are swapped while an interactive script owns the terminal.
func NewModel(ctx context.Context, p *Pipeline, r *runner.Runner, opts TUIOptions) *model {
	hl := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	hl.Title = "Conversation History"
	hl.SetShowHelp(false)
	hl.SetShowStatusBar(false)
	hl.SetFilteringEnabled(false)

	ta := textarea.New()
	ta.Placeholder = "Describe the Python script you want..."
	ta.ShowLineNumbers = false
	ta.Focus()
	ta.SetHeight(3)

	st := ui.NewStyles()

	vp := viewport.New(0, 0)
	vp.SetContent("Welcome to PyMaker! Describe a script to get started, or type /help.")

	s := spinner.New()
	s.Spinner = spinner.Line
	s.Style = st.Thinking

	return &model{
		ctx:        ctx,
		pipe:       p,
		runner:     r,
		modelName:  opts.Model,
		scriptsDir: opts.ScriptsDir,
		mode:       ui.ModeChat,
		history:    hl,
		textarea:   ta,
		viewport:   vp,
		spinner:    s,
		style:      st,
	}
}

func (m *model) Init() tea.Cmd { return textarea.Blink }

// RunTUI runs the full-screen interface until the user quits.
func RunTUI(ctx context.Context, p *Pipeline, r *runner.Runner, opts TUIOptions) error {
	m := NewModel(ctx, p, r, opts)
	prog := tea.NewProgram(m, tea.WithAltScreen())
	m.Program = prog
	_, err := prog.Run()
	p.Close()
	return err
}
