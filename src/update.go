package src

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Protocol-Lattice/lattice-pymaker/src/deps"
	"github.com/Protocol-Lattice/lattice-pymaker/src/runner"
	"github.com/Protocol-Lattice/lattice-pymaker/src/ui"
)

// chrome is the number of chat lines that are not the viewport or the input:
// model, scripts dir, status bar, thinking line and question.
const chrome = 5

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()
		m.renderOutput()
		return m, nil

	case spinner.TickMsg:
		if !m.isThinking {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case generatedMsg:
		m.stopThinking()
		m.metrics = msg.metrics
		return m, m.handleGenerated(msg)

	case installedMsg:
		m.stopThinking()
		if msg.err != nil {
			m.appendOutput(m.style.Warning.Render(fmt.Sprintf("⚠️  Failed to install dependencies: %v", msg.err)))
			m.appendOutput("Proceeding anyway...")
		} else {
			m.appendOutput("✓ Dependencies installed.")
		}
		m.askMode()
		return m, nil

	case executedMsg:
		m.stopThinking()
		m.metrics = msg.metrics
		m.appendReport(msg.rec, msg.err)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	return m, cmd
}

func (m *model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		return m, tea.Quit
	}

	if m.mode == ui.ModeHistory {
		if msg.Type == tea.KeyEsc {
			m.mode = ui.ModeChat
			return m, nil
		}
		var cmd tea.Cmd
		m.history, cmd = m.history.Update(msg)
		return m, cmd
	}

	switch msg.Type {
	case tea.KeyEsc:
		if m.asking != askNone && !m.isThinking {
			m.clearQuestion()
			m.appendOutput("Cancelled.")
		}
		return m, nil
	case tea.KeyPgUp, tea.KeyPgDown:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	case tea.KeyEnter:
		if m.isThinking {
			return m, nil
		}
		value := strings.TrimSpace(m.textarea.Value())
		m.textarea.Reset()
		if m.asking != askNone {
			return m, m.answer(value)
		}
		return m, m.submit(value)
	}

	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	return m, cmd
}

// submit handles a line typed at the main prompt.
func (m *model) submit(line string) tea.Cmd {
	if line == "" {
		return nil
	}
	cmd, isCmd := ParseCommand(line)
	if !isCmd {
		m.appendOutput(m.style.Accent.Render("> " + line))
		return m.generate("generating", func(ctx context.Context) (Generation, error) {
			return m.pipe.Submit(ctx, line)
		})
	}

	m.appendOutput(m.style.Subtle.Render(line))
	if !cmd.Known() {
		m.appendOutput(fmt.Sprintf("Unknown command: /%s. Type /help for the list.", cmd.Name))
		return nil
	}
	switch cmd.Name {
	case "quit", "exit":
		return tea.Quit
	case "help":
		m.appendOutput(HelpText())
	case "stats":
		m.appendOutput(FormatMetrics(m.metrics))
	case "clear":
		m.pipe.Clear()
		m.appendOutput("✓ Conversation history cleared.")
	case "history":
		m.showHistory()
	case "save":
		if _, ok := m.pipe.LastCode(); !ok {
			m.appendOutput("No code to save. Generate some code first!")
			return nil
		}
		if cmd.Arg == "" {
			m.ask(askSaveName, "Enter filename (e.g., script.py):")
			return nil
		}
		m.save(cmd.Arg)
	case "refine":
		if _, ok := m.pipe.LastCode(); !ok {
			m.appendOutput("No code to refine. Generate some code first!")
			return nil
		}
		if cmd.Arg == "" {
			m.ask(askRefine, "What would you like to change or add?")
			return nil
		}
		return m.refine(cmd.Arg)
	case "run":
		m.prepareRun(cmd.Arg)
	}
	return nil
}

// answer handles a line typed while a question is open.
func (m *model) answer(value string) tea.Cmd {
	asking := m.asking
	m.appendOutput(m.style.Subtle.Render(m.question + " " + value))
	m.clearQuestion()

	switch asking {
	case askExecute:
		if !isYes(value) {
			m.appendOutput("Not executed. Use /run to execute it later.")
			return nil
		}
		m.askDependencies()
	case askInstall:
		if !isYes(value) {
			m.askMode()
			return nil
		}
		pkgs := m.pending.pkgs
		m.startThinking("installing " + strings.Join(pkgs, ", "))
		ctx := m.ctx
		return tea.Batch(m.spinner.Tick, func() tea.Msg {
			return installedMsg{err: m.pipe.Install(ctx, pkgs)}
		})
	case askMode:
		mode := m.pending.suggested
		if value != "" {
			parsed, err := runner.ParseMode(strings.ToLower(value))
			if err != nil {
				m.appendOutput(fmt.Sprintf("Unknown mode %q, using %s.", value, mode))
			} else {
				mode = parsed
			}
		}
		return m.execute(mode)
	case askSaveName:
		if value == "" {
			m.appendOutput("Save cancelled.")
			return nil
		}
		m.save(value)
	case askRefine:
		if value == "" {
			return nil
		}
		return m.refine(value)
	}
	return nil
}

func (m *model) refine(delta string) tea.Cmd {
	return m.generate("refining", func(ctx context.Context) (Generation, error) {
		return m.pipe.Refine(ctx, delta)
	})
}

func (m *model) generate(what string, call func(context.Context) (Generation, error)) tea.Cmd {
	m.startThinking(what)
	ctx := m.ctx
	return tea.Batch(m.spinner.Tick, func() tea.Msg {
		g, err := call(ctx)
		return generatedMsg{gen: g, err: err, metrics: m.pipe.Metrics()}
	})
}

func (m *model) handleGenerated(msg generatedMsg) tea.Cmd {
	if msg.err != nil {
		m.appendOutput(m.style.Error.Render("✗ API error: " + DescribeError(msg.err)))
		return nil
	}
	g := msg.gen
	m.appendOutput(ui.RenderCode(g.Code, m.style))
	if g.Blocks > 1 {
		m.appendOutput(fmt.Sprintf("Note: the reply had %d code blocks; only the first was kept.", g.Blocks))
	}
	if diff := g.Changes(true); diff != "" {
		m.appendOutput("Changes:\n" + diff)
	}
	if strings.TrimSpace(g.Code) == "" {
		m.appendOutput(DescribeError(ErrEmptyCode))
		return nil
	}
	m.pending = pendingRun{pkgs: g.Dependencies, suggested: g.Suggested}
	m.ask(askExecute, "Execute this script? (y/n)")
	return nil
}

// prepareRun starts the run flow for the last generated code, or for the
// file at path when one is given.
func (m *model) prepareRun(path string) {
	if path == "" {
		code, ok := m.pipe.LastCode()
		if !ok {
			m.appendOutput(DescribeError(ErrNoCode))
			return
		}
		m.pending = pendingRun{pkgs: deps.Classify(code), suggested: runner.SuggestMode(code)}
		m.askDependencies()
		return
	}
	m.pending = pendingRun{suggested: runner.Captured, path: path}
	if data, err := os.ReadFile(path); err == nil {
		m.pending.suggested = runner.SuggestMode(string(data))
	}
	m.askMode()
}

func (m *model) askDependencies() {
	if len(m.pending.pkgs) == 0 {
		m.askMode()
		return
	}
	m.appendOutput(m.style.Warning.Render("⚠️  Detected non-standard dependencies: " + strings.Join(m.pending.pkgs, ", ")))
	m.ask(askInstall, "Install these dependencies? (y/n)")
}

func (m *model) askMode() {
	m.ask(askMode, fmt.Sprintf("Run mode [c]aptured/[i]nteractive (default %s):", m.pending.suggested))
}

// execute runs the pending script. Captured runs happen in the background;
// interactive runs suspend the interface and hand the terminal to the script.
func (m *model) execute(mode runner.Mode) tea.Cmd {
	path := m.pending.path
	ctx := m.ctx
	run := func() (runner.Record, error) {
		if path != "" {
			return m.pipe.RunExisting(ctx, path, mode)
		}
		return m.pipe.Execute(ctx, mode)
	}

	if mode == runner.Interactive {
		m.startThinking("running interactively")
		se := &scriptExec{runner: m.runner, run: run}
		return tea.Exec(se, func(error) tea.Msg {
			return executedMsg{rec: se.rec, err: se.err, metrics: m.pipe.Metrics()}
		})
	}

	m.startThinking("running script")
	return tea.Batch(m.spinner.Tick, func() tea.Msg {
		rec, err := run()
		return executedMsg{rec: rec, err: err, metrics: m.pipe.Metrics()}
	})
}

func (m *model) appendReport(rec runner.Record, err error) {
	if err != nil {
		m.appendOutput(m.style.Error.Render("✗ " + DescribeError(err)))
		return
	}
	title := m.style.CodeTitle.Render("━━━━━━━━━━━ Execution Result ━━━━━━━━━━━")
	body := FormatRecord(rec)
	if !rec.Succeeded() {
		body = m.style.Warning.Render(body)
	}
	m.appendOutput(title + "\n" + body)
}

func (m *model) save(name string) {
	if err := m.pipe.Save(name); err != nil {
		m.appendOutput(m.style.Error.Render(fmt.Sprintf("✗ Failed to save file: %v", err)))
		return
	}
	m.appendOutput("✓ Code saved to: " + name)
}

func (m *model) showHistory() {
	turns := m.pipe.History()
	if len(turns) == 0 {
		m.appendOutput("No conversation history yet.")
		return
	}
	items := make([]list.Item, len(turns))
	for i, t := range turns {
		items[i] = historyItem{index: i + 1, turn: t}
	}
	m.history.SetItems(items)
	m.history.Select(len(items) - 1)
	m.mode = ui.ModeHistory
}

func (m *model) ask(q question, text string) {
	m.asking = q
	m.question = text
	m.resize()
}

func (m *model) clearQuestion() {
	m.asking = askNone
	m.question = ""
	m.resize()
}

func (m *model) startThinking(text string) {
	m.isThinking = true
	m.thinking = text
	m.textarea.Blur()
}

func (m *model) stopThinking() {
	m.isThinking = false
	m.thinking = ""
	m.textarea.Focus()
}

func (m *model) appendOutput(s string) {
	if m.output != "" {
		m.output += "\n"
	}
	m.output += strings.TrimRight(s, "\n")
	m.renderOutput()
}

// renderOutput wraps the transcript to the viewport and scrolls to the end.
func (m *model) renderOutput() {
	w := m.viewport.Width
	if w <= 0 {
		m.viewport.SetContent(m.output)
	} else {
		m.viewport.SetContent(lipgloss.NewStyle().Width(w).Render(m.output))
	}
	m.viewport.GotoBottom()
}

func (m *model) resize() {
	if m.width == 0 || m.height == 0 {
		return
	}
	hPad := m.style.ChatContainer.GetHorizontalFrameSize()
	vPad := m.style.ChatContainer.GetVerticalFrameSize()
	headerHeight := ui.HeaderHeight(m.style)
	footerHeight := ui.FooterHeight(m.state(), m.style)

	inner := m.width - hPad
	m.textarea.SetWidth(inner)
	m.viewport.Width = inner
	vh := m.height - headerHeight - footerHeight - vPad - chrome - m.textarea.Height()
	if vh < 3 {
		vh = 3
	}
	m.viewport.Height = vh
	m.history.SetSize(m.width-2, m.height-headerHeight-footerHeight-2)
}

func isYes(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "y", "yes":
		return true
	}
	return false
}

// scriptExec hands the terminal to an interactive script through tea.Exec
// and waits for Enter before the interface comes back.
type scriptExec struct {
	runner *runner.Runner
	run    func() (runner.Record, error)

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	rec runner.Record
	err error
}

func (s *scriptExec) SetStdin(r io.Reader)  { s.stdin = r }
func (s *scriptExec) SetStdout(w io.Writer) { s.stdout = w }
func (s *scriptExec) SetStderr(w io.Writer) { s.stderr = w }

func (s *scriptExec) Run() error {
	s.runner.Stdin, s.runner.Stdout, s.runner.Stderr = s.stdin, s.stdout, s.stderr
	defer func() {
		s.runner.Stdin, s.runner.Stdout, s.runner.Stderr = nil, nil, nil
	}()

	s.rec, s.err = s.run()

	out := s.stdout
	if out == nil {
		out = os.Stdout
	}
	in := s.stdin
	if in == nil {
		in = os.Stdin
	}
	status := "none"
	if s.rec.ExitCode != nil {
		status = fmt.Sprint(*s.rec.ExitCode)
	}
	fmt.Fprintf(out, "\n[exit code %s] Press Enter to return...", status)
	_, _ = bufio.NewReader(in).ReadString('\n')
	return nil
}
