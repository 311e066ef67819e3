package src

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"

	"github.com/Protocol-Lattice/lattice-pymaker/src/deps"
	"github.com/Protocol-Lattice/lattice-pymaker/src/runner"
	"github.com/Protocol-Lattice/lattice-pymaker/src/ui"
)

const replPrompt = "> "

// LineReader is the part of *readline.Instance the REPL needs.
type LineReader interface {
	Readline() (string, error)
	SetPrompt(prompt string)
}

// NewReadline opens a line editor on the terminal. histFile may be empty.
func NewReadline(histFile string) (*readline.Instance, error) {
	return readline.NewEx(&readline.Config{
		Prompt:          replPrompt,
		HistoryFile:     histFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "/quit",
	})
}

// REPL is the plain line-oriented surface over a Pipeline.
type REPL struct {
	p      *Pipeline
	in     LineReader
	out    io.Writer
	styles ui.Styles
}

func NewREPL(p *Pipeline, in LineReader, out io.Writer) *REPL {
	return &REPL{p: p, in: in, out: out, styles: ui.NewStyles()}
}

// Run reads lines until /quit or end of input, then prints the session
// summary.
func (r *REPL) Run(ctx context.Context) error {
	r.banner()
	defer r.p.Close()
	for {
		line, err := r.in.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if r.Handle(ctx, line) {
			break
		}
	}
	fmt.Fprintln(r.out, "\nSession ended.")
	fmt.Fprint(r.out, FormatMetrics(r.p.Metrics()))
	return nil
}

func (r *REPL) banner() {
	fmt.Fprintln(r.out, "====================================")
	fmt.Fprintln(r.out, "        PYTHON MAKER")
	fmt.Fprintln(r.out, "====================================")
	fmt.Fprintln(r.out, " AI-Powered Python Code Generator")
	fmt.Fprintln(r.out, " Type /help for commands or /quit to exit")
	fmt.Fprintln(r.out)
}

// Handle processes one input line and reports whether the session should
// end.
func (r *REPL) Handle(ctx context.Context, line string) (quit bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	cmd, isCmd := ParseCommand(line)
	if !isCmd {
		r.generate(ctx, func() (Generation, error) { return r.p.Submit(ctx, line) })
		return false
	}

	if !cmd.Known() {
		fmt.Fprintf(r.out, "Unknown command: /%s. Type /help for the list.\n", cmd.Name)
		return false
	}

	switch cmd.Name {
	case "quit", "exit":
		fmt.Fprintln(r.out, "Goodbye!")
		return true
	case "help":
		fmt.Fprint(r.out, HelpText())
	case "stats":
		fmt.Fprint(r.out, FormatMetrics(r.p.Metrics()))
	case "clear":
		r.p.Clear()
		fmt.Fprintln(r.out, "✓ Conversation history cleared.")
	case "history":
		fmt.Fprint(r.out, FormatHistory(r.p.History()))
	case "save":
		r.save(cmd.Arg)
	case "refine":
		if _, ok := r.p.LastCode(); !ok {
			fmt.Fprintln(r.out, "No code to refine. Generate some code first!")
			return false
		}
		delta := cmd.Arg
		if delta == "" {
			delta, _ = r.ask("What would you like to change or add? ")
		}
		if delta == "" {
			return false
		}
		r.generate(ctx, func() (Generation, error) { return r.p.Refine(ctx, delta) })
	case "run":
		r.run(ctx, cmd.Arg)
	}
	return false
}

func (r *REPL) save(name string) {
	if _, ok := r.p.LastCode(); !ok {
		fmt.Fprintln(r.out, "No code to save. Generate some code first!")
		return
	}
	if name == "" {
		name, _ = r.ask("Enter filename (e.g., script.py): ")
	}
	if name == "" {
		fmt.Fprintln(r.out, "Save cancelled.")
		return
	}
	if err := r.p.Save(name); err != nil {
		fmt.Fprintf(r.out, "✗ Failed to save file: %v\n", err)
		return
	}
	fmt.Fprintf(r.out, "✓ Code saved to: %s\n", name)
}

func (r *REPL) run(ctx context.Context, path string) {
	if path == "" {
		code, ok := r.p.LastCode()
		if !ok {
			fmt.Fprintln(r.out, DescribeError(ErrNoCode))
			return
		}
		r.execute(ctx, deps.Classify(code), runner.SuggestMode(code))
		return
	}
	suggested := runner.Captured
	if data, err := os.ReadFile(path); err == nil {
		suggested = runner.SuggestMode(string(data))
	}
	rec, err := r.p.RunExisting(ctx, path, r.chooseMode(suggested))
	r.report(rec, err)
}

func (r *REPL) generate(ctx context.Context, call func() (Generation, error)) {
	fmt.Fprintln(r.out, "Generating...")
	g, err := call()
	if err != nil {
		fmt.Fprintf(r.out, "✗ API error: %s\n", DescribeError(err))
		return
	}
	r.show(g)
	if strings.TrimSpace(g.Code) == "" {
		fmt.Fprintln(r.out, DescribeError(ErrEmptyCode))
		return
	}
	if !r.confirm("Execute this script?") {
		return
	}
	r.execute(ctx, g.Dependencies, g.Suggested)
}

func (r *REPL) show(g Generation) {
	fmt.Fprintln(r.out)
	fmt.Fprint(r.out, ui.RenderCode(g.Code, r.styles))
	if g.Blocks > 1 {
		fmt.Fprintf(r.out, "Note: the reply had %d code blocks; only the first was kept.\n", g.Blocks)
	}
	if diff := g.Changes(false); diff != "" {
		fmt.Fprintf(r.out, "\nChanges:\n%s\n", diff)
	}
}

func (r *REPL) execute(ctx context.Context, pkgs []string, suggested runner.Mode) {
	if len(pkgs) > 0 {
		fmt.Fprintf(r.out, "\n⚠️  Detected non-standard dependencies: %s\n", strings.Join(pkgs, ", "))
		if r.confirm("Install these dependencies?") {
			if err := r.p.Install(ctx, pkgs); err != nil {
				fmt.Fprintf(r.out, "⚠️  Failed to install dependencies: %v\nProceeding anyway...\n", err)
			}
		}
	}
	mode := r.chooseMode(suggested)
	if mode == runner.Interactive {
		fmt.Fprintln(r.out, "Running interactively; output goes straight to the terminal.")
	}
	rec, err := r.p.Execute(ctx, mode)
	r.report(rec, err)
}

func (r *REPL) report(rec runner.Record, err error) {
	if err != nil {
		fmt.Fprintf(r.out, "✗ %s\n", DescribeError(err))
		return
	}
	fmt.Fprintln(r.out, "\n━━━━━━━━━━━ Execution Result ━━━━━━━━━━━")
	fmt.Fprint(r.out, FormatRecord(rec))
	fmt.Fprintln(r.out, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
}

func (r *REPL) chooseMode(suggested runner.Mode) runner.Mode {
	ans, ok := r.ask(fmt.Sprintf("Run mode [c]aptured/[i]nteractive (default %s): ", suggested))
	if !ok || ans == "" {
		return suggested
	}
	m, err := runner.ParseMode(strings.ToLower(ans))
	if err != nil {
		fmt.Fprintf(r.out, "Unknown mode %q, using %s.\n", ans, suggested)
		return suggested
	}
	return m
}

func (r *REPL) ask(question string) (string, bool) {
	r.in.SetPrompt(question)
	defer r.in.SetPrompt(replPrompt)
	line, err := r.in.Readline()
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(line), true
}

func (r *REPL) confirm(question string) bool {
	ans, _ := r.ask(question + " (y/n): ")
	switch strings.ToLower(ans) {
	case "y", "yes":
		return true
	}
	return false
}
