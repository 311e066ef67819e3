package src

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Protocol-Lattice/lattice-pymaker/src/runner"
)

// FormatRecord renders an execution result the way every surface shows it.
func FormatRecord(rec runner.Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Script saved at: %s\n", rec.ScriptPath)
	if rec.Interpreter != "" {
		fmt.Fprintf(&b, "Interpreter: %s (%s, %s)\n", rec.Interpreter, rec.Mode, rec.Duration.Round(time.Millisecond))
	}
	if rec.ExitCode != nil {
		fmt.Fprintf(&b, "Exit code: %d\n", *rec.ExitCode)
	} else if rec.Interpreter != "" {
		b.WriteString("Exit code: none (terminated by signal)\n")
	}
	if rec.Stdout != "" {
		fmt.Fprintf(&b, "\nSTDOUT:\n%s", withNewline(rec.Stdout))
	}
	if rec.Stderr != "" {
		fmt.Fprintf(&b, "\nSTDERR:\n%s", withNewline(rec.Stderr))
	}
	return b.String()
}

// DescribeError turns pipeline errors into a one-line message for the user.
func DescribeError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNoCode):
		return "No code yet. Generate some code first!"
	case errors.Is(err, ErrEmptyCode):
		return "The model returned no code to run."
	case errors.Is(err, runner.ErrNotFound):
		return fmt.Sprintf("Script not found: %v", err)
	case errors.Is(err, runner.ErrNoInterpreter):
		return fmt.Sprintf("Execution error: %v", err)
	}
	return err.Error()
}

func withNewline(s string) string {
	if strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}
