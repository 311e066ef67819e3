// Package runner writes generated scripts to disk and runs them under the
// first Python interpreter that can be started.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync/atomic"
	"time"
)

// DefaultDir is where scripts are written when Runner.Dir is empty.
const DefaultDir = "generated"

// DefaultInterpreters is tried in order; the first one that starts wins.
var DefaultInterpreters = []string{"python3", "python"}

// InteractivePlaceholder fills Record.Stdout for interactive runs, whose
// output goes straight to the terminal.
const InteractivePlaceholder = "[interactive run: output was not captured]"

// Mode selects how the child process is wired to the terminal.
type Mode int

const (
	// Captured buffers stdout and stderr and returns them in the Record.
	Captured Mode = iota
	// Interactive hands the caller's stdin, stdout and stderr to the child.
	Interactive
)

func (m Mode) String() string {
	switch m {
	case Captured:
		return "captured"
	case Interactive:
		return "interactive"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode maps "captured"/"interactive" (and their first letters) to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "captured", "c", "":
		return Captured, nil
	case "interactive", "i":
		return Interactive, nil
	}
	return Captured, fmt.Errorf("unknown run mode %q", s)
}

// Record describes one run. The script file stays on disk afterwards.
type Record struct {
	ScriptPath  string
	Interpreter string
	Mode        Mode
	Stdout      string
	Stderr      string
	// ExitCode is nil when the process did not exit normally (e.g. a signal).
	ExitCode *int
	Duration time.Duration
}

// Succeeded reports whether the process exited with status 0.
func (r Record) Succeeded() bool {
	return r.ExitCode != nil && *r.ExitCode == 0
}

// Runner executes scripts. The zero value writes into DefaultDir and talks to
// the process's standard streams.
type Runner struct {
	Dir          string
	Interpreters []string
	Stdin        io.Reader
	Stdout       io.Writer
	Stderr       io.Writer
	Now          func() time.Time
	Logger       *slog.Logger

	seq atomic.Uint64
}

// New returns a Runner writing scripts into dir.
func New(dir string) *Runner {
	return &Runner{Dir: dir}
}

// Run writes code to a fresh script file and executes it in the given mode.
// A non-zero exit status is reported through the Record, not as an error.
func (r *Runner) Run(ctx context.Context, code string, mode Mode) (Record, error) {
	path, err := r.write(code)
	if err != nil {
		return Record{}, err
	}
	r.logger().Info("script written", "path", path, "bytes", len(code))
	return r.execute(ctx, path, mode)
}

// RunFile executes an existing script without copying it.
func (r *Runner) RunFile(ctx context.Context, path string, mode Mode) (Record, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Record{}, fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return Record{}, &IOError{Op: "stat", Path: path, Err: err}
	}
	if info.IsDir() {
		return Record{}, &IOError{Op: "run", Path: path, Err: errors.New("is a directory")}
	}
	return r.execute(ctx, path, mode)
}

// EnsureDir creates the script directory if it does not exist yet.
func (r *Runner) EnsureDir() error {
	dir := r.dir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &IOError{Op: "mkdir", Path: dir, Err: err}
	}
	return nil
}

func (r *Runner) write(code string) (string, error) {
	if err := r.EnsureDir(); err != nil {
		return "", err
	}
	// O_EXCL plus a sequence number keeps rapid or concurrent runs apart.
	for attempt := 0; attempt < 8; attempt++ {
		path := filepath.Join(r.dir(), r.scriptName())
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", &IOError{Op: "create", Path: path, Err: err}
		}
		if _, err := f.WriteString(code); err != nil {
			f.Close()
			return "", &IOError{Op: "write", Path: path, Err: err}
		}
		if err := f.Close(); err != nil {
			return "", &IOError{Op: "close", Path: path, Err: err}
		}
		return path, nil
	}
	return "", &IOError{Op: "create", Path: r.dir(), Err: errors.New("could not pick an unused script name")}
}

func (r *Runner) scriptName() string {
	now := r.now()
	n := r.seq.Add(1)
	return fmt.Sprintf("script_%s_%09d_%d.py", now.Format("20060102_150405"), now.Nanosecond(), n)
}

func (r *Runner) execute(ctx context.Context, path string, mode Mode) (Record, error) {
	logger := r.logger()
	var attempts []Attempt
	for _, interp := range r.interpreters() {
		rec, err := r.runWith(ctx, interp, path, mode)
		if err != nil {
			logger.Debug("interpreter failed to start", "interpreter", interp, "err", err)
			attempts = append(attempts, Attempt{Interpreter: interp, Err: err})
			continue
		}
		exit := "none"
		if rec.ExitCode != nil {
			exit = fmt.Sprint(*rec.ExitCode)
		}
		logger.Info("script finished",
			"path", path, "interpreter", interp, "mode", mode,
			"exit_code", exit, "duration", rec.Duration,
			"stderr_tail", TailBytes(rec.Stderr, 400))
		return rec, nil
	}
	execErr := &ExecutionError{Script: path, Attempts: attempts}
	logger.Error("no interpreter could run script", "path", path, "err", execErr)
	return Record{ScriptPath: path, Mode: mode}, execErr
}

// runWith returns an error only when the interpreter could not be started.
func (r *Runner) runWith(ctx context.Context, interp, path string, mode Mode) (Record, error) {
	cmd := exec.CommandContext(ctx, interp, path)
	var stdout, stderr bytes.Buffer
	switch mode {
	case Interactive:
		cmd.Stdin = r.stdin()
		cmd.Stdout = r.stdout()
		cmd.Stderr = r.stderr()
	default:
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
	}

	start := r.now()
	if err := cmd.Start(); err != nil {
		return Record{}, err
	}
	waitErr := cmd.Wait()
	rec := Record{
		ScriptPath:  path,
		Interpreter: interp,
		Mode:        mode,
		Duration:    r.now().Sub(start),
	}
	if code := cmd.ProcessState.ExitCode(); code >= 0 {
		rec.ExitCode = &code
	}
	if mode == Interactive {
		rec.Stdout = InteractivePlaceholder
	} else {
		rec.Stdout = decode(stdout.Bytes())
		rec.Stderr = decode(stderr.Bytes())
	}
	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		r.logger().Warn("wait returned an error", "path", path, "err", waitErr)
	}
	return rec, nil
}

func (r *Runner) dir() string {
	if r.Dir == "" {
		return DefaultDir
	}
	return r.Dir
}

func (r *Runner) interpreters() []string {
	if len(r.Interpreters) == 0 {
		return DefaultInterpreters
	}
	return r.Interpreters
}

func (r *Runner) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}

func (r *Runner) stdin() io.Reader {
	if r.Stdin == nil {
		return os.Stdin
	}
	return r.Stdin
}

func (r *Runner) stdout() io.Writer {
	if r.Stdout == nil {
		return os.Stdout
	}
	return r.Stdout
}

func (r *Runner) stderr() io.Writer {
	if r.Stderr == nil {
		return os.Stderr
	}
	return r.Stderr
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return r.Logger
}
