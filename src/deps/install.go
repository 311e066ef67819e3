package deps

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
)

// DefaultInterpreters is the ordered list of interpreters whose pip is tried.
var DefaultInterpreters = []string{"python3", "python"}

// InstallError reports a failed pip run. ExitCode is -1 when no interpreter
// could be started at all.
type InstallError struct {
	Packages []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *InstallError) Error() string {
	if e.ExitCode < 0 {
		return fmt.Sprintf("install %s: %v", strings.Join(e.Packages, " "), e.Err)
	}
	msg := fmt.Sprintf("install %s: pip exited with status %d", strings.Join(e.Packages, " "), e.ExitCode)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

func (e *InstallError) Unwrap() error { return e.Err }

// Installer installs packages with "<interpreter> -m pip install --quiet".
type Installer struct {
	Interpreters []string
	Logger       *slog.Logger
}

// Install runs pip once for the whole list. An empty list is a no-op.
// The first interpreter that can be started decides the outcome.
func (i *Installer) Install(ctx context.Context, pkgs []string) error {
	if len(pkgs) == 0 {
		return nil
	}
	logger := i.logger()
	interpreters := i.Interpreters
	if len(interpreters) == 0 {
		interpreters = DefaultInterpreters
	}

	args := append([]string{"-m", "pip", "install", "--quiet"}, pkgs...)
	var lastErr error
	for _, interp := range interpreters {
		var stderr bytes.Buffer
		cmd := exec.CommandContext(ctx, interp, args...)
		cmd.Stdout = io.Discard
		cmd.Stderr = &stderr

		err := cmd.Run()
		if err == nil {
			logger.Info("packages installed", "interpreter", interp, "packages", pkgs)
			return nil
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			logger.Warn("pip failed", "interpreter", interp, "exit_code", exitErr.ExitCode())
			return &InstallError{
				Packages: pkgs,
				ExitCode: exitErr.ExitCode(),
				Stderr:   strings.ToValidUTF8(stderr.String(), "�"),
				Err:      err,
			}
		}
		logger.Debug("interpreter unavailable for pip", "interpreter", interp, "err", err)
		lastErr = fmt.Errorf("%s: %w", interp, err)
	}
	return &InstallError{Packages: pkgs, ExitCode: -1, Err: lastErr}
}

func (i *Installer) logger() *slog.Logger {
	if i.Logger != nil {
		return i.Logger
	}
	return slog.New(slog.DiscardHandler)
}
