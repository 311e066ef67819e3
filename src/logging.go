package src

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
)

// OpenLog creates <dir>/pymaker-<date>.log and returns a logger writing
// logfmt records to it, each tagged with the session ID. The caller closes
// the returned file.
func OpenLog(dir, sessionID string, now time.Time) (*slog.Logger, io.Closer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("pymaker-%s.log", now.Format("2006-01-02")))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log: %w", err)
	}
	return NewLogger(f, sessionID), f, nil
}

// NewLogger wraps w in a charm log handler.
func NewLogger(w io.Writer, sessionID string) *slog.Logger {
	handler := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Formatter:       log.LogfmtFormatter,
		Prefix:          "pymaker",
		Level:           log.DebugLevel,
	})
	return slog.New(handler).With("session", sessionID)
}
