package src

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerTagsSession(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "abc-123")

	logger.Info("code extracted", "blocks", 2)

	out := buf.String()
	assert.Contains(t, out, "pymaker")
	assert.Contains(t, out, "code extracted")
	assert.Contains(t, out, "session=abc-123")
	assert.Contains(t, out, "blocks=2")
}

func TestOpenLogWritesDatedFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	now := time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)

	logger, closer, err := OpenLog(dir, "s1", now)
	require.NoError(t, err)
	logger.Warn("package install failed")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(filepath.Join(dir, "pymaker-2026-03-09.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "package install failed")
}
