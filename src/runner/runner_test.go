package runner

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// shInterpreter returns a fake "python" that runs the script with /bin/sh,
// so tests can drive exit codes and streams without a Python install.
func shInterpreter(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake interpreter needs a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "fakepython")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\nexec /bin/sh \"$@\"\n"), 0o755))
	return path
}

func TestRunCapturedCollectsStreamsAndExitCode(t *testing.T) {
	r := New(filepath.Join(t.TempDir(), "scripts"))
	r.Interpreters = []string{shInterpreter(t)}

	rec, err := r.Run(context.Background(), "echo out\necho err >&2\nexit 3\n", Captured)
	require.NoError(t, err)

	assert.Equal(t, "out\n", rec.Stdout)
	assert.Equal(t, "err\n", rec.Stderr)
	require.NotNil(t, rec.ExitCode)
	assert.Equal(t, 3, *rec.ExitCode)
	assert.False(t, rec.Succeeded())
	assert.Equal(t, Captured, rec.Mode)
	assert.FileExists(t, rec.ScriptPath)
}

func TestRunCreatesDirAndKeepsScript(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "generated")
	r := New(dir)
	r.Interpreters = []string{shInterpreter(t)}

	rec, err := r.Run(context.Background(), "true\n", Captured)
	require.NoError(t, err)

	assert.Equal(t, dir, filepath.Dir(rec.ScriptPath))
	assert.True(t, strings.HasPrefix(filepath.Base(rec.ScriptPath), "script_"))
	assert.True(t, strings.HasSuffix(rec.ScriptPath, ".py"))
	data, err := os.ReadFile(rec.ScriptPath)
	require.NoError(t, err)
	assert.Equal(t, "true\n", string(data))
	assert.True(t, rec.Succeeded())
}

func TestRunFallsBackToNextInterpreter(t *testing.T) {
	r := New(t.TempDir())
	r.Interpreters = []string{"no-such-python-xyz", shInterpreter(t)}

	rec, err := r.Run(context.Background(), "echo fallback\n", Captured)
	require.NoError(t, err)
	assert.Equal(t, "fallback\n", rec.Stdout)
	assert.Equal(t, r.Interpreters[1], rec.Interpreter)
}

func TestRunAllInterpretersMissing(t *testing.T) {
	r := New(t.TempDir())
	r.Interpreters = []string{"no-such-python-a", "no-such-python-b"}

	rec, err := r.Run(context.Background(), "print('x')", Captured)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoInterpreter))
	assert.True(t, errors.Is(err, exec.ErrNotFound))

	var execErr *ExecutionError
	require.True(t, errors.As(err, &execErr))
	require.Len(t, execErr.Attempts, 2)
	assert.Contains(t, err.Error(), "no-such-python-b")
	assert.FileExists(t, rec.ScriptPath)
}

func TestRunInteractiveSharesStreams(t *testing.T) {
	var out, errOut bytes.Buffer
	r := New(t.TempDir())
	r.Interpreters = []string{shInterpreter(t)}
	r.Stdin = strings.NewReader("world\n")
	r.Stdout = &out
	r.Stderr = &errOut

	rec, err := r.Run(context.Background(), "read name\necho \"hello $name\"\necho oops >&2\n", Interactive)
	require.NoError(t, err)

	assert.Equal(t, "hello world\n", out.String())
	assert.Equal(t, "oops\n", errOut.String())
	assert.Equal(t, InteractivePlaceholder, rec.Stdout)
	assert.Empty(t, rec.Stderr)
	assert.True(t, rec.Succeeded())
	assert.Equal(t, Interactive, rec.Mode)
}

func TestRunDecodesInvalidUTF8Lossily(t *testing.T) {
	r := New(t.TempDir())
	r.Interpreters = []string{shInterpreter(t)}

	rec, err := r.Run(context.Background(), "printf 'ok\\377\\n'\n", Captured)
	require.NoError(t, err)
	assert.Equal(t, "ok�\n", rec.Stdout)
}

func TestRunRapidCallsGetDistinctScripts(t *testing.T) {
	frozen := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	r := New(t.TempDir())
	r.Interpreters = []string{shInterpreter(t)}
	r.Now = func() time.Time { return frozen }

	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		rec, err := r.Run(context.Background(), "true\n", Captured)
		require.NoError(t, err)
		assert.False(t, seen[rec.ScriptPath], "duplicate script path %s", rec.ScriptPath)
		seen[rec.ScriptPath] = true
	}
	assert.Len(t, seen, 5)
}

func TestRunWriteFailureIsIOError(t *testing.T) {
	base := t.TempDir()
	blocker := filepath.Join(base, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	r := New(filepath.Join(blocker, "scripts"))
	_, err := r.Run(context.Background(), "print(1)", Captured)

	var ioErr *IOError
	require.True(t, errors.As(err, &ioErr))
	assert.Equal(t, "mkdir", ioErr.Op)
}

func TestRunFileMissing(t *testing.T) {
	r := New(t.TempDir())
	_, err := r.RunFile(context.Background(), filepath.Join(t.TempDir(), "nope.py"), Captured)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRunFileExisting(t *testing.T) {
	script := filepath.Join(t.TempDir(), "existing.py")
	require.NoError(t, os.WriteFile(script, []byte("echo from-file\n"), 0o644))

	dir := filepath.Join(t.TempDir(), "unused")
	r := New(dir)
	r.Interpreters = []string{shInterpreter(t)}

	rec, err := r.RunFile(context.Background(), script, Captured)
	require.NoError(t, err)
	assert.Equal(t, script, rec.ScriptPath)
	assert.Equal(t, "from-file\n", rec.Stdout)
	assert.NoDirExists(t, dir)
}

func TestRunPythonHello(t *testing.T) {
	python, err := exec.LookPath("python3")
	if err != nil {
		t.Skip("python3 not installed")
	}
	r := New(t.TempDir())
	r.Interpreters = []string{python}

	rec, err := r.Run(context.Background(), "print('hello')", Captured)
	require.NoError(t, err)
	assert.Contains(t, rec.Stdout, "hello")
	require.NotNil(t, rec.ExitCode)
	assert.Equal(t, 0, *rec.ExitCode)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("interactive")
	require.NoError(t, err)
	assert.Equal(t, Interactive, m)

	m, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, Captured, m)

	_, err = ParseMode("sandboxed")
	assert.Error(t, err)
	assert.Equal(t, "interactive", Interactive.String())
}
