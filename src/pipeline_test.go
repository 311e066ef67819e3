package src

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Protocol-Lattice/lattice-pymaker/src/convo"
	"github.com/Protocol-Lattice/lattice-pymaker/src/llm"
	"github.com/Protocol-Lattice/lattice-pymaker/src/runner"
)

type fakeGen struct {
	replies []string
	errs    []error
	seen    [][]convo.Turn
}

func (f *fakeGen) Generate(_ context.Context, history []convo.Turn) (string, error) {
	f.seen = append(f.seen, append([]convo.Turn(nil), history...))
	i := len(f.seen) - 1
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.replies) {
		return f.replies[i], nil
	}
	return "", errors.New("no reply scripted")
}

type fakeExec struct {
	exit  int
	err   error
	codes []string
	files []string
	modes []runner.Mode
}

func (f *fakeExec) record(path string, mode runner.Mode) (runner.Record, error) {
	if f.err != nil {
		return runner.Record{ScriptPath: path, Mode: mode}, f.err
	}
	code := f.exit
	return runner.Record{ScriptPath: path, Interpreter: "python3", Mode: mode, ExitCode: &code, Stdout: "out\n"}, nil
}

func (f *fakeExec) Run(_ context.Context, code string, mode runner.Mode) (runner.Record, error) {
	f.codes = append(f.codes, code)
	f.modes = append(f.modes, mode)
	return f.record("generated/script.py", mode)
}

func (f *fakeExec) RunFile(_ context.Context, path string, mode runner.Mode) (runner.Record, error) {
	f.files = append(f.files, path)
	f.modes = append(f.modes, mode)
	return f.record(path, mode)
}

type fakeInstaller struct {
	calls [][]string
	err   error
}

func (f *fakeInstaller) Install(_ context.Context, pkgs []string) error {
	f.calls = append(f.calls, append([]string(nil), pkgs...))
	return f.err
}

func fenced(code string) string { return "```python\n" + code + "\n```" }

func TestSubmitExtractsCodeAndRecordsTurns(t *testing.T) {
	gen := &fakeGen{replies: []string{fenced("print('Hello, World!')")}}
	p := NewPipeline(gen, &fakeExec{}, nil, Options{SessionID: "s1"})

	g, err := p.Submit(context.Background(), "  print hello world  ")
	require.NoError(t, err)

	assert.Equal(t, "print('Hello, World!')", g.Code)
	assert.Equal(t, 1, g.Blocks)
	assert.Empty(t, g.Dependencies)
	assert.Equal(t, runner.Captured, g.Suggested)
	assert.Empty(t, g.Previous)
	assert.Empty(t, g.Changes(false))

	require.Len(t, gen.seen, 1)
	sent := gen.seen[0]
	require.Len(t, sent, 2)
	assert.Equal(t, convo.System, sent[0].Role)
	assert.Equal(t, convo.Turn{Role: convo.User, Content: "print hello world"}, sent[1])

	hist := p.History()
	require.Len(t, hist, 2)
	assert.Equal(t, convo.Assistant, hist[1].Role)
	assert.Equal(t, "print('Hello, World!')", hist[1].Content)

	code, ok := p.LastCode()
	assert.True(t, ok)
	assert.Equal(t, g.Code, code)
	assert.Equal(t, 1, p.Metrics().TotalRequests)
	assert.Equal(t, "s1", p.SessionID())
}

func TestSubmitRejectsEmptyPrompt(t *testing.T) {
	gen := &fakeGen{}
	p := NewPipeline(gen, &fakeExec{}, nil, Options{})

	_, err := p.Submit(context.Background(), "   ")

	assert.ErrorIs(t, err, ErrEmptyPrompt)
	assert.Empty(t, gen.seen)
	assert.Zero(t, p.Metrics().TotalRequests)
}

func TestSubmitFailureRollsBackUserTurn(t *testing.T) {
	boom := &llm.HTTPError{Status: "401 Unauthorized", StatusCode: 401, Body: "bad token"}
	gen := &fakeGen{errs: []error{boom}}
	p := NewPipeline(gen, &fakeExec{}, nil, Options{})

	_, err := p.Submit(context.Background(), "anything")

	var httpErr *llm.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, "bad token", httpErr.Body)
	assert.Empty(t, p.History())
	_, ok := p.LastCode()
	assert.False(t, ok)
	m := p.Metrics()
	assert.Equal(t, 1, m.TotalRequests)
	assert.Equal(t, 1, m.APIErrors)
}

func TestFailureKeepsEarlierConversation(t *testing.T) {
	gen := &fakeGen{
		replies: []string{fenced("x = 1")},
		errs:    []error{nil, errors.New("timeout")},
	}
	p := NewPipeline(gen, &fakeExec{}, nil, Options{})
	ctx := context.Background()

	_, err := p.Submit(ctx, "first")
	require.NoError(t, err)
	_, err = p.Submit(ctx, "second")
	require.Error(t, err)

	assert.Len(t, p.History(), 2)
	code, ok := p.LastCode()
	assert.True(t, ok)
	assert.Equal(t, "x = 1", code)
}

func TestRefineSendsPrefixedPromptAndDiff(t *testing.T) {
	gen := &fakeGen{replies: []string{
		fenced("def f(a, b):\n    return a + b"),
		fenced("def f(a, b):\n    \"\"\"Add.\"\"\"\n    return a + b"),
	}}
	p := NewPipeline(gen, &fakeExec{}, nil, Options{})
	ctx := context.Background()

	_, err := p.Submit(ctx, "add two numbers")
	require.NoError(t, err)
	g, err := p.Refine(ctx, "add a docstring")
	require.NoError(t, err)

	sent := gen.seen[1]
	require.Len(t, sent, 4)
	assert.Equal(t, "Please refine the previous code: add a docstring", sent[3].Content)
	assert.Equal(t, "def f(a, b):\n    return a + b", g.Previous)
	diff := g.Changes(false)
	assert.Contains(t, diff, "+    \"\"\"Add.\"\"\"")
	assert.Len(t, p.History(), 4)
}

func TestRefineWithoutCode(t *testing.T) {
	gen := &fakeGen{}
	p := NewPipeline(gen, &fakeExec{}, nil, Options{})

	_, err := p.Refine(context.Background(), "more")

	assert.ErrorIs(t, err, ErrNoCode)
	assert.Empty(t, gen.seen)
}

func TestExecuteCountsOutcomes(t *testing.T) {
	gen := &fakeGen{replies: []string{fenced("print(1)")}}
	ex := &fakeExec{}
	p := NewPipeline(gen, ex, nil, Options{})
	ctx := context.Background()

	_, err := p.Execute(ctx, runner.Captured)
	assert.ErrorIs(t, err, ErrNoCode)

	_, err = p.Submit(ctx, "one")
	require.NoError(t, err)

	rec, err := p.Execute(ctx, runner.Captured)
	require.NoError(t, err)
	assert.True(t, rec.Succeeded())
	assert.Equal(t, []string{"print(1)"}, ex.codes)

	ex.exit = 1
	rec, err = p.Execute(ctx, runner.Interactive)
	require.NoError(t, err)
	assert.False(t, rec.Succeeded())
	assert.Equal(t, runner.Interactive, ex.modes[1])

	ex.err = runner.ErrNoInterpreter
	_, err = p.Execute(ctx, runner.Captured)
	assert.ErrorIs(t, err, runner.ErrNoInterpreter)

	m := p.Metrics()
	assert.Equal(t, 1, m.SuccessfulExecutions)
	assert.Equal(t, 2, m.FailedExecutions)
	assert.InDelta(t, 33.3, m.SuccessRate(), 0.1)
}

func TestExecuteEmptyCode(t *testing.T) {
	gen := &fakeGen{replies: []string{"```python\n  \n```"}}
	ex := &fakeExec{}
	p := NewPipeline(gen, ex, nil, Options{})
	ctx := context.Background()

	g, err := p.Submit(ctx, "nothing")
	require.NoError(t, err)
	assert.Empty(t, g.Code)

	_, err = p.Execute(ctx, runner.Captured)
	assert.ErrorIs(t, err, ErrEmptyCode)
	assert.Empty(t, ex.codes)
}

func TestDependenciesAndInstall(t *testing.T) {
	gen := &fakeGen{replies: []string{fenced("from flask import Flask\nimport os\napp = Flask(__name__)")}}
	inst := &fakeInstaller{}
	p := NewPipeline(gen, &fakeExec{}, inst, Options{})
	ctx := context.Background()

	_, err := p.Dependencies()
	assert.ErrorIs(t, err, ErrNoCode)

	g, err := p.Submit(ctx, "a flask app")
	require.NoError(t, err)
	assert.Equal(t, []string{"flask"}, g.Dependencies)

	got, err := p.Dependencies()
	require.NoError(t, err)
	assert.Equal(t, []string{"flask"}, got)

	require.NoError(t, p.Install(ctx, got))
	assert.Equal(t, [][]string{{"flask"}}, inst.calls)

	require.NoError(t, p.Install(ctx, nil))
	assert.Len(t, inst.calls, 1)
}

func TestInstallFailureIsReturned(t *testing.T) {
	inst := &fakeInstaller{err: errors.New("pip exploded")}
	p := NewPipeline(&fakeGen{}, &fakeExec{}, inst, Options{})

	err := p.Install(context.Background(), []string{"numpy"})

	assert.EqualError(t, err, "pip exploded")
}

func TestInstallWithoutInstaller(t *testing.T) {
	p := NewPipeline(&fakeGen{}, &fakeExec{}, nil, Options{})

	assert.Error(t, p.Install(context.Background(), []string{"numpy"}))
}

func TestRunExistingCounts(t *testing.T) {
	ex := &fakeExec{}
	p := NewPipeline(&fakeGen{}, ex, nil, Options{})

	rec, err := p.RunExisting(context.Background(), "old.py", runner.Captured)

	require.NoError(t, err)
	assert.Equal(t, "old.py", rec.ScriptPath)
	assert.Equal(t, []string{"old.py"}, ex.files)
	assert.Equal(t, 1, p.Metrics().SuccessfulExecutions)
}

func TestSaveAndClear(t *testing.T) {
	gen := &fakeGen{replies: []string{fenced("print('saved')")}}
	p := NewPipeline(gen, &fakeExec{}, nil, Options{})
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "out.py")

	assert.ErrorIs(t, p.Save(path), ErrNoCode)

	_, err := p.Submit(ctx, "save me")
	require.NoError(t, err)
	require.NoError(t, p.Save(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "print('saved')", string(data))
	assert.Error(t, p.Save(" "))

	p.Clear()
	assert.Empty(t, p.History())
	_, ok := p.LastCode()
	assert.False(t, ok)
	assert.Equal(t, 1, p.Metrics().TotalRequests)
}

func TestMetricsString(t *testing.T) {
	m := Metrics{TotalRequests: 4, SuccessfulExecutions: 3, FailedExecutions: 1, APIErrors: 1}

	assert.Equal(t, "requests=4 ok=3 failed=1 api_errors=1 success_rate=75.0%", m.String())
	assert.Zero(t, Metrics{}.SuccessRate())
}

func TestPipelineAgainstFakeEndpoint(t *testing.T) {
	python, err := exec.LookPath("python3")
	if err != nil {
		t.Skip("python3 not installed")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []convo.Turn `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		reply := fenced("print('Hello, World!')")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": reply}}},
		})
	}))
	defer srv.Close()

	client, err := llm.New(llm.Options{Endpoint: srv.URL, Token: "test-token"})
	require.NoError(t, err)
	r := runner.New(t.TempDir())
	r.Interpreters = []string{python}
	p := NewPipeline(client, r, nil, Options{})
	ctx := context.Background()

	res, err := RunHeadless(ctx, p, "print hello world", HeadlessOptions{Run: true})
	require.NoError(t, err)

	require.NotNil(t, res.Record)
	assert.True(t, res.Record.Succeeded())
	assert.Equal(t, "Hello, World!\n", res.Record.Stdout)
	assert.FileExists(t, res.Record.ScriptPath)
	assert.Equal(t, 1, p.Metrics().SuccessfulExecutions)
}
