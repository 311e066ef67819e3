package src

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/Protocol-Lattice/lattice-pymaker/src/convo"
	"github.com/Protocol-Lattice/lattice-pymaker/src/deps"
	"github.com/Protocol-Lattice/lattice-pymaker/src/extract"
	"github.com/Protocol-Lattice/lattice-pymaker/src/runner"
)

var (
	ErrEmptyPrompt = errors.New("prompt cannot be empty")
	ErrNoCode      = errors.New("no code generated yet")
	ErrEmptyCode   = errors.New("no code to run")
)

// Generator produces a model reply for a conversation.
type Generator interface {
	Generate(ctx context.Context, history []convo.Turn) (string, error)
}

// Executor runs scripts. *runner.Runner implements it.
type Executor interface {
	Run(ctx context.Context, code string, mode runner.Mode) (runner.Record, error)
	RunFile(ctx context.Context, path string, mode runner.Mode) (runner.Record, error)
}

// PackageInstaller installs third-party packages. *deps.Installer implements it.
type PackageInstaller interface {
	Install(ctx context.Context, pkgs []string) error
}

// Metrics counts what happened during one session.
type Metrics struct {
	TotalRequests        int `json:"total_requests"`
	SuccessfulExecutions int `json:"successful_executions"`
	FailedExecutions     int `json:"failed_executions"`
	APIErrors            int `json:"api_errors"`
}

// SuccessRate is the share of executions that exited with status 0, in
// percent. It is zero when nothing ran.
func (m Metrics) SuccessRate() float64 {
	total := m.SuccessfulExecutions + m.FailedExecutions
	if total == 0 {
		return 0
	}
	return float64(m.SuccessfulExecutions) * 100 / float64(total)
}

func (m Metrics) String() string {
	return fmt.Sprintf("requests=%d ok=%d failed=%d api_errors=%d success_rate=%.1f%%",
		m.TotalRequests, m.SuccessfulExecutions, m.FailedExecutions, m.APIErrors, m.SuccessRate())
}

// Generation is the outcome of one successful request.
type Generation struct {
	convo.Artifact
	// Blocks is the number of fenced blocks in the reply; only the first is kept.
	Blocks       int
	Dependencies []string
	Suggested    runner.Mode
	// Previous is the code this refinement replaced. Empty for new requests.
	Previous string
}

// Changes returns a unified diff from Previous to Code, or "" for a new
// request. color selects ANSI output.
func (g Generation) Changes(color bool) string {
	if g.Previous == "" {
		return ""
	}
	if color {
		return DiffPretty("script.py", g.Previous, g.Code)
	}
	return Diff("script.py", g.Previous, g.Code)
}

// Options configures a Pipeline.
type Options struct {
	SystemPrompt string
	SessionID    string
	Logger       *slog.Logger
	// InstallLock, when set, is a lock directory shared by every process
	// that installs into the same Python environment.
	InstallLock string
}

// Pipeline owns one conversation and everything needed to turn it into
// executed scripts. Calls must not overlap.
type Pipeline struct {
	id        string
	session   *convo.Session
	gen       Generator
	exec      Executor
	installer PackageInstaller
	metrics   Metrics
	logger    *slog.Logger

	installLock string
}

// NewPipeline starts an empty session. installer may be nil when packages
// are never installed.
func NewPipeline(gen Generator, exec Executor, installer PackageInstaller, opts Options) *Pipeline {
	id := opts.SessionID
	if id == "" {
		id = uuid.NewString()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Pipeline{
		id:        id,
		session:   convo.New(opts.SystemPrompt),
		gen:       gen,
		exec:      exec,
		installer: installer,
		logger:    logger,

		installLock: opts.InstallLock,
	}
}

func (p *Pipeline) SessionID() string { return p.id }

func (p *Pipeline) Metrics() Metrics { return p.metrics }

// History returns the conversation without the system turn.
func (p *Pipeline) History() []convo.Turn { return p.session.Turns() }

// LastCode returns the most recently generated code.
func (p *Pipeline) LastCode() (string, bool) { return p.session.LastCode() }

// Submit sends prompt as a new user turn and extracts code from the reply.
// On a generation failure the user turn is removed again.
func (p *Pipeline) Submit(ctx context.Context, prompt string) (Generation, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return Generation{}, ErrEmptyPrompt
	}
	return p.generate(ctx, prompt, false)
}

// Refine asks the model to change the last generated code.
func (p *Pipeline) Refine(ctx context.Context, delta string) (Generation, error) {
	if _, ok := p.session.LastCode(); !ok {
		return Generation{}, ErrNoCode
	}
	delta = strings.TrimSpace(delta)
	if delta == "" {
		return Generation{}, ErrEmptyPrompt
	}
	return p.generate(ctx, convo.RefinePrompt(delta), true)
}

func (p *Pipeline) generate(ctx context.Context, content string, refine bool) (Generation, error) {
	prev, hadPrev := p.session.LastCode()

	p.session.Append(convo.Turn{Role: convo.User, Content: content})
	p.metrics.TotalRequests++
	p.logger.Info("generation requested", "refine", refine, "turns", p.session.Len())

	raw, err := p.gen.Generate(ctx, p.session.SnapshotForSend())
	if err != nil {
		p.session.RollbackLast()
		p.metrics.APIErrors++
		p.logger.Error("generation failed", "err", err)
		return Generation{}, fmt.Errorf("generate: %w", err)
	}

	art := p.session.SetArtifact(raw)
	p.session.Append(convo.Turn{Role: convo.Assistant, Content: art.Code})

	g := Generation{
		Artifact:     art,
		Blocks:       len(extract.Blocks(raw)),
		Dependencies: deps.Classify(art.Code),
		Suggested:    runner.SuggestMode(art.Code),
	}
	if refine && hadPrev {
		g.Previous = prev
	}
	p.logger.Info("code extracted",
		"raw_bytes", len(raw), "code_bytes", len(art.Code), "blocks", g.Blocks,
		"dependencies", strings.Join(g.Dependencies, ","), "suggested_mode", g.Suggested)
	return g, nil
}

// Dependencies classifies the imports of the last generated code.
func (p *Pipeline) Dependencies() ([]string, error) {
	code, ok := p.session.LastCode()
	if !ok {
		return nil, ErrNoCode
	}
	return deps.Classify(code), nil
}

// Install installs pkgs. A failure is returned for display only; callers
// go on to execute anyway.
func (p *Pipeline) Install(ctx context.Context, pkgs []string) error {
	if len(pkgs) == 0 {
		return nil
	}
	if p.installer == nil {
		return errors.New("no package installer configured")
	}
	p.logger.Info("installing packages", "packages", strings.Join(pkgs, ","))
	err := p.withInstallLock(ctx, func() error { return p.installer.Install(ctx, pkgs) })
	if err != nil {
		p.logger.Warn("package install failed", "err", err)
		return err
	}
	p.logger.Info("packages installed")
	return nil
}

// Execute runs the last generated code in the given mode. A record with a
// non-zero exit code is counted as a failed execution but is not an error.
func (p *Pipeline) Execute(ctx context.Context, mode runner.Mode) (runner.Record, error) {
	code, ok := p.session.LastCode()
	if !ok {
		return runner.Record{}, ErrNoCode
	}
	if strings.TrimSpace(code) == "" {
		return runner.Record{}, ErrEmptyCode
	}
	rec, err := p.exec.Run(ctx, code, mode)
	return p.account(rec, err)
}

// RunExisting executes a script already on disk.
func (p *Pipeline) RunExisting(ctx context.Context, path string, mode runner.Mode) (runner.Record, error) {
	rec, err := p.exec.RunFile(ctx, path, mode)
	return p.account(rec, err)
}

func (p *Pipeline) account(rec runner.Record, err error) (runner.Record, error) {
	if err != nil {
		p.metrics.FailedExecutions++
		p.logger.Error("execution failed", "script", rec.ScriptPath, "err", err)
		return rec, err
	}
	if rec.Succeeded() {
		p.metrics.SuccessfulExecutions++
	} else {
		p.metrics.FailedExecutions++
	}
	p.logger.Info("execution finished",
		"script", rec.ScriptPath, "mode", rec.Mode, "success", rec.Succeeded(),
		"duration", rec.Duration, "stdout_tail", runner.TailBytes(rec.Stdout, 200))
	return rec, nil
}

// Save writes the last generated code to path.
func (p *Pipeline) Save(path string) error {
	code, ok := p.session.LastCode()
	if !ok {
		return ErrNoCode
	}
	if strings.TrimSpace(path) == "" {
		return errors.New("file name cannot be empty")
	}
	if err := os.WriteFile(path, []byte(code), 0o644); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	p.logger.Info("code saved", "path", path)
	return nil
}

// Clear forgets the conversation and the last generated code. Metrics are
// kept for the whole session.
func (p *Pipeline) Clear() {
	p.session.Clear()
	p.logger.Info("conversation cleared")
}

// Close logs the session summary.
func (p *Pipeline) Close() {
	m := p.metrics
	p.logger.Info("session ended",
		"total_requests", m.TotalRequests,
		"successful_executions", m.SuccessfulExecutions,
		"failed_executions", m.FailedExecutions,
		"api_errors", m.APIErrors)
}
