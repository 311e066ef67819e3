// path: src/headless.go
package src

import (
	"context"
	"errors"

	"github.com/Protocol-Lattice/lattice-pymaker/src/runner"
)

// HeadlessOptions selects what RunHeadless does after generating.
type HeadlessOptions struct {
	// Refine treats the prompt as a change to the last generated code.
	Refine  bool
	Run     bool
	Install bool
	// Mode is used when Run is set. Nil means the suggested mode.
	Mode *runner.Mode
}

// HeadlessResult is what RunHeadless produced.
type HeadlessResult struct {
	Generation Generation
	// Record is nil unless the script was run.
	Record *runner.Record
	// InstallErr is a non-fatal package install failure.
	InstallErr error
}

// RunHeadless generates (or refines) code for one prompt and optionally
// installs its dependencies and runs it, without any interaction.
func RunHeadless(ctx context.Context, p *Pipeline, userPrompt string, opts HeadlessOptions) (*HeadlessResult, error) {
	if p == nil {
		return nil, errors.New("pipeline is nil")
	}
	submit := p.Submit
	if opts.Refine {
		submit = p.Refine
	}
	g, err := submit(ctx, userPrompt)
	if err != nil {
		return nil, err
	}
	res := &HeadlessResult{Generation: g}
	if !opts.Run {
		return res, nil
	}
	if opts.Install && len(g.Dependencies) > 0 {
		res.InstallErr = p.Install(ctx, g.Dependencies)
	}
	mode := g.Suggested
	if opts.Mode != nil {
		mode = *opts.Mode
	}
	rec, err := p.Execute(ctx, mode)
	if err != nil {
		return res, err
	}
	res.Record = &rec
	return res, nil
}
