package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	. "github.com/Protocol-Lattice/lattice-pymaker/src"
	"github.com/Protocol-Lattice/lattice-pymaker/src/config"
	"github.com/Protocol-Lattice/lattice-pymaker/src/deps"
	"github.com/Protocol-Lattice/lattice-pymaker/src/llm"
	"github.com/Protocol-Lattice/lattice-pymaker/src/runner"
)

type globalFlags struct {
	configPath string
	overrides  config.Overrides
}

// app is everything a subcommand needs once configuration is loaded.
type app struct {
	cfg    config.Config
	model  string
	pipe   *Pipeline
	runner *runner.Runner
	closer io.Closer
}

func (a *app) Close() {
	if a.closer != nil {
		_ = a.closer.Close()
	}
}

// setup loads configuration and builds the pipeline. withModel is false
// for commands that never call the endpoint, so no credential is needed.
func setup(g *globalFlags, withModel bool) (*app, error) {
	cfg, err := config.Load(config.LoadOptions{Path: g.configPath, Overrides: g.overrides})
	if err != nil {
		return nil, err
	}

	var gen Generator
	var token, model string
	if withModel {
		if token, err = cfg.Credential(); err != nil {
			return nil, err
		}
	}

	sessionID := uuid.NewString()
	logger, closer, err := OpenLog(cfg.LogDir, sessionID, time.Now())
	if err != nil {
		return nil, err
	}

	if withModel {
		client, err := llm.New(llm.Options{
			Endpoint:    cfg.Endpoint,
			Model:       cfg.Model,
			Token:       token,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Timeout:     cfg.Timeout,
			Logger:      logger,
		})
		if err != nil {
			_ = closer.Close()
			return nil, err
		}
		gen = client
		model = client.Model()
	}

	r := runner.New(cfg.ScriptsDir)
	r.Interpreters = cfg.Interpreters
	r.Logger = logger
	inst := &deps.Installer{Interpreters: cfg.Interpreters, Logger: logger}

	p := NewPipeline(gen, r, inst, Options{
		SystemPrompt: cfg.SystemPrompt,
		SessionID:    sessionID,
		Logger:       logger,
		InstallLock:  filepath.Join(cfg.ScriptsDir, InstallLockName),
	})
	logger.Info("session started", "model", model, "endpoint", cfg.Endpoint, "scripts_dir", cfg.ScriptsDir)
	return &app{cfg: cfg, model: model, pipe: p, runner: r, closer: closer}, nil
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "❌", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "pymaker",
		Short:         "Generate, inspect and run Python scripts with an LLM",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Println("⚡ Initializing Lattice PyMaker...")
			a, err := setup(g, true)
			if err != nil {
				return err
			}
			defer a.Close()
			err = RunTUI(cmd.Context(), a.pipe, a.runner, TUIOptions{
				Model:      a.model,
				ScriptsDir: a.cfg.ScriptsDir,
			})
			fmt.Print(FormatMetrics(a.pipe.Metrics()))
			return err
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "", "YAML config file (default "+config.DefaultPath+" if present)")
	pf.StringVar(&g.overrides.Model, "model", "", "model identifier")
	pf.StringVar(&g.overrides.Endpoint, "endpoint", "", "chat completions endpoint URL")
	pf.StringVar(&g.overrides.ScriptsDir, "scripts-dir", "", "directory for generated scripts")
	pf.StringVar(&g.overrides.LogDir, "log-dir", "", "directory for session logs")

	root.AddCommand(newREPLCmd(g), newGenerateCmd(g), newRunCmd(g))
	return root
}

func newREPLCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Line-oriented session without the full-screen interface",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(g, true)
			if err != nil {
				return err
			}
			defer a.Close()

			// Ctrl+C belongs to the running script; the session keeps going.
			signal.Notify(make(chan os.Signal, 1), os.Interrupt)

			hist := filepath.Join(a.cfg.LogDir, ".pymaker_history")
			rl, err := NewReadline(hist)
			if err != nil {
				return err
			}
			defer rl.Close()
			return NewREPL(a.pipe, rl, rl.Stdout()).Run(cmd.Context())
		},
	}
}

func newGenerateCmd(g *globalFlags) *cobra.Command {
	var run, install, interactive bool
	cmd := &cobra.Command{
		Use:   "generate <prompt...>",
		Short: "Generate one script and optionally run it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(g, true)
			if err != nil {
				return err
			}
			defer a.Close()
			defer a.pipe.Close()

			opts := HeadlessOptions{Run: run, Install: install}
			if cmd.Flags().Changed("interactive") {
				mode := runner.Captured
				if interactive {
					mode = runner.Interactive
				}
				opts.Mode = &mode
			}
			res, err := RunHeadless(cmd.Context(), a.pipe, strings.Join(args, " "), opts)
			if res != nil {
				printHeadless(cmd.OutOrStdout(), cmd.ErrOrStderr(), res)
			}
			if err != nil {
				return errors.New(DescribeError(err))
			}
			if res.Record != nil && !res.Record.Succeeded() {
				return fmt.Errorf("script failed: %s", res.Record.ScriptPath)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&run, "run", false, "execute the generated script")
	cmd.Flags().BoolVar(&install, "install", false, "install detected third-party packages before running")
	cmd.Flags().BoolVar(&interactive, "interactive", false, "run attached to the terminal (default: suggested mode)")
	return cmd
}

func newRunCmd(g *globalFlags) *cobra.Command {
	var interactive bool
	cmd := &cobra.Command{
		Use:   "run <script.py>",
		Short: "Execute an existing Python script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(g, false)
			if err != nil {
				return err
			}
			defer a.Close()
			defer a.pipe.Close()

			mode := runner.Captured
			if interactive {
				mode = runner.Interactive
			}
			rec, err := a.pipe.RunExisting(cmd.Context(), args[0], mode)
			if err != nil {
				return errors.New(DescribeError(err))
			}
			fmt.Fprint(cmd.OutOrStdout(), FormatRecord(rec))
			if !rec.Succeeded() {
				return fmt.Errorf("script failed: %s", rec.ScriptPath)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&interactive, "interactive", false, "run attached to the terminal")
	return cmd
}

func printHeadless(out, errOut io.Writer, res *HeadlessResult) {
	fmt.Fprintln(out, res.Generation.Code)
	if res.Generation.Blocks > 1 {
		fmt.Fprintf(errOut, "note: the reply had %d code blocks; only the first was kept\n", res.Generation.Blocks)
	}
	if len(res.Generation.Dependencies) > 0 {
		fmt.Fprintf(errOut, "dependencies: %s\n", strings.Join(res.Generation.Dependencies, ", "))
	}
	if res.InstallErr != nil {
		fmt.Fprintf(errOut, "⚠️  install failed, ran anyway: %v\n", res.InstallErr)
	}
	if res.Record != nil {
		fmt.Fprint(errOut, FormatRecord(*res.Record))
	}
}
