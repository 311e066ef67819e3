// path: cmd/mcp/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	. "github.com/Protocol-Lattice/lattice-pymaker/src"
	"github.com/Protocol-Lattice/lattice-pymaker/src/config"
	"github.com/Protocol-Lattice/lattice-pymaker/src/deps"
	"github.com/Protocol-Lattice/lattice-pymaker/src/extract"
	"github.com/Protocol-Lattice/lattice-pymaker/src/llm"
	"github.com/Protocol-Lattice/lattice-pymaker/src/runner"
)

// tools serves MCP calls from one pipeline. Stdio belongs to the protocol,
// so scripts always run captured.
type tools struct {
	mu   sync.Mutex
	pipe *Pipeline
}

func (t *tools) generate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	prompt, err := req.RequireString("prompt")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	opts := HeadlessOptions{
		Refine:  req.GetBool("refine", false),
		Run:     req.GetBool("run", false),
		Install: req.GetBool("install", false),
	}
	captured := runner.Captured
	opts.Mode = &captured

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pipe == nil {
		return mcp.NewToolResultError("generation is unavailable: " + config.ErrMissingCredential.Error()), nil
	}
	res, err := RunHeadless(ctx, t.pipe, prompt, opts)
	if err != nil && res == nil {
		return mcp.NewToolResultError(DescribeError(err)), nil
	}

	text := describeGeneration(res.Generation)
	if diff := res.Generation.Changes(false); diff != "" {
		text += "\n--- Changes ---\n" + diff
	}
	if res.InstallErr != nil {
		text += fmt.Sprintf("\n⚠️ Install failed, ran anyway: %v\n", res.InstallErr)
	}
	if res.Record != nil {
		text += "\n--- Execution ---\n" + FormatRecord(*res.Record)
	}
	if err != nil {
		text += "\n--- Error ---\n" + DescribeError(err)
	}
	return mcp.NewToolResultText(text), nil
}

func (t *tools) run(ctx context.Context, req mcp.CallToolRequest, r *runner.Runner) (*mcp.CallToolResult, error) {
	code := req.GetString("code", "")
	path := req.GetString("path", "")

	var (
		rec runner.Record
		err error
	)
	switch {
	case code != "":
		rec, err = r.Run(ctx, code, runner.Captured)
	case path != "":
		rec, err = r.RunFile(ctx, path, runner.Captured)
	default:
		return mcp.NewToolResultError("either code or path required"), nil
	}
	if err != nil {
		return mcp.NewToolResultError(DescribeError(err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Success: %v\n%s", rec.Succeeded(), FormatRecord(rec))), nil
}

func describeGeneration(g Generation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "```python\n%s\n```\n", g.Code)
	if g.Blocks > 1 {
		fmt.Fprintf(&b, "Note: the reply had %d code blocks; only the first was kept.\n", g.Blocks)
	}
	if len(g.Dependencies) > 0 {
		fmt.Fprintf(&b, "Dependencies: %s\n", strings.Join(g.Dependencies, ", "))
	}
	fmt.Fprintf(&b, "Suggested mode: %s\n", g.Suggested)
	return b.String()
}

func main() {
	configPath := flag.String("config", "", "YAML config file")
	flag.Parse()

	cfg, err := config.Load(config.LoadOptions{Path: *configPath})
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Config error: %v\n", err)
		os.Exit(1)
	}

	sessionID := uuid.NewString()
	logger, closer, err := OpenLog(cfg.LogDir, sessionID, time.Now())
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Log error: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()

	r := runner.New(cfg.ScriptsDir)
	r.Interpreters = cfg.Interpreters
	r.Logger = logger

	t := &tools{}
	if token, err := cfg.Credential(); err != nil {
		fmt.Fprintf(os.Stderr, "⚠️ %v; generate_script is disabled\n", err)
	} else {
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
			fmt.Fprintf(os.Stderr, "❌ Client error: %v\n", err)
			os.Exit(1)
		}
		inst := &deps.Installer{Interpreters: cfg.Interpreters, Logger: logger}
		t.pipe = NewPipeline(client, r, inst, Options{
			SystemPrompt: cfg.SystemPrompt,
			SessionID:    sessionID,
			Logger:       logger,
			InstallLock:  filepath.Join(cfg.ScriptsDir, InstallLockName),
		})
		defer t.pipe.Close()
	}

	s := server.NewMCPServer("pymaker", "1.0.0", server.WithToolCapabilities(true))

	s.AddTool(mcp.NewTool("generate_script",
		mcp.WithDescription("Generate a Python script from a description; optionally install its packages and run it"),
		mcp.WithString("prompt", mcp.Required(), mcp.Description("What the script should do, or the change to make when refine is set")),
		mcp.WithBoolean("refine", mcp.Description("Refine the previously generated script instead of starting a new one")),
		mcp.WithBoolean("run", mcp.Description("Execute the script after generating it")),
		mcp.WithBoolean("install", mcp.Description("pip install detected third-party packages before running")),
	), t.generate)

	s.AddTool(mcp.NewTool("run_script",
		mcp.WithDescription("Run Python code or an existing .py file and return its exit code and output"),
		mcp.WithString("code", mcp.Description("Python source to write into a new script")),
		mcp.WithString("path", mcp.Description("Existing script to run")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return t.run(ctx, req, r)
	})

	s.AddTool(mcp.NewTool("detect_dependencies",
		mcp.WithDescription("List the third-party packages a Python source imports"),
		mcp.WithString("code", mcp.Required()),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		code, err := req.RequireString("code")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		pkgs := deps.Classify(code)
		if len(pkgs) == 0 {
			return mcp.NewToolResultText("No third-party dependencies."), nil
		}
		return mcp.NewToolResultText(strings.Join(pkgs, "\n")), nil
	})

	s.AddTool(mcp.NewTool("extract_code",
		mcp.WithDescription("Extract the first fenced code block from a model reply"),
		mcp.WithString("text", mcp.Required()),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(extract.Extract(text)), nil
	})

	if err := server.ServeStdio(s); err != nil {
		if strings.Contains(err.Error(), "broken pipe") {
			fmt.Fprintln(os.Stderr, "⚠️ Client disconnected, exiting.")
			return
		}
		fmt.Fprintf(os.Stderr, "❌ Server error: %v\n", err)
		os.Exit(1)
	}
}
