// Package mcp provides the aptest MCP server, registering all tools
// and publishing model instructions.
package mcp

import (
	"context"
	_ "embed"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/deixis/aptest"
	"github.com/deixis/aptest/internal/config"
	"github.com/deixis/aptest/internal/console"
	"github.com/deixis/aptest/internal/report"
	"github.com/deixis/aptest/internal/runner"
	"github.com/deixis/aptest/internal/workflow"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"
)

//go:embed instructions.md
var Instructions string

// handler holds shared dependencies for all tool handlers.
type handler struct {
	// running serialises runs: two local nodes would fight over the same ports.
	running sync.Mutex

	mu     sync.Mutex // guards engine and runner fields
	engine *workflow.Engine
	runner *runner.Runner
	store  report.Store
}

// snapshot returns a copy of the engine to run with, unaffected by a
// later change of project root.
func (h *handler) snapshot() workflow.Engine {
	h.mu.Lock()
	defer h.mu.Unlock()
	r := *h.runner
	e := *h.engine
	e.Starter = &r
	e.Steps = &r
	return e
}

// NewServer creates an MCP server with all aptest tools registered.
// Runs go through r, which must not write to the stdio transport.
func NewServer(loaded *config.LoadResult, r *runner.Runner, store report.Store, log zerolog.Logger) *mcp.Server {
	h := &handler{
		engine: &workflow.Engine{
			Config:      loaded.Config,
			Starter:     r,
			Steps:       r,
			ProjectRoot: loaded.ProjectRoot,
			Project:     loaded.Package,
			Account:     loaded.Account,
			Log:         log,
			Store:       store,
		},
		runner: r,
		store:  store,
	}
	if r.Stderr != nil {
		h.engine.Console = console.New(r.Stderr)
	}

	opts := &mcp.ServerOptions{
		Instructions: Instructions,
		Capabilities: &mcp.ServerCapabilities{
			Tools: &mcp.ToolCapabilities{ListChanged: false},
		},
		InitializedHandler: func(ctx context.Context, req *mcp.InitializedRequest) {
			h.updateProjectFromRoots(ctx, req.Session)
		},
	}
	s := mcp.NewServer(&mcp.Implementation{Name: "aptest", Version: aptest.Version}, opts)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "aptest_project",
		Description: "Summarise the Move project: package name, default account, project root, and the commands a run executes.",
	}, h.projectHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "aptest_run",
		Description: `Start a local Aptos node, compile and publish the Move package, run the e2e tests, and shut the node down.

Steps run in order and stop on the first failure; the node is always torn down.
Results are stored for later retrieval via aptest_inspect.`,
	}, h.runHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "aptest_inspect",
		Description: "Show the full result of a previous aptest_run, including state transitions and teardown errors.",
	}, h.inspectHandler)

	return s
}

// updateProjectFromRoots queries the client for MCP roots and retargets
// the handler at the first file root that holds a loadable project.
// This is called during session initialization, before any tool calls.
func (h *handler) updateProjectFromRoots(ctx context.Context, session *mcp.ServerSession) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	roots, err := session.ListRoots(ctx, &mcp.ListRootsParams{})
	if err != nil || len(roots.Roots) == 0 {
		return
	}

	u, err := url.Parse(roots.Roots[0].URI)
	if err != nil || u.Scheme != "file" {
		return
	}

	loaded, err := config.Load(u.Path)
	if err != nil {
		h.engine.Log.Warn().Err(err).Str("root", u.Path).Msg("ignoring client root")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.runner.Workspace = loaded.ProjectRoot
	h.runner.GracePeriod = loaded.Config.GracePeriod()
	h.runner.Timeout = loaded.Config.StepTimeout()

	h.engine.Config = loaded.Config
	h.engine.ProjectRoot = loaded.ProjectRoot
	h.engine.Project = loaded.Package
	h.engine.Account = loaded.Account
}

// textResult is a helper to build a text-only tool result.
func textResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, nil, nil
}

// errorResult is a helper to build an error tool result.
func errorResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}, nil, nil
}

func inspectHint(runID string) string {
	return fmt.Sprintf("Inspect with aptest_inspect(run_id=%q).\n", runID)
}
