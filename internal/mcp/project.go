package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type projectParams struct{}

func (h *handler) projectHandler(ctx context.Context, req *mcp.CallToolRequest, _ projectParams) (*mcp.CallToolResult, any, error) {
	e := h.snapshot()

	var b strings.Builder

	pkg := e.Project
	if pkg == "" {
		pkg = "(no Move.toml found)"
	}
	fmt.Fprintf(&b, "Package: %s\n", pkg)
	fmt.Fprintf(&b, "Root: %s\n", e.ProjectRoot)
	if e.Account != "" {
		fmt.Fprintf(&b, "Account: %s\n", e.Account)
	} else {
		fmt.Fprintln(&b, "Account: (none; funding is skipped)")
	}
	fmt.Fprintf(&b, "Start delay: %s\n", e.Config.StartDelay())
	if e.Config.Ready.URL != "" {
		fmt.Fprintf(&b, "Readiness: %s (timeout %s)\n", e.Config.Ready.URL, e.Config.ReadyTimeout())
	}
	fmt.Fprintln(&b)

	fmt.Fprintln(&b, "Commands:")
	for _, c := range []struct {
		name string
		argv []string
	}{
		{"validator", e.Config.ValidatorArgv()},
		{"faucet", e.Config.FaucetArgv()},
		{"compile", e.Config.CompileArgv()},
		{"fund", e.Config.FundArgv()},
		{"publish", e.Config.PublishArgv()},
		{"tests", e.Config.TestArgv()},
	} {
		fmt.Fprintf(&b, "  %-10s %s\n", c.name, strings.Join(c.argv, " "))
	}

	return textResult(b.String())
}
