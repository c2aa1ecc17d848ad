package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/deixis/aptest/internal/report"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type inspectParams struct {
	RunID string `json:"run_id" jsonschema:"the run ID from an aptest_run result"`
}

func (h *handler) inspectHandler(ctx context.Context, req *mcp.CallToolRequest, params inspectParams) (*mcp.CallToolResult, any, error) {
	if params.RunID == "" {
		return errorResult("run_id is required")
	}

	result, err := h.store.Load(params.RunID)
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to load run %s: %v", params.RunID, err))
	}
	return textResult(formatInspectOutput(result))
}

func formatInspectOutput(rr *report.RunResult) string {
	var b strings.Builder

	b.WriteString(rr.Summary())
	fmt.Fprintln(&b)

	fmt.Fprintf(&b, "Started: %s\n", rr.StartedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Took: %s\n", rr.FinishedAt.Sub(rr.StartedAt).Round(time.Millisecond))

	for _, s := range rr.Steps {
		if s.Status == "skipped" && s.Detail != "" {
			fmt.Fprintf(&b, "Skipped %s: %s\n", s.Name, s.Detail)
		}
		if s.Status == "fail" && s.Detail != "" {
			fmt.Fprintf(&b, "%s: %s\n", s.Name, s.Detail)
		}
	}
	if rr.MintKeyPath != "" {
		fmt.Fprintf(&b, "Mint key: %s\n", rr.MintKeyPath)
	}
	if rr.LogFile != "" {
		fmt.Fprintf(&b, "Node log: %s\n", rr.LogFile)
	}
	if rr.TeardownError != "" {
		fmt.Fprintf(&b, "Teardown: %s\n", rr.TeardownError)
	}
	return b.String()
}
