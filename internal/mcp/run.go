package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/deixis/aptest/internal/config"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// maxStartDelaySeconds bounds start_delay_seconds well below the range
// where the conversion to time.Duration overflows.
const maxStartDelaySeconds = 3600

type runParams struct {
	SkipCompile       bool     `json:"skip_compile,omitempty" jsonschema:"do not compile the Move package"`
	SkipPublish       bool     `json:"skip_publish,omitempty" jsonschema:"do not publish the Move package to the local node"`
	SkipFaucet        bool     `json:"skip_faucet,omitempty" jsonschema:"do not start the faucet; the account is not funded"`
	StartDelaySeconds *float64 `json:"start_delay_seconds,omitempty" jsonschema:"seconds to wait for the node before building; defaults to the project setting"`
}

func (h *handler) runHandler(ctx context.Context, req *mcp.CallToolRequest, params runParams) (*mcp.CallToolResult, any, error) {
	if d := params.StartDelaySeconds; d != nil && (*d < 0 || *d > maxStartDelaySeconds) {
		return errorResult(fmt.Sprintf("start_delay_seconds must be between 0 and %d", maxStartDelaySeconds))
	}
	if !h.running.TryLock() {
		return errorResult("A run is already in progress; wait for it to finish.")
	}
	defer h.running.Unlock()

	e := h.snapshot()

	rc := config.RunConfig{
		SkipCompile: params.SkipCompile,
		SkipPublish: params.SkipPublish,
		SkipFaucet:  params.SkipFaucet,
		StartDelay:  e.Config.StartDelay(),
		Phase:       config.RunTests{},
	}
	if params.StartDelaySeconds != nil {
		rc.StartDelay = time.Duration(*params.StartDelaySeconds * float64(time.Second))
	}

	rr := e.Execute(ctx, rc)

	var b strings.Builder
	b.WriteString(rr.Summary())
	b.WriteString("\n")
	b.WriteString(inspectHint(rr.ID))
	return textResult(b.String())
}
