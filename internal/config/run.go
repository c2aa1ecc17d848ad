package config

import "time"

// Phase selects what a run does once the package is built and published.
// Interactive and RunTests are the only implementations.
type Phase interface {
	phase() string
}

// Interactive leaves the node running until the run is cancelled.
type Interactive struct{}

// RunTests hands control to the project's end-to-end test runner.
type RunTests struct{}

func (Interactive) phase() string { return "interactive" }
func (RunTests) phase() string { return "test" }

// PhaseName returns "interactive" or "test".
func PhaseName(p Phase) string {
	if p == nil {
		return RunTests{}.phase()
	}
	return p.phase()
}

// RunConfig is the per-invocation configuration assembled from flags.
// It is passed by value and never modified during a run.
type RunConfig struct {
	SkipCompile bool
	SkipPublish bool
	SkipFaucet  bool
	LogToFile   bool
	StartDelay  time.Duration
	Phase       Phase // nil means RunTests
}

// IsInteractive reports whether the run waits for cancellation instead of
// running tests.
func (rc RunConfig) IsInteractive() bool {
	_, ok := rc.Phase.(Interactive)
	return ok
}

// SkipBuild reports whether the whole build pipeline is skipped.
func (rc RunConfig) SkipBuild() bool {
	return rc.SkipCompile && rc.SkipPublish
}
