// Package report records the outcome of aptest runs so they can be
// printed, returned as JSON, and inspected later by run ID.
package report

import (
	"fmt"
	"strings"
	"time"
)

// Failure classifies why a run did not complete.
type Failure string

const (
	FailureNone         Failure = ""
	FailureSessionStart Failure = "session_start" // validator or faucet could not be started
	FailureReadiness    Failure = "readiness"     // node never answered its health check
	FailureStep         Failure = "step"          // compile or publish exited non-zero
	FailureSpawn        Failure = "spawn"         // a build tool or the test runner could not be started
	FailureTests        Failure = "tests"         // the test runner failed
	FailureCancelled    Failure = "cancelled"     // interrupted before completion
)

// Store persists and retrieves run results.
type Store interface {
	Save(result *RunResult) error
	Load(runID string) (*RunResult, error)
}

// RunResult holds the structured outcome of one run.
type RunResult struct {
	ID      string `json:"id"`
	Project string `json:"project,omitempty"`
	Mode    string `json:"mode"` // interactive or test

	State       string  `json:"state"` // done or failed
	Failure     Failure `json:"failure,omitempty"`
	FailingStep string  `json:"failing_step,omitempty"`
	Error       string  `json:"error,omitempty"`
	ExitCode    int     `json:"exit_code"`

	Steps        []Step   `json:"steps,omitempty"`
	TestExitCode *int     `json:"test_exit_code,omitempty"`
	Transitions  []string `json:"transitions"`

	LogFile       string `json:"log_file,omitempty"`
	MintKeyPath   string `json:"mint_key_path,omitempty"`
	TeardownError string `json:"teardown_error,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Step is the record of one build pipeline step.
type Step struct {
	Name     string        `json:"name"`
	Status   string        `json:"status"` // pass, fail, skipped
	Detail   string        `json:"detail,omitempty"`
	ExitCode int           `json:"exit_code,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
}

// Failed reports whether the run ended in the failed state.
func (r *RunResult) Failed() bool {
	return r.Failure != FailureNone
}

// Step returns the named step, or nil if the pipeline did not record it.
func (r *RunResult) Step(name string) *Step {
	for i := range r.Steps {
		if r.Steps[i].Name == name {
			return &r.Steps[i]
		}
	}
	return nil
}

// Summary renders the result as the plain-text block printed at the end
// of a run and returned by the MCP tools.
func (r *RunResult) Summary() string {
	var b strings.Builder

	status := "ok"
	if r.Failed() {
		status = "FAIL"
	}
	fmt.Fprintf(&b, "%s  run %s (%s)\n", status, r.ID, r.Mode)
	if r.Project != "" {
		fmt.Fprintf(&b, "  project        %s\n", r.Project)
	}
	fmt.Fprintln(&b)

	for _, s := range r.Steps {
		switch s.Status {
		case "pass":
			fmt.Fprintf(&b, "  %-15s ok (%s)\n", s.Name, s.Duration.Round(time.Millisecond))
		case "fail":
			fmt.Fprintf(&b, "  %-15s FAIL (exit %d)\n", s.Name, s.ExitCode)
		default:
			fmt.Fprintf(&b, "  %-15s -\n", s.Name)
		}
	}
	if r.TestExitCode != nil {
		if *r.TestExitCode == 0 {
			fmt.Fprintf(&b, "  %-15s ok\n", "tests")
		} else {
			fmt.Fprintf(&b, "  %-15s FAIL (exit %d)\n", "tests", *r.TestExitCode)
		}
	}

	if r.Failed() {
		fmt.Fprintf(&b, "\n  failure        %s", r.Failure)
		if r.FailingStep != "" {
			fmt.Fprintf(&b, " (%s)", r.FailingStep)
		}
		fmt.Fprintln(&b)
		if r.Error != "" {
			fmt.Fprintf(&b, "  error          %s\n", r.Error)
		}
	}
	if r.LogFile != "" {
		fmt.Fprintf(&b, "  node log       %s\n", r.LogFile)
	}
	if r.TeardownError != "" {
		fmt.Fprintf(&b, "  teardown       %s\n", r.TeardownError)
	}
	fmt.Fprintf(&b, "  states         %s\n", strings.Join(r.Transitions, " → "))
	return b.String()
}
