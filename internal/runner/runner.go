// Package runner spawns and supervises the external processes aptest
// drives: long-lived node processes and short-lived build and test steps.
package runner

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// waitDelay bounds how long Wait keeps draining output pipes after the
// process itself has exited (e.g. a grandchild still holds stdout).
const waitDelay = 2 * time.Second

// Spec describes a process to spawn.
type Spec struct {
	Label string   // human-readable name; defaults to the binary name
	Argv  []string // argv[0] is resolved via PATH
	Dir   string   // resolved relative to the runner workspace

	// Output receives both stdout and stderr. Nil inherits the runner's
	// Stdout and Stderr.
	Output io.Writer

	// Tee receives a copy of stdout in addition to Output.
	Tee io.Writer

	// Detach starts the process in its own process group. Terminal
	// interrupts then reach aptest only, and Terminate signals the whole
	// group. Detached processes get no stdin.
	Detach bool
}

// Runner spawns processes within a workspace boundary.
type Runner struct {
	Workspace   string
	Stdin       io.Reader // given to attached steps; nil means /dev/null
	Stdout      io.Writer // inherited output; nil discards
	Stderr      io.Writer
	GracePeriod time.Duration // SIGTERM to SIGKILL escalation delay
	Timeout     time.Duration // per-step bound for Run; zero means none
}

// Start spawns the process described by spec and returns without waiting
// for it. The returned Process is owned by the caller, which must
// eventually Wait for it or Terminate it.
func (r *Runner) Start(spec Spec) (*Process, error) {
	if len(spec.Argv) == 0 {
		return nil, fmt.Errorf("empty argv")
	}
	label := spec.Label
	if label == "" {
		label = filepath.Base(spec.Argv[0])
	}

	dir, err := r.resolveDir(spec.Dir)
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(spec.Argv[0], spec.Argv[1:]...)
	cmd.Dir = dir
	cmd.Stdout, cmd.Stderr = r.outputs(spec)
	cmd.WaitDelay = waitDelay
	if spec.Detach {
		configureDetached(cmd)
	} else {
		cmd.Stdin = r.Stdin
	}

	if err := cmd.Start(); err != nil {
		return nil, &SpawnError{Label: label, Command: spec.Argv[0], Err: err}
	}

	p := &Process{
		Label:    label,
		Pid:      cmd.Process.Pid,
		cmd:      cmd,
		detached: spec.Detach,
		done:     make(chan struct{}),
	}
	go p.reap()
	return p, nil
}

// Run spawns a short-lived step and waits for it to finish. A non-zero
// exit is not an error; callers inspect Result.ExitCode. Cancelling ctx
// terminates the step and returns ctx.Err() alongside the partial result.
func (r *Runner) Run(ctx context.Context, spec Spec) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	runID := uuid.New().String()
	start := time.Now()

	p, err := r.Start(spec)
	if err != nil {
		return nil, err
	}

	status, waitErr := p.WaitContext(ctx, r.GracePeriod)
	res := &Result{
		RunID:    runID,
		Label:    p.Label,
		ExitCode: status.Code,
		Signal:   status.Signal,
		Duration: time.Since(start),
	}
	if waitErr != nil {
		return res, waitErr
	}
	return res, nil
}

func (r *Runner) outputs(spec Spec) (io.Writer, io.Writer) {
	stdout, stderr := r.Stdout, r.Stderr
	if spec.Output != nil {
		stdout, stderr = spec.Output, spec.Output
		if spec.Tee != nil {
			// stdout and stderr no longer compare equal, so exec copies
			// each stream in its own goroutine into the shared writer.
			shared := &lockedWriter{w: spec.Output}
			stdout, stderr = shared, shared
		}
	}
	if spec.Tee != nil {
		if stdout == nil {
			stdout = spec.Tee
		} else {
			stdout = io.MultiWriter(stdout, spec.Tee)
		}
	}
	return stdout, stderr
}

// lockedWriter serialises writes from concurrent copy goroutines.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// resolveDir resolves cwd relative to the workspace and validates it
// is within the workspace boundary.
func (r *Runner) resolveDir(cwd string) (string, error) {
	if cwd == "" {
		return r.Workspace, nil
	}

	var dir string
	if filepath.IsAbs(cwd) {
		dir = filepath.Clean(cwd)
	} else {
		dir = filepath.Clean(filepath.Join(r.Workspace, cwd))
	}

	rel, err := filepath.Rel(r.Workspace, dir)
	if err != nil {
		return "", fmt.Errorf("resolving cwd: %w", err)
	}
	if strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("cwd %q is outside workspace %q", cwd, r.Workspace)
	}
	return dir, nil
}
