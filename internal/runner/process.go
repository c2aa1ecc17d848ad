package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Process is a handle on one spawned process. The goroutine started by
// Runner.Start reaps it; Wait, WaitContext and Terminate all observe the
// same single exit.
type Process struct {
	Label string
	Pid   int

	cmd      *exec.Cmd
	detached bool
	done     chan struct{}

	// Written once by reap before done is closed.
	status ExitStatus
	err    error

	mu         sync.Mutex // serialises Terminate
	terminated bool
}

func (p *Process) reap() {
	waitErr := p.cmd.Wait()
	p.status, p.err = exitStatus(p.Label, p.cmd.ProcessState, waitErr)
	close(p.done)
}

// Wait blocks until the process exits. A non-zero exit code is reported
// through ExitStatus only; a process killed by a signal also returns an
// *AbnormalExitError.
func (p *Process) Wait() (ExitStatus, error) {
	<-p.done
	return p.status, p.err
}

// WaitContext is Wait, except that cancelling ctx terminates the process
// (with the given grace period) and returns ctx.Err().
func (p *Process) WaitContext(ctx context.Context, grace time.Duration) (ExitStatus, error) {
	select {
	case <-p.done:
		return p.status, p.err
	case <-ctx.Done():
		p.Terminate(grace)
		return p.status, ctx.Err()
	}
}

// Done is closed once the process has exited and been reaped.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Exited reports whether the process has exited.
func (p *Process) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Terminated reports whether Terminate was called while the process was
// still running.
func (p *Process) Terminated() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.terminated
}

// Terminate sends SIGTERM, escalates to SIGKILL once grace has elapsed,
// and returns after the process has been reaped. Detached processes are
// signalled as a whole process group. Calling Terminate on a process that
// has already exited or been terminated is a no-op.
func (p *Process) Terminate(grace time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.Exited() {
		return
	}
	p.terminated = true

	signalProcess(p.cmd, p.detached, false)
	if grace > 0 {
		timer := time.NewTimer(grace)
		defer timer.Stop()
		select {
		case <-p.done:
			return
		case <-timer.C:
		}
	}
	signalProcess(p.cmd, p.detached, true)
	<-p.done
}

func exitStatus(label string, ps *os.ProcessState, waitErr error) (ExitStatus, error) {
	if ps == nil {
		return ExitStatus{Code: -1}, fmt.Errorf("waiting on %s: %w", label, waitErr)
	}

	status := ExitStatus{Code: ps.ExitCode()}
	if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		status.Signal = ws.Signal().String()
		return status, &AbnormalExitError{Label: label, Signal: status.Signal}
	}

	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		// The exit status is known but output could not be drained.
		return status, fmt.Errorf("waiting on %s: %w", label, waitErr)
	}
	return status, nil
}
