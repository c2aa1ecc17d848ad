//go:build !windows

package runner

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

func configureDetached(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func signalProcess(cmd *exec.Cmd, group, kill bool) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	pid := cmd.Process.Pid
	if pid <= 0 {
		return
	}

	sig := unix.SIGTERM
	if kill {
		sig = unix.SIGKILL
	}

	if group {
		// Negative PID targets the whole group: the process and any
		// children it forked.
		if err := unix.Kill(-pid, sig); err == nil {
			return
		}
	}
	_ = unix.Kill(pid, sig)
}
