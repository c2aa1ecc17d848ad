package runner

import "time"

// Result holds the outcome of a step started with Run.
type Result struct {
	RunID    string        // unique identifier for this invocation
	Label    string        // process label
	ExitCode int           // process exit code, -1 if killed by a signal
	Signal   string        // terminating signal, empty on a normal exit
	Duration time.Duration // wall time from spawn to exit
}

// ExitStatus describes how a process ended.
type ExitStatus struct {
	Code   int    // exit code, -1 if killed by a signal
	Signal string // terminating signal, empty on a normal exit
}

// Success reports whether the process exited normally with code 0.
func (s ExitStatus) Success() bool {
	return s.Code == 0 && s.Signal == ""
}
