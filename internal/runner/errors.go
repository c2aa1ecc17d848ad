package runner

import (
	"errors"
	"fmt"
	"os/exec"
)

// SpawnError is returned when a process cannot be created: the binary is
// missing from PATH or the operating system refused to start it.
type SpawnError struct {
	Label   string
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	if errors.Is(e.Err, exec.ErrNotFound) {
		return fmt.Sprintf("could not find the %s command. Is it installed?", e.Command)
	}
	return fmt.Sprintf("starting %s (%s): %v", e.Label, e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// AbnormalExitError reports a process that was killed by a signal instead
// of exiting on its own.
type AbnormalExitError struct {
	Label  string
	Signal string
}

func (e *AbnormalExitError) Error() string {
	return fmt.Sprintf("%s was killed by signal %s", e.Label, e.Signal)
}
