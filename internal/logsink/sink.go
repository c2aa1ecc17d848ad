// Package logsink captures the output of the node processes into one
// append-only file instead of the terminal.
package logsink

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrClosed is returned by Writer after Close.
var ErrClosed = errors.New("log sink closed")

// IOError reports that the log file could not be created or opened for
// appending.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("opening log file %s: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Sink is a lazily opened, append-only log file shared by every process
// that redirects into it. Each process writes through the same descriptor
// with O_APPEND, so no locking is needed around the writes themselves.
type Sink struct {
	Path  string
	RunID string // written in the header line when the file is opened

	mu     sync.Mutex
	file   *os.File
	closed bool
}

// New returns a Sink for path. Nothing touches the filesystem until the
// first call to Writer.
func New(path, runID string) *Sink {
	return &Sink{Path: path, RunID: runID}
}

// Writer opens the file on first use and returns it.
func (s *Sink) Writer() (io.Writer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	if s.file != nil {
		return s.file, nil
	}

	if dir := filepath.Dir(s.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &IOError{Path: s.Path, Err: err}
		}
	}
	f, err := os.OpenFile(s.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, &IOError{Path: s.Path, Err: err}
	}
	if _, err := fmt.Fprintf(f, "=== aptest run %s %s ===\n", s.RunID, time.Now().Format(time.RFC3339)); err != nil {
		_ = f.Close()
		return nil, &IOError{Path: s.Path, Err: err}
	}
	s.file = f
	return f, nil
}

// Opened reports whether the file has been created.
func (s *Sink) Opened() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file != nil
}

// Close closes the file if it was opened. It is safe to call more than once.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
