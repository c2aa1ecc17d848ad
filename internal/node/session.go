// Package node manages the local validator and its companion faucet as a
// single session: both come up together and go down together.
package node

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/deixis/aptest/internal/config"
	"github.com/deixis/aptest/internal/runner"
	"github.com/rs/zerolog"
)

// Starter spawns long-lived processes. Implemented by runner.Runner.
type Starter interface {
	Start(spec runner.Spec) (*runner.Process, error)
}

// Config describes the processes a session owns.
type Config struct {
	ValidatorArgv  []string
	FaucetArgv     []string
	SkipFaucet     bool
	Output         io.Writer     // nil inherits the runner's terminal output
	MintKeyTimeout time.Duration // bound on waiting for the root key path
	GracePeriod    time.Duration
	Log            zerolog.Logger
}

// StartError is returned when the session could not be brought up. By the
// time it is returned every process the session started has been stopped.
type StartError struct {
	Label string
	Err   error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("starting %s: %v", e.Label, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

// Session owns the validator process and, unless skipped, the faucet.
type Session struct {
	// MintKeyPath is the root key file the validator announced, if the
	// faucet needed it.
	MintKeyPath string

	validator *runner.Process
	faucet    *runner.Process
	grace     time.Duration
	log       zerolog.Logger

	stopOnce sync.Once
	stopErr  error
}

// Start spawns the validator and then, unless cfg.SkipFaucet is set, the
// faucet. When the faucet arguments reference the mint key placeholder,
// Start waits for the validator to print its root key path first.
//
// Start does not wait for the node to accept connections; see WaitReady.
func Start(ctx context.Context, starter Starter, cfg Config) (*Session, error) {
	s := &Session{grace: cfg.GracePeriod, log: cfg.Log}

	needsKey := !cfg.SkipFaucet && slices.ContainsFunc(cfg.FaucetArgv, func(arg string) bool {
		return strings.Contains(arg, config.MintKeyPlaceholder)
	})

	spec := runner.Spec{
		Label:  "validator",
		Argv:   cfg.ValidatorArgv,
		Output: cfg.Output,
		Detach: true,
	}
	var watcher *keyWatcher
	if needsKey {
		watcher = newKeyWatcher()
		spec.Tee = watcher
	}

	validator, err := starter.Start(spec)
	if err != nil {
		return nil, &StartError{Label: "validator", Err: err}
	}
	s.validator = validator
	s.log.Info().Int("pid", validator.Pid).Msg("validator started")
	go s.watch(validator)

	if cfg.SkipFaucet {
		return s, nil
	}

	argv := slices.Clone(cfg.FaucetArgv)
	if needsKey {
		path, err := s.awaitMintKey(ctx, watcher, cfg.MintKeyTimeout)
		if err != nil {
			s.abort()
			return nil, &StartError{Label: "faucet", Err: err}
		}
		s.MintKeyPath = path
		for i, arg := range argv {
			argv[i] = strings.ReplaceAll(arg, config.MintKeyPlaceholder, path)
		}
	}

	faucet, err := starter.Start(runner.Spec{
		Label:  "faucet",
		Argv:   argv,
		Output: cfg.Output,
		Detach: true,
	})
	if err != nil {
		s.abort()
		return nil, &StartError{Label: "faucet", Err: err}
	}
	s.faucet = faucet
	s.log.Info().Int("pid", faucet.Pid).Msg("faucet started")
	go s.watch(faucet)

	return s, nil
}

func (s *Session) awaitMintKey(ctx context.Context, w *keyWatcher, timeout time.Duration) (string, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}

	select {
	case path := <-w.found:
		s.log.Debug().Str("path", path).Msg("validator root key found")
		return path, nil
	case <-s.validator.Done():
		return "", errors.New("validator exited before announcing its root key path")
	case <-expired:
		return "", fmt.Errorf("validator did not announce its root key path within %s", timeout)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// abort tears down a partially started session.
func (s *Session) abort() {
	if err := s.Stop(); err != nil {
		s.log.Warn().Err(err).Msg("cleanup after failed start")
	}
}

// watch reports a node process that dies while the session is still up.
func (s *Session) watch(p *runner.Process) {
	<-p.Done()
	if p.Terminated() {
		return
	}
	status, err := p.Wait()
	s.log.Warn().Err(err).Str("process", p.Label).Int("exit_code", status.Code).Msg("node process exited unexpectedly")
}

// Validator returns the validator process.
func (s *Session) Validator() *runner.Process { return s.validator }

// Faucet returns the faucet process, or nil when it was skipped.
func (s *Session) Faucet() *runner.Process { return s.faucet }

// Stop terminates the faucet and then the validator and waits for both to
// exit. Only the first call does any work; later calls return the same
// result.
func (s *Session) Stop() error {
	s.stopOnce.Do(func() {
		s.stopErr = s.stop()
	})
	return s.stopErr
}

func (s *Session) stop() error {
	var errs []error
	for _, p := range []*runner.Process{s.faucet, s.validator} {
		if p == nil {
			continue
		}
		p.Terminate(s.grace)
		status, err := p.Wait()

		var abnormal *runner.AbnormalExitError
		switch {
		case err == nil:
			s.log.Debug().Str("process", p.Label).Int("exit_code", status.Code).Msg("stopped")
		case errors.As(err, &abnormal) && p.Terminated():
			s.log.Debug().Str("process", p.Label).Str("signal", status.Signal).Msg("stopped")
		default:
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
