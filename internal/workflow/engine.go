// Package workflow drives an aptest run: it brings the local node up,
// builds and publishes the Move package, hands over to the test runner
// or the developer, and always tears the node down again.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/deixis/aptest/internal/config"
	"github.com/deixis/aptest/internal/console"
	"github.com/deixis/aptest/internal/logsink"
	"github.com/deixis/aptest/internal/node"
	"github.com/deixis/aptest/internal/report"
	"github.com/deixis/aptest/internal/runner"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// StepRunner runs a short-lived process to completion.
// Implemented by runner.Runner.
type StepRunner interface {
	Run(ctx context.Context, spec runner.Spec) (*runner.Result, error)
}

// State is a run's position in the orchestration state machine.
type State string

const (
	StateIdle            State = "idle"
	StateSessionStarting State = "session_starting"
	StateDelaying        State = "delaying"
	StateBuilding        State = "building"
	StateInteractive     State = "interactive"
	StateTesting         State = "testing"
	StateTearingDown     State = "tearing_down"
	StateDone            State = "done"
	StateFailed          State = "failed"
)

// Engine holds shared dependencies for a run.
type Engine struct {
	Config      *config.Config
	Starter     node.Starter // spawns the validator and faucet
	Steps       StepRunner   // runs build steps and the test runner
	ProjectRoot string
	Project     string // Move package name, for reports
	Account     string // account funded before publishing
	Console     *console.Printer
	Log         zerolog.Logger
	Store       report.Store // optional; receives every finished run
}

// runError carries the failure classification of a run.
type runError struct {
	failure report.Failure
	step    StepName
	err     error
}

func (e *runError) Error() string { return e.err.Error() }
func (e *runError) Unwrap() error { return e.err }

// Execute performs one run and returns its result. It never returns with
// a node process still running: once the session has started, every path
// out of the run goes through teardown.
func (e *Engine) Execute(ctx context.Context, rc config.RunConfig) *report.RunResult {
	rr := &report.RunResult{
		ID:        uuid.New().String(),
		Project:   e.Project,
		Mode:      config.PhaseName(rc.Phase),
		StartedAt: time.Now(),
	}
	log := e.Log.With().Str("run", rr.ID).Logger()
	e.transition(log, rr, StateIdle)

	var output io.Writer
	if rc.LogToFile {
		sink := logsink.New(e.Config.LogPath(e.ProjectRoot), rr.ID)
		defer func() {
			if err := sink.Close(); err != nil {
				log.Warn().Err(err).Msg("closing node log")
			}
		}()
		w, err := sink.Writer()
		if err != nil {
			log.Warn().Err(err).Msg("node log unavailable, node output goes to the terminal")
		} else {
			output = w
			rr.LogFile = sink.Path
		}
	}

	err := e.withSession(ctx, log, rc, output, rr, func(s *node.Session) error {
		rr.MintKeyPath = s.MintKeyPath
		return e.drive(ctx, log, rc, rr)
	})
	e.finish(log, rr, err)

	if e.Store != nil {
		if err := e.Store.Save(rr); err != nil {
			log.Warn().Err(err).Msg("saving run result")
		}
	}
	return rr
}

// withSession starts the node session, runs fn, and stops the session
// before returning, whatever fn does. A session that fails to start has
// already cleaned up after itself.
func (e *Engine) withSession(ctx context.Context, log zerolog.Logger, rc config.RunConfig, output io.Writer, rr *report.RunResult, fn func(*node.Session) error) error {
	e.transition(log, rr, StateSessionStarting)
	e.Console.Info("Starting local validator node...")

	session, err := node.Start(ctx, e.Starter, node.Config{
		ValidatorArgv:  e.Config.ValidatorArgv(),
		FaucetArgv:     e.Config.FaucetArgv(),
		SkipFaucet:     rc.SkipFaucet,
		Output:         output,
		MintKeyTimeout: e.Config.MintKeyTimeout(),
		GracePeriod:    e.Config.GracePeriod(),
		Log:            log,
	})
	if err != nil {
		return classify(ctx, report.FailureSessionStart, "", err)
	}
	defer e.teardown(log, rr, session)

	return fn(session)
}

// drive runs everything between a started session and its teardown.
func (e *Engine) drive(ctx context.Context, log zerolog.Logger, rc config.RunConfig, rr *report.RunResult) error {
	e.transition(log, rr, StateDelaying)
	err := node.WaitReady(ctx, node.Readiness{
		Delay:   rc.StartDelay,
		URL:     e.Config.Ready.URL,
		Timeout: e.Config.ReadyTimeout(),
	})
	if err != nil {
		return classify(ctx, report.FailureReadiness, "", err)
	}

	if !rc.SkipBuild() {
		e.transition(log, rr, StateBuilding)
		p := &Pipeline{
			Runner:  e.Steps,
			Config:  e.Config,
			Account: e.Account,
			Console: e.Console,
			Log:     log,
		}
		res, err := p.Run(ctx, rc)
		if res != nil {
			rr.Steps = res.Steps
		}
		if err != nil {
			return classify(ctx, report.FailureStep, res.FailingStep, err)
		}
		if !res.Succeeded {
			return &runError{
				failure: report.FailureStep,
				step:    res.FailingStep,
				err:     fmt.Errorf("%s step failed", res.FailingStep),
			}
		}
	}

	switch rc.Phase.(type) {
	case config.Interactive:
		e.transition(log, rr, StateInteractive)
		e.Console.Success("Local node is running.")
		e.Console.Info("End to end tests can be run separately now, or Ctrl+C\nto exit the tool and close the node...")
		<-ctx.Done()
		log.Info().Msg("interactive session cancelled")
		return nil
	default:
		e.transition(log, rr, StateTesting)
		return e.runTests(ctx, log, rr)
	}
}

func (e *Engine) runTests(ctx context.Context, log zerolog.Logger, rr *report.RunResult) error {
	e.Console.Info("Running e2e tests...")
	res, err := e.Steps.Run(ctx, runner.Spec{Label: "tests", Argv: e.Config.TestArgv()})
	if res != nil {
		code := res.ExitCode
		rr.TestExitCode = &code
	}
	if err != nil {
		return classify(ctx, report.FailureTests, "", err)
	}
	if res.ExitCode != 0 {
		log.Warn().Int("exit_code", res.ExitCode).Msg("test runner failed")
		return &runError{
			failure: report.FailureTests,
			err:     fmt.Errorf("test runner exited with code %d", res.ExitCode),
		}
	}
	return nil
}

// teardown stops the session. Failures are logged and recorded but never
// change the outcome of the run.
func (e *Engine) teardown(log zerolog.Logger, rr *report.RunResult, s *node.Session) {
	e.transition(log, rr, StateTearingDown)
	e.Console.Info("Closing local node...")
	if err := s.Stop(); err != nil {
		log.Warn().Err(err).Msg("teardown")
		rr.TeardownError = err.Error()
	}
}

func (e *Engine) finish(log zerolog.Logger, rr *report.RunResult, err error) {
	rr.FinishedAt = time.Now()

	if err == nil {
		rr.State = string(StateDone)
		rr.ExitCode = ExitOK
		e.transition(log, rr, StateDone)
		e.Console.Success("Done")
		return
	}

	var re *runError
	if !errors.As(err, &re) {
		re = &runError{failure: report.FailureSpawn, err: err}
	}
	rr.State = string(StateFailed)
	rr.Failure = re.failure
	rr.FailingStep = string(re.step)
	rr.Error = err.Error()
	rr.ExitCode = ExitCode(re.failure)
	e.transition(log, rr, StateFailed)
	log.Error().Err(err).Str("failure", string(re.failure)).Msg("run failed")
	e.Console.Failure("Error: %v", err)
}

func (e *Engine) transition(log zerolog.Logger, rr *report.RunResult, s State) {
	rr.Transitions = append(rr.Transitions, string(s))
	log.Debug().Str("state", string(s)).Msg("transition")
}

// classify wraps err with the failure kind it represents. Cancellation
// and spawn failures take precedence over the caller's default kind.
func classify(ctx context.Context, kind report.Failure, step StepName, err error) error {
	var spawnErr *runner.SpawnError
	switch {
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		kind = report.FailureCancelled
	case errors.As(err, &spawnErr) && kind != report.FailureSessionStart:
		kind = report.FailureSpawn
	}
	return &runError{failure: kind, step: step, err: err}
}
