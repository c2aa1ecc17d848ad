package workflow

import (
	"context"
	"strings"

	"github.com/deixis/aptest/internal/config"
	"github.com/deixis/aptest/internal/console"
	"github.com/deixis/aptest/internal/report"
	"github.com/deixis/aptest/internal/runner"
	"github.com/rs/zerolog"
)

// StepName identifies a build pipeline step.
type StepName string

const (
	StepCompile StepName = "compile"
	StepFund    StepName = "fund"
	StepPublish StepName = "publish"
)

// PipelineResult holds the outcome of a pipeline run.
type PipelineResult struct {
	Succeeded   bool
	FailingStep StepName // empty unless a fatal step failed
	Steps       []report.Step
}

// Step returns the named step record, or nil if the pipeline has none.
func (r *PipelineResult) Step(name StepName) *report.Step {
	for i := range r.Steps {
		if r.Steps[i].Name == string(name) {
			return &r.Steps[i]
		}
	}
	return nil
}

// Pipeline compiles the Move package and publishes it to the local node.
// Steps run one at a time, each to completion, stopping on the first
// fatal failure.
type Pipeline struct {
	Runner  StepRunner
	Config  *config.Config
	Account string // funded before publishing when known
	Console *console.Printer
	Log     zerolog.Logger
}

type plannedStep struct {
	name   StepName
	argv   []string
	fatal  bool   // a failure stops the pipeline
	skip   string // reason the step does not run
	banner string
	failed string
}

func (p *Pipeline) plan(rc config.RunConfig) []plannedStep {
	steps := []plannedStep{
		{
			name:   StepCompile,
			argv:   p.Config.CompileArgv(),
			fatal:  true,
			banner: "Compiling Move code...",
			failed: "Compilation failed, exiting early...",
		},
		{
			name:   StepFund,
			argv:   p.fundArgv(),
			banner: "Funding account on local node...",
			failed: "Funding failed, publishing anyway...",
		},
		{
			name:   StepPublish,
			argv:   p.Config.PublishArgv(),
			fatal:  true,
			banner: "Deploying Move code...",
			failed: "Publish failed, exiting early...",
		},
	}

	if rc.SkipCompile {
		steps[0].skip = "disabled"
	}
	switch {
	case rc.SkipPublish:
		steps[1].skip = "publish disabled"
	case rc.SkipFaucet:
		steps[1].skip = "no faucet"
	case p.Account == "":
		steps[1].skip = "no default account in .aptos/config.yaml"
	}
	if rc.SkipPublish {
		steps[2].skip = "disabled"
	}
	return steps
}

func (p *Pipeline) fundArgv() []string {
	argv := p.Config.FundArgv()
	for i, arg := range argv {
		argv[i] = strings.ReplaceAll(arg, config.AccountPlaceholder, p.Account)
	}
	return argv
}

// Run executes the pipeline for rc. A step exiting non-zero is reported
// through the result, not as an error. The error is non-nil only when a
// step could not be run at all (spawn failure, cancellation); FailingStep
// then names that step.
func (p *Pipeline) Run(ctx context.Context, rc config.RunConfig) (*PipelineResult, error) {
	plan := p.plan(rc)
	res := &PipelineResult{Steps: make([]report.Step, len(plan))}
	for i, st := range plan {
		res.Steps[i] = report.Step{Name: string(st.name), Status: "skipped", Detail: st.skip}
	}

	for i, st := range plan {
		if st.skip != "" {
			p.Log.Debug().Str("step", string(st.name)).Str("reason", st.skip).Msg("step skipped")
			continue
		}

		p.Console.Info("%s", st.banner)
		r, err := p.Runner.Run(ctx, runner.Spec{Label: string(st.name), Argv: st.argv})
		step := &res.Steps[i]
		step.Detail = ""
		if r != nil {
			step.ExitCode = r.ExitCode
			step.Duration = r.Duration
		}

		if err != nil {
			step.Status = "fail"
			step.Detail = err.Error()
			p.Log.Error().Err(err).Str("step", string(st.name)).Msg("step could not run")
			p.Console.Failure("%s", st.failed)
			if st.fatal || ctx.Err() != nil {
				res.FailingStep = st.name
				return res, err
			}
			continue
		}

		if r.ExitCode != 0 {
			step.Status = "fail"
			p.Log.Warn().Str("step", string(st.name)).Int("exit_code", r.ExitCode).Msg("step failed")
			p.Console.Failure("%s", st.failed)
			if st.fatal {
				res.FailingStep = st.name
				return res, nil
			}
			continue
		}

		step.Status = "pass"
		p.Log.Info().Str("step", string(st.name)).Dur("took", r.Duration).Msg("step passed")
		if st.name == StepPublish {
			p.Console.Success("Deployment successful.")
		}
	}

	res.Succeeded = true
	return res, nil
}
