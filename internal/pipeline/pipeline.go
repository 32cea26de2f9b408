package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shinji-kodama/ci-runner/internal/config"
	"github.com/shinji-kodama/ci-runner/internal/logging"
	"github.com/shinji-kodama/ci-runner/internal/model"
)

// Executor runs a single step and reports its exit status.
//
// A command that was launched and exited non-zero returns its status with a
// nil error. A non-nil error means the command could not be launched; the
// returned status is still the one the run should exit with.
type Executor interface {
	Execute(ctx context.Context, step model.Step, dir string) (int, error)
}

// Preparer is implemented by executors that need one-time setup before the
// first step, such as pulling a container image.
type Preparer interface {
	Prepare(ctx context.Context) error
}

// Plan is the ordered list of steps a run executes.
type Plan struct {
	// Workdir is the directory every step runs in.
	Workdir string

	// Steps are the enabled steps in execution order. The lockfile step is
	// always last.
	Steps []model.Step
}

// Names returns the step names of the plan in order.
func (p Plan) Names() []model.StepName {
	names := make([]model.StepName, 0, len(p.Steps))
	for _, s := range p.Steps {
		names = append(names, s.Name)
	}
	return names
}

// Build evaluates each step's gate with lookup and returns the steps whose
// gate is open, in the fixed order fmt, check, lint, test, lockfile.
// Flags are read once here; the plan does not change while it runs.
func Build(cfg *config.Config, lookup func(string) (string, bool)) Plan {
	plan := Plan{Workdir: cfg.Workdir}
	for _, step := range cfg.Steps() {
		if step.Gate.Open(lookup) {
			plan.Steps = append(plan.Steps, step)
		}
	}
	return plan
}

// Result describes a finished run.
type Result struct {
	// RunID identifies the run in logs.
	RunID string

	// State is StateSucceeded or StateFailed after Run returns, or
	// StateNotStarted when preparation failed.
	State model.RunState

	// Executed lists the steps that were launched, in order. On failure the
	// last entry is the failing step.
	Executed []model.StepName

	// ExitCode is the process exit code for the run.
	ExitCode int
}

// Runner executes plans through an Executor, stopping at the first failure.
type Runner struct {
	exec   Executor
	logger *logging.Logger
	runID  string
	now    func() time.Time
}

// Option customizes a Runner.
type Option func(*Runner)

// WithLogger sets the run logger. The default drops all records.
func WithLogger(l *logging.Logger) Option {
	return func(r *Runner) {
		r.logger = l
	}
}

// WithRunID sets the identifier attached to every log record.
func WithRunID(id string) Option {
	return func(r *Runner) {
		r.runID = id
	}
}

// NewRunner creates a Runner that launches steps through exec.
func NewRunner(exec Executor, opts ...Option) *Runner {
	r := &Runner{
		exec:   exec,
		logger: logging.Discard(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes plan's steps in order.
//
// The first step that exits non-zero, or cannot be launched, ends the run:
// no later step runs, including the lockfile check, and the returned
// *model.CLIError carries that step's exit status. A nil error means every
// step exited 0.
func (r *Runner) Run(ctx context.Context, plan Plan) (Result, error) {
	res := Result{RunID: r.runID, State: model.StateNotStarted}
	log := r.logger.With(logging.KeyRunID, r.runID)

	if p, ok := r.exec.(Preparer); ok {
		if err := p.Prepare(ctx); err != nil {
			res.ExitCode = exitCodeOf(err)
			log.Error("run.prepare", "error", err)
			return res, err
		}
	}

	res.State = model.StateRunning
	for _, step := range plan.Steps {
		if err := ctx.Err(); err != nil {
			return r.fail(log, res, model.WrapCLIError(model.ExitGeneralError, "run canceled", err))
		}

		res.Executed = append(res.Executed, step.Name)
		log.Info("step.start", logging.KeyStep, step.Name.String(), logging.KeyCommand, step.String())

		started := r.now()
		status, err := r.exec.Execute(ctx, step, plan.Workdir)
		log.Info("step.finish",
			logging.KeyStep, step.Name.String(),
			logging.KeyExitCode, status,
			logging.KeyDuration, r.now().Sub(started),
		)

		if err != nil {
			if status == 0 {
				status = int(model.ExitGeneralError)
			}
			return r.fail(log, res, model.WrapCLIError(
				model.ExitCode(status),
				fmt.Sprintf("step %s failed", step.Name),
				err,
			))
		}
		if status != 0 {
			return r.fail(log, res, model.StepFailed(step, status))
		}
	}

	res.State = model.StateSucceeded
	res.ExitCode = int(model.ExitSuccess)
	log.Info("run.finish", logging.KeyState, res.State.String(), logging.KeyExitCode, res.ExitCode)
	return res, nil
}

func (r *Runner) fail(log *slog.Logger, res Result, err *model.CLIError) (Result, error) {
	res.State = model.StateFailed
	res.ExitCode = int(err.Code)
	log.Error("run.finish",
		logging.KeyState, res.State.String(),
		logging.KeyExitCode, res.ExitCode,
		"error", err.Error(),
	)
	return res, err
}

// exitCodeOf returns the exit code carried by err, or ExitGeneralError.
func exitCodeOf(err error) int {
	var cliErr *model.CLIError
	if errors.As(err, &cliErr) {
		return int(cliErr.Code)
	}
	return int(model.ExitGeneralError)
}
