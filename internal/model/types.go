// Package model defines the domain types for the ci-runner CLI.
//
// All entities in this package are transient: a run reads its environment
// flags once, derives an ordered list of steps, executes them, and reports a
// single exit code. Nothing is persisted between runs.
package model

import (
	"fmt"
	"strings"
)

// EnabledValue is the only flag value that enables a gated step.
// Comparison is exact and case-sensitive: "TRUE", "1" or " true" all
// leave the step disabled.
const EnabledValue = "true"

// IsEnabled reports whether a raw environment value enables its gate.
func IsEnabled(value string) bool {
	return value == EnabledValue
}

// Gate names the environment variable that controls whether a step runs.
// The zero value GateAlways marks a step that runs unconditionally.
type Gate string

const (
	// GateAlways is the gate of the final lockfile check. It has no
	// environment variable and is always open.
	GateAlways Gate = ""

	// GateFmt enables the formatting check.
	GateFmt Gate = "FMT"

	// GateCheck enables both the static-analysis check and the lint step.
	GateCheck Gate = "CHECK"

	// GateTest enables the test step.
	GateTest Gate = "TEST"
)

// String returns the environment variable name, or "always" for GateAlways.
func (g Gate) String() string {
	if g == GateAlways {
		return "always"
	}
	return string(g)
}

// IsValid checks whether the Gate value is one of the predefined gates.
func (g Gate) IsValid() bool {
	switch g {
	case GateAlways, GateFmt, GateCheck, GateTest:
		return true
	default:
		return false
	}
}

// Open evaluates the gate against an environment lookup function with the
// signature of os.LookupEnv. An unset variable behaves exactly like any
// value other than EnabledValue.
func (g Gate) Open(lookup func(string) (string, bool)) bool {
	if g == GateAlways {
		return true
	}
	value, ok := lookup(string(g))
	if !ok {
		return false
	}
	return IsEnabled(value)
}

// StepName identifies one step of the pipeline.
type StepName string

const (
	// StepFmt runs the formatting check (e.g. `cargo fmt -- --check`).
	StepFmt StepName = "fmt"

	// StepCheck runs the static-analysis check (e.g. `cargo check`).
	StepCheck StepName = "check"

	// StepLint runs the linter (e.g. `cargo clippy`).
	StepLint StepName = "lint"

	// StepTest runs the test suite.
	StepTest StepName = "test"

	// StepLockfile fails when the dependency lockfile differs from the
	// committed state. It always runs last.
	StepLockfile StepName = "lockfile"
)

// StepOrder is the fixed execution order. It is not configurable.
var StepOrder = []StepName{StepFmt, StepCheck, StepLint, StepTest, StepLockfile}

// String returns the string representation of StepName.
func (n StepName) String() string {
	return string(n)
}

// IsValid checks whether the StepName is one of the predefined steps.
func (n StepName) IsValid() bool {
	switch n {
	case StepFmt, StepCheck, StepLint, StepTest, StepLockfile:
		return true
	default:
		return false
	}
}

// Gate returns the gate that controls this step.
// Check and lint share GateCheck.
func (n StepName) Gate() Gate {
	switch n {
	case StepFmt:
		return GateFmt
	case StepCheck, StepLint:
		return GateCheck
	case StepTest:
		return GateTest
	default:
		return GateAlways
	}
}

// ParseStepName converts a string to a StepName.
// Returns an error if the string does not match any valid step.
func ParseStepName(s string) (StepName, error) {
	name := StepName(strings.ToLower(strings.TrimSpace(s)))
	if !name.IsValid() {
		return "", fmt.Errorf("invalid step name: %q (valid: fmt, check, lint, test, lockfile)", s)
	}
	return name, nil
}

// Step is a single gated invocation of an external command.
type Step struct {
	// Name identifies the step in logs and errors.
	Name StepName `json:"name" yaml:"name"`

	// Gate controls whether the step is part of the plan.
	Gate Gate `json:"gate" yaml:"gate"`

	// Command is the argv of the external command. Command[0] is the
	// executable, resolved through PATH.
	Command []string `json:"command" yaml:"command"`
}

// Validate checks that the step has a known name, a matching gate, and a
// non-empty command.
func (s Step) Validate() error {
	if !s.Name.IsValid() {
		return fmt.Errorf("step: invalid name %q", s.Name)
	}
	if s.Gate != s.Name.Gate() {
		return fmt.Errorf("step %s: gate %s does not match expected %s", s.Name, s.Gate, s.Name.Gate())
	}
	if len(s.Command) == 0 || strings.TrimSpace(s.Command[0]) == "" {
		return fmt.Errorf("step %s: command must not be empty", s.Name)
	}
	return nil
}

// String renders the command line the way a shell trace would echo it.
func (s Step) String() string {
	return strings.Join(s.Command, " ")
}

// RunState is the lifecycle state of a pipeline run.
//
//	NotStarted → Running → … → Succeeded
//	Running → Failed (absorbing)
type RunState string

const (
	// StateNotStarted is the state before the first step is launched.
	StateNotStarted RunState = "not-started"

	// StateRunning indicates a step is currently executing.
	StateRunning RunState = "running"

	// StateFailed indicates a step returned a non-zero status. No further
	// steps run once this state is reached.
	StateFailed RunState = "failed"

	// StateSucceeded indicates every planned step, including the lockfile
	// check, exited with status 0.
	StateSucceeded RunState = "succeeded"
)

// String returns the string representation of RunState.
func (s RunState) String() string {
	return string(s)
}

// IsTerminal reports whether no further transitions are possible.
func (s RunState) IsTerminal() bool {
	return s == StateFailed || s == StateSucceeded
}

// ExitCode defines the process exit codes of the runner. Step failures
// propagate the child's own status, so any value in 1-255 may also come
// from an external command.
type ExitCode int

const (
	// ExitSuccess indicates every executed step succeeded.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified runner error.
	ExitGeneralError ExitCode = 1

	// ExitConfigError indicates an invalid or unreadable configuration file.
	ExitConfigError ExitCode = 2

	// ExitDockerNotRunning indicates the Docker daemon is not accessible
	// while the container executor was requested.
	ExitDockerNotRunning ExitCode = 3

	// ExitGitError indicates a repository could not be opened or inspected.
	ExitGitError ExitCode = 5

	// ExitPermissionDenied mirrors the shell status for a command that
	// exists but cannot be executed.
	ExitPermissionDenied ExitCode = 126

	// ExitCommandNotFound mirrors the shell status for a missing executable.
	ExitCommandNotFound ExitCode = 127

	// ExitSignalBase is added to the signal number when a child is killed
	// by a signal, matching shell conventions (SIGKILL → 137).
	ExitSignalBase ExitCode = 128
)

// StepError reports that an external command exited with a non-zero status.
// It is the only domain error kind of a run.
type StepError struct {
	// Step is the name of the failing step.
	Step StepName

	// Command is the argv that was executed.
	Command []string

	// Status is the exit status reported by the command.
	Status int
}

// Error satisfies the error interface.
func (e *StepError) Error() string {
	return fmt.Sprintf("%s exited with status %d", strings.Join(e.Command, " "), e.Status)
}

// CLIError is a custom error type that carries an exit code.
// This allows the CLI layer to translate domain errors into
// appropriate process exit codes.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error satisfies the error interface. It returns the human-readable
// error message, optionally including the underlying error.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}

// StepFailed builds the CLIError for a failing step. The exit code is the
// step's own status so the process exits exactly as the command did.
func StepFailed(step Step, status int) *CLIError {
	return WrapCLIError(
		ExitCode(status),
		fmt.Sprintf("step %s failed", step.Name),
		&StepError{Step: step.Name, Command: step.Command, Status: status},
	)
}
