// Package shell runs pipeline steps as host child processes.
//
// Every command is echoed as "+ argv..." before it starts, the way `set -x`
// traces a shell script, and its termination is translated into the exit
// status a POSIX shell would report.
package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"syscall"

	"github.com/shinji-kodama/ci-runner/internal/model"
)

// Executor runs steps on the host. The zero value is not usable; build one
// with NewExecutor.
type Executor struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	echo   *Echo
	env    []string
}

// Option customizes an Executor.
type Option func(*Executor)

// WithStreams replaces the standard streams handed to child processes.
func WithStreams(stdin io.Reader, stdout, stderr io.Writer) Option {
	return func(e *Executor) {
		e.stdin = stdin
		e.stdout = stdout
		e.stderr = stderr
	}
}

// WithEcho replaces the command echo writer.
func WithEcho(echo *Echo) Option {
	return func(e *Executor) {
		e.echo = echo
	}
}

// WithEnv sets the child environment. A nil slice inherits os.Environ().
func WithEnv(env []string) Option {
	return func(e *Executor) {
		e.env = env
	}
}

// NewExecutor creates a host Executor wired to the process streams.
func NewExecutor(opts ...Option) *Executor {
	e := &Executor{
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.echo == nil {
		e.echo = NewEcho(e.stderr)
	}
	return e
}

// Execute echoes and runs one step in dir, blocking until it exits.
//
// A command that starts and exits non-zero yields its status and a nil
// error. A command that cannot be started yields the shell-equivalent
// status (127 not found, 126 not executable) together with the launch error.
func (e *Executor) Execute(ctx context.Context, step model.Step, dir string) (int, error) {
	if err := step.Validate(); err != nil {
		return int(model.ExitGeneralError), err
	}

	e.echo.Command(step.Command)

	// #nosec G204 -- running configured commands is the purpose of this tool
	cmd := exec.CommandContext(ctx, step.Command[0], step.Command[1:]...)
	cmd.Dir = dir
	cmd.Stdin = e.stdin
	cmd.Stdout = e.stdout
	cmd.Stderr = e.stderr
	cmd.Env = e.env

	return ExitStatus(cmd.Run())
}

// ExitStatus converts the error returned by exec.Cmd.Run into a shell exit
// status. The returned error is non-nil only when the process never ran.
func ExitStatus(err error) (int, error) {
	if err == nil {
		return int(model.ExitSuccess), nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return int(model.ExitSignalBase) + int(ws.Signal()), nil
		}
		if code := exitErr.ExitCode(); code >= 0 {
			return code, nil
		}
		return int(model.ExitGeneralError), nil
	}

	// os.StartProcess reports a missing or unreadable working directory as
	// a "chdir" PathError, which would otherwise match the cases below.
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) && pathErr.Op == "chdir" {
		return int(model.ExitGeneralError), fmt.Errorf("working directory %s: %w", pathErr.Path, err)
	}

	switch {
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return int(model.ExitCommandNotFound), fmt.Errorf("command not found: %w", err)
	case errors.Is(err, fs.ErrPermission):
		return int(model.ExitPermissionDenied), fmt.Errorf("permission denied: %w", err)
	default:
		return int(model.ExitGeneralError), err
	}
}
