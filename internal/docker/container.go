// container.go implements the container executor: every step runs in a
// fresh container created from one image, with the workspace bind-mounted
// at WorkspaceMount (or the configured workspace folder). The container is
// removed once the step exits.
package docker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/shinji-kodama/ci-runner/internal/model"
	"github.com/shinji-kodama/ci-runner/internal/shell"
)

// WorkspaceMount is the container path the working directory is mounted at.
const WorkspaceMount = "/workspace"

// ForwardedEnv lists host variables copied into step containers when set.
var ForwardedEnv = []string{"CI", "FMT", "CHECK", "TEST"}

// ContainerExecutor runs steps inside Docker containers.
type ContainerExecutor struct {
	cli       *Client
	image     string
	runID     string
	workspace string
	extraEnv  []string
	stdout    io.Writer
	stderr    io.Writer
	echo      *shell.Echo
	lookup    func(string) (string, bool)
}

// ContainerOption customizes a ContainerExecutor.
type ContainerOption func(*ContainerExecutor)

// WithOutput sets the writers container stdout and stderr are
// demultiplexed to. Commands are echoed to stderr.
func WithOutput(stdout, stderr io.Writer) ContainerOption {
	return func(e *ContainerExecutor) {
		e.stdout = stdout
		e.stderr = stderr
		e.echo = shell.NewEcho(stderr)
	}
}

// WithWorkspace mounts the working directory at path instead of
// WorkspaceMount. An empty path keeps the default.
func WithWorkspace(path string) ContainerOption {
	return func(e *ContainerExecutor) {
		if path != "" {
			e.workspace = path
		}
	}
}

// WithEnv adds KEY=VALUE pairs to every step container. Forwarded host
// variables take precedence over these.
func WithEnv(env []string) ContainerOption {
	return func(e *ContainerExecutor) {
		e.extraEnv = append([]string(nil), env...)
	}
}

// NewContainerExecutor creates an executor bound to cli and imageRef.
// By default output goes to the process stdout/stderr.
func NewContainerExecutor(cli *Client, imageRef, runID string, opts ...ContainerOption) *ContainerExecutor {
	e := &ContainerExecutor{
		cli:       cli,
		image:     imageRef,
		runID:     runID,
		workspace: WorkspaceMount,
		stdout:    os.Stdout,
		stderr:    os.Stderr,
		echo:      shell.NewEcho(os.Stderr),
		lookup:    os.LookupEnv,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Prepare pings the daemon and pulls the image if it is not present
// locally. It runs once, before the first step.
func (e *ContainerExecutor) Prepare(ctx context.Context) error {
	if err := e.cli.Ping(ctx); err != nil {
		return err
	}

	_, err := e.cli.inner.ImageInspect(ctx, e.image)
	if err == nil {
		return nil
	}
	if !cerrdefs.IsNotFound(err) {
		return model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("failed to inspect image %q", e.image),
			err,
		)
	}

	rc, err := e.cli.inner.ImagePull(ctx, e.image, image.PullOptions{})
	if err != nil {
		return model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("failed to pull image %q", e.image),
			err,
		)
	}
	defer func() { _ = rc.Close() }()

	// The pull only completes once its progress stream is consumed.
	if _, err := io.Copy(io.Discard, rc); err != nil {
		return model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("failed to pull image %q", e.image),
			err,
		)
	}
	return nil
}

// Execute echoes step and runs it to completion in a new container.
//
// The container's exit status is returned with a nil error. A non-nil
// error means the container could not be created, started or awaited.
func (e *ContainerExecutor) Execute(ctx context.Context, step model.Step, dir string) (int, error) {
	if err := step.Validate(); err != nil {
		return int(model.ExitGeneralError), err
	}

	e.echo.Command(step.Command)

	env := append(append([]string(nil), e.extraEnv...), forwardEnv(e.lookup)...)
	cfg, hostCfg := buildContainerConfig(e.image, e.workspace, step, dir, BuildLabels(e.runID, step.Name, dir), env)

	created, err := e.cli.inner.ContainerCreate(ctx, cfg, hostCfg, nil, nil, ContainerName(e.runID, step.Name))
	if err != nil {
		return int(model.ExitDockerNotRunning), fmt.Errorf("failed to create container for step %s: %w", step.Name, err)
	}
	defer e.remove(ctx, created.ID)

	// Register the wait before starting so a fast exit is not missed.
	waitCh, waitErrCh := e.cli.inner.ContainerWait(ctx, created.ID, container.WaitConditionNextExit)

	if err := e.cli.inner.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return int(model.ExitDockerNotRunning), fmt.Errorf("failed to start container for step %s: %w", step.Name, err)
	}

	logs, err := e.cli.inner.ContainerLogs(ctx, created.ID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		return int(model.ExitDockerNotRunning), fmt.Errorf("failed to attach to step %s: %w", step.Name, err)
	}
	defer func() { _ = logs.Close() }()

	copied := make(chan error, 1)
	go func() {
		_, copyErr := stdcopy.StdCopy(e.stdout, e.stderr, logs)
		copied <- copyErr
	}()

	var status int
	select {
	case res := <-waitCh:
		if res.Error != nil && res.Error.Message != "" {
			return int(model.ExitGeneralError), fmt.Errorf("waiting for step %s: %s", step.Name, res.Error.Message)
		}
		status = int(res.StatusCode)
	case err := <-waitErrCh:
		return int(model.ExitDockerNotRunning), fmt.Errorf("waiting for step %s: %w", step.Name, err)
	}

	// Follow ends when the container stops; drain the rest of the output.
	if err := <-copied; err != nil && !errors.Is(err, io.EOF) {
		return status, fmt.Errorf("reading output of step %s: %w", step.Name, err)
	}
	return status, nil
}

// remove force-removes a step container. It uses a context detached from
// cancellation so an interrupted run still cleans up.
func (e *ContainerExecutor) remove(ctx context.Context, id string) {
	_ = e.cli.inner.ContainerRemove(context.WithoutCancel(ctx), id, container.RemoveOptions{
		Force:         true,
		RemoveVolumes: true,
	})
}

// buildContainerConfig assembles the create request for one step.
// This is a pure function so it can be tested without a daemon.
func buildContainerConfig(imageRef, workspace string, step model.Step, dir string, labels map[string]string, env []string) (*container.Config, *container.HostConfig) {
	cfg := &container.Config{
		Image:        imageRef,
		Cmd:          append([]string(nil), step.Command...),
		WorkingDir:   workspace,
		Env:          env,
		Labels:       labels,
		AttachStdout: true,
		AttachStderr: true,
		Tty:          false,
	}
	hostCfg := &container.HostConfig{
		Binds: []string{dir + ":" + workspace},
	}
	return cfg, hostCfg
}

// forwardEnv returns KEY=VALUE pairs for every ForwardedEnv variable that
// is set on the host.
func forwardEnv(lookup func(string) (string, bool)) []string {
	var env []string
	for _, key := range ForwardedEnv {
		if v, ok := lookup(key); ok {
			env = append(env, key+"="+v)
		}
	}
	return env
}
