package docker

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/ci-runner/internal/model"
)

// TestBuildContainerConfig verifies the create request for a step: the
// workspace bind mount, the working directory and the argv passed as Cmd.
func TestBuildContainerConfig(t *testing.T) {
	step := model.Step{
		Name:    model.StepTest,
		Gate:    model.GateTest,
		Command: []string{"cargo", "test", "--all"},
	}
	labels := BuildLabels("run-1", step.Name, "/src/project")

	cfg, hostCfg := buildContainerConfig("rust:1.80", WorkspaceMount, step, "/src/project", labels, []string{"CI=true"})

	assert.Equal(t, "rust:1.80", cfg.Image)
	assert.Equal(t, []string{"cargo", "test", "--all"}, []string(cfg.Cmd))
	assert.Equal(t, WorkspaceMount, cfg.WorkingDir)
	assert.Equal(t, []string{"CI=true"}, cfg.Env)
	assert.False(t, cfg.Tty, "logs must be multiplexed for stdcopy")
	assert.Equal(t, labels, cfg.Labels)

	require.Len(t, hostCfg.Binds, 1)
	assert.Equal(t, "/src/project:/workspace", hostCfg.Binds[0])
}

// TestBuildContainerConfig_CopiesCommand ensures the request does not alias
// the step's argv slice.
func TestBuildContainerConfig_CopiesCommand(t *testing.T) {
	step := model.Step{Name: model.StepFmt, Gate: model.GateFmt, Command: []string{"cargo", "fmt"}}
	cfg, _ := buildContainerConfig("rust", WorkspaceMount, step, "/w", nil, nil)
	cfg.Cmd[0] = "changed"
	assert.Equal(t, "cargo", step.Command[0])
}

func TestForwardEnv(t *testing.T) {
	env := map[string]string{"CI": "true", "CHECK": "false", "HOME": "/root"}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	assert.Equal(t, []string{"CI=true", "CHECK=false"}, forwardEnv(lookup))
}

func TestForwardEnv_NothingSet(t *testing.T) {
	lookup := func(string) (string, bool) { return "", false }
	assert.Empty(t, forwardEnv(lookup))
}

// TestNewContainerExecutor_WithOutput verifies output writers are replaced
// and the echo follows stderr.
func TestNewContainerExecutor_WithOutput(t *testing.T) {
	var stdout, stderr bytes.Buffer

	e := NewContainerExecutor(nil, "rust:1.80", "run-1", WithOutput(&stdout, &stderr))
	assert.Equal(t, "rust:1.80", e.image)
	assert.Equal(t, "run-1", e.runID)
	assert.Same(t, &stdout, e.stdout)
	assert.Same(t, &stderr, e.stderr)

	e.echo.Command([]string{"cargo", "test"})
	assert.Equal(t, "+ cargo test\n", stderr.String())
	assert.Empty(t, stdout.String())
}

// TestBuildContainerConfig_CustomWorkspace checks that a workspace folder
// from devcontainer.json is both the mount target and the working directory.
func TestBuildContainerConfig_CustomWorkspace(t *testing.T) {
	step := model.Step{Name: model.StepLockfile, Gate: model.GateAlways, Command: []string{"git", "diff", "--exit-code"}}
	cfg, hostCfg := buildContainerConfig("rust", "/src", step, "/home/dev/project", nil, nil)

	assert.Equal(t, "/src", cfg.WorkingDir)
	assert.Equal(t, []string{"/home/dev/project:/src"}, hostCfg.Binds)
}

func TestNewContainerExecutor_WorkspaceAndEnv(t *testing.T) {
	e := NewContainerExecutor(nil, "rust", "run-1")
	assert.Equal(t, WorkspaceMount, e.workspace)

	env := []string{"CARGO_TERM_COLOR=always"}
	e = NewContainerExecutor(nil, "rust", "run-1", WithWorkspace(""), WithWorkspace("/src"), WithEnv(env))
	assert.Equal(t, "/src", e.workspace)
	assert.Equal(t, env, e.extraEnv)

	env[0] = "changed"
	assert.Equal(t, "CARGO_TERM_COLOR=always", e.extraEnv[0])
}
