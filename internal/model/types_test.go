package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestIsEnabled verifies that only the exact literal "true" enables a gate.
func TestIsEnabled(t *testing.T) {
	tests := []struct {
		value    string
		expected bool
	}{
		{"true", true},
		{"false", false},
		{"", false},
		{"TRUE", false}, // case sensitive
		{"True", false},
		{"1", false},
		{"yes", false},
		{" true", false}, // no trimming
		{"true\n", false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsEnabled(tt.value))
		})
	}
}

// envLookup builds an os.LookupEnv-compatible function over a map.
func envLookup(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestGate_Open(t *testing.T) {
	t.Run("always gate ignores environment", func(t *testing.T) {
		assert.True(t, GateAlways.Open(envLookup(nil)))
	})

	t.Run("unset variable is closed", func(t *testing.T) {
		assert.False(t, GateFmt.Open(envLookup(map[string]string{})))
	})

	t.Run("set to true is open", func(t *testing.T) {
		assert.True(t, GateCheck.Open(envLookup(map[string]string{"CHECK": "true"})))
	})

	t.Run("set to anything else is closed", func(t *testing.T) {
		assert.False(t, GateTest.Open(envLookup(map[string]string{"TEST": "on"})))
	})

	t.Run("gates read only their own variable", func(t *testing.T) {
		lookup := envLookup(map[string]string{"FMT": "true"})
		assert.True(t, GateFmt.Open(lookup))
		assert.False(t, GateCheck.Open(lookup))
		assert.False(t, GateTest.Open(lookup))
	})
}

func TestGate_String(t *testing.T) {
	assert.Equal(t, "always", GateAlways.String())
	assert.Equal(t, "FMT", GateFmt.String())
	assert.Equal(t, "CHECK", GateCheck.String())
	assert.Equal(t, "TEST", GateTest.String())
	assert.True(t, GateTest.IsValid())
	assert.False(t, Gate("LINT").IsValid())
}

// TestStepName_Gate checks the step-to-gate mapping, in particular that
// check and lint share the CHECK gate.
func TestStepName_Gate(t *testing.T) {
	tests := []struct {
		step StepName
		gate Gate
	}{
		{StepFmt, GateFmt},
		{StepCheck, GateCheck},
		{StepLint, GateCheck},
		{StepTest, GateTest},
		{StepLockfile, GateAlways},
	}

	for _, tt := range tests {
		t.Run(tt.step.String(), func(t *testing.T) {
			assert.Equal(t, tt.gate, tt.step.Gate())
		})
	}
}

func TestStepOrder(t *testing.T) {
	assert.Equal(t, []StepName{StepFmt, StepCheck, StepLint, StepTest, StepLockfile}, StepOrder)
}

func TestParseStepName(t *testing.T) {
	tests := []struct {
		input    string
		expected StepName
		hasError bool
	}{
		{"fmt", StepFmt, false},
		{"check", StepCheck, false},
		{"lint", StepLint, false},
		{"test", StepTest, false},
		{"lockfile", StepLockfile, false},
		{"LINT", StepLint, false}, // case insensitive
		{"clippy", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result, err := ParseStepName(tt.input)
			if tt.hasError {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.expected, result)
			}
		})
	}
}

func TestStep_Validate(t *testing.T) {
	tests := []struct {
		name     string
		step     Step
		hasError bool
	}{
		{
			name: "valid step",
			step: Step{Name: StepFmt, Gate: GateFmt, Command: []string{"cargo", "fmt"}},
		},
		{
			name:     "unknown name",
			step:     Step{Name: "build", Gate: GateAlways, Command: []string{"make"}},
			hasError: true,
		},
		{
			name:     "mismatched gate",
			step:     Step{Name: StepLint, Gate: GateTest, Command: []string{"cargo", "clippy"}},
			hasError: true,
		},
		{
			name:     "empty command",
			step:     Step{Name: StepTest, Gate: GateTest},
			hasError: true,
		},
		{
			name:     "blank executable",
			step:     Step{Name: StepTest, Gate: GateTest, Command: []string{" "}},
			hasError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.step.Validate()
			if tt.hasError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestStep_String(t *testing.T) {
	step := Step{Name: StepLockfile, Command: []string{"git", "diff", "--exit-code", "--", "Cargo.lock"}}
	assert.Equal(t, "git diff --exit-code -- Cargo.lock", step.String())
}

func TestRunState_IsTerminal(t *testing.T) {
	assert.False(t, StateNotStarted.IsTerminal())
	assert.False(t, StateRunning.IsTerminal())
	assert.True(t, StateFailed.IsTerminal())
	assert.True(t, StateSucceeded.IsTerminal())
}

// TestCLIError verifies the custom error type used for exit code mapping.
func TestCLIError(t *testing.T) {
	t.Run("simple error", func(t *testing.T) {
		err := NewCLIError(ExitDockerNotRunning, "Docker daemon is not running")
		assert.Equal(t, ExitDockerNotRunning, err.Code)
		assert.Equal(t, "Docker daemon is not running", err.Error())
		assert.Nil(t, err.Unwrap())
	})

	t.Run("wrapped error", func(t *testing.T) {
		inner := errors.New("connection refused")
		err := WrapCLIError(ExitDockerNotRunning, "Docker daemon is not running", inner)
		assert.Equal(t, ExitDockerNotRunning, err.Code)
		assert.Contains(t, err.Error(), "connection refused")
		assert.Equal(t, inner, err.Unwrap())
	})

	t.Run("errors.Is chain", func(t *testing.T) {
		inner := errors.New("connection refused")
		err := WrapCLIError(ExitDockerNotRunning, "Docker daemon is not running", inner)
		assert.True(t, errors.Is(err, inner))
	})
}

// TestStepFailed checks that a failing step maps its own status to the
// process exit code and keeps the StepError reachable via errors.As.
func TestStepFailed(t *testing.T) {
	step := Step{Name: StepTest, Gate: GateTest, Command: []string{"cargo", "test"}}
	err := StepFailed(step, 101)

	assert.Equal(t, ExitCode(101), err.Code)
	assert.Equal(t, "step test failed: cargo test exited with status 101", err.Error())

	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, StepTest, stepErr.Step)
	assert.Equal(t, 101, stepErr.Status)
}
