package vcs

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/ci-runner/internal/model"
)

// setupTestRepo creates a temporary Git repository with one commit that
// tracks Cargo.toml and Cargo.lock. The git CLI builds the fixture so the
// go-git reads are checked against what real git wrote.
func setupTestRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}

	dir := t.TempDir()
	runTestGit(t, dir, "init")

	// Configure identity locally so commits work on CI machines without
	// a global git config.
	runTestGit(t, dir, "config", "user.email", "test@example.com")
	runTestGit(t, dir, "config", "user.name", "Test User")

	writeFile(t, filepath.Join(dir, "Cargo.toml"), "[package]\nname = \"demo\"\n")
	writeFile(t, filepath.Join(dir, "Cargo.lock"), "version = 3\n")

	runTestGit(t, dir, "add", ".")
	runTestGit(t, dir, "commit", "-m", "initial commit")

	return dir
}

// runTestGit runs a git command in dir and fails the test on error.
func runTestGit(t *testing.T, dir string, args ...string) string {
	t.Helper()

	cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
	output, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v failed: %s", args, string(output))
	return string(output)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// TestGetRepoRoot verifies that GetRepoRoot returns the top-level directory.
func TestGetRepoRoot(t *testing.T) {
	repoPath := setupTestRepo(t)
	m := NewManager()

	root, err := m.GetRepoRoot(repoPath)
	require.NoError(t, err)

	resolvedRepo, _ := filepath.EvalSymlinks(repoPath)
	resolvedRoot, _ := filepath.EvalSymlinks(root)
	assert.Equal(t, resolvedRepo, resolvedRoot)
}

// TestGetRepoRootFromSubdirectory verifies discovery walks up from a
// nested directory.
func TestGetRepoRootFromSubdirectory(t *testing.T) {
	repoPath := setupTestRepo(t)
	m := NewManager()

	subDir := filepath.Join(repoPath, "crates", "core")
	require.NoError(t, os.MkdirAll(subDir, 0o755))

	root, err := m.GetRepoRoot(subDir)
	require.NoError(t, err)

	resolvedRepo, _ := filepath.EvalSymlinks(repoPath)
	resolvedRoot, _ := filepath.EvalSymlinks(root)
	assert.Equal(t, resolvedRepo, resolvedRoot)
}

// TestGetRepoRootNotARepo verifies the Git exit code for plain directories.
func TestGetRepoRootNotARepo(t *testing.T) {
	m := NewManager()

	_, err := m.GetRepoRoot(t.TempDir())
	require.Error(t, err)

	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, model.ExitGitError, cliErr.Code)
}

func TestLockfileStatus_Clean(t *testing.T) {
	repoPath := setupTestRepo(t)

	status, err := NewManager().LockfileStatus(filepath.Join(repoPath, "Cargo.lock"))
	require.NoError(t, err)
	assert.Equal(t, LockClean, status)
	assert.False(t, status.Dirty())
}

// TestLockfileStatus_CleanWhenOtherFilesChange checks that unrelated edits
// do not affect the lockfile verdict.
func TestLockfileStatus_CleanWhenOtherFilesChange(t *testing.T) {
	repoPath := setupTestRepo(t)
	writeFile(t, filepath.Join(repoPath, "Cargo.toml"), "[package]\nname = \"renamed\"\n")

	status, err := NewManager().LockfileStatus(filepath.Join(repoPath, "Cargo.lock"))
	require.NoError(t, err)
	assert.Equal(t, LockClean, status)
}

func TestLockfileStatus_Modified(t *testing.T) {
	repoPath := setupTestRepo(t)
	writeFile(t, filepath.Join(repoPath, "Cargo.lock"), "version = 4\n")

	status, err := NewManager().LockfileStatus(filepath.Join(repoPath, "Cargo.lock"))
	require.NoError(t, err)
	assert.Equal(t, LockModified, status)
	assert.True(t, status.Dirty())
}

func TestLockfileStatus_Deleted(t *testing.T) {
	repoPath := setupTestRepo(t)
	require.NoError(t, os.Remove(filepath.Join(repoPath, "Cargo.lock")))

	status, err := NewManager().LockfileStatus(filepath.Join(repoPath, "Cargo.lock"))
	require.NoError(t, err)
	assert.Equal(t, LockDeleted, status)
	assert.True(t, status.Dirty())
}

// TestLockfileStatus_StagedIsClean mirrors `git diff`, which compares the
// working copy against the index and ignores staged changes.
func TestLockfileStatus_StagedIsClean(t *testing.T) {
	repoPath := setupTestRepo(t)
	writeFile(t, filepath.Join(repoPath, "Cargo.lock"), "version = 4\n")
	runTestGit(t, repoPath, "add", "Cargo.lock")

	status, err := NewManager().LockfileStatus(filepath.Join(repoPath, "Cargo.lock"))
	require.NoError(t, err)
	assert.Equal(t, LockClean, status)
}

func TestLockfileStatus_Untracked(t *testing.T) {
	repoPath := setupTestRepo(t)
	writeFile(t, filepath.Join(repoPath, "go.sum"), "example.com/x v1.0.0 h1:abc=\n")

	status, err := NewManager().LockfileStatus(filepath.Join(repoPath, "go.sum"))
	require.NoError(t, err)
	assert.Equal(t, LockUntracked, status)
	assert.False(t, status.Dirty())
}

// TestLockfileStatus_Nested checks lockfiles below the repository root.
func TestLockfileStatus_Nested(t *testing.T) {
	repoPath := setupTestRepo(t)
	nested := filepath.Join(repoPath, "web")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	writeFile(t, filepath.Join(nested, "yarn.lock"), "# v1\n")
	runTestGit(t, repoPath, "add", ".")
	runTestGit(t, repoPath, "commit", "-m", "add web")

	writeFile(t, filepath.Join(nested, "yarn.lock"), "# v2\n")

	status, err := NewManager().LockfileStatus(filepath.Join(nested, "yarn.lock"))
	require.NoError(t, err)
	assert.Equal(t, LockModified, status)
}

func TestLockfileStatus_NotARepo(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "Cargo.lock"), "version = 3\n")

	_, err := NewManager().LockfileStatus(filepath.Join(dir, "Cargo.lock"))
	require.Error(t, err)

	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, model.ExitGitError, cliErr.Code)
}

func TestRelativeTo(t *testing.T) {
	root := t.TempDir()

	rel, err := relativeTo(root, filepath.Join(root, "a", "b.lock"))
	require.NoError(t, err)
	assert.Equal(t, "a/b.lock", rel)

	_, err = relativeTo(root, filepath.Join(filepath.Dir(root), "elsewhere.lock"))
	assert.Error(t, err)
}
