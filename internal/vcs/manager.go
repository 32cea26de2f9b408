package vcs

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	gogit "github.com/go-git/go-git/v5"

	"github.com/shinji-kodama/ci-runner/internal/model"
)

// LockStatus describes the lockfile relative to the index.
type LockStatus string

const (
	// LockClean means the working copy matches the index.
	LockClean LockStatus = "clean"

	// LockModified means the working copy content differs from the index.
	LockModified LockStatus = "modified"

	// LockDeleted means a tracked lockfile is missing from the working copy.
	LockDeleted LockStatus = "deleted"

	// LockUnmerged means the lockfile has unresolved merge conflicts.
	LockUnmerged LockStatus = "unmerged"

	// LockUntracked means the lockfile exists but is not in the index.
	// `git diff` ignores untracked files, so this is not a failure.
	LockUntracked LockStatus = "untracked"
)

// String returns the string representation of LockStatus.
func (s LockStatus) String() string {
	return string(s)
}

// Dirty reports whether the status would make `git diff --exit-code` fail.
func (s LockStatus) Dirty() bool {
	return s == LockModified || s == LockDeleted || s == LockUnmerged
}

// Manager provides read-only repository queries.
type Manager struct{}

// NewManager creates a new Manager.
func NewManager() *Manager {
	return &Manager{}
}

// GetRepoRoot returns the top-level directory of the working tree that
// contains path, walking up parent directories to find .git.
//
// Returns a CLIError with ExitGitError when path is not inside a repository.
func (m *Manager) GetRepoRoot(path string) (string, error) {
	repo, err := open(path)
	if err != nil {
		return "", err
	}

	wt, err := repo.Worktree()
	if err != nil {
		return "", model.WrapCLIError(model.ExitGitError, "repository has no working tree", err)
	}
	return wt.Filesystem.Root(), nil
}

// LockfileStatus compares the lockfile at lockPath with the index of the
// repository containing it. lockPath may be absolute or relative to the
// current directory.
func (m *Manager) LockfileStatus(lockPath string) (LockStatus, error) {
	absPath, err := filepath.Abs(lockPath)
	if err != nil {
		return "", model.WrapCLIError(model.ExitGeneralError, "failed to resolve lockfile path", err)
	}

	// The lockfile itself may be deleted, so discover from its directory.
	repo, err := open(filepath.Dir(absPath))
	if err != nil {
		return "", err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return "", model.WrapCLIError(model.ExitGitError, "repository has no working tree", err)
	}

	rel, err := relativeTo(wt.Filesystem.Root(), absPath)
	if err != nil {
		return "", model.WrapCLIError(model.ExitGitError, "lockfile is outside the repository", err)
	}

	status, err := wt.Status()
	if err != nil {
		return "", model.WrapCLIError(model.ExitGitError, "failed to read repository status", err)
	}

	// Status only lists paths that differ somewhere; an absent entry is clean.
	fs, ok := status[rel]
	if !ok {
		return LockClean, nil
	}

	switch fs.Worktree {
	case gogit.Modified, gogit.Renamed, gogit.Copied:
		return LockModified, nil
	case gogit.Deleted:
		return LockDeleted, nil
	case gogit.UpdatedButUnmerged:
		return LockUnmerged, nil
	case gogit.Untracked:
		return LockUntracked, nil
	default:
		// Staged-only changes leave the working copy equal to the index.
		return LockClean, nil
	}
}

// open opens the repository containing path.
func open(path string) (*gogit.Repository, error) {
	repo, err := gogit.PlainOpenWithOptions(path, &gogit.PlainOpenOptions{
		DetectDotGit: true,
	})
	if err != nil {
		if errors.Is(err, gogit.ErrRepositoryNotExists) {
			return nil, model.WrapCLIError(
				model.ExitGitError,
				fmt.Sprintf("not a git repository: %s", path),
				err,
			)
		}
		return nil, model.WrapCLIError(model.ExitGitError, "failed to open repository", err)
	}
	return repo, nil
}

// relativeTo returns target relative to root in slash form, the key format
// go-git uses for status entries. Symlinks are resolved on both sides
// because temp directories on macOS live under /var -> /private/var.
func relativeTo(root, target string) (string, error) {
	resolvedRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		resolvedRoot = root
	}
	resolvedTarget := resolveExisting(target)

	rel, err := filepath.Rel(resolvedRoot, resolvedTarget)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is not under %s", target, root)
	}
	return filepath.ToSlash(rel), nil
}

// resolveExisting resolves symlinks in the directory part of path. The
// file itself may not exist (a deleted lockfile).
func resolveExisting(path string) string {
	dir, file := filepath.Split(path)
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		return filepath.Join(resolved, file)
	}
	return path
}
