// Package vcs provides read-only Git repository queries for the ci-runner
// CLI.
//
// Queries go through github.com/go-git/go-git/v5 rather than the git
// binary:
//   - GetRepoRoot walks up from a directory to the working tree root
//   - LockfileStatus compares one file's working copy with the index,
//     matching the verdict of `git diff --exit-code -- <file>`
package vcs
