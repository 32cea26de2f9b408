// Package pipeline implements the gated, fail-fast step sequence of a
// ci-runner run.
//
// Build turns a configuration and the FMT, CHECK and TEST environment flags
// into a Plan. Runner executes the plan's steps one at a time through an
// Executor and stops at the first step that exits non-zero. The lockfile
// check is always the last step of a plan, so it only runs when every
// earlier step succeeded.
package pipeline
