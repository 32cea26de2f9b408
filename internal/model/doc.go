// Package model defines the domain types and value objects for the
// ci-runner CLI.
//
// This package contains pure data structures with no external dependencies.
// Gates (FMT, CHECK, TEST) decide which Steps enter a run; RunState tracks the
// run's linear lifecycle.
//
// The package also defines exit codes (ExitCode) and a custom error type
// (CLIError) that carries exit codes for proper OS process exit handling.
// A failing step is reported as a CLIError whose Code is the step's own exit
// status, wrapping a StepError.
package model
