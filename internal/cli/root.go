// Package cli implements the cobra-based CLI commands for ci-runner.
//
// Each subcommand (run, plan, lockfile) is defined in its own file within
// this package. This file defines the root command that serves as the
// parent for all subcommands and handles global flags.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/ci-runner/internal/config"
	"github.com/shinji-kodama/ci-runner/internal/model"
	"github.com/shinji-kodama/ci-runner/internal/vcs"
)

// Global flag variables shared across all subcommands.
// These are bound to cobra persistent flags on the root command.
var (
	// jsonOutput controls whether command output is formatted as JSON.
	jsonOutput bool

	// verbose enables [verbose] trace lines and mirrors the run log to stderr.
	verbose bool
)

// version, commit, and date are set at build time via ldflags.
// They are injected from the main package to display version information.
var (
	// Version is the semantic version of the binary (e.g., "1.0.0").
	Version = "dev"

	// Commit is the Git commit hash the binary was built from.
	Commit = "none"

	// Date is the build timestamp.
	Date = "unknown"
)

// NewRootCommand creates and configures the root cobra command.
//
// The root command itself does not perform any action. Functionality is
// provided by the run, plan and lockfile subcommands.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ci-runner",
		Short: "Gated, fail-fast CI step runner",
		Long: `ci-runner runs a fixed sequence of CI steps gated by environment flags.

Steps run in this order, each only when its flag is exactly "true":
  fmt          FMT=true
  check, lint  CHECK=true
  test         TEST=true
  lockfile     always

The first failing step stops the run and its exit code becomes the exit
code of ci-runner.`,

		// Errors are printed by Execute in text or JSON form.
		SilenceUsage:  true,
		SilenceErrors: true,

		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date),
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	rootCmd.AddCommand(NewRunCommand())
	rootCmd.AddCommand(NewPlanCommand())
	rootCmd.AddCommand(NewLockfileCommand())

	return rootCmd
}

// Execute runs the root command and handles exit codes.
// This is the main entry point called from main.go.
//
// A CLIError anywhere in the chain supplies the exit code, so a failing
// step exits with the step's own status. Other errors exit 1.
func Execute(rootCmd *cobra.Command) {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

// exitCode prints err and returns the exit code it maps to.
func exitCode(err error) int {
	var cliErr *model.CLIError
	if errors.As(err, &cliErr) {
		printError(cliErr.Message, cliErr.Err)
		return int(cliErr.Code)
	}

	printError(err.Error(), nil)
	return int(model.ExitGeneralError)
}

// printError outputs an error message in the appropriate format
// (JSON or text) based on the --json global flag.
func printError(message string, underlying error) {
	if jsonOutput {
		errObj := map[string]interface{}{
			"error": map[string]interface{}{
				"message": message,
			},
		}
		if underlying != nil {
			if errMap, ok := errObj["error"].(map[string]interface{}); ok {
				errMap["detail"] = underlying.Error()
			}
		}
		// stdout is reserved for command output, even in JSON mode.
		data, _ := json.MarshalIndent(errObj, "", "  ")
		fmt.Fprintln(os.Stderr, string(data))
	} else {
		if underlying != nil {
			fmt.Fprintf(os.Stderr, "Error: %s: %v\n", message, underlying)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %s\n", message)
		}
	}
}

// VerboseLog prints a message to stderr only when verbose mode is enabled.
func VerboseLog(format string, args ...interface{}) {
	if verbose {
		fmt.Fprintf(os.Stderr, "[verbose] "+format+"\n", args...)
	}
}

// IsJSONOutput returns whether the --json flag is set.
// Subcommands use this to decide their output format.
func IsJSONOutput() bool {
	return jsonOutput
}

// loadConfig resolves the configuration for a command started in workdir.
//
// An explicit --config path wins. Otherwise the configuration file is
// looked up in workdir and then at the root of the enclosing repository;
// with neither, the built-in defaults apply. A non-empty workdirFlag
// overrides the workdir recorded in the file.
func loadConfig(workdirFlag, configFlag string) (*config.Config, error) {
	dir := workdirFlag
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, model.WrapCLIError(model.ExitGeneralError, "failed to get current directory", err)
		}
		dir = wd
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitGeneralError, "failed to resolve working directory", err)
	}

	explicit := configFlag
	if explicit == "" {
		if path, ok := config.Find(dir); ok {
			explicit = path
		} else if root, err := vcs.NewManager().GetRepoRoot(dir); err == nil && root != dir {
			if path, ok := config.Find(root); ok {
				explicit = path
			}
		}
	}

	cfg, err := config.Resolve(dir, explicit)
	if err != nil {
		return nil, err
	}
	if cfg.Path != "" {
		VerboseLog("Loaded configuration from %s", cfg.Path)
	}

	if workdirFlag != "" {
		cfg.Workdir = dir
	}
	return cfg, nil
}
