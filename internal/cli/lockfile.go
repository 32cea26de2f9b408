// Package cli — lockfile.go implements the "ci-runner lockfile" command.
//
// The lockfile command reports whether the lockfile differs from the Git
// index. It reads the repository in-process, so no git binary is needed,
// and exits 1 when the lockfile was modified or deleted, like
// `git diff --exit-code`.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/ci-runner/internal/model"
	"github.com/shinji-kodama/ci-runner/internal/vcs"
)

// lockfileFlags holds the flag values for the lockfile command.
type lockfileFlags struct {
	config  string // --config: configuration file path
	workdir string // --workdir: directory relative lockfile paths resolve from
}

// NewLockfileCommand creates the "lockfile" cobra command.
func NewLockfileCommand() *cobra.Command {
	flags := &lockfileFlags{}

	cmd := &cobra.Command{
		Use:   "lockfile [path]",
		Short: "Check whether the lockfile differs from the Git index",
		Long: `Check whether the lockfile differs from the Git index.

The path defaults to the lockfile from the configuration (Cargo.lock). A
relative path is resolved from the root of the repository containing the
working directory, the same file the lockfile step of "run" diffs. Exits 1
when the working copy was modified or deleted; untracked and staged-only
changes are clean.

Examples:
  ci-runner lockfile
  ci-runner lockfile go.sum
  ci-runner lockfile web/yarn.lock --workdir ./web
  ci-runner lockfile --json`,

		Args: cobra.MaximumNArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) == 1 {
				path = args[0]
			}
			return runLockfile(cmd.OutOrStdout(), path, flags)
		},
	}

	cmd.Flags().StringVar(&flags.config, "config", "", "Configuration file (default: .ci-runner.{yml,yaml,json,jsonc})")
	cmd.Flags().StringVar(&flags.workdir, "workdir", "", "Working directory (default: current directory)")

	return cmd
}

func runLockfile(w io.Writer, path string, flags *lockfileFlags) error {
	cfg, err := loadConfig(flags.workdir, flags.config)
	if err != nil {
		return err
	}

	if path == "" {
		path = cfg.Lockfile
	}

	m := vcs.NewManager()
	if !filepath.IsAbs(path) {
		root, err := m.GetRepoRoot(cfg.Workdir)
		if err != nil {
			return err
		}
		path = filepath.Join(root, path)
	}
	VerboseLog("Checking %s", path)

	status, err := m.LockfileStatus(path)
	if err != nil {
		return err
	}

	if err := printLockfileResult(w, path, status); err != nil {
		return err
	}

	if status.Dirty() {
		return model.NewCLIError(
			model.ExitGeneralError,
			fmt.Sprintf("lockfile %s differs from the index (%s)", path, status),
		)
	}
	return nil
}

// lockfileJSON is the JSON output structure of the lockfile command.
type lockfileJSON struct {
	Path   string `json:"path"`
	Status string `json:"status"`
	Dirty  bool   `json:"dirty"`
}

func printLockfileResult(w io.Writer, path string, status vcs.LockStatus) error {
	if IsJSONOutput() {
		data, err := json.MarshalIndent(lockfileJSON{
			Path:   path,
			Status: status.String(),
			Dirty:  status.Dirty(),
		}, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal lockfile status: %w", err)
		}
		_, _ = fmt.Fprintln(w, string(data))
		return nil
	}

	_, _ = fmt.Fprintf(w, "%s: %s\n", path, status)
	return nil
}
