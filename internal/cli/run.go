// Package cli — run.go implements the "ci-runner run" command.
//
// The run command builds the plan from the FMT, CHECK and TEST environment
// flags and executes it, on the host by default or inside a container when
// an image is configured.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/shinji-kodama/ci-runner/internal/devcontainer"
	"github.com/shinji-kodama/ci-runner/internal/docker"
	"github.com/shinji-kodama/ci-runner/internal/logging"
	"github.com/shinji-kodama/ci-runner/internal/pipeline"
	"github.com/shinji-kodama/ci-runner/internal/shell"
)

// runFlags holds the flag values for the run command.
type runFlags struct {
	config  string // --config: configuration file path
	workdir string // --workdir: directory steps run in
	image   string // --image: run steps in containers from this image
	logFile string // --log-file: write the structured run log here

	devcontainer bool // --devcontainer: take the container settings from devcontainer.json
}

// streams bundles the standard streams a run is wired to.
type streams struct {
	in  io.Reader
	out io.Writer
	err io.Writer
}

// NewRunCommand creates the "run" cobra command.
func NewRunCommand() *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the enabled CI steps",
		Long: `Run the CI steps enabled by the FMT, CHECK and TEST environment variables,
then check that the lockfile was not modified.

Each command is echoed to stderr as "+ <command>" before it runs. The first
failing command stops the run, and ci-runner exits with its exit code.

Examples:
  FMT=true CHECK=true TEST=true ci-runner run
  TEST=true ci-runner run --workdir ./service
  CHECK=true ci-runner run --image rust:1.80
  TEST=true ci-runner run --devcontainer
  ci-runner run --log-file .ci-runner/run.log`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd.Context(), flags, streams{
				in:  cmd.InOrStdin(),
				out: cmd.OutOrStdout(),
				err: cmd.ErrOrStderr(),
			})
		},
	}

	cmd.Flags().StringVar(&flags.config, "config", "", "Configuration file (default: .ci-runner.{yml,yaml,json,jsonc})")
	cmd.Flags().StringVar(&flags.workdir, "workdir", "", "Directory steps run in (default: current directory)")
	cmd.Flags().StringVar(&flags.image, "image", "", "Run each step in a container from this image")
	cmd.Flags().StringVar(&flags.logFile, "log-file", "", "Write the structured run log to this file")
	cmd.Flags().BoolVar(&flags.devcontainer, "devcontainer", false, "Run each step in the image from .devcontainer/devcontainer.json")

	return cmd
}

// runRun is the main logic function for the run command.
func runRun(ctx context.Context, flags *runFlags, std streams) error {
	// Step 1: Resolve configuration and the working directory.
	cfg, err := loadConfig(flags.workdir, flags.config)
	if err != nil {
		return err
	}

	// Step 2: Evaluate gates once. Flags are not re-read during the run.
	plan := pipeline.Build(cfg, os.LookupEnv)
	runID := uuid.NewString()
	VerboseLog("Run %s in %s: %s", runID, plan.Workdir, formatStepNames(plan))

	// Step 3: Set up the run log.
	logger, err := logging.New(logging.Options{
		FilePath: flags.logFile,
		Verbose:  verbose,
		Stderr:   std.err,
	})
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = logger.Close() }()

	// Step 4: Pick the executor. An image from --image, devcontainer.json
	// or the config file, in that order, selects containers.
	image := flags.image
	containerOpts := []docker.ContainerOption{docker.WithOutput(std.out, std.err)}
	if flags.devcontainer {
		settings, err := devcontainer.Resolve(cfg.Workdir, flags.image)
		if err != nil {
			return err
		}
		VerboseLog("Using container settings from %s", settings.Path)
		image = settings.Image
		containerOpts = append(containerOpts,
			docker.WithWorkspace(settings.WorkspaceFolder),
			docker.WithEnv(settings.Env),
		)
	}
	if image == "" {
		image = cfg.Image
	}

	var exec pipeline.Executor
	if image != "" {
		cli, err := docker.NewClient()
		if err != nil {
			return err // NewClient already returns CLIError with ExitDockerNotRunning
		}
		defer func() { _ = cli.Close() }()

		VerboseLog("Running steps in containers from %s", image)
		exec = docker.NewContainerExecutor(cli, image, runID, containerOpts...)
	} else {
		exec = shell.NewExecutor(shell.WithStreams(std.in, std.out, std.err))
	}

	// Step 5: Execute. The returned CLIError carries the failing step's
	// exit code up to Execute.
	runner := pipeline.NewRunner(exec, pipeline.WithLogger(logger), pipeline.WithRunID(runID))
	res, err := runner.Run(ctx, plan)
	VerboseLog("Run %s finished: %s (exit code %d)", runID, res.State, res.ExitCode)
	return err
}

// formatStepNames renders the plan's step names as "fmt, check, lockfile".
func formatStepNames(plan pipeline.Plan) string {
	names := make([]string, 0, len(plan.Steps))
	for _, name := range plan.Names() {
		names = append(names, name.String())
	}
	return strings.Join(names, ", ")
}
