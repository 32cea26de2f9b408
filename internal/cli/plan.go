// Package cli — plan.go implements the "ci-runner plan" command.
//
// The plan command prints the steps "run" would execute for the current
// environment without executing anything.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/ci-runner/internal/pipeline"
)

// planFlags holds the flag values for the plan command.
type planFlags struct {
	config  string // --config: configuration file path
	workdir string // --workdir: directory steps would run in
}

// NewPlanCommand creates the "plan" cobra command.
func NewPlanCommand() *cobra.Command {
	flags := &planFlags{}

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the steps a run would execute",
		Long: `Show the steps "ci-runner run" would execute with the current FMT, CHECK
and TEST environment variables. Nothing is executed.

Examples:
  CHECK=true ci-runner plan
  ci-runner plan --json`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(cmd.OutOrStdout(), flags)
		},
	}

	cmd.Flags().StringVar(&flags.config, "config", "", "Configuration file (default: .ci-runner.{yml,yaml,json,jsonc})")
	cmd.Flags().StringVar(&flags.workdir, "workdir", "", "Directory steps would run in (default: current directory)")

	return cmd
}

func runPlan(w io.Writer, flags *planFlags) error {
	cfg, err := loadConfig(flags.workdir, flags.config)
	if err != nil {
		return err
	}

	plan := pipeline.Build(cfg, os.LookupEnv)

	if IsJSONOutput() {
		return printPlanJSON(w, plan)
	}
	printPlanText(w, plan)
	return nil
}

// planJSON is the JSON output structure of the plan command.
type planJSON struct {
	Workdir string         `json:"workdir"`
	Steps   []planStepJSON `json:"steps"`
}

// planStepJSON describes one planned step.
type planStepJSON struct {
	Name    string   `json:"name"`
	Gate    string   `json:"gate"`
	Command []string `json:"command"`
}

func printPlanJSON(w io.Writer, plan pipeline.Plan) error {
	result := planJSON{
		Workdir: plan.Workdir,
		Steps:   make([]planStepJSON, 0, len(plan.Steps)),
	}
	for _, step := range plan.Steps {
		result.Steps = append(result.Steps, planStepJSON{
			Name:    step.Name.String(),
			Gate:    step.Gate.String(),
			Command: step.Command,
		})
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal plan: %w", err)
	}
	_, _ = fmt.Fprintln(w, string(data))
	return nil
}

// printPlanText outputs one row per step:
//
//	STEP       GATE     COMMAND
//	fmt        FMT      cargo fmt --all -- --check
//	lockfile   always   git diff --exit-code -- :/Cargo.lock
func printPlanText(w io.Writer, plan pipeline.Plan) {
	_, _ = fmt.Fprintf(w, "Workdir: %s\n\n", plan.Workdir)
	_, _ = fmt.Fprintf(w, "%-10s %-8s %s\n", "STEP", "GATE", "COMMAND")
	for _, step := range plan.Steps {
		_, _ = fmt.Fprintf(w, "%-10s %-8s %s\n", step.Name, step.Gate, step.String())
	}
}
