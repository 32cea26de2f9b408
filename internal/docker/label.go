package docker

import (
	"strings"

	"github.com/shinji-kodama/ci-runner/internal/model"
)

// Label keys attached to every step container. They make containers left
// behind by an interrupted run discoverable with
// `docker ps -a --filter label=ci-runner.managed-by=ci-runner`.
const (
	// LabelPrefix is the common prefix for all ci-runner labels.
	LabelPrefix = "ci-runner."

	// LabelManagedBy marks containers created by ci-runner.
	LabelManagedBy = LabelPrefix + "managed-by"

	// LabelRunID stores the run identifier shared by all steps of a run.
	LabelRunID = LabelPrefix + "run-id"

	// LabelStep stores the step name (fmt, check, lint, test, lockfile).
	LabelStep = LabelPrefix + "step"

	// LabelWorkdir stores the host directory mounted into the container.
	LabelWorkdir = LabelPrefix + "workdir"
)

// ManagedByValue is the value of LabelManagedBy.
const ManagedByValue = "ci-runner"

// BuildLabels returns the label set for the container running step.
func BuildLabels(runID string, step model.StepName, workdir string) map[string]string {
	return map[string]string{
		LabelManagedBy: ManagedByValue,
		LabelRunID:     runID,
		LabelStep:      step.String(),
		LabelWorkdir:   workdir,
	}
}

// ContainerName derives a readable, per-run unique container name.
// Docker names allow [a-zA-Z0-9_.-], which run IDs and step names satisfy.
func ContainerName(runID string, step model.StepName) string {
	short := strings.ReplaceAll(runID, "-", "")
	if len(short) > 12 {
		short = short[:12]
	}
	if short == "" {
		return "ci-runner-" + step.String()
	}
	return "ci-runner-" + short + "-" + step.String()
}
