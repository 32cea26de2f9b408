package devcontainer

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// ValidationError describes a single problem found in a devcontainer.json.
type ValidationError struct {
	// Field is the JSON field path the error relates to.
	Field string

	// Message is a human-readable description of the problem.
	Message string
}

// Error satisfies the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateConfig checks that raw describes a configuration steps can run
// in. All problems are returned, not only the first.
func ValidateConfig(raw *RawDevContainer) []ValidationError {
	var errs []ValidationError

	if raw.DockerComposeFile != nil {
		errs = append(errs, ValidationError{
			Field:   "dockerComposeFile",
			Message: "compose-based configurations are not supported; use --image",
		})
	}
	if len(raw.Build) > 0 {
		errs = append(errs, ValidationError{
			Field:   "build",
			Message: "dockerfile-based configurations are not supported; use --image with a prebuilt image",
		})
	}
	if strings.TrimSpace(raw.Image) == "" && raw.DockerComposeFile == nil && len(raw.Build) == 0 {
		errs = append(errs, ValidationError{
			Field:   "image",
			Message: "image is required",
		})
	}

	// The workspace folder is a container path, so it is always POSIX.
	if raw.WorkspaceFolder != "" && !path.IsAbs(raw.WorkspaceFolder) {
		errs = append(errs, ValidationError{
			Field:   "workspaceFolder",
			Message: "must be an absolute container path",
		})
	}

	for key := range raw.ContainerEnv {
		if key == "" || strings.ContainsAny(key, "= ") {
			errs = append(errs, ValidationError{
				Field:   "containerEnv",
				Message: fmt.Sprintf("invalid variable name %q", key),
			})
		}
	}

	return errs
}

// joinValidationErrors combines validation errors into one error.
func joinValidationErrors(errs []ValidationError) error {
	list := make([]error, 0, len(errs))
	for _, e := range errs {
		list = append(list, e)
	}
	return errors.Join(list...)
}
