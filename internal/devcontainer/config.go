package devcontainer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tidwall/jsonc"

	"github.com/shinji-kodama/ci-runner/internal/model"
)

// RawDevContainer represents the raw JSON structure of a devcontainer.json file.
// Only the fields a run needs are included; other fields are silently
// ignored during parsing.
type RawDevContainer struct {
	// Name is the display name for the dev container.
	Name string `json:"name"`

	// Image is the container image steps run in.
	Image string `json:"image,omitempty"`

	// Build is set for Dockerfile-based configurations, which are rejected.
	Build json.RawMessage `json:"build,omitempty"`

	// DockerComposeFile is set for Compose-based configurations, which are
	// rejected. It can be a string or an array in devcontainer.json.
	DockerComposeFile interface{} `json:"dockerComposeFile,omitempty"`

	// WorkspaceFolder is the path inside the container the project is
	// mounted at.
	WorkspaceFolder string `json:"workspaceFolder,omitempty"`

	// ContainerEnv sets environment variables inside the container.
	ContainerEnv map[string]string `json:"containerEnv,omitempty"`
}

// Settings are the container settings a run uses.
type Settings struct {
	// Path is the devcontainer.json the settings were read from.
	Path string

	// Image is the container image.
	Image string

	// WorkspaceFolder is the container mount point of the working
	// directory. Empty means the executor default.
	WorkspaceFolder string

	// Env holds containerEnv as sorted KEY=VALUE pairs.
	Env []string
}

// LoadConfig reads a devcontainer.json file, strips JSONC comments, and
// parses it into a RawDevContainer struct.
//
// Returns a CLIError with ExitConfigError if the file does not exist or
// cannot be parsed.
func LoadConfig(devcontainerPath string) (*RawDevContainer, error) {
	data, err := os.ReadFile(devcontainerPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, model.WrapCLIError(
				model.ExitConfigError,
				fmt.Sprintf("devcontainer.json not found: %s", devcontainerPath),
				err,
			)
		}
		return nil, model.WrapCLIError(model.ExitConfigError, "failed to read devcontainer.json", err)
	}

	// Strip JSONC comments (// and /* */) and trailing commas before parsing.
	var raw RawDevContainer
	if err := json.Unmarshal(jsonc.ToJSON(data), &raw); err != nil {
		return nil, model.WrapCLIError(
			model.ExitConfigError,
			fmt.Sprintf("failed to parse devcontainer.json at %s", devcontainerPath),
			err,
		)
	}

	return &raw, nil
}

// FindDevContainerJSON searches for devcontainer.json in the standard
// locations within a project directory:
//  1. <projectPath>/.devcontainer/devcontainer.json
//  2. <projectPath>/.devcontainer.json
//
// Returns a CLIError with ExitConfigError if neither exists.
func FindDevContainerJSON(projectPath string) (string, error) {
	candidates := []string{
		filepath.Join(projectPath, ".devcontainer", "devcontainer.json"),
		filepath.Join(projectPath, ".devcontainer.json"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", model.NewCLIError(
		model.ExitConfigError,
		fmt.Sprintf("devcontainer.json not found in %s (searched .devcontainer/devcontainer.json and .devcontainer.json)", projectPath),
	)
}

// Resolve finds, loads and validates the devcontainer.json of projectPath.
//
// A non-empty image replaces the image and build sections of the file, so
// a configuration that builds its image can still be run with a prebuilt
// one. Compose configurations stay unsupported.
func Resolve(projectPath, image string) (*Settings, error) {
	path, err := FindDevContainerJSON(projectPath)
	if err != nil {
		return nil, err
	}

	raw, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	if image = strings.TrimSpace(image); image != "" {
		raw.Image = image
		raw.Build = nil
	}

	if errs := ValidateConfig(raw); len(errs) > 0 {
		return nil, model.WrapCLIError(
			model.ExitConfigError,
			fmt.Sprintf("unsupported devcontainer.json at %s", path),
			joinValidationErrors(errs),
		)
	}

	return &Settings{
		Path:            path,
		Image:           strings.TrimSpace(raw.Image),
		WorkspaceFolder: raw.WorkspaceFolder,
		Env:             envList(raw.ContainerEnv),
	}, nil
}

// envList converts containerEnv into KEY=VALUE pairs sorted by key, so the
// container environment is the same on every run.
func envList(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	list := make([]string, 0, len(keys))
	for _, k := range keys {
		list = append(list, k+"="+env[k])
	}
	return list
}
