// Package config loads the optional ci-runner configuration file.
//
// The file can be YAML (.yml/.yaml) or JSON with comments (.json/.jsonc).
// JSONC comments and trailing commas are stripped with github.com/tidwall/jsonc
// before decoding with encoding/json; YAML is decoded with gopkg.in/yaml.v3.
//
// Key responsibilities:
//   - Locate the configuration file in the working directory
//   - Decode and validate it
//   - Merge it over the built-in Cargo defaults
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/shinji-kodama/ci-runner/internal/model"
)

// DefaultLockfile is the lockfile checked by the final step when the
// configuration does not name one.
const DefaultLockfile = "Cargo.lock"

// CandidateNames lists the file names probed by Find, in priority order.
var CandidateNames = []string{
	".ci-runner.yml",
	".ci-runner.yaml",
	".ci-runner.json",
	".ci-runner.jsonc",
}

// defaultCommands holds the built-in command for every gated step. The
// lockfile command is derived from the lockfile path, see LockfileCommand.
var defaultCommands = map[model.StepName][]string{
	model.StepFmt:   {"cargo", "fmt", "--all", "--", "--check"},
	model.StepCheck: {"cargo", "check", "--all"},
	model.StepLint:  {"cargo", "clippy", "--all", "--all-targets", "--", "-D", "warnings"},
	model.StepTest:  {"cargo", "test", "--all"},
}

// RawFile is the on-disk structure of the configuration file.
// Every field is optional; unset fields keep their defaults.
type RawFile struct {
	// Workdir is the directory steps run in. Relative paths are resolved
	// against the directory containing the configuration file.
	Workdir string `json:"workdir,omitempty" yaml:"workdir,omitempty"`

	// Lockfile is the dependency lockfile path, relative to the repository root.
	Lockfile string `json:"lockfile,omitempty" yaml:"lockfile,omitempty"`

	// Image selects the container executor when non-empty.
	Image string `json:"image,omitempty" yaml:"image,omitempty"`

	// Steps overrides commands by step name (fmt, check, lint, test, lockfile).
	// A key that is present must map to a non-empty argv.
	Steps map[string][]string `json:"steps,omitempty" yaml:"steps,omitempty"`
}

// Config is the resolved configuration of a run.
type Config struct {
	// Path is the configuration file that was loaded, or empty when only
	// defaults are in use.
	Path string

	// Workdir is the absolute directory steps run in.
	Workdir string

	// Lockfile is the lockfile path, relative to the repository root.
	Lockfile string

	// Image is the container image for the Docker executor. Empty means
	// steps run on the host.
	Image string

	// commands holds explicit overrides from the file.
	commands map[model.StepName][]string
}

// Default returns the built-in configuration rooted at workdir.
func Default(workdir string) *Config {
	return &Config{
		Workdir:  workdir,
		Lockfile: DefaultLockfile,
		commands: map[model.StepName][]string{},
	}
}

// Find returns the first candidate configuration file present in dir.
// The boolean is false when none exists.
func Find(dir string) (string, bool) {
	for _, name := range CandidateNames {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, true
		}
	}
	return "", false
}

// Resolve loads the configuration for a run started in dir.
//
// When explicit is non-empty that file must exist. Otherwise dir is
// searched with Find, and the defaults are used if nothing is found.
func Resolve(dir, explicit string) (*Config, error) {
	if explicit != "" {
		return Load(explicit)
	}
	path, ok := Find(dir)
	if !ok {
		return Default(dir), nil
	}
	return Load(path)
}

// Load reads and validates a configuration file.
//
// Returns a CLIError with ExitConfigError if the file cannot be read,
// decoded, or fails validation.
func Load(path string) (*Config, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitConfigError, "failed to resolve config path", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, model.WrapCLIError(
				model.ExitConfigError,
				fmt.Sprintf("config file not found: %s", absPath),
				err,
			)
		}
		return nil, model.WrapCLIError(model.ExitConfigError, "failed to read config file", err)
	}

	raw, err := Decode(filepath.Ext(absPath), data)
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitConfigError,
			fmt.Sprintf("failed to parse config file %s", absPath),
			err,
		)
	}

	cfg, err := fromRaw(filepath.Dir(absPath), raw)
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitConfigError,
			fmt.Sprintf("invalid config file %s", absPath),
			err,
		)
	}
	cfg.Path = absPath
	return cfg, nil
}

// Decode parses configuration bytes according to the file extension.
// Unknown top-level fields are rejected in both formats.
func Decode(ext string, data []byte) (*RawFile, error) {
	var raw RawFile

	switch strings.ToLower(ext) {
	case ".yml", ".yaml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		// An empty document is a valid "all defaults" file.
		if err := dec.Decode(&raw); err != nil {
			if errors.Is(err, io.EOF) {
				return &raw, nil
			}
			return nil, err
		}
		var extra yaml.Node
		if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
			return nil, errors.New("unexpected content after the first YAML document")
		}

	case ".json", ".jsonc":
		clean := jsonc.ToJSON(data)
		if len(bytes.TrimSpace(clean)) == 0 {
			return &raw, nil
		}
		dec := json.NewDecoder(bytes.NewReader(clean))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
		var extra json.RawMessage
		if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
			return nil, errors.New("unexpected content after the JSON object")
		}

	default:
		return nil, fmt.Errorf("unsupported config format %q (valid: .yml, .yaml, .json, .jsonc)", ext)
	}

	return &raw, nil
}

// fromRaw validates a decoded file and merges it over the defaults.
func fromRaw(baseDir string, raw *RawFile) (*Config, error) {
	workdir := baseDir
	if raw.Workdir != "" {
		workdir = raw.Workdir
		if !filepath.IsAbs(workdir) {
			workdir = filepath.Join(baseDir, workdir)
		}
	}

	cfg := Default(filepath.Clean(workdir))
	cfg.Image = strings.TrimSpace(raw.Image)
	if raw.Lockfile != "" {
		cfg.Lockfile = raw.Lockfile
	}

	for key, argv := range raw.Steps {
		name, err := model.ParseStepName(key)
		if err != nil {
			return nil, err
		}
		if _, dup := cfg.commands[name]; dup {
			return nil, fmt.Errorf("step %s is configured more than once", name)
		}
		if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
			return nil, fmt.Errorf("step %s: command must not be empty", name)
		}
		cfg.commands[name] = append([]string(nil), argv...)
	}

	return cfg, nil
}

// LockfileCommand returns the default lockfile check: a diff of the working
// copy against the index that exits non-zero when they differ.
//
// A relative lockfile is given as a ":/" pathspec, which git resolves from
// the repository root whatever directory the step runs in.
func LockfileCommand(lockfile string) []string {
	if !filepath.IsAbs(lockfile) {
		lockfile = ":/" + filepath.ToSlash(filepath.Clean(lockfile))
	}
	return []string{"git", "diff", "--exit-code", "--", lockfile}
}

// Command returns the argv configured for a step, falling back to the
// built-in default.
func (c *Config) Command(name model.StepName) []string {
	if argv, ok := c.commands[name]; ok {
		return append([]string(nil), argv...)
	}
	if name == model.StepLockfile {
		return LockfileCommand(c.Lockfile)
	}
	return append([]string(nil), defaultCommands[name]...)
}

// Steps returns every step in execution order, regardless of gates.
func (c *Config) Steps() []model.Step {
	steps := make([]model.Step, 0, len(model.StepOrder))
	for _, name := range model.StepOrder {
		steps = append(steps, model.Step{
			Name:    name,
			Gate:    name.Gate(),
			Command: c.Command(name),
		})
	}
	return steps
}

// Overridden reports whether the configuration file replaced a step's command.
func (c *Config) Overridden(name model.StepName) bool {
	_, ok := c.commands[name]
	return ok
}
