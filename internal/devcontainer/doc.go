// Package devcontainer reads the container settings of a project's
// devcontainer.json so CI steps can run in the same image developers use.
//
// Only image-based configurations are supported. Dockerfile and Compose
// configurations are rejected, since a run never builds images.
//
// JSONC (JSON with Comments) is supported via github.com/tidwall/jsonc,
// ensuring compatibility with the common practice of commenting
// devcontainer.json files.
package devcontainer
