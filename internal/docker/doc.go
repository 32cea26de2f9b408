// Package docker provides the Docker-backed step executor for the
// ci-runner CLI.
//
// This package handles:
//   - Docker client initialization with automatic socket detection
//     (Linux, macOS, Windows)
//   - Image availability (inspect, pull on miss)
//   - One container per step: create, start, stream logs, wait, remove
//   - Container labels tying each container to its run and step
//
// The package uses github.com/docker/docker/client as the underlying
// Docker SDK, with version negotiation enabled for broad compatibility.
package docker
