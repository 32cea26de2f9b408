package devcontainer

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name       string
		raw        RawDevContainer
		wantFields []string
	}{
		{
			name: "image only",
			raw:  RawDevContainer{Image: "rust:1.80"},
		},
		{
			name: "full image configuration",
			raw: RawDevContainer{
				Image:           "rust:1.80",
				WorkspaceFolder: "/src",
				ContainerEnv:    map[string]string{"CI": "true"},
			},
		},
		{
			name:       "missing image",
			raw:        RawDevContainer{Name: "empty"},
			wantFields: []string{"image"},
		},
		{
			name:       "dockerfile build",
			raw:        RawDevContainer{Build: json.RawMessage(`{"dockerfile": "Dockerfile"}`)},
			wantFields: []string{"build"},
		},
		{
			name:       "compose",
			raw:        RawDevContainer{DockerComposeFile: "docker-compose.yml"},
			wantFields: []string{"dockerComposeFile"},
		},
		{
			name:       "relative workspace folder",
			raw:        RawDevContainer{Image: "rust", WorkspaceFolder: "src"},
			wantFields: []string{"workspaceFolder"},
		},
		{
			name:       "invalid env name",
			raw:        RawDevContainer{Image: "rust", ContainerEnv: map[string]string{"A=B": "x"}},
			wantFields: []string{"containerEnv"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := ValidateConfig(&tt.raw)

			var fields []string
			for _, e := range errs {
				fields = append(fields, e.Field)
			}
			assert.Equal(t, tt.wantFields, fields)
		})
	}
}

func TestValidationError_Error(t *testing.T) {
	err := ValidationError{Field: "image", Message: "image is required"}
	assert.Equal(t, "image: image is required", err.Error())
}
