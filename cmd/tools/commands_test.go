package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/lychee-technology/restmodel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pokedex = filepath.Join("..", "..", "internal", "testdata", "pokedex.yaml")

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	err := app.Run(context.Background(), append([]string{"restmodel-tools"}, args...))
	return out.String(), err
}

func TestCompileCommand(t *testing.T) {
	tests := []struct {
		name  string
		args  []string
		check func(t *testing.T, doc map[string]any)
	}{
		{
			name: "bare",
			args: []string{"--fixture", pokedex, "compile", "-r", "201"},
			check: func(t *testing.T, doc map[string]any) {
				assert.Equal(t, "object", doc["type"])
			},
		},
		{
			name: "wrapped",
			args: []string{"--fixture", pokedex, "compile", "--representation", "201", "--collection", "--root-key", "natures"},
			check: func(t *testing.T, doc map[string]any) {
				natures := doc["properties"].(map[string]any)["natures"].(map[string]any)
				assert.Equal(t, "array", natures["type"])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, tt.args...)
			require.NoError(t, err)
			var doc map[string]any
			require.NoError(t, json.Unmarshal([]byte(out), &doc), out)
			tt.check(t, doc)
		})
	}
}

func TestCompileCommand_UnknownRepresentation(t *testing.T) {
	_, err := run(t, "--fixture", pokedex, "compile", "-r", "999")
	assert.True(t, restmodel.IsErrorType(err, restmodel.ErrorTypeNotFound), "got %v", err)
}

func TestValidateCommand(t *testing.T) {
	out, err := run(t, "--fixture", pokedex, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "3 resources, 4 representations, 3 routes, 3 pickers ok")

	broken := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte(`
resources:
  - id: 1
    project_id: 1
    name: Order
    attributes:
      - id: 11
        name: customer
        nested_resource_id: 2
`), 0o644))
	_, err = run(t, "--fixture", broken, "validate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), broken)
}

func TestCommandsRequireFixture(t *testing.T) {
	for _, name := range []string{"seed", "validate"} {
		t.Run(name, func(t *testing.T) {
			_, err := run(t, name)
			assert.ErrorIs(t, err, errFixtureRequired)
		})
	}
}

func TestExportCommand_RequiresBucket(t *testing.T) {
	t.Setenv("RESTMODEL_EXPORT_BUCKET", "")
	_, err := run(t, "--fixture", pokedex, "export", "-r", "101")
	assert.True(t, restmodel.IsErrorType(err, restmodel.ErrorTypeValidation), "got %v", err)
}
