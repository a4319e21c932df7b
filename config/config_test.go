package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	app, err := Load(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "node", app.NodeBinary)
	assert.Equal(t, "default", app.Defaults.PermissionMode)
	assert.Zero(t, app.Defaults.MaxTurns)
}

func TestLoadParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
bridge_script: /opt/mensa/claude-query.mjs
defaults:
  permission_mode: acceptEdits
  max_turns: 30
  allowed_tools:
    - Read
    - Bash
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	app, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/opt/mensa/claude-query.mjs", app.BridgeScript)
	assert.Equal(t, "node", app.NodeBinary, "unset binary falls back")
	assert.Equal(t, "acceptEdits", app.Defaults.PermissionMode)
	assert.Equal(t, 30, app.Defaults.MaxTurns)
	assert.Equal(t, []string{"Read", "Bash"}, app.Defaults.AllowedTools)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("defaults: [not a map"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestNewQueryConfigCopiesDefaults(t *testing.T) {
	app := &App{Defaults: QueryDefaults{
		PermissionMode: "plan",
		MaxTurns:       10,
		AllowedTools:   []string{"Read"},
	}}

	qc := app.NewQueryConfig()
	qc.AllowedTools = append(qc.AllowedTools, "Bash")

	assert.Equal(t, []string{"Read"}, app.Defaults.AllowedTools, "defaults must not alias the query config")
	assert.Equal(t, "plan", qc.PermissionMode)
}

func TestQueryConfigEncode(t *testing.T) {
	qc := QueryConfig{
		PermissionMode: "acceptEdits",
		MaxTurns:       5,
		AllowedTools:   []string{"Read", "Edit"},
	}

	encoded, err := qc.Encode()
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(encoded), &decoded))
	assert.Equal(t, "acceptEdits", decoded["permissionMode"])
	assert.Equal(t, float64(5), decoded["maxTurns"])
}

type lintParams struct {
	Path string `json:"path" jsonschema:"required,description=File to lint"`
	Fix  bool   `json:"fix,omitempty" jsonschema:"description=Apply fixes in place"`
}

func TestDefineToolGeneratesSchema(t *testing.T) {
	tool := DefineTool[lintParams]("lint", "Run the linter on a file")

	assert.Equal(t, "lint", tool.Name)
	require.NotEmpty(t, tool.InputSchema)

	var schema map[string]interface{}
	require.NoError(t, json.Unmarshal(tool.InputSchema, &schema))
	props, ok := schema["properties"].(map[string]interface{})
	require.True(t, ok, "schema should have properties")
	assert.Contains(t, props, "path")
	assert.Contains(t, props, "fix")
	assert.Contains(t, schema["required"], "path")
}
