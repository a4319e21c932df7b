package config

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// QueryConfig is the per-query configuration serialized to JSON for the
// bridge process.
type QueryConfig struct {
	PermissionMode string       `json:"permissionMode,omitempty"`
	MaxTurns       int          `json:"maxTurns,omitempty"`
	AllowedTools   []string     `json:"allowedTools,omitempty"`
	ToolServers    []ToolServer `json:"toolServers,omitempty"`
}

// ToolServer declares an external tool server the agent may call into.
type ToolServer struct {
	Name  string           `json:"name"`
	Tools []ToolDefinition `json:"tools"`
}

// ToolDefinition describes one tool with its input schema.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// Encode serializes the configuration for the bridge's --config flag.
func (c QueryConfig) Encode() (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode query config: %w", err)
	}
	return string(data), nil
}

// DefineTool builds a tool definition whose input schema is generated
// from the parameter struct's json and jsonschema tags.
//
// Example:
//
//	type LintParams struct {
//	    Path string `json:"path" jsonschema:"required,description=File to lint"`
//	}
//
//	tool := config.DefineTool[LintParams]("lint", "Run the linter on a file")
func DefineTool[T any](name, description string) ToolDefinition {
	return ToolDefinition{
		Name:        name,
		Description: description,
		InputSchema: generateSchema[T](),
	}
}

// generateSchema creates a JSON schema from a Go struct type using the
// invopop/jsonschema struct tag conventions.
func generateSchema[T any]() json.RawMessage {
	reflector := &jsonschema.Reflector{
		DoNotReference: true, // Inline all definitions instead of using $ref
		ExpandedStruct: true,
	}

	var zero T
	schema := reflector.Reflect(zero)

	data, err := json.Marshal(schema)
	if err != nil {
		// This should never happen with valid types
		panic(fmt.Sprintf("failed to generate schema for type %T: %v", zero, err))
	}
	return json.RawMessage(data)
}
