// Package config holds the application configuration and the per-query
// configuration handed to the bridge process.
package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// App holds application configuration from ~/.mensa/config.yaml.
type App struct {
	// BridgeScript overrides bridge script discovery.
	BridgeScript string `yaml:"bridge_script"`

	// NodeBinary runs the bridge script. Defaults to "node" from PATH.
	NodeBinary string `yaml:"node_binary"`

	Defaults QueryDefaults `yaml:"defaults"`
}

// QueryDefaults seed every query's configuration.
type QueryDefaults struct {
	PermissionMode string   `yaml:"permission_mode"`
	MaxTurns       int      `yaml:"max_turns"`
	AllowedTools   []string `yaml:"allowed_tools"`
}

// DefaultPath returns the application config location.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".mensa", "config.yaml"), nil
}

// Load reads the application config from path.
// Returns a default config if the file doesn't exist.
func Load(path string) (*App, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return defaults(), nil
	}
	if err != nil {
		return nil, err
	}

	var app App
	if err := yaml.Unmarshal(data, &app); err != nil {
		return nil, err
	}

	if app.NodeBinary == "" {
		app.NodeBinary = "node"
	}
	if app.Defaults.PermissionMode == "" {
		app.Defaults.PermissionMode = "default"
	}
	return &app, nil
}

func defaults() *App {
	return &App{
		NodeBinary: "node",
		Defaults:   QueryDefaults{PermissionMode: "default"},
	}
}

// NewQueryConfig builds a query configuration seeded from the defaults.
func (a *App) NewQueryConfig() QueryConfig {
	return QueryConfig{
		PermissionMode: a.Defaults.PermissionMode,
		MaxTurns:       a.Defaults.MaxTurns,
		AllowedTools:   append([]string(nil), a.Defaults.AllowedTools...),
	}
}
