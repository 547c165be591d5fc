// Package config loads, merges, and hot-reloads the runtime's configuration
// from ${HOME}/.prism, a project-local override, and the environment.
package config

import (
	"os"
	"path/filepath"
)

// Paths are the standard locations under ${HOME}/.prism.
type Paths struct {
	Home          string // ${HOME}/.prism
	ConfigJSON    string // ${HOME}/.prism/config.json
	ConfigYAML    string // ${HOME}/.prism/config.yaml
	SystemPrompt  string // ${HOME}/.prism/system.md
	EnvFile       string // ${HOME}/.prism/.env
}

// GetPaths returns the standard paths for the current user.
func GetPaths() *Paths {
	home := filepath.Join(homeDir(), ".prism")
	return &Paths{
		Home:         home,
		ConfigJSON:   filepath.Join(home, "config.json"),
		ConfigYAML:   filepath.Join(home, "config.yaml"),
		SystemPrompt: filepath.Join(home, "system.md"),
		EnvFile:      filepath.Join(home, ".env"),
	}
}

// ProjectConfigPath returns the project-local config override path.
func ProjectConfigPath(directory string) string {
	return filepath.Join(directory, ".prism", "config.json")
}

// EnsureHome creates ${HOME}/.prism if it doesn't already exist.
func (p *Paths) EnsureHome() error {
	return os.MkdirAll(p.Home, 0o755)
}

func homeDir() string {
	if h := os.Getenv("HOME"); h != "" {
		return h
	}
	h, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return h
}
