package config

import (
	"path/filepath"

	"github.com/adrg/xdg"
)

const appName = "fusionctl"

// StateDir is the default directory for run history.
//
//	Linux:   $XDG_STATE_HOME/fusionctl or ~/.local/state/fusionctl
//	macOS:   ~/Library/Application Support/fusionctl
func StateDir() string {
	return filepath.Join(xdg.StateHome, appName)
}

// applyPathDefaults fills state locations left unset by the environment.
func applyPathDefaults(cfg *Config) {
	if cfg.StateFile == "" {
		cfg.StateFile = filepath.Join(StateDir(), "state.json")
	}
	if cfg.StateDB == "" {
		cfg.StateDB = filepath.Join(StateDir(), "state.db")
	}
}
