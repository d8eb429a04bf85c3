// Package paths provides XDG-compliant path resolution for the bridge.
//
// Resolution order:
// 1. BRIDGE_HOME (portable root) → $BRIDGE_HOME/{config,data,state}
// 2. XDG env vars → $XDG_*_HOME/bridge
// 3. Platform defaults → ~/.config/bridge, ~/.local/share/bridge, etc.
package paths

import (
	"os"
	"path/filepath"
)

// getConfigHome returns the base config home directory.
func getConfigHome() string {
	if bridgeHome := os.Getenv("BRIDGE_HOME"); bridgeHome != "" {
		return filepath.Join(bridgeHome, "config")
	}
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return xdgConfigHome
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".config")
	}
	return ""
}

// getDataHome returns the base data home directory.
func getDataHome() string {
	if bridgeHome := os.Getenv("BRIDGE_HOME"); bridgeHome != "" {
		return filepath.Join(bridgeHome, "data")
	}
	if xdgDataHome := os.Getenv("XDG_DATA_HOME"); xdgDataHome != "" {
		return xdgDataHome
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".local", "share")
	}
	return ""
}

// getStateHome returns the base state home directory.
func getStateHome() string {
	if bridgeHome := os.Getenv("BRIDGE_HOME"); bridgeHome != "" {
		return filepath.Join(bridgeHome, "state")
	}
	if xdgStateHome := os.Getenv("XDG_STATE_HOME"); xdgStateHome != "" {
		return xdgStateHome
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".local", "state")
	}
	return ""
}

// ConfigDir returns the bridge configuration directory.
// Used for config files like bridge.yml.
func ConfigDir() string {
	base := getConfigHome()
	if base == "" {
		return ""
	}
	return filepath.Join(base, "bridge")
}

// DataDir returns the bridge data directory.
// Used for persistent data like session logs.
func DataDir() string {
	base := getDataHome()
	if base == "" {
		return ""
	}
	return filepath.Join(base, "bridge")
}

// StateDir returns the bridge state directory.
// Used for runtime state, logs, and the PID file.
func StateDir() string {
	base := getStateHome()
	if base == "" {
		return ""
	}
	return filepath.Join(base, "bridge")
}

// SessionsDir returns the default session-log root.
func SessionsDir() string {
	data := DataDir()
	if data == "" {
		return ""
	}
	return filepath.Join(data, "sessions")
}

// PidFilePath returns the path to the bridge daemon PID file.
func PidFilePath() string {
	return filepath.Join(StateDir(), "bridged.pid")
}

// EnsureDirs creates all bridge directories if they don't exist.
func EnsureDirs() error {
	dirs := []string{
		ConfigDir(),
		DataDir(),
		StateDir(),
		SessionsDir(),
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
