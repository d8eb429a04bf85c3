package paths

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBridgeHomeOverridesXDG(t *testing.T) {
	t.Setenv("BRIDGE_HOME", "/custom/bridge")
	t.Setenv("XDG_CONFIG_HOME", "/xdg/config")
	t.Setenv("XDG_DATA_HOME", "/xdg/data")
	t.Setenv("XDG_STATE_HOME", "/xdg/state")

	assert.Equal(t, filepath.Join("/custom/bridge", "config", "bridge"), ConfigDir())
	assert.Equal(t, filepath.Join("/custom/bridge", "data", "bridge"), DataDir())
	assert.Equal(t, filepath.Join("/custom/bridge", "state", "bridge"), StateDir())
}

func TestXDGPaths(t *testing.T) {
	t.Setenv("BRIDGE_HOME", "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg/config")
	t.Setenv("XDG_DATA_HOME", "/xdg/data")
	t.Setenv("XDG_STATE_HOME", "/xdg/state")

	assert.Equal(t, "/xdg/config/bridge", ConfigDir())
	assert.Equal(t, "/xdg/data/bridge", DataDir())
	assert.Equal(t, "/xdg/state/bridge", StateDir())
	assert.Equal(t, "/xdg/data/bridge/sessions", SessionsDir())
	assert.Equal(t, "/xdg/state/bridge/bridged.pid", PidFilePath())
}
