package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/grovetools/bridge/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "bridge.yml", `
agent:
  command: fakeagent
  port: 5005
  model: test-model
  trusted_directories:
    - /tmp/projects
http:
  listen: 127.0.0.1:9900
sessions:
  root: `+dir+`
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "fakeagent", cfg.Agent.Command)
	assert.Equal(t, 5005, cfg.Agent.Port)
	assert.Equal(t, "test-model", cfg.Agent.Model)
	assert.Equal(t, []string{"/tmp/projects"}, cfg.Agent.TrustedDirectories)
	assert.Equal(t, "127.0.0.1:9900", cfg.HTTP.Listen)
	assert.Equal(t, dir, cfg.Sessions.Root)

	// Defaults fill in the rest
	assert.Equal(t, "127.0.0.1", cfg.Agent.Host)
	assert.True(t, cfg.Sessions.WatchEnabled())
}

func TestLoadTOML(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "bridge.toml", `
[agent]
command = "fakeagent"
port = 6006

[sessions]
watch = false
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "fakeagent", cfg.Agent.Command)
	assert.Equal(t, 6006, cfg.Agent.Port)
	assert.False(t, cfg.Sessions.WatchEnabled())
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "bridge.yml", "{}\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "opencode", cfg.Agent.Command)
	assert.Equal(t, "127.0.0.1", cfg.Agent.Host)
	assert.Equal(t, 4096, cfg.Agent.Port)
	assert.Equal(t, "127.0.0.1:8017", cfg.HTTP.Listen)
	assert.NotEmpty(t, cfg.Sessions.Root)
	assert.Equal(t, "127.0.0.1:4096", cfg.Agent.Addr())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "bridge.yml"))
	assert.True(t, errors.Is(err, errors.ErrCodeConfigNotFound))
}

func TestEnvVarExpansion(t *testing.T) {
	t.Setenv("BRIDGE_TEST_MODEL", "env-model")
	dir := t.TempDir()
	path := writeConfig(t, dir, "bridge.yml", `
agent:
  model: ${BRIDGE_TEST_MODEL}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env-model", cfg.Agent.Model)
}

func TestSchemaValidationRejectsBadPort(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "bridge.yml", `
agent:
  port: 99999
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeConfigValidation))
}

func TestFindConfigFileWalksUp(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0755))
	expected := writeConfig(t, root, "bridge.yml", "{}\n")

	found, err := FindConfigFile(nested)
	require.NoError(t, err)
	assert.Equal(t, expected, found)
}

func TestFindConfigFileMissing(t *testing.T) {
	_, err := FindConfigFile(t.TempDir())
	assert.True(t, errors.Is(err, errors.ErrCodeConfigNotFound))
}

func TestUnmarshalExtension(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "bridge.yml", `
extensions:
  logging:
    level: debug
    format:
      preset: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	var logCfg struct {
		Level  string `mapstructure:"level"`
		Format struct {
			Preset string `mapstructure:"preset"`
		} `mapstructure:"format"`
	}
	require.NoError(t, cfg.UnmarshalExtension("logging", &logCfg))
	assert.Equal(t, "debug", logCfg.Level)
	assert.Equal(t, "json", logCfg.Format.Preset)

	// Absent sections leave the target untouched
	var other struct{ Value string }
	require.NoError(t, cfg.UnmarshalExtension("absent", &other))
	assert.Empty(t, other.Value)
}
