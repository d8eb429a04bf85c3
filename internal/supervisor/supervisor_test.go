package supervisor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/grovetools/bridge/config"
)

func TestBuildArgs(t *testing.T) {
	cfg := config.AgentConfig{
		Command:            "opencode",
		Args:               []string{"serve", "--verbose"},
		Model:              "gpt-5",
		TrustedDirectories: []string{"/home/user/work", "/home/user/play"},
		AllowedURLs:        []string{"https://docs.example.com/*"},
	}

	args := BuildArgs(cfg)
	assert.Equal(t, []string{
		"--model", "gpt-5",
		"--add-dir", "/home/user/work",
		"--add-dir", "/home/user/play",
		"--allow-url", "https://docs.example.com/*",
		"serve", "--verbose",
	}, args)
}

func TestBuildArgsMinimal(t *testing.T) {
	args := BuildArgs(config.AgentConfig{Command: "opencode"})
	assert.Empty(t, args)
}

func TestPIDBeforeStart(t *testing.T) {
	s := New(config.AgentConfig{Command: "opencode"})
	assert.Equal(t, 0, s.PID())
	// Stop before Start must be a no-op.
	s.Stop()
}
