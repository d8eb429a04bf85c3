package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/grovetools/bridge/pkg/paths"
)

// Config is the root of a parsed bridge.yml (or bridge.toml).
type Config struct {
	// Agent configures the external agent process and its ACP socket.
	Agent AgentConfig `yaml:"agent" toml:"agent" json:"agent"`

	// HTTP configures the bridge's HTTP/SSE surface.
	HTTP HTTPConfig `yaml:"http" toml:"http" json:"http"`

	// Sessions configures the on-disk session log tree.
	Sessions SessionsConfig `yaml:"sessions" toml:"sessions" json:"sessions"`

	// Extensions holds free-form sections consumed by other packages
	// (e.g. "logging"). Decoded on demand via UnmarshalExtension.
	Extensions map[string]interface{} `yaml:"extensions,omitempty" toml:"extensions,omitempty" json:"extensions,omitempty"`
}

// AgentConfig describes how to spawn and reach the agent process.
type AgentConfig struct {
	// Command is the agent binary to spawn.
	Command string `yaml:"command" toml:"command" json:"command"`
	// Args are extra arguments appended verbatim after the computed ones.
	Args []string `yaml:"args,omitempty" toml:"args,omitempty" json:"args,omitempty"`
	// Host and Port locate the agent's ACP socket.
	Host string `yaml:"host" toml:"host" json:"host"`
	Port int    `yaml:"port" toml:"port" json:"port"`
	// Model overrides the agent's default model (--model).
	Model string `yaml:"model,omitempty" toml:"model,omitempty" json:"model,omitempty"`
	// TrustedDirectories are passed to the agent as repeated --add-dir flags.
	TrustedDirectories []string `yaml:"trusted_directories,omitempty" toml:"trusted_directories,omitempty" json:"trusted_directories,omitempty"`
	// AllowedURLs are passed to the agent as repeated --allow-url flags.
	AllowedURLs []string `yaml:"allowed_urls,omitempty" toml:"allowed_urls,omitempty" json:"allowed_urls,omitempty"`
}

// Addr returns the host:port address of the agent's ACP socket.
func (a AgentConfig) Addr() string {
	return net.JoinHostPort(a.Host, fmt.Sprintf("%d", a.Port))
}

// HTTPConfig configures the loopback HTTP server.
type HTTPConfig struct {
	// Listen is the address the HTTP server binds to.
	Listen string `yaml:"listen" toml:"listen" json:"listen"`
}

// SessionsConfig configures session log reconstruction.
type SessionsConfig struct {
	// Root is the directory containing one subdirectory per session.
	Root string `yaml:"root" toml:"root" json:"root"`
	// Watch enables fsnotify-driven automatic reloads of the log tree.
	Watch *bool `yaml:"watch,omitempty" toml:"watch,omitempty" json:"watch,omitempty"`
}

// WatchEnabled reports whether the log tree watcher should run (default true).
func (s SessionsConfig) WatchEnabled() bool {
	return s.Watch == nil || *s.Watch
}

// ApplyDefaults fills in zero-valued fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Agent.Command == "" {
		c.Agent.Command = "opencode"
	}
	if c.Agent.Host == "" {
		c.Agent.Host = "127.0.0.1"
	}
	if c.Agent.Port == 0 {
		c.Agent.Port = 4096
	}
	if c.HTTP.Listen == "" {
		c.HTTP.Listen = "127.0.0.1:8017"
	}
	if c.Sessions.Root == "" {
		c.Sessions.Root = defaultSessionsRoot()
	} else {
		c.Sessions.Root = ExpandPath(c.Sessions.Root)
	}
}

func defaultSessionsRoot() string {
	if dir := paths.SessionsDir(); dir != "" {
		return dir
	}
	return filepath.Join(".bridge", "sessions")
}

// ExpandPath expands a leading tilde in file paths.
func ExpandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
