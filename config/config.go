package config

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/grovetools/bridge/errors"
	"github.com/grovetools/bridge/pkg/paths"
	"github.com/grovetools/bridge/schema"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// configNames are the file names probed when walking up from a directory.
var configNames = []string{"bridge.yml", "bridge.yaml", "bridge.toml"}

// Load reads and parses a bridge configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ConfigNotFound(path)
		}
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to read config file").
			WithDetail("path", path)
	}

	cfg, err := parse(data, filepath.Ext(path))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to parse config file").
			WithDetail("path", path)
	}

	cfg.ApplyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault loads configuration starting from the current working directory.
// A missing config file is not an error; defaults are returned.
func LoadDefault() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to get current directory")
	}
	return LoadFrom(cwd)
}

// LoadFrom loads configuration with hierarchical merging starting from startDir:
// the global config (~/.config/bridge/bridge.yml) is the base layer, and the
// nearest project config found walking up from startDir overrides it.
func LoadFrom(startDir string) (*Config, error) {
	var final Config

	// 1. Global config is optional.
	if globalPath := globalConfigPath(); globalPath != "" {
		if data, err := os.ReadFile(globalPath); err == nil {
			if global, err := parse(data, filepath.Ext(globalPath)); err == nil {
				final = *global
			}
			// A broken global config never blocks startup; the project
			// config or defaults take over.
		}
	}

	// 2. Project config overrides the global layer.
	projectPath, err := FindConfigFile(startDir)
	if err == nil {
		data, readErr := os.ReadFile(projectPath)
		if readErr != nil {
			return nil, errors.Wrap(readErr, errors.ErrCodeConfigInvalid, "failed to read project config").
				WithDetail("path", projectPath)
		}
		project, parseErr := parse(data, filepath.Ext(projectPath))
		if parseErr != nil {
			return nil, errors.Wrap(parseErr, errors.ErrCodeConfigInvalid, "failed to parse project config").
				WithDetail("path", projectPath)
		}
		merge(&final, project)
	}

	final.ApplyDefaults()
	if err := Validate(&final); err != nil {
		return nil, err
	}
	return &final, nil
}

// FindConfigFile walks up from startDir looking for a bridge config file.
func FindConfigFile(startDir string) (string, error) {
	dir := startDir
	for {
		for _, name := range configNames {
			candidate := filepath.Join(dir, name)
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				return candidate, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.ConfigNotFound(filepath.Join(startDir, configNames[0]))
		}
		dir = parent
	}
}

// Validate checks a config against the embedded JSON schema.
func Validate(cfg *Config) error {
	validator, err := schema.NewValidator()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigValidation, "failed to load config schema")
	}
	if err := validator.Validate(cfg); err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigValidation, "configuration is invalid")
	}
	return nil
}

func parse(data []byte, ext string) (*Config, error) {
	expanded := expandEnvVars(string(data))
	var cfg Config
	if ext == ".toml" {
		if err := toml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, err
		}
		return &cfg, nil
	}
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// merge overlays non-zero fields of src onto dst.
func merge(dst, src *Config) {
	if src.Agent.Command != "" {
		dst.Agent.Command = src.Agent.Command
	}
	if len(src.Agent.Args) > 0 {
		dst.Agent.Args = src.Agent.Args
	}
	if src.Agent.Host != "" {
		dst.Agent.Host = src.Agent.Host
	}
	if src.Agent.Port != 0 {
		dst.Agent.Port = src.Agent.Port
	}
	if src.Agent.Model != "" {
		dst.Agent.Model = src.Agent.Model
	}
	if len(src.Agent.TrustedDirectories) > 0 {
		dst.Agent.TrustedDirectories = src.Agent.TrustedDirectories
	}
	if len(src.Agent.AllowedURLs) > 0 {
		dst.Agent.AllowedURLs = src.Agent.AllowedURLs
	}
	if src.HTTP.Listen != "" {
		dst.HTTP.Listen = src.HTTP.Listen
	}
	if src.Sessions.Root != "" {
		dst.Sessions.Root = src.Sessions.Root
	}
	if src.Sessions.Watch != nil {
		dst.Sessions.Watch = src.Sessions.Watch
	}
	if len(src.Extensions) > 0 {
		if dst.Extensions == nil {
			dst.Extensions = make(map[string]interface{}, len(src.Extensions))
		}
		for k, v := range src.Extensions {
			dst.Extensions[k] = v
		}
	}
}

// expandEnvVars replaces ${VAR} references with their environment values.
func expandEnvVars(content string) string {
	return envVarRegex.ReplaceAllStringFunc(content, func(match string) string {
		name := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		if value, ok := os.LookupEnv(name); ok {
			return value
		}
		return match
	})
}

func globalConfigPath() string {
	configDir := paths.ConfigDir()
	if configDir == "" {
		return ""
	}
	for _, name := range configNames {
		candidate := filepath.Join(configDir, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	return ""
}
