package config

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/grovetools/conductor/errors"
	"github.com/grovetools/conductor/pkg/paths"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// Format identifies the syntax of a configuration file.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

var configNames = []string{
	"conductor.yml",
	"conductor.yaml",
	"conductor.toml",
	".conductor.yml",
	".conductor.yaml",
}

// FormatForPath picks the parser from the file extension.
func FormatForPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FormatTOML
	}
	return FormatYAML
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// Load reads and parses a configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ConfigNotFound(path)
		}
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to read config file").
			WithDetail("path", path)
	}

	cfg, err := LoadFromBytes(data, FormatForPath(path))
	if err != nil {
		if ce, ok := errors.As(err); ok {
			ce.WithDetail("path", path)
		}
		return nil, err
	}
	return cfg, nil
}

// LoadFromBytes parses, defaults and validates configuration data.
func LoadFromBytes(data []byte, format Format) (*Config, error) {
	raw, err := Decode(data, format)
	if err != nil {
		return nil, err
	}

	// Re-encode the generic document so both syntaxes share one typed decode path.
	normalized, err := yaml.Marshal(raw)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to normalise configuration")
	}

	var cfg Config
	if err := yaml.Unmarshal(normalized, &cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to parse configuration")
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Decode parses data into a generic document after ${VAR} expansion.
func Decode(data []byte, format Format) (map[string]interface{}, error) {
	expanded := []byte(expandEnvVars(string(data)))

	doc := map[string]interface{}{}
	switch format {
	case FormatTOML:
		if err := toml.Unmarshal(expanded, &doc); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to parse TOML configuration")
		}
	default:
		if err := yaml.Unmarshal(expanded, &doc); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to parse YAML configuration")
		}
	}
	return doc, nil
}

// Validate checks semantic constraints the schema cannot express.
func (c *Config) Validate() error {
	if c.Scanner.MaxDepth < 0 {
		return errors.ConfigInvalid("scanner.max_depth must not be negative")
	}
	if c.Scanner.Concurrency < 1 {
		return errors.ConfigInvalid("scanner.concurrency must be at least 1")
	}
	if c.Scanner.Order != "name" && c.Scanner.Order != "recency" {
		return errors.ConfigInvalid("scanner.order must be 'name' or 'recency'").
			WithDetail("order", c.Scanner.Order)
	}

	durations := map[string]string{
		"scanner.timeout":          c.Scanner.Timeout,
		"recovery.interval":        c.Recovery.Interval,
		"recovery.running_timeout": c.Recovery.RunningTimeout,
		"recovery.init_timeout":    c.Recovery.InitTimeout,
		"daemon.repo_index_ttl":    c.Daemon.RepoIndexTTL,
		"workspace.clone_timeout":  c.Workspace.CloneTimeout,
	}
	for field, value := range durations {
		if value == "" {
			continue
		}
		d, err := time.ParseDuration(value)
		if err != nil || d <= 0 {
			return errors.ConfigInvalid(field+" must be a positive duration").
				WithDetail("field", field).
				WithDetail("value", value)
		}
	}
	return nil
}

// SessionsFile returns the configured sessions file or the XDG default.
func (c *Config) SessionsFile() string {
	if c.Sessions.File != "" {
		return paths.Expand(c.Sessions.File)
	}
	return paths.SessionsFile()
}

// SocketPath returns the configured daemon socket or the XDG default.
func (c *Config) SocketPath() string {
	if c.Daemon.Socket != "" {
		return paths.Expand(c.Daemon.Socket)
	}
	return paths.SocketPath()
}

// PidFilePath returns the configured daemon pid file or the XDG default.
func (c *Config) PidFilePath() string {
	if c.Daemon.PidFile != "" {
		return paths.Expand(c.Daemon.PidFile)
	}
	return paths.PidFilePath()
}

// ReposRoot returns the expanded scanner root, or "" when unset.
func (c *Config) ReposRoot() string {
	if c.Scanner.Root == "" {
		return ""
	}
	return paths.Expand(c.Scanner.Root)
}

// FindConfigFile searches for a configuration file with the following precedence:
// 1. Current directory up to filesystem root
// 2. XDG config directory (~/.config/conductor/)
func FindConfigFile(startDir string) (string, error) {
	dir := startDir
	for {
		for _, name := range configNames {
			path := filepath.Join(dir, name)
			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				return path, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	if configDir := paths.ConfigDir(); configDir != "" {
		for _, name := range configNames {
			path := filepath.Join(configDir, name)
			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				return path, nil
			}
		}
	}

	return "", errors.ConfigNotFound(startDir).WithDetail("searchPath", startDir)
}

// expandEnvVars replaces ${VAR} with environment variable values
func expandEnvVars(content string) string {
	return envVarRegex.ReplaceAllStringFunc(content, func(match string) string {
		varName := envVarRegex.FindStringSubmatch(match)[1]

		// Handle default values: ${VAR:-default}
		parts := strings.SplitN(varName, ":-", 2)
		varName = parts[0]
		defaultValue := ""
		if len(parts) > 1 {
			defaultValue = parts[1]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}

		return defaultValue
	})
}
