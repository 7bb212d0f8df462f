package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
)

// Config is the root of conductor.yml / conductor.toml.
type Config struct {
	Version    string                 `yaml:"version,omitempty" toml:"version,omitempty" jsonschema:"description=Configuration version (e.g. '1.0')"`
	Sessions   SessionsConfig         `yaml:"sessions,omitempty" toml:"sessions,omitempty" jsonschema:"description=Session registry storage"`
	Scanner    ScannerConfig          `yaml:"scanner,omitempty" toml:"scanner,omitempty" jsonschema:"description=Repository scanner defaults"`
	Recovery   RecoveryConfig         `yaml:"recovery,omitempty" toml:"recovery,omitempty" jsonschema:"description=Stuck session recovery"`
	Daemon     DaemonConfig           `yaml:"daemon,omitempty" toml:"daemon,omitempty" jsonschema:"description=Background daemon settings"`
	Workspace  WorkspaceConfig        `yaml:"workspace,omitempty" toml:"workspace,omitempty" jsonschema:"description=Repository checkout and worktree settings"`
	Logging    LoggingConfig          `yaml:"logging,omitempty" toml:"logging,omitempty" jsonschema:"description=Logging configuration"`
	Extensions map[string]interface{} `yaml:"extensions,omitempty" toml:"extensions,omitempty" jsonschema:"description=Free-form sections owned by collaborating tools"`
}

// SessionsConfig configures the durable session file.
type SessionsConfig struct {
	File string `yaml:"file,omitempty" toml:"file,omitempty" jsonschema:"description=Path to the sessions JSON file"`
}

// ScannerConfig holds the defaults applied to repository scans.
type ScannerConfig struct {
	Root         string   `yaml:"root,omitempty" toml:"root,omitempty" jsonschema:"description=Directory holding repositories"`
	MaxDepth     int      `yaml:"max_depth,omitempty" toml:"max_depth,omitempty" jsonschema:"description=Maximum directory depth to descend,minimum=0"`
	Concurrency  int      `yaml:"concurrency,omitempty" toml:"concurrency,omitempty" jsonschema:"description=Maximum concurrent git probes,minimum=1"`
	SkipPatterns []string `yaml:"skip_patterns,omitempty" toml:"skip_patterns,omitempty" jsonschema:"description=Directory names or * wildcards to skip"`
	Timeout      string   `yaml:"timeout,omitempty" toml:"timeout,omitempty" jsonschema:"description=Per git call timeout (e.g. 5s)"`
	Order        string   `yaml:"order,omitempty" toml:"order,omitempty" jsonschema:"description=Result ordering,enum=name,enum=recency"`
}

// RecoveryConfig configures the stuck-session recovery scheduler.
type RecoveryConfig struct {
	Enabled        *bool  `yaml:"enabled,omitempty" toml:"enabled,omitempty" jsonschema:"description=Run the recovery scheduler in the daemon (default: true)"`
	Interval       string `yaml:"interval,omitempty" toml:"interval,omitempty" jsonschema:"description=Time between recovery passes"`
	RunningTimeout string `yaml:"running_timeout,omitempty" toml:"running_timeout,omitempty" jsonschema:"description=Idle time after which a RUNNING session is failed"`
	InitTimeout    string `yaml:"init_timeout,omitempty" toml:"init_timeout,omitempty" jsonschema:"description=Idle time after which an INITIALIZING or STARTING session is failed"`
}

// DaemonConfig configures `conductor serve`.
type DaemonConfig struct {
	Socket       string `yaml:"socket,omitempty" toml:"socket,omitempty" jsonschema:"description=Unix socket path"`
	PidFile      string `yaml:"pid_file,omitempty" toml:"pid_file,omitempty" jsonschema:"description=PID file path"`
	RepoIndexTTL string `yaml:"repo_index_ttl,omitempty" toml:"repo_index_ttl,omitempty" jsonschema:"description=Maximum age of the cached repository list"`
}

// WorkspaceConfig configures repository materialisation.
type WorkspaceConfig struct {
	WorktreesDir string `yaml:"worktrees_dir,omitempty" toml:"worktrees_dir,omitempty" jsonschema:"description=Directory for session worktrees (default: <repo>/.conductor-worktrees)"`
	CloneTimeout string `yaml:"clone_timeout,omitempty" toml:"clone_timeout,omitempty" jsonschema:"description=Timeout for git clone"`
}

// LoggingConfig defines the logging section.
type LoggingConfig struct {
	// Level is the minimum log level to output (e.g., "debug", "info", "warn", "error").
	// Can be overridden by the CONDUCTOR_LOG_LEVEL environment variable.
	Level string `yaml:"level,omitempty" toml:"level,omitempty" jsonschema:"description=Minimum log level"`

	// ReportCaller, if true, includes the file, line, and function name in the log output.
	ReportCaller bool `yaml:"report_caller,omitempty" toml:"report_caller,omitempty" jsonschema:"description=Include caller information"`

	File   FileSinkConfig `yaml:"file,omitempty" toml:"file,omitempty" jsonschema:"description=File sink"`
	Format FormatConfig   `yaml:"format,omitempty" toml:"format,omitempty" jsonschema:"description=Output format"`
}

// FileSinkConfig configures the file logging sink.
type FileSinkConfig struct {
	Enabled bool   `yaml:"enabled,omitempty" toml:"enabled,omitempty"`
	Path    string `yaml:"path,omitempty" toml:"path,omitempty"`
}

// FormatConfig controls the log output format.
type FormatConfig struct {
	// Preset can be "default" (rich text), "simple" (minimal text), or "json".
	Preset           string `yaml:"preset,omitempty" toml:"preset,omitempty" jsonschema:"enum=default,enum=simple,enum=json"`
	DisableTimestamp bool   `yaml:"disable_timestamp,omitempty" toml:"disable_timestamp,omitempty"`
	DisableComponent bool   `yaml:"disable_component,omitempty" toml:"disable_component,omitempty"`
	// StructuredToStderr can be "auto" (default), "always", or "never".
	StructuredToStderr string `yaml:"structured_to_stderr,omitempty" toml:"structured_to_stderr,omitempty" jsonschema:"enum=auto,enum=always,enum=never"`
}

// Scanner defaults.
const (
	DefaultMaxDepth    = 2
	DefaultConcurrency = 10
	DefaultScanTimeout = 5 * time.Second
)

// Recovery defaults.
const (
	DefaultRecoveryInterval = 5 * time.Minute
	DefaultRunningTimeout   = 30 * time.Minute
	DefaultInitTimeout      = 60 * time.Minute
)

const (
	DefaultRepoIndexTTL = time.Minute
	DefaultCloneTimeout = 5 * time.Minute
)

// DefaultSkipPatterns are skipped when scanner.skip_patterns is unset.
var DefaultSkipPatterns = []string{"node_modules", ".cache", "vendor", "dist", "build", "*-tmp"}

// SetDefaults fills every unset field with its default value.
func (c *Config) SetDefaults() {
	if c.Scanner.MaxDepth == 0 {
		c.Scanner.MaxDepth = DefaultMaxDepth
	}
	if c.Scanner.Concurrency == 0 {
		c.Scanner.Concurrency = DefaultConcurrency
	}
	if c.Scanner.SkipPatterns == nil {
		c.Scanner.SkipPatterns = append([]string(nil), DefaultSkipPatterns...)
	}
	if c.Scanner.Timeout == "" {
		c.Scanner.Timeout = DefaultScanTimeout.String()
	}
	if c.Scanner.Order == "" {
		c.Scanner.Order = "name"
	}
	if c.Recovery.Enabled == nil {
		enabled := true
		c.Recovery.Enabled = &enabled
	}
	if c.Recovery.Interval == "" {
		c.Recovery.Interval = DefaultRecoveryInterval.String()
	}
	if c.Recovery.RunningTimeout == "" {
		c.Recovery.RunningTimeout = DefaultRunningTimeout.String()
	}
	if c.Recovery.InitTimeout == "" {
		c.Recovery.InitTimeout = DefaultInitTimeout.String()
	}
	if c.Daemon.RepoIndexTTL == "" {
		c.Daemon.RepoIndexTTL = DefaultRepoIndexTTL.String()
	}
	if c.Workspace.CloneTimeout == "" {
		c.Workspace.CloneTimeout = DefaultCloneTimeout.String()
	}
	if c.Logging.Format.StructuredToStderr == "" {
		c.Logging.Format.StructuredToStderr = "auto"
	}
}

// RecoveryEnabled reports whether the daemon should run recovery passes.
func (c *Config) RecoveryEnabled() bool {
	return c.Recovery.Enabled == nil || *c.Recovery.Enabled
}

// Duration parses a duration field, falling back to def when empty.
func Duration(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// UnmarshalExtension decodes a specific extension's configuration from the
// loaded file into the provided target struct. The target must be a pointer.
//
// Example:
//
//	var botCfg chat.BotConfig
//	err := cfg.UnmarshalExtension("chat", &botCfg)
func (c *Config) UnmarshalExtension(key string, target interface{}) error {
	extensionConfig, ok := c.Extensions[key]
	if !ok {
		// A missing key leaves the target zero-valued.
		return nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "yaml",
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return fmt.Errorf("failed to create mapstructure decoder: %w", err)
	}

	if err := decoder.Decode(extensionConfig); err != nil {
		return fmt.Errorf("failed to decode extension config for '%s': %w", key, err)
	}

	return nil
}
