package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/grovetools/conductor/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "conductor.yml")
	t.Setenv("REPOS_ROOT", "/srv/repos")
	require.NoError(t, os.WriteFile(path, []byte(`
version: "1.0"
scanner:
  root: ${REPOS_ROOT}
  max_depth: 3
  skip_patterns: [node_modules, "*-cache"]
  timeout: 2s
recovery:
  running_timeout: 45m
extensions:
  chat:
    guild: g-1
    reply_timeout: 10s
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/repos", cfg.ReposRoot())
	assert.Equal(t, 3, cfg.Scanner.MaxDepth)
	assert.Equal(t, DefaultConcurrency, cfg.Scanner.Concurrency)
	assert.Equal(t, []string{"node_modules", "*-cache"}, cfg.Scanner.SkipPatterns)
	assert.Equal(t, 2*time.Second, Duration(cfg.Scanner.Timeout, DefaultScanTimeout))
	assert.Equal(t, 45*time.Minute, Duration(cfg.Recovery.RunningTimeout, DefaultRunningTimeout))
	assert.Equal(t, DefaultInitTimeout, Duration(cfg.Recovery.InitTimeout, 0))
	assert.True(t, cfg.RecoveryEnabled())

	var chat struct {
		Guild        string        `yaml:"guild"`
		ReplyTimeout time.Duration `yaml:"reply_timeout"`
	}
	require.NoError(t, cfg.UnmarshalExtension("chat", &chat))
	assert.Equal(t, "g-1", chat.Guild)
	assert.Equal(t, 10*time.Second, chat.ReplyTimeout)
}

func TestLoadTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "conductor.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[scanner]
root = "/data/repos"
concurrency = 4
order = "recency"

[recovery]
enabled = false
interval = "1m"
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Scanner.Concurrency)
	assert.Equal(t, "recency", cfg.Scanner.Order)
	assert.False(t, cfg.RecoveryEnabled())
	assert.Equal(t, time.Minute, Duration(cfg.Recovery.Interval, DefaultRecoveryInterval))
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"negative depth", "scanner:\n  max_depth: -1\n"},
		{"bad order", "scanner:\n  order: random\n"},
		{"bad duration", "recovery:\n  interval: soon\n"},
		{"malformed yaml", "scanner: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromBytes([]byte(tt.body), FormatYAML)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrCodeConfigInvalid), "got %v", err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.True(t, errors.Is(err, errors.ErrCodeConfigNotFound))
}

func TestFindConfigFileWalksUp(t *testing.T) {
	root := t.TempDir()
	t.Setenv("CONDUCTOR_HOME", filepath.Join(root, "home"))
	nested := filepath.Join(root, "a", "b", "c")
	require.NoError(t, os.MkdirAll(nested, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a", "conductor.yml"), []byte("version: '1'\n"), 0644))

	found, err := FindConfigFile(nested)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "a", "conductor.yml"), found)
}

func TestGenerateSchema(t *testing.T) {
	data, err := GenerateSchema()
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &doc))
	props, ok := doc["properties"].(map[string]interface{})
	require.True(t, ok)
	for _, key := range []string{"sessions", "scanner", "recovery", "daemon", "workspace", "logging", "extensions"} {
		assert.Contains(t, props, key)
	}
}
