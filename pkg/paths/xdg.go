// Package paths resolves where conductor keeps its files.
//
// Resolution order:
// 1. CONDUCTOR_HOME (portable root) → $CONDUCTOR_HOME/{config,state,run}
// 2. XDG env vars → $XDG_*_HOME/conductor
// 3. Platform defaults → ~/.config/conductor, ~/.local/state/conductor
package paths

import (
	"os"
	"path/filepath"
	"strings"
)

const appName = "conductor"

// home resolves a base directory from CONDUCTOR_HOME, an XDG variable, or a
// fallback relative to the user's home directory.
func home(portableSub, xdgVar string, fallback ...string) string {
	if root := os.Getenv("CONDUCTOR_HOME"); root != "" {
		return filepath.Join(root, portableSub)
	}
	if dir := os.Getenv(xdgVar); dir != "" {
		return filepath.Join(dir, appName)
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(append(append([]string{homeDir}, fallback...), appName)...)
	}
	return ""
}

// ConfigDir returns the conductor configuration directory.
func ConfigDir() string {
	return home("config", "XDG_CONFIG_HOME", ".config")
}

// StateDir returns the conductor state directory.
// Used for the sessions file, logs and the pid file.
func StateDir() string {
	return home("state", "XDG_STATE_HOME", ".local", "state")
}

// RuntimeDir returns the directory for sockets.
// Uses XDG_RUNTIME_DIR when available (Linux), falls back to StateDir (macOS).
func RuntimeDir() string {
	if root := os.Getenv("CONDUCTOR_HOME"); root != "" {
		return filepath.Join(root, "run")
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, appName)
	}
	return StateDir()
}

// SessionsFile returns the default durable sessions file.
func SessionsFile() string {
	return filepath.Join(StateDir(), "sessions.json")
}

// SocketPath returns the path to the daemon unix socket.
func SocketPath() string {
	return filepath.Join(RuntimeDir(), "conductor.sock")
}

// PidFilePath returns the path to the daemon PID file.
func PidFilePath() string {
	return filepath.Join(StateDir(), "conductor.pid")
}

// Expand expands a leading ~ and environment variables in path.
func Expand(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if homeDir, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(homeDir, strings.TrimPrefix(path, "~"))
		}
	}
	return os.ExpandEnv(path)
}
