package paths

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPortableHome(t *testing.T) {
	root := t.TempDir()
	t.Setenv("CONDUCTOR_HOME", root)

	assert.Equal(t, filepath.Join(root, "config"), ConfigDir())
	assert.Equal(t, filepath.Join(root, "state"), StateDir())
	assert.Equal(t, filepath.Join(root, "run", "conductor.sock"), SocketPath())
	assert.Equal(t, filepath.Join(root, "state", "sessions.json"), SessionsFile())
}

func TestXDGOverrides(t *testing.T) {
	t.Setenv("CONDUCTOR_HOME", "")
	t.Setenv("XDG_STATE_HOME", "/tmp/xdg-state")
	t.Setenv("XDG_RUNTIME_DIR", "")

	assert.Equal(t, "/tmp/xdg-state/conductor", StateDir())
	assert.Equal(t, "/tmp/xdg-state/conductor", RuntimeDir())
	assert.Equal(t, "/tmp/xdg-state/conductor/conductor.pid", PidFilePath())
}

func TestExpand(t *testing.T) {
	t.Setenv("HOME", "/home/tester")
	t.Setenv("REPOS", "code")

	assert.Equal(t, "/home/tester/src", Expand("~/src"))
	assert.Equal(t, "/srv/code", Expand("/srv/${REPOS}"))
}
