package pidfile

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/grovetools/conductor/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "conductor.pid")

	require.NoError(t, Acquire(path))
	running, pid, err := IsRunning(path)
	require.NoError(t, err)
	assert.True(t, running)
	assert.Equal(t, os.Getpid(), pid)

	// Re-acquiring from the owning process is allowed.
	require.NoError(t, Acquire(path))

	require.NoError(t, Release(path))
	running, _, err = IsRunning(path)
	require.NoError(t, err)
	assert.False(t, running)

	// Releasing twice is harmless.
	assert.NoError(t, Release(path))
}

func TestAcquire_StaleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conductor.pid")
	// PIDs this large are never allocated on Linux or macOS.
	require.NoError(t, os.WriteFile(path, []byte("999999999"), 0644))

	require.NoError(t, Acquire(path))
	pid, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestAcquire_LiveOwner(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conductor.pid")
	// The parent of the test binary is alive for the duration of the test.
	require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(os.Getppid())), 0644))

	err := Acquire(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeAlreadyExists))
	assert.Contains(t, err.Error(), "already running")

	// Release leaves another process's file alone.
	require.NoError(t, Release(path))
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestAcquire_GarbageFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conductor.pid")
	require.NoError(t, os.WriteFile(path, []byte("not a pid"), 0644))

	require.NoError(t, Acquire(path))
	pid, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestIsProcessAlive(t *testing.T) {
	assert.True(t, IsProcessAlive(os.Getpid()))
	assert.False(t, IsProcessAlive(0))
	assert.False(t, IsProcessAlive(-1))
}
