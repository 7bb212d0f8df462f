package sessions

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/conductor/errors"
	"github.com/grovetools/conductor/logging"
)

func TestFileStore_LastSnapshotWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	store := NewFileStore(path, logging.Discard())

	for i := 0; i < 200; i++ {
		id := fmt.Sprintf("s%03d", i)
		store.Save(id, map[string]*Record{id: {ID: id, State: StateRunning}})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, store.Flush(ctx))

	records, err := store.Load()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Contains(t, records, "s199")

	require.NoError(t, store.Close())
	require.NoError(t, store.Close())
}

func TestFileStore_CloseWritesPending(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sessions.json")
	store := NewFileStore(path, logging.Discard())
	store.Save("a", map[string]*Record{"a": {ID: "a", State: StateReady}})
	require.NoError(t, store.Close())

	records, err := NewFileStore(path, logging.Discard()).Load()
	require.NoError(t, err)
	assert.Equal(t, StateReady, records["a"].State)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files are cleaned up")
}

func TestFileStore_SaveAfterClose(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "sessions.json"), logging.Discard())
	require.NoError(t, store.Close())

	var failed atomic.Value
	store.OnError(func(id string, err error) { failed.Store(err) })
	store.Save("late", map[string]*Record{})

	err, _ := failed.Load().(error)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodePersistFailed))
}

func TestFileStore_FlushHonoursContext(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "sessions.json"), logging.Discard())
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// Nothing is pending, so Flush may return either result immediately.
	err := store.Flush(ctx)
	if err != nil {
		assert.ErrorIs(t, err, context.Canceled)
	}
}

func TestFileStore_LoadMissing(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "missing.json"), logging.Discard())
	defer store.Close()

	records, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, records)
}
