package daemon

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/conductor/config"
	"github.com/grovetools/conductor/errors"
	"github.com/grovetools/conductor/logging"
	"github.com/grovetools/conductor/pkg/scanner"
	"github.com/grovetools/conductor/pkg/sessions"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Sessions.File = filepath.Join(dir, "sessions.json")
	cfg.Daemon.Socket = filepath.Join(dir, "conductor.sock")
	cfg.Daemon.PidFile = filepath.Join(dir, "conductor.pid")
	return cfg
}

func TestScanOptions(t *testing.T) {
	svc := &Service{ScanDefaults: scanner.DefaultOptions(), ScanRoot: "/srv/repos"}

	t.Run("defaults", func(t *testing.T) {
		root, opts, err := svc.scanOptions(ScanRequest{})
		require.NoError(t, err)
		assert.Equal(t, "/srv/repos", root)
		assert.Equal(t, scanner.DefaultOptions(), opts)
	})

	t.Run("request overrides", func(t *testing.T) {
		root, opts, err := svc.scanOptions(ScanRequest{
			Root:         "/tmp/other",
			MaxDepth:     5,
			Concurrency:  3,
			SkipPatterns: []string{"vendor"},
			TimeoutMs:    1500,
			Order:        "recency",
		})
		require.NoError(t, err)
		assert.Equal(t, "/tmp/other", root)
		assert.Equal(t, 5, opts.MaxDepth)
		assert.Equal(t, 3, opts.Concurrency)
		assert.Equal(t, []string{"vendor"}, opts.SkipPatterns)
		assert.Equal(t, 1500*time.Millisecond, opts.Timeout)
		assert.Equal(t, scanner.OrderByRecency, opts.Order)
	})

	t.Run("empty skip list disables skipping", func(t *testing.T) {
		_, opts, err := svc.scanOptions(ScanRequest{SkipPatterns: []string{}})
		require.NoError(t, err)
		assert.Empty(t, opts.SkipPatterns)
	})

	t.Run("invalid", func(t *testing.T) {
		for _, req := range []ScanRequest{
			{Order: "size"},
			{MaxDepth: -1},
			{Concurrency: -2},
			{TimeoutMs: -5},
		} {
			_, _, err := svc.scanOptions(req)
			assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput), "%+v", req)
		}
	})

	t.Run("no root anywhere", func(t *testing.T) {
		_, _, err := (&Service{}).scanOptions(ScanRequest{})
		assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))
	})
}

func TestLocalClient(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	client := NewLocalClient(cfg, logging.Discard())
	assert.False(t, client.IsRunning())
	assert.Nil(t, client.Index, "no scanner.root configured")

	rec, err := client.CreateSession(ctx, CreateSessionRequest{Repository: "api", UserID: "u1"})
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, sessions.StateInitializing, rec.State)
	assert.Equal(t, "u1", rec.Metadata.UserID)

	_, err = client.ChangeState(ctx, rec.ID, StateChangeRequest{State: sessions.StateStarting})
	require.NoError(t, err)

	_, err = client.AttachContainer(ctx, rec.ID, "")
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))

	assert.True(t, errors.Is(client.RemoveSession(ctx, "nope"), errors.ErrCodeNotFound))

	_, err = client.RepositoryNames(ctx, "", 0)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))

	_, err = client.StreamEvents(ctx)
	assert.Error(t, err)
	_, err = client.Info(ctx)
	assert.Error(t, err)

	require.NoError(t, client.Close())

	// A second client sees what the first persisted.
	reopened := NewLocalClient(cfg, logging.Discard())
	defer reopened.Close()
	got, err := reopened.GetSession(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, sessions.StateStarting, got.State)

	_, err = reopened.GetSession(ctx, "nope")
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound))
}

func TestRemoveSession_Concurrent(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	client := NewLocalClient(cfg, logging.Discard())
	defer client.Close()
	rec, err := client.CreateSession(ctx, CreateSessionRequest{Repository: "api"})
	require.NoError(t, err)

	const workers = 16
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- client.RemoveSession(ctx, rec.ID)
		}()
	}
	wg.Wait()
	close(results)

	removed := 0
	for err := range results {
		if err == nil {
			removed++
			continue
		}
		assert.True(t, errors.Is(err, errors.ErrCodeNotFound))
	}
	assert.Equal(t, 1, removed)
}

func TestNewFallsBackWithoutDaemon(t *testing.T) {
	cfg := testConfig(t)

	_, err := Connect(cfg)
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound))

	client := New(cfg, logging.Discard())
	defer client.Close()
	_, ok := client.(*LocalClient)
	assert.True(t, ok)
}
