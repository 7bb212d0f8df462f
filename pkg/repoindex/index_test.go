package repoindex

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/conductor/git"
	"github.com/grovetools/conductor/logging"
	"github.com/grovetools/conductor/pkg/scanner"
	"github.com/grovetools/conductor/testutil"
)

type countingProbe struct {
	mu    sync.Mutex
	calls int
}

func (p *countingProbe) Probe(_ context.Context, dir string) (*git.Metadata, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	return &git.Metadata{Root: dir, Branch: "main"}, nil
}

func (p *countingProbe) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func newTestIndex(t *testing.T, probe *countingProbe, ttl time.Duration, roots ...string) *Index {
	t.Helper()
	sc := scanner.NewWithProbe(func(time.Duration) git.Probe { return probe }, logging.Discard())
	return New(sc, roots, scanner.Options{MaxDepth: 2}, ttl, logging.Discard())
}

func makeRepo(t *testing.T, root, rel string) {
	t.Helper()
	testutil.MkdirAll(t, root, filepath.Join(rel, ".git"))
}

func TestNames(t *testing.T) {
	root := t.TempDir()
	for _, r := range []string{"api", "API-gateway", "web", "apps/admin", "node_modules/apish"} {
		makeRepo(t, root, r)
	}
	idx := newTestIndex(t, &countingProbe{}, time.Hour, root)
	ctx := context.Background()

	names, err := idx.Names(ctx, "ap", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"api", "API-gateway"}, names)

	names, err = idx.Names(ctx, "", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"admin", "api"}, names)

	names, err = idx.Names(ctx, "zzz", 5)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestCacheTTLAndInvalidate(t *testing.T) {
	root := t.TempDir()
	makeRepo(t, root, "one")
	probe := &countingProbe{}
	idx := newTestIndex(t, probe, time.Minute, root)

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	idx.now = func() time.Time { return now }
	ctx := context.Background()

	_, err := idx.Repositories(ctx)
	require.NoError(t, err)
	_, err = idx.Repositories(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, probe.count(), "second read is served from cache")

	now = now.Add(2 * time.Minute)
	_, err = idx.Repositories(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, probe.count(), "expired entries are rescanned")

	makeRepo(t, root, "two")
	idx.Invalidate()
	repos, err := idx.Repositories(ctx)
	require.NoError(t, err)
	assert.Len(t, repos, 2)
}

func TestRefresh_MultipleRoots(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()
	makeRepo(t, a, "alpha")
	makeRepo(t, b, "beta")
	missing := filepath.Join(t.TempDir(), "gone")

	idx := newTestIndex(t, &countingProbe{}, time.Hour, a, b, missing)
	require.NoError(t, idx.Refresh(context.Background()))

	repo, ok, err := idx.Lookup(context.Background(), "beta")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(b, "beta"), repo.Path)

	_, ok, err = idx.Lookup(context.Background(), "gamma")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWatcherInvalidatesOnNewRepository(t *testing.T) {
	root := t.TempDir()
	makeRepo(t, root, "first")
	idx := newTestIndex(t, &countingProbe{}, time.Hour, root)
	w := NewWatcher(idx, 20*time.Millisecond, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	select {
	case <-w.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("watcher never became ready")
	}

	names, err := idx.Names(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"first"}, names)

	require.NoError(t, os.MkdirAll(filepath.Join(root, "second", ".git"), 0o755))

	assert.True(t, testutil.Eventually(t, 5*time.Second, func() bool {
		names, err := idx.Names(context.Background(), "", 0)
		return err == nil && len(names) == 2
	}))
}
