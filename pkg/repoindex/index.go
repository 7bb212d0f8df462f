// Package repoindex keeps a cached list of the repositories below the
// configured roots for autocomplete and quick lookups.
package repoindex

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/grovetools/conductor/errors"
	"github.com/grovetools/conductor/pkg/scanner"
)

// Index caches scan results. Entries expire after the TTL or when
// Invalidate is called, and are rebuilt on the next read.
type Index struct {
	roots   []string
	scanner *scanner.Scanner
	opts    scanner.Options
	ttl     time.Duration
	now     func() time.Time
	logger  *logrus.Entry

	refreshMu sync.Mutex

	mu          sync.RWMutex
	repos       []scanner.RepoMeta
	refreshedAt time.Time
	valid       bool
}

// New creates an index over roots.
func New(sc *scanner.Scanner, roots []string, opts scanner.Options, ttl time.Duration, logger *logrus.Entry) *Index {
	abs := make([]string, 0, len(roots))
	for _, r := range roots {
		if a, err := filepath.Abs(r); err == nil {
			r = a
		}
		abs = append(abs, r)
	}
	return &Index{
		roots:   abs,
		scanner: sc,
		opts:    opts.WithDefaults(),
		ttl:     ttl,
		now:     time.Now,
		logger:  logger,
	}
}

// Roots returns the indexed roots.
func (i *Index) Roots() []string { return append([]string(nil), i.roots...) }

// Invalidate marks the cache stale.
func (i *Index) Invalidate() {
	i.mu.Lock()
	i.valid = false
	i.mu.Unlock()
}

// Refresh rescans every root concurrently. A missing root contributes no
// repositories; any other failure aborts the refresh and keeps the old
// cache.
func (i *Index) Refresh(ctx context.Context) error {
	i.refreshMu.Lock()
	defer i.refreshMu.Unlock()

	results := make([][]scanner.RepoMeta, len(i.roots))
	g, gctx := errgroup.WithContext(ctx)
	for idx, root := range i.roots {
		idx, root := idx, root
		g.Go(func() error {
			res, err := i.scanner.Scan(gctx, root, i.opts)
			if err != nil {
				if errors.Is(err, errors.ErrCodeRootNotFound) {
					i.logger.WithField("root", root).Debug("Repository root missing")
					return nil
				}
				return err
			}
			results[idx] = res.Repositories
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var merged []scanner.RepoMeta
	for _, repos := range results {
		merged = append(merged, repos...)
	}
	scanner.Sort(merged, scanner.OrderByName)

	i.mu.Lock()
	i.repos = merged
	i.refreshedAt = i.now()
	i.valid = true
	i.mu.Unlock()

	i.logger.WithField("repositories", len(merged)).Debug("Repository index refreshed")
	return nil
}

// Repositories returns the cached repositories, refreshing when stale.
func (i *Index) Repositories(ctx context.Context) ([]scanner.RepoMeta, error) {
	if i.stale() {
		if err := i.Refresh(ctx); err != nil {
			return nil, err
		}
	}
	i.mu.RLock()
	defer i.mu.RUnlock()
	return append([]scanner.RepoMeta(nil), i.repos...), nil
}

// Names returns distinct repository names starting with prefix, compared
// case-insensitively, sorted. limit <= 0 means no limit.
func (i *Index) Names(ctx context.Context, prefix string, limit int) ([]string, error) {
	repos, err := i.Repositories(ctx)
	if err != nil {
		return nil, err
	}

	prefix = strings.ToLower(prefix)
	seen := make(map[string]bool)
	names := []string{}
	for _, r := range repos {
		if seen[r.Name] || !strings.HasPrefix(strings.ToLower(r.Name), prefix) {
			continue
		}
		seen[r.Name] = true
		names = append(names, r.Name)
	}
	sort.Slice(names, func(a, b int) bool {
		return strings.ToLower(names[a]) < strings.ToLower(names[b])
	})

	if limit > 0 && len(names) > limit {
		names = names[:limit]
	}
	return names, nil
}

// Lookup finds a repository by exact name.
func (i *Index) Lookup(ctx context.Context, name string) (scanner.RepoMeta, bool, error) {
	repos, err := i.Repositories(ctx)
	if err != nil {
		return scanner.RepoMeta{}, false, err
	}
	for _, r := range repos {
		if r.Name == name {
			return r, true, nil
		}
	}
	return scanner.RepoMeta{}, false, nil
}

func (i *Index) stale() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if !i.valid {
		return true
	}
	return i.ttl > 0 && i.now().Sub(i.refreshedAt) > i.ttl
}
