// Package scanner finds git repositories below a directory and probes them
// with bounded parallelism.
package scanner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/conductor/errors"
	"github.com/grovetools/conductor/git"
	"github.com/grovetools/conductor/pkg/semaphore"
)

// ProbeFactory creates a probe whose git calls time out after timeout.
type ProbeFactory func(timeout time.Duration) git.Probe

// Scanner composes the walker, a semaphore and a git probe.
type Scanner struct {
	newProbe ProbeFactory
	logger   *logrus.Entry
	now      func() time.Time
}

// New creates a scanner that probes with the git CLI.
func New(logger *logrus.Entry) *Scanner {
	return NewWithProbe(func(timeout time.Duration) git.Probe {
		return git.NewCLIProbe(timeout)
	}, logger)
}

// NewWithProbe creates a scanner with a custom probe factory.
func NewWithProbe(factory ProbeFactory, logger *logrus.Entry) *Scanner {
	return &Scanner{newProbe: factory, logger: logger, now: time.Now}
}

type outcome struct {
	repo *RepoMeta
	err  *ScanError
}

// Scan walks root and probes every repository found. The returned error is
// non-nil only when root is missing or unreadable; every other failure is
// reported in ScanResult.Errors.
func (s *Scanner) Scan(ctx context.Context, root string, opts Options) (*ScanResult, error) {
	start := s.now()
	opts = opts.WithDefaults()

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.RootNotFound(root, err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, errors.RootNotFound(absRoot, err)
	}
	if !info.IsDir() {
		return nil, errors.RootNotFound(absRoot, fmt.Errorf("not a directory"))
	}

	matcher, err := NewSkipMatcher(opts.SkipPatterns)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid skip patterns")
	}

	walk, err := NewWalker(opts.MaxDepth, matcher, s.logger).Walk(ctx, absRoot)
	if err != nil {
		return nil, err
	}

	log := s.logger.WithFields(logrus.Fields{
		"root":        absRoot,
		"tasks":       len(walk.Tasks),
		"concurrency": opts.Concurrency,
	})
	log.Debug("Collected scan tasks")

	outcomes := s.execute(ctx, walk.Tasks, opts)

	result := &ScanResult{
		Root:         absRoot,
		Repositories: []RepoMeta{},
		Skipped:      walk.Skipped,
		Errors:       walk.Errors,
		Order:        opts.Order,
	}
	if result.Skipped == nil {
		result.Skipped = []string{}
	}
	if result.Errors == nil {
		result.Errors = []ScanError{}
	}
	for _, o := range outcomes {
		switch {
		case o.repo != nil:
			result.Repositories = append(result.Repositories, *o.repo)
		case o.err != nil:
			result.Errors = append(result.Errors, *o.err)
		}
	}

	Sort(result.Repositories, opts.Order)
	sort.Slice(result.Errors, func(i, j int) bool { return result.Errors[i].Path < result.Errors[j].Path })
	result.Duration = s.now().Sub(start)

	log.WithFields(logrus.Fields{
		"repositories": len(result.Repositories),
		"skipped":      len(result.Skipped),
		"errors":       len(result.Errors),
		"duration":     result.Duration,
	}).Debug("Scan finished")

	return result, nil
}

// execute probes every task through the semaphore. Each goroutine writes
// only its own slot.
func (s *Scanner) execute(ctx context.Context, tasks []string, opts Options) []outcome {
	probe := s.newProbe(opts.Timeout)
	sem := semaphore.New(opts.Concurrency)
	outcomes := make([]outcome, len(tasks))

	var wg sync.WaitGroup
	for i, path := range tasks {
		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()
			err := sem.Acquire(ctx, func(ctx context.Context) error {
				outcomes[i] = s.probeOne(ctx, probe, path)
				return nil
			})
			if err != nil {
				outcomes[i] = outcome{err: &ScanError{Path: path, Code: errors.ErrCodeInternal, Error: err.Error()}}
			}
		}(i, path)
	}
	wg.Wait()
	return outcomes
}

func (s *Scanner) probeOne(ctx context.Context, probe git.Probe, path string) (o outcome) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithField("path", path).Errorf("Probe panicked: %v", r)
			o = outcome{err: &ScanError{Path: path, Code: errors.ErrCodeInternal, Error: fmt.Sprintf("probe panicked: %v", r)}}
		}
	}()

	meta, err := probe.Probe(ctx, path)
	if err != nil {
		s.logger.WithError(err).WithField("path", path).Debug("Probe failed")
		se := scanError(path, err)
		return outcome{err: &se}
	}
	if meta == nil {
		se := scanError(path, errors.InvalidRepository(path, fmt.Errorf("probe returned no metadata")))
		return outcome{err: &se}
	}

	return outcome{repo: &RepoMeta{
		Name:           filepath.Base(path),
		Path:           path,
		URL:            meta.RemoteURL,
		Branch:         meta.Branch,
		LastModified:   meta.CommitTime,
		LastCommitHash: meta.CommitHash,
	}}
}

// Sort orders repositories in place according to order.
func Sort(repos []RepoMeta, order Order) {
	byName := func(a, b RepoMeta) bool {
		an, bn := strings.ToLower(a.Name), strings.ToLower(b.Name)
		if an != bn {
			return an < bn
		}
		return a.Path < b.Path
	}

	if order == OrderByRecency {
		sort.SliceStable(repos, func(i, j int) bool {
			if !repos[i].LastModified.Equal(repos[j].LastModified) {
				return repos[i].LastModified.After(repos[j].LastModified)
			}
			return byName(repos[i], repos[j])
		})
		return
	}
	sort.SliceStable(repos, func(i, j int) bool { return byName(repos[i], repos[j]) })
}
