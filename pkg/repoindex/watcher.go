package repoindex

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/grovetools/conductor/pkg/scanner"
)

// Watcher invalidates an Index when directories appear, disappear or are
// renamed under its roots.
type Watcher struct {
	index    *Index
	skip     *scanner.SkipMatcher
	debounce time.Duration
	logger   *logrus.Entry

	readyOnce sync.Once
	ready     chan struct{}
}

// NewWatcher creates a watcher for index. Bursts of events closer than
// debounce trigger a single invalidation.
func NewWatcher(index *Index, debounce time.Duration, logger *logrus.Entry) *Watcher {
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}
	skip, err := scanner.NewSkipMatcher(index.opts.SkipPatterns)
	if err != nil {
		logger.WithError(err).Warn("Ignoring invalid skip patterns for the watcher")
		skip = nil
	}
	return &Watcher{
		index:    index,
		skip:     skip,
		debounce: debounce,
		logger:   logger,
		ready:    make(chan struct{}),
	}
}

// Name identifies the watcher as a daemon worker.
func (w *Watcher) Name() string { return "repo-index" }

// Ready is closed once the initial watches are in place.
func (w *Watcher) Ready() <-chan struct{} { return w.ready }

// Run warms the index and watches until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.readyOnce.Do(func() { close(w.ready) })

	if err := w.index.Refresh(ctx); err != nil {
		w.logger.WithError(err).Warn("Initial repository index refresh failed")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	for _, root := range w.index.Roots() {
		w.watchTree(watcher, root, 0)
	}
	w.readyOnce.Do(func() { close(w.ready) })

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.logger.Debugf("fsnotify event: %s op=%v", event.Name, event.Op)

			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					w.watchTree(watcher, event.Name, w.depthOf(event.Name))
				}
			}

			if timer == nil {
				timer = time.AfterFunc(w.debounce, w.index.Invalidate)
			} else {
				timer.Reset(w.debounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Errorf("Watcher error: %v", err)
		case <-ctx.Done():
			return nil
		}
	}
}

// watchTree adds dir and its subdirectories down to one level above the
// scan depth. Repositories and skipped directories are not watched.
func (w *Watcher) watchTree(watcher *fsnotify.Watcher, dir string, depth int) {
	if depth >= w.index.opts.MaxDepth {
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.Name() == ".git" {
			return
		}
	}

	if err := watcher.Add(dir); err != nil {
		w.logger.WithError(err).WithField("path", dir).Debug("Cannot watch directory")
		return
	}
	for _, e := range entries {
		if e.IsDir() && !w.skip.Match(e.Name()) {
			w.watchTree(watcher, filepath.Join(dir, e.Name()), depth+1)
		}
	}
}

// depthOf returns how many levels path is below the root containing it.
func (w *Watcher) depthOf(path string) int {
	for _, root := range w.index.Roots() {
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		if rel == "." {
			return 0
		}
		return strings.Count(rel, string(filepath.Separator)) + 1
	}
	return 0
}
