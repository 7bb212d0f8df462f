package scanner

import (
	"context"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/conductor/errors"
)

// vcsDir marks a repository root. It may be a directory or, for worktrees
// and submodules, a file.
const vcsDir = ".git"

// Walk is the output of the collection phase. Skipped holds directories
// pruned by skip patterns and symlinks to directories, which are never
// followed.
type Walk struct {
	Tasks   []string
	Skipped []string
	Errors  []ScanError
}

// Walker enumerates repository roots below a directory.
type Walker struct {
	maxDepth int
	matcher  *SkipMatcher
	logger   *logrus.Entry
}

// NewWalker creates a walker descending at most maxDepth levels below the
// root. The root itself is depth 0.
func NewWalker(maxDepth int, matcher *SkipMatcher, logger *logrus.Entry) *Walker {
	return &Walker{maxDepth: maxDepth, matcher: matcher, logger: logger}
}

// Walk collects scan tasks below root. Only an unreadable root is an error;
// unreadable subdirectories are recorded in Walk.Errors.
func (w *Walker) Walk(ctx context.Context, root string) (*Walk, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, errors.RootNotFound(root, err)
	}

	out := &Walk{}
	w.visit(ctx, root, entries, 0, out)
	return out, nil
}

func (w *Walker) visit(ctx context.Context, dir string, entries []os.DirEntry, depth int, out *Walk) {
	if ctx.Err() != nil {
		return
	}

	for _, e := range entries {
		if e.Name() == vcsDir {
			out.Tasks = append(out.Tasks, dir)
			return
		}
	}

	if depth >= w.maxDepth {
		return
	}

	for _, e := range entries {
		child := filepath.Join(dir, e.Name())
		if e.Type()&os.ModeSymlink != 0 {
			// Symlinks to directories are never followed.
			if fi, err := os.Stat(child); err == nil && fi.IsDir() {
				w.logger.WithField("path", child).Debug("Not following symlinked directory")
				out.Skipped = append(out.Skipped, child)
			}
			continue
		}
		if !e.IsDir() {
			continue
		}
		if w.matcher.Match(e.Name()) {
			out.Skipped = append(out.Skipped, child)
			continue
		}

		childEntries, err := os.ReadDir(child)
		if err != nil {
			w.logger.WithError(err).WithField("path", child).Warn("Cannot read directory, skipping subtree")
			out.Errors = append(out.Errors, scanError(child, errors.DirectoryReadError(child, err)))
			continue
		}
		w.visit(ctx, child, childEntries, depth+1, out)
	}
}

func scanError(path string, err error) ScanError {
	code := errors.GetCode(err)
	if code == "" {
		code = errors.ErrCodeInvalidRepository
	}
	return ScanError{Path: path, Code: code, Error: err.Error()}
}
