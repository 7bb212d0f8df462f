// Package workspace locates or clones the repository a session works on
// and prepares the session's worktree.
package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/conductor/command"
	"github.com/grovetools/conductor/config"
	"github.com/grovetools/conductor/errors"
	"github.com/grovetools/conductor/git"
	"github.com/grovetools/conductor/pkg/scanner"
)

// BranchPrefix prefixes the branch created for each session worktree.
const BranchPrefix = "conductor/"

// DefaultWorktreesDirName is created inside a repository when no
// worktrees directory is configured.
const DefaultWorktreesDirName = ".conductor-worktrees"

// Options configure a Manager.
type Options struct {
	// Root is the directory repositories are found in and cloned into.
	Root string
	// WorktreesDir holds session worktrees. Empty means
	// <repository>/.conductor-worktrees.
	WorktreesDir string
	CloneTimeout time.Duration
	Scan         scanner.Options
}

// OptionsFromConfig builds Options from the loaded config.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Root:         cfg.ReposRoot(),
		WorktreesDir: cfg.Workspace.WorktreesDir,
		CloneTimeout: config.Duration(cfg.Workspace.CloneTimeout, config.DefaultCloneTimeout),
		Scan:         scanner.OptionsFromConfig(cfg.Scanner),
	}
}

// Manager materialises repositories and worktrees.
type Manager struct {
	opts      Options
	scanner   *scanner.Scanner
	worktrees *git.WorktreeManager
	probe     git.Probe
	validator *command.SafeBuilder
	logger    *logrus.Entry
}

// New creates a Manager.
func New(opts Options, sc *scanner.Scanner, logger *logrus.Entry) *Manager {
	if opts.CloneTimeout <= 0 {
		opts.CloneTimeout = config.DefaultCloneTimeout
	}
	if opts.Root == "" {
		opts.Root, _ = os.Getwd()
	}
	return &Manager{
		opts:      opts,
		scanner:   sc,
		worktrees: git.NewWorktreeManager(opts.CloneTimeout),
		probe:     git.NewCLIProbe(opts.Scan.Timeout),
		validator: command.NewSafeBuilder(),
		logger:    logger,
	}
}

// Root returns the repositories root.
func (m *Manager) Root() string { return m.opts.Root }

// EnsureRepository returns the path of the repository called name under
// the root. When no such repository exists and remoteURL is set, it is
// cloned to <root>/<name>.
func (m *Manager) EnsureRepository(ctx context.Context, name, remoteURL string) (string, error) {
	if err := m.validator.Validate("repoName", name); err != nil {
		return "", errors.InvalidInput(err.Error()).WithDetail("repository", name)
	}
	log := m.logger.WithField("repository", name)

	res, err := m.scanner.Scan(ctx, m.opts.Root, m.opts.Scan)
	switch {
	case err == nil:
		for _, repo := range res.Repositories {
			if repo.Name == name {
				log.WithField("path", repo.Path).Debug("Found existing repository")
				return repo.Path, nil
			}
		}
	case errors.Is(err, errors.ErrCodeRootNotFound) && remoteURL != "":
		if mkErr := os.MkdirAll(m.opts.Root, 0o755); mkErr != nil {
			return "", errors.RootNotFound(m.opts.Root, mkErr)
		}
	default:
		return "", err
	}

	if remoteURL == "" {
		return "", errors.RepositoryNotFound(name, m.opts.Root)
	}

	dest := filepath.Join(m.opts.Root, name)
	if _, statErr := os.Stat(dest); statErr == nil {
		return "", errors.InvalidRepository(dest, fmt.Errorf("path exists but is not a usable repository"))
	}

	log.WithField("url", remoteURL).Info("Cloning repository")
	if err := m.worktrees.Clone(ctx, remoteURL, dest); err != nil {
		return "", err
	}
	if _, err := m.probe.Probe(ctx, dest); err != nil {
		return "", err
	}
	return dest, nil
}

// WorktreePath returns where the worktree of sessionID lives.
func (m *Manager) WorktreePath(repoPath, sessionID string) string {
	base := m.opts.WorktreesDir
	if base == "" {
		base = filepath.Join(repoPath, DefaultWorktreesDirName)
	}
	return filepath.Join(base, sessionID)
}

// PrepareWorktree creates, or reuses, the worktree of sessionID on branch
// conductor/<sessionID>.
func (m *Manager) PrepareWorktree(ctx context.Context, repoPath, sessionID string) (string, error) {
	if err := m.validator.Validate("repoName", sessionID); err != nil {
		return "", errors.InvalidInput(err.Error()).WithDetail("sessionId", sessionID)
	}

	path := m.WorktreePath(repoPath, sessionID)
	wt, err := m.worktrees.GetOrPrepareWorktree(ctx, repoPath, path, BranchPrefix+sessionID)
	if err != nil {
		return "", err
	}
	m.logger.WithFields(logrus.Fields{"session_id": sessionID, "worktree": wt}).Debug("Worktree prepared")
	return wt, nil
}

// ReleaseWorktree removes the worktree of sessionID. A missing worktree is
// not an error. The session branch is kept.
func (m *Manager) ReleaseWorktree(ctx context.Context, repoPath, sessionID string) error {
	path := m.WorktreePath(repoPath, sessionID)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return m.worktrees.PruneWorktrees(ctx, repoPath)
	}
	return m.worktrees.RemoveWorktree(ctx, repoPath, path)
}
