package git

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/grovetools/conductor/command"
	"github.com/grovetools/conductor/errors"
)

// WorktreeInfo contains information about a git worktree
type WorktreeInfo struct {
	Path   string
	Branch string
	Commit string
	Bare   bool
}

// WorktreeManager manages clones and worktrees used as session checkouts.
type WorktreeManager struct {
	cmdBuilder   *command.SafeBuilder
	cloneTimeout time.Duration
}

// NewWorktreeManager creates a new worktree manager
func NewWorktreeManager(cloneTimeout time.Duration) *WorktreeManager {
	return NewWorktreeManagerWithBuilder(command.NewSafeBuilder(), cloneTimeout)
}

// NewWorktreeManagerWithBuilder creates a worktree manager with a custom builder.
func NewWorktreeManagerWithBuilder(builder *command.SafeBuilder, cloneTimeout time.Duration) *WorktreeManager {
	return &WorktreeManager{cmdBuilder: builder, cloneTimeout: cloneTimeout}
}

// Clone clones remoteURL into dest.
func (m *WorktreeManager) Clone(ctx context.Context, remoteURL, dest string) error {
	if err := m.cmdBuilder.Validate("remoteURL", remoteURL); err != nil {
		return errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid remote URL").WithDetail("url", remoteURL)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return errors.CloneFailed(remoteURL, err)
	}

	cmd, err := m.cmdBuilder.Build(ctx, "git", "clone", "--", remoteURL, dest)
	if err != nil {
		return errors.CloneFailed(remoteURL, err)
	}
	output, err := cmd.WithTimeout(m.cloneTimeout).WithEnv("GIT_TERMINAL_PROMPT=0").CombinedOutput()
	if err != nil {
		_ = os.RemoveAll(dest)
		return errors.CloneFailed(remoteURL, fmt.Errorf("%w: %s", err, strings.TrimSpace(string(output)))).
			WithDetail("dest", dest)
	}
	return nil
}

// ListWorktrees returns all worktrees for the repository
func (m *WorktreeManager) ListWorktrees(ctx context.Context, repoPath string) ([]WorktreeInfo, error) {
	cmd, err := m.cmdBuilder.Build(ctx, "git", "worktree", "list", "--porcelain")
	if err != nil {
		return nil, fmt.Errorf("failed to build command: %w", err)
	}

	output, err := cmd.InDir(repoPath).Output()
	if err != nil {
		return nil, errors.CommandFailed(cmd.String(), err)
	}

	return parseWorktreeList(string(output)), nil
}

// CreateWorktree creates a new worktree
func (m *WorktreeManager) CreateWorktree(ctx context.Context, repoPath, worktreePath, branch string, createBranch bool) error {
	if err := m.cmdBuilder.Validate("gitRef", branch); err != nil {
		return errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid branch name").WithDetail("branch", branch)
	}

	args := []string{"worktree", "add"}
	if createBranch {
		args = append(args, "-b", branch, worktreePath)
	} else {
		args = append(args, worktreePath, branch)
	}

	cmd, err := m.cmdBuilder.Build(ctx, "git", args...)
	if err != nil {
		return fmt.Errorf("failed to build command: %w", err)
	}

	output, err := cmd.InDir(repoPath).CombinedOutput()
	if err != nil {
		return errors.CommandFailed(cmd.String(), fmt.Errorf("%w: %s", err, strings.TrimSpace(string(output))))
	}
	return nil
}

// RemoveWorktree removes a worktree
func (m *WorktreeManager) RemoveWorktree(ctx context.Context, repoPath, worktreePath string) error {
	cmd, err := m.cmdBuilder.Build(ctx, "git", "worktree", "remove", "--force", worktreePath)
	if err != nil {
		return fmt.Errorf("failed to build command: %w", err)
	}

	output, err := cmd.InDir(repoPath).CombinedOutput()
	if err != nil {
		return errors.CommandFailed(cmd.String(), fmt.Errorf("%w: %s", err, strings.TrimSpace(string(output))))
	}
	return nil
}

// PruneWorktrees drops administrative entries for deleted worktree directories.
func (m *WorktreeManager) PruneWorktrees(ctx context.Context, repoPath string) error {
	cmd, err := m.cmdBuilder.Build(ctx, "git", "worktree", "prune")
	if err != nil {
		return fmt.Errorf("failed to build command: %w", err)
	}
	if err := cmd.InDir(repoPath).Run(); err != nil {
		return errors.CommandFailed(cmd.String(), err)
	}
	return nil
}

// GetOrPrepareWorktree returns the worktree at worktreePath, creating it on
// branch when missing. An existing branch is checked out instead of created.
func (m *WorktreeManager) GetOrPrepareWorktree(ctx context.Context, repoPath, worktreePath, branch string) (string, error) {
	worktrees, err := m.ListWorktrees(ctx, repoPath)
	if err != nil {
		return "", err
	}

	stale := false
	for _, wt := range worktrees {
		if !samePath(wt.Path, worktreePath) && wt.Path != worktreePath {
			continue
		}
		if _, err := os.Stat(worktreePath); err == nil {
			return worktreePath, nil
		}
		stale = true
	}
	if stale {
		if err := m.PruneWorktrees(ctx, repoPath); err != nil {
			return "", err
		}
	}

	if err := os.MkdirAll(filepath.Dir(worktreePath), 0o755); err != nil {
		return "", fmt.Errorf("create worktrees base directory: %w", err)
	}

	if err := m.CreateWorktree(ctx, repoPath, worktreePath, branch, true); err != nil {
		if !strings.Contains(err.Error(), "already exists") {
			return "", err
		}
		if err := m.CreateWorktree(ctx, repoPath, worktreePath, branch, false); err != nil {
			return "", fmt.Errorf("create worktree with existing branch: %w", err)
		}
	}
	return worktreePath, nil
}

// parseWorktreeList parses git worktree list --porcelain output
func parseWorktreeList(output string) []WorktreeInfo {
	var worktrees []WorktreeInfo
	var current WorktreeInfo

	for _, line := range strings.Split(output, "\n") {
		if line == "" {
			if current.Path != "" {
				worktrees = append(worktrees, current)
				current = WorktreeInfo{}
			}
			continue
		}

		key, value, _ := strings.Cut(line, " ")
		switch key {
		case "worktree":
			current.Path = value
		case "HEAD":
			current.Commit = value
		case "branch":
			current.Branch = strings.TrimPrefix(value, "refs/heads/")
		case "bare":
			current.Bare = true
		}
	}

	if current.Path != "" {
		worktrees = append(worktrees, current)
	}
	return worktrees
}
