package git

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/conductor/errors"
	"github.com/grovetools/conductor/testutil"
)

func TestWorktreeManager_ListWorktrees(t *testing.T) {
	tmpDir := t.TempDir()
	repo := filepath.Join(tmpDir, "repo")
	testutil.InitGitRepo(t, repo, "main")

	worktreePath := filepath.Join(tmpDir, "feature-wt")
	testutil.RunGitCommand(t, repo, "worktree", "add", "-q", "-b", "feature", worktreePath)

	manager := NewWorktreeManager(time.Minute)
	worktrees, err := manager.ListWorktrees(context.Background(), repo)
	require.NoError(t, err)
	assert.Len(t, worktrees, 2)

	var found bool
	for _, wt := range worktrees {
		if wt.Branch == "feature" {
			found = true
			assert.Contains(t, wt.Path, "feature-wt")
		}
	}
	assert.True(t, found, "feature worktree should be found")
}

func TestWorktreeManager_GetOrPrepareWorktree(t *testing.T) {
	tmpDir := t.TempDir()
	repo := filepath.Join(tmpDir, "repo")
	testutil.InitGitRepo(t, repo, "main")
	ctx := context.Background()

	manager := NewWorktreeManager(time.Minute)
	wtPath := filepath.Join(tmpDir, "worktrees", "s1")

	path, err := manager.GetOrPrepareWorktree(ctx, repo, wtPath, "conductor/s1")
	require.NoError(t, err)
	assert.Equal(t, wtPath, path)
	assert.FileExists(t, filepath.Join(wtPath, "README.md"))

	// Second call reuses the existing worktree.
	path, err = manager.GetOrPrepareWorktree(ctx, repo, wtPath, "conductor/s1")
	require.NoError(t, err)
	assert.Equal(t, wtPath, path)

	// After removal the branch still exists and is checked out again.
	require.NoError(t, manager.RemoveWorktree(ctx, repo, wtPath))
	_, err = os.Stat(wtPath)
	assert.True(t, os.IsNotExist(err))

	_, err = manager.GetOrPrepareWorktree(ctx, repo, wtPath, "conductor/s1")
	require.NoError(t, err)
	assert.DirExists(t, wtPath)
}

func TestWorktreeManager_RejectsBadBranch(t *testing.T) {
	manager := NewWorktreeManager(time.Minute)
	err := manager.CreateWorktree(context.Background(), t.TempDir(), "/tmp/x", "--force", true)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))
}

func TestWorktreeManager_Clone(t *testing.T) {
	tmpDir := t.TempDir()
	origin := filepath.Join(tmpDir, "origin")
	testutil.InitGitRepo(t, origin, "main")

	manager := NewWorktreeManager(time.Minute)
	dest := filepath.Join(tmpDir, "repos", "copy")
	require.NoError(t, manager.Clone(context.Background(), origin, dest))
	assert.FileExists(t, filepath.Join(dest, "README.md"))

	err := manager.Clone(context.Background(), "not a url", filepath.Join(tmpDir, "bad"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))

	err = manager.Clone(context.Background(), filepath.Join(tmpDir, "missing"), filepath.Join(tmpDir, "bad2"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeCloneFailed))
	assert.NoDirExists(t, filepath.Join(tmpDir, "bad2"))
}

func TestParseWorktreeList(t *testing.T) {
	output := `worktree /repo
HEAD 1111111111111111111111111111111111111111
branch refs/heads/main

worktree /repo/.conductor-worktrees/s1
HEAD 2222222222222222222222222222222222222222
branch refs/heads/conductor/s1

worktree /bare
bare
`
	worktrees := parseWorktreeList(output)
	require.Len(t, worktrees, 3)
	assert.Equal(t, "main", worktrees[0].Branch)
	assert.Equal(t, "conductor/s1", worktrees[1].Branch)
	assert.Equal(t, "/repo/.conductor-worktrees/s1", worktrees[1].Path)
	assert.True(t, worktrees[2].Bare)
}
