package testutil

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// RequireGit skips the test if git is not on PATH
func RequireGit(t *testing.T) {
	t.Helper()

	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
}

// InitGitRepo initializes a git repository in dir with one commit on branch.
func InitGitRepo(t *testing.T, dir, branch string) {
	t.Helper()

	InitEmptyRepo(t, dir, branch)
	CreateCommit(t, dir, "README.md", "# Test Project\n")
}

// InitEmptyRepo initializes a repository with HEAD pointing at branch and
// no commits.
func InitEmptyRepo(t *testing.T, dir, branch string) {
	t.Helper()
	RequireGit(t)

	require.NoError(t, os.MkdirAll(dir, 0o755))
	RunGitCommand(t, dir, "init", "-q")
	RunGitCommand(t, dir, "symbolic-ref", "HEAD", "refs/heads/"+branch)
	RunGitCommand(t, dir, "config", "user.name", "Test User")
	RunGitCommand(t, dir, "config", "user.email", "test@example.com")
	RunGitCommand(t, dir, "config", "commit.gpgsign", "false")
}

// SetRemote sets the origin remote of the repository in dir.
func SetRemote(t *testing.T, dir, url string) {
	t.Helper()
	RunGitCommand(t, dir, "remote", "add", "origin", url)
}

// RandomString generates a random string of the specified length
func RandomString(length int) string {
	bytes := make([]byte, length/2+1)
	if _, err := rand.Read(bytes); err != nil {
		panic(err)
	}
	return hex.EncodeToString(bytes)[:length]
}

// RunGitCommand runs a git command in the given directory
func RunGitCommand(t *testing.T, dir string, args ...string) {
	t.Helper()

	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("Failed to run git %v: %v\n%s", args, err, out)
	}
}

// CreateCommit creates a file and commits it
func CreateCommit(t *testing.T, dir, filename, content string) {
	t.Helper()

	filePath := filepath.Join(dir, filename)
	if err := os.WriteFile(filePath, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to create file %s: %v", filename, err)
	}

	RunGitCommand(t, dir, "add", filename)
	RunGitCommand(t, dir, "commit", "-q", "-m", "Add "+filename)
}

// MkdirAll creates the directories under root and returns the last one.
func MkdirAll(t *testing.T, root string, rel ...string) string {
	t.Helper()

	var last string
	for _, r := range rel {
		last = filepath.Join(root, filepath.FromSlash(r))
		require.NoError(t, os.MkdirAll(last, 0o755))
	}
	return last
}

// Eventually polls cond until it returns true or timeout passes.
func Eventually(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}
