package command

import (
	"context"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateGitRef(t *testing.T) {
	tests := []struct {
		name    string
		ref     string
		wantErr bool
	}{
		{"valid branch", "main", false},
		{"valid namespaced branch", "conductor/thread-42", false},
		{"valid tag", "v1.0.0", false},
		{"empty", "", true},
		{"range", "main..dev", true},
		{"option injection", "--upload-pack=x", true},
		{"shell chars", "main;rm", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateGitRef(tt.ref)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateRemoteURL(t *testing.T) {
	valid := []string{
		"https://github.com/acme/api.git",
		"git@github.com:acme/api.git",
		"ssh://git@host/acme/api",
		"/srv/mirrors/api.git",
	}
	for _, url := range valid {
		assert.NoError(t, validateRemoteURL(url), url)
	}

	invalid := []string{"", "api", "https://x/$(id)", "ftp://host/repo"}
	for _, url := range invalid {
		assert.Error(t, validateRemoteURL(url), url)
	}
}

func TestValidateRepoName(t *testing.T) {
	assert.NoError(t, validateRepoName("my-service"))
	assert.NoError(t, validateRepoName("api.v2"))
	assert.Error(t, validateRepoName(""))
	assert.Error(t, validateRepoName("../etc"))
	assert.Error(t, validateRepoName("a/b"))
}

func TestSafeBuilder_Validate(t *testing.T) {
	sb := NewSafeBuilder()
	assert.NoError(t, sb.Validate("gitRef", "main"))
	assert.Error(t, sb.Validate("unknown", "x"))
}

func TestSafeBuilder_Build(t *testing.T) {
	sb := NewSafeBuilder()

	cmd, err := sb.Build(context.Background(), "git", "status", "--short")
	require.NoError(t, err)
	assert.Equal(t, "git status --short", cmd.String())
	assert.Equal(t, DefaultTimeout, cmd.timeout)

	_, err = sb.Build(context.Background(), "")
	assert.Error(t, err)
}

func TestCommand_WithTimeout(t *testing.T) {
	cmd, err := NewSafeBuilder().Build(context.Background(), "sleep", "1")
	require.NoError(t, err)

	cmd.WithTimeout(time.Second)
	assert.Equal(t, time.Second, cmd.timeout)

	cmd.WithTimeout(20 * time.Minute)
	assert.Equal(t, MaxTimeout, cmd.timeout)

	cmd.WithTimeout(0)
	assert.Equal(t, DefaultTimeout, cmd.timeout)
}

func TestCommandTimeout(t *testing.T) {
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep not available")
	}

	sb := NewSafeBuilder().WithDefaultTimeout(100 * time.Millisecond)
	cmd, err := sb.Build(context.Background(), "sleep", "10")
	require.NoError(t, err)

	start := time.Now()
	err = cmd.Run()
	duration := time.Since(start)

	require.Error(t, err)
	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, 100*time.Millisecond, timeoutErr.Timeout)
	assert.Less(t, duration, 2*time.Second)
}

// recordingExecutor captures the commands it is asked to create.
type recordingExecutor struct {
	RealExecutor
	calls []string
}

func (e *recordingExecutor) CommandContext(ctx context.Context, name string, args ...string) *exec.Cmd {
	e.calls = append(e.calls, name+" "+strings.Join(args, " "))
	return e.RealExecutor.CommandContext(ctx, "echo", args...)
}

func TestCommandUsesExecutorAndDir(t *testing.T) {
	if _, err := exec.LookPath("echo"); err != nil {
		t.Skip("echo not available")
	}

	rec := &recordingExecutor{}
	sb := NewSafeBuilderWithExecutor(rec)
	cmd, err := sb.Build(context.Background(), "git", "rev-parse", "HEAD")
	require.NoError(t, err)

	out, err := cmd.InDir(t.TempDir()).Output()
	require.NoError(t, err)
	assert.Equal(t, "rev-parse HEAD", strings.TrimSpace(string(out)))
	assert.Equal(t, []string{"git rev-parse HEAD"}, rec.calls)
}
