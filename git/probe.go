package git

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/grovetools/conductor/command"
	"github.com/grovetools/conductor/errors"
)

// DefaultProbeTimeout bounds each individual git invocation of a probe.
const DefaultProbeTimeout = 5 * time.Second

// Metadata is what a probe learns about a repository.
type Metadata struct {
	Root       string
	RemoteURL  string
	Branch     string
	CommitHash string
	CommitTime time.Time
}

// Probe reads repository metadata for a directory. Implementations must
// honour ctx and return failures as errors rather than panicking.
type Probe interface {
	Probe(ctx context.Context, dir string) (*Metadata, error)
}

// CLIProbe implements Probe by shelling out to git.
type CLIProbe struct {
	cmdBuilder *command.SafeBuilder
	timeout    time.Duration
}

var _ Probe = (*CLIProbe)(nil)

// NewCLIProbe creates a probe whose git calls each time out after timeout.
func NewCLIProbe(timeout time.Duration) *CLIProbe {
	return NewCLIProbeWithBuilder(command.NewSafeBuilder(), timeout)
}

// NewCLIProbeWithBuilder creates a probe using a custom command builder.
func NewCLIProbeWithBuilder(builder *command.SafeBuilder, timeout time.Duration) *CLIProbe {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return &CLIProbe{
		cmdBuilder: builder.WithDefaultTimeout(timeout),
		timeout:    timeout,
	}
}

// Timeout returns the per-call deadline.
func (p *CLIProbe) Timeout() time.Duration {
	return p.timeout
}

// Probe validates dir as the root of a usable work tree, then reads its
// remote URL, current branch and latest commit.
func (p *CLIProbe) Probe(ctx context.Context, dir string) (*Metadata, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.InvalidRepository(dir, err)
	}

	top, err := p.git(ctx, absDir, "rev-parse", "--show-toplevel")
	if err != nil {
		if isTimeout(err) {
			return nil, errors.ProbeTimeout(absDir, p.timeout)
		}
		return nil, errors.InvalidRepository(absDir, err)
	}
	if !samePath(top, absDir) {
		return nil, errors.InvalidRepository(absDir, stderrors.New("directory is nested inside "+top))
	}

	meta := &Metadata{Root: absDir}

	// Unset remotes exit 1; that is an empty URL, not a failure.
	remote, err := p.git(ctx, absDir, "config", "--get", "remote.origin.url")
	switch {
	case err == nil:
		meta.RemoteURL = remote
	case isTimeout(err):
		return nil, errors.ProbeTimeout(absDir, p.timeout)
	}

	// symbolic-ref also works on an unborn branch; it fails when detached.
	branch, err := p.git(ctx, absDir, "symbolic-ref", "--short", "-q", "HEAD")
	switch {
	case err == nil:
		meta.Branch = branch
	case isTimeout(err):
		return nil, errors.ProbeTimeout(absDir, p.timeout)
	default:
		meta.Branch = "HEAD"
	}

	// An empty repository has no commit; fall back to the .git mtime.
	logLine, err := p.git(ctx, absDir, "log", "-1", "--format=%H%x00%cI")
	switch {
	case err == nil && logLine != "":
		parts := strings.SplitN(logLine, "\x00", 2)
		meta.CommitHash = parts[0]
		if len(parts) == 2 {
			if ts, perr := time.Parse(time.RFC3339, parts[1]); perr == nil {
				meta.CommitTime = ts
			}
		}
	case err != nil && isTimeout(err):
		return nil, errors.ProbeTimeout(absDir, p.timeout)
	}
	if meta.CommitTime.IsZero() {
		if info, statErr := os.Stat(filepath.Join(absDir, ".git")); statErr == nil {
			meta.CommitTime = info.ModTime()
		}
	}

	return meta, nil
}

// git runs one git subcommand in dir. Discovery is stopped at dir's parent
// so an invalid .git never resolves to an enclosing repository.
func (p *CLIProbe) git(ctx context.Context, dir string, args ...string) (string, error) {
	cmd, err := p.cmdBuilder.Build(ctx, "git", args...)
	if err != nil {
		return "", err
	}
	out, err := cmd.InDir(dir).
		WithEnv("GIT_CEILING_DIRECTORIES="+filepath.Dir(dir), "GIT_TERMINAL_PROMPT=0").
		Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func isTimeout(err error) bool {
	var timeoutErr *command.TimeoutError
	return stderrors.As(err, &timeoutErr)
}

func samePath(a, b string) bool {
	ra, errA := filepath.EvalSymlinks(a)
	rb, errB := filepath.EvalSymlinks(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return ra == rb
}
