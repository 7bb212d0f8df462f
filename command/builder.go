package command

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"
)

const (
	// DefaultTimeout is the default command execution timeout
	DefaultTimeout = 2 * time.Minute

	// MaxTimeout is the maximum allowed timeout
	MaxTimeout = 10 * time.Minute
)

var (
	validRef       = regexp.MustCompile(`^[a-zA-Z0-9/_.-]+$`)
	validRemoteURL = regexp.MustCompile(`^(https?://|ssh://|git://|file://|git@[^:]+:|/)[^\s;|&$` + "`" + `]+$`)
	validName      = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)
)

// TimeoutError is returned when a command exceeds its deadline.
type TimeoutError struct {
	Command string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Command, e.Timeout)
}

// SafeBuilder provides secure command execution with validation
type SafeBuilder struct {
	defaultTimeout time.Duration
	validators     map[string]func(string) error
	executor       Executor
}

// NewSafeBuilder creates a new SafeBuilder instance with a RealExecutor
func NewSafeBuilder() *SafeBuilder {
	return NewSafeBuilderWithExecutor(&RealExecutor{})
}

// NewSafeBuilderWithExecutor creates a new SafeBuilder with a custom Executor
func NewSafeBuilderWithExecutor(exec Executor) *SafeBuilder {
	return &SafeBuilder{
		defaultTimeout: DefaultTimeout,
		validators: map[string]func(string) error{
			"gitRef":    validateGitRef,
			"remoteURL": validateRemoteURL,
			"repoName":  validateRepoName,
			"fileName":  validateFileName,
		},
		executor: exec,
	}
}

// WithDefaultTimeout returns a copy of the builder whose commands default
// to timeout.
func (sb *SafeBuilder) WithDefaultTimeout(timeout time.Duration) *SafeBuilder {
	cpy := *sb
	cpy.defaultTimeout = clampTimeout(timeout)
	return &cpy
}

// validateGitRef ensures git references are safe
func validateGitRef(ref string) error {
	if ref == "" {
		return fmt.Errorf("git ref cannot be empty")
	}
	if !validRef.MatchString(ref) || strings.Contains(ref, "..") || strings.HasPrefix(ref, "-") {
		return fmt.Errorf("invalid git ref: %s", ref)
	}
	return nil
}

// validateRemoteURL accepts http(s), ssh, git, file, scp-style and absolute path remotes.
func validateRemoteURL(url string) error {
	if url == "" {
		return fmt.Errorf("remote URL cannot be empty")
	}
	if !validRemoteURL.MatchString(url) {
		return fmt.Errorf("invalid remote URL: %s", url)
	}
	return nil
}

// validateRepoName ensures a repository directory name is a single safe path element.
func validateRepoName(name string) error {
	if name == "" {
		return fmt.Errorf("repository name cannot be empty")
	}
	if !validName.MatchString(name) || strings.Contains(name, "..") {
		return fmt.Errorf("invalid repository name: %s", name)
	}
	return nil
}

// validateFileName ensures file paths are safe
func validateFileName(path string) error {
	if path == "" {
		return fmt.Errorf("file path cannot be empty")
	}
	if strings.Contains(path, "..") {
		return fmt.Errorf("file path cannot contain '..'")
	}
	if strings.ContainsAny(path, ";|&$`") {
		return fmt.Errorf("file path contains invalid characters")
	}
	return nil
}

// Validate validates specific arguments
func (sb *SafeBuilder) Validate(argType string, value string) error {
	validator, exists := sb.validators[argType]
	if !exists {
		return fmt.Errorf("no validator for argument type: %s", argType)
	}
	return validator(value)
}

// Command represents a safe command configuration
type Command struct {
	ctx      context.Context
	name     string
	args     []string
	dir      string
	env      []string
	timeout  time.Duration
	executor Executor
}

// Build creates a new command bound to ctx. The timeout is applied when
// the command runs, so nothing leaks if it is never executed.
func (sb *SafeBuilder) Build(ctx context.Context, name string, args ...string) (*Command, error) {
	if name == "" {
		return nil, fmt.Errorf("command name cannot be empty")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return &Command{
		ctx:      ctx,
		name:     name,
		args:     args,
		timeout:  sb.defaultTimeout,
		executor: sb.executor,
	}, nil
}

// WithTimeout sets a custom timeout for the command
func (c *Command) WithTimeout(timeout time.Duration) *Command {
	c.timeout = clampTimeout(timeout)
	return c
}

// InDir sets the working directory.
func (c *Command) InDir(dir string) *Command {
	c.dir = dir
	return c
}

// WithEnv appends KEY=VALUE pairs to the inherited environment.
func (c *Command) WithEnv(kv ...string) *Command {
	c.env = append(c.env, kv...)
	return c
}

// String renders the command line for logs and errors.
func (c *Command) String() string {
	return strings.TrimSpace(c.name + " " + strings.Join(c.args, " "))
}

// Output runs the command and returns its stdout.
func (c *Command) Output() ([]byte, error) {
	var stdout, stderr bytes.Buffer
	err := c.run(func(cmd *exec.Cmd) error {
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
		return cmd.Run()
	})
	if err != nil {
		if _, ok := err.(*TimeoutError); !ok && stderr.Len() > 0 {
			return stdout.Bytes(), fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
		}
		return stdout.Bytes(), err
	}
	return stdout.Bytes(), nil
}

// CombinedOutput runs the command and returns stdout and stderr together.
func (c *Command) CombinedOutput() ([]byte, error) {
	var out []byte
	err := c.run(func(cmd *exec.Cmd) error {
		var runErr error
		out, runErr = cmd.CombinedOutput()
		return runErr
	})
	return out, err
}

// Run runs the command discarding output.
func (c *Command) Run() error {
	return c.run(func(cmd *exec.Cmd) error { return cmd.Run() })
}

func (c *Command) run(fn func(*exec.Cmd) error) error {
	ctx, cancel := context.WithTimeout(c.ctx, c.timeout)
	defer cancel()

	cmd := c.executor.CommandContext(ctx, c.name, c.args...) //nolint:gosec // SafeBuilder provides validation
	if c.dir != "" {
		cmd.Dir = c.dir
	}
	if len(c.env) > 0 {
		cmd.Env = append(os.Environ(), c.env...)
	}
	err := fn(cmd)
	if err != nil && ctx.Err() == context.DeadlineExceeded && c.ctx.Err() == nil {
		return &TimeoutError{Command: c.String(), Timeout: c.timeout}
	}
	return err
}

func clampTimeout(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return DefaultTimeout
	}
	if timeout > MaxTimeout {
		return MaxTimeout
	}
	return timeout
}
