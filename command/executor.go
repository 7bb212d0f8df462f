package command

import (
	"context"
	"os/exec"
)

// Executor creates exec.Cmd instances. Tests swap it to observe or
// redirect the git invocations made by the scanner and workspace code.
type Executor interface {
	CommandContext(ctx context.Context, name string, args ...string) *exec.Cmd
}

// RealExecutor runs commands through os/exec.
type RealExecutor struct{}

// CommandContext creates a standard context-aware exec.Cmd.
func (e *RealExecutor) CommandContext(ctx context.Context, name string, args ...string) *exec.Cmd {
	return exec.CommandContext(ctx, name, args...)
}
