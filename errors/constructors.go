package errors

import (
	"fmt"
	"os/exec"
	"time"
)

// AlreadyExists reports a session id that is already registered.
func AlreadyExists(sessionID string) *ConductorError {
	return New(ErrCodeAlreadyExists, fmt.Sprintf("session '%s' already exists", sessionID)).
		WithDetail("sessionId", sessionID)
}

// NotFound reports an unknown session id.
func NotFound(sessionID string) *ConductorError {
	return New(ErrCodeNotFound, fmt.Sprintf("session '%s' not found", sessionID)).
		WithDetail("sessionId", sessionID)
}

// InvalidTransition reports a state change the transition table rejects.
func InvalidTransition(sessionID, from, to string) *ConductorError {
	return New(ErrCodeInvalidTransition,
		fmt.Sprintf("invalid transition %s -> %s for session '%s'", from, to, sessionID)).
		WithDetail("sessionId", sessionID).
		WithDetail("from", from).
		WithDetail("to", to)
}

// RepositoryNotFound reports a repository name that no scan located.
func RepositoryNotFound(name, root string) *ConductorError {
	return New(ErrCodeNotFound, fmt.Sprintf("repository '%s' not found under %s", name, root)).
		WithDetail("repository", name).
		WithDetail("root", root)
}

// PersistFailed wraps a failure to write the sessions file.
func PersistFailed(path string, err error) *ConductorError {
	return Wrap(err, ErrCodePersistFailed, "failed to persist sessions").
		WithDetail("path", path)
}

// RootNotFound reports a missing or unreadable scan root.
func RootNotFound(root string, err error) *ConductorError {
	return Wrap(err, ErrCodeRootNotFound, fmt.Sprintf("scan root not found: %s", root)).
		WithDetail("path", root)
}

// ProbeTimeout reports a git invocation that exceeded its deadline.
func ProbeTimeout(path string, timeout time.Duration) *ConductorError {
	return New(ErrCodeProbeTimeout, fmt.Sprintf("git probe timed out after %s", timeout)).
		WithDetail("path", path).
		WithDetail("timeout", timeout.String())
}

// InvalidRepository reports a directory that is not a usable git repository.
func InvalidRepository(path string, err error) *ConductorError {
	return Wrap(err, ErrCodeInvalidRepository, fmt.Sprintf("not a valid git repository: %s", path)).
		WithDetail("path", path)
}

// DirectoryReadError wraps a failure to list a directory during a scan.
func DirectoryReadError(path string, err error) *ConductorError {
	return Wrap(err, ErrCodeDirectoryReadError, fmt.Sprintf("failed to read directory: %s", path)).
		WithDetail("path", path)
}

// ConfigNotFound creates a configuration not found error
func ConfigNotFound(path string) *ConductorError {
	return New(ErrCodeConfigNotFound, fmt.Sprintf("configuration file not found: %s", path)).
		WithDetail("path", path)
}

// ConfigInvalid creates an invalid configuration error
func ConfigInvalid(reason string) *ConductorError {
	return New(ErrCodeConfigInvalid, fmt.Sprintf("invalid configuration: %s", reason))
}

// CommandFailed creates a command execution failure error
func CommandFailed(cmd string, err error) *ConductorError {
	ce := Wrap(err, ErrCodeCommandFailed, fmt.Sprintf("command failed: %s", cmd)).
		WithDetail("command", cmd)

	// Extract exit code if available
	if exitErr, ok := err.(*exec.ExitError); ok {
		ce = ce.WithDetail("exitCode", exitErr.ExitCode())
	}

	return ce
}

// CloneFailed reports a failed clone of a remote repository.
func CloneFailed(url string, err error) *ConductorError {
	return Wrap(err, ErrCodeCloneFailed, fmt.Sprintf("failed to clone %s", url)).
		WithDetail("url", url)
}

// InvalidInput reports a malformed argument.
func InvalidInput(reason string) *ConductorError {
	return New(ErrCodeInvalidInput, reason)
}
