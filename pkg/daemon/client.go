// Package daemon provides a client interface for the conductor daemon.
// It implements a transparent fallback pattern: if the daemon is running,
// requests go over its unix socket; if not, the same operations run
// in-process against the sessions file.
package daemon

import (
	"context"
	"encoding/json"
	"time"

	"github.com/grovetools/conductor/pkg/scanner"
	"github.com/grovetools/conductor/pkg/sessions"
)

// Client defines the operations shared by RemoteClient and LocalClient.
type Client interface {
	// CreateSession registers a session, provisioning its worktree when
	// req.Provision is set.
	CreateSession(ctx context.Context, req CreateSessionRequest) (*sessions.Record, error)

	GetSession(ctx context.Context, id string) (*sessions.Record, error)

	// ListSessions returns every session, or only active ones.
	ListSessions(ctx context.Context, activeOnly bool) ([]*sessions.Record, error)

	ChangeState(ctx context.Context, id string, req StateChangeRequest) (*sessions.Record, error)
	AttachContainer(ctx context.Context, id, containerID string) (*sessions.Record, error)
	Touch(ctx context.Context, id string) (*sessions.Record, error)

	// RemoveSession deletes a session. Removing an unknown id is NOT_FOUND.
	RemoveSession(ctx context.Context, id string) error

	Scan(ctx context.Context, req ScanRequest) (*scanner.ScanResult, error)

	// RepositoryNames returns indexed repository names starting with prefix.
	RepositoryNames(ctx context.Context, prefix string, limit int) ([]string, error)
	Repository(ctx context.Context, name string) (*scanner.RepoMeta, error)

	// StreamEvents subscribes to registry events. Only the daemon can stream.
	StreamEvents(ctx context.Context) (<-chan EventFrame, error)

	// Info describes the running daemon. Only the daemon has one.
	Info(ctx context.Context) (*RunningInfo, error)

	// IsRunning returns true if the daemon is available and responding.
	IsRunning() bool

	// Close cleans up any resources used by the client.
	Close() error
}

// CreateSessionRequest is the body of POST /api/sessions.
type CreateSessionRequest struct {
	// ID defaults to a random UUID.
	ID           string `json:"id,omitempty"`
	Repository   string `json:"repository"`
	WorktreePath string `json:"worktreePath,omitempty"`
	RemoteURL    string `json:"remoteUrl,omitempty"`
	UserID       string `json:"userId,omitempty"`
	GuildID      string `json:"guildId,omitempty"`
	Provision    bool   `json:"provision,omitempty"`
}

// StateChangeRequest is the body of POST /api/sessions/{id}/state.
type StateChangeRequest struct {
	State    sessions.State    `json:"state"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ContainerRequest is the body of POST /api/sessions/{id}/container.
type ContainerRequest struct {
	ContainerID string `json:"containerId"`
}

// ScanRequest is the body of POST /api/scan. Zero fields take the
// configured defaults; a null skipPatterns keeps the configured list while
// an empty one disables skipping.
type ScanRequest struct {
	Root         string   `json:"root,omitempty"`
	MaxDepth     int      `json:"maxDepth,omitempty"`
	Concurrency  int      `json:"concurrency,omitempty"`
	SkipPatterns []string `json:"skipPatterns"`
	TimeoutMs    int64    `json:"timeoutMs,omitempty"`
	Order        string   `json:"order,omitempty"`
}

// EventFrame is one message on the event stream. Data holds the JSON form
// of the sessions event named by Type.
type EventFrame struct {
	Type sessions.EventType `json:"type"`
	Data json.RawMessage    `json:"data"`
}

// RunningInfo is returned by GET /api/info.
type RunningInfo struct {
	PID          int           `json:"pid"`
	StartedAt    time.Time     `json:"startedAt"`
	Socket       string        `json:"socket"`
	SessionsFile string        `json:"sessionsFile"`
	ScanRoot     string        `json:"scanRoot,omitempty"`
	Workers      []string      `json:"workers"`
	Recovery     *RecoveryInfo `json:"recovery,omitempty"`
	Sessions     int           `json:"sessions"`
	Active       int           `json:"active"`
}

// RecoveryInfo reports the recovery scheduler's timing.
type RecoveryInfo struct {
	Interval       string `json:"interval"`
	RunningTimeout string `json:"runningTimeout"`
	InitTimeout    string `json:"initTimeout"`
}
