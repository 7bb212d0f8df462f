// Package sessions owns the lifecycle of work sessions: the state machine,
// the in-memory registry mirrored to a JSON file, domain events and the
// scheduler that fails sessions stuck past a deadline.
package sessions

import (
	"fmt"
	"strings"
	"time"
)

// State is a session lifecycle state.
type State string

const (
	StateInitializing State = "INITIALIZING"
	StateStarting     State = "STARTING"
	StateReady        State = "READY"
	StateRunning      State = "RUNNING"
	StateWaiting      State = "WAITING"
	StateCompleted    State = "COMPLETED"
	StateError        State = "ERROR"
	StateCancelled    State = "CANCELLED"
)

// AllStates lists every state in lifecycle order.
var AllStates = []State{
	StateInitializing,
	StateStarting,
	StateReady,
	StateRunning,
	StateWaiting,
	StateCompleted,
	StateError,
	StateCancelled,
}

// ParseState parses a state name case-insensitively.
func ParseState(s string) (State, error) {
	st := State(strings.ToUpper(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("unknown session state %q", s)
	}
	return st, nil
}

// Valid reports whether s is one of the enumerated states.
func (s State) Valid() bool {
	for _, st := range AllStates {
		if s == st {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateCancelled
}

// IsActive reports whether a session in s is still being worked on.
// ERROR counts as inactive even though it may still be cancelled.
func (s State) IsActive() bool {
	return s.Valid() && !s.IsTerminal() && s != StateError
}

func (s State) String() string { return string(s) }

// Owner identifies who a session belongs to.
type Owner struct {
	UserID  string `json:"userId,omitempty"`
	GuildID string `json:"guildId,omitempty"`
}

// Metadata is bookkeeping carried alongside a record.
type Metadata struct {
	UserID     string    `json:"userId,omitempty"`
	GuildID    string    `json:"guildId,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
	LastUpdate time.Time `json:"lastUpdate"`
	// Extra accumulates metadata passed with state changes, such as the
	// reason a session was failed.
	Extra map[string]string `json:"extra,omitempty"`
}

// Record is one session owned by the Registry. Records held by the
// Registry are never mutated in place; callers receive copies.
type Record struct {
	ID           string    `json:"id"`
	Repository   string    `json:"repository"`
	WorktreePath string    `json:"worktreePath"`
	ContainerID  string    `json:"containerId,omitempty"`
	State        State     `json:"state"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	Metadata     Metadata  `json:"metadata"`
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	cp := *r
	if r.Metadata.Extra != nil {
		cp.Metadata.Extra = make(map[string]string, len(r.Metadata.Extra))
		for k, v := range r.Metadata.Extra {
			cp.Metadata.Extra[k] = v
		}
	}
	return &cp
}
