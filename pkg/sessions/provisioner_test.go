package sessions

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/conductor/errors"
	"github.com/grovetools/conductor/logging"
)

type fakeWorkspace struct {
	ensureErr   error
	worktreeErr error
}

func (f *fakeWorkspace) EnsureRepository(_ context.Context, name, _ string) (string, error) {
	if f.ensureErr != nil {
		return "", f.ensureErr
	}
	return "/repos/" + name, nil
}

func (f *fakeWorkspace) PrepareWorktree(_ context.Context, repoPath, sessionID string) (string, error) {
	if f.worktreeErr != nil {
		return "", f.worktreeErr
	}
	return fmt.Sprintf("%s/.conductor-worktrees/%s", repoPath, sessionID), nil
}

func TestProvision_Ready(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	p := NewProvisioner(reg, &fakeWorkspace{}, logging.Discard())

	var transitions []State
	reg.Bus().Observe(func(e Event) {
		if sc, ok := e.(StateChanged); ok {
			transitions = append(transitions, sc.NewState)
		}
	})

	rec, err := p.Provision(context.Background(), ProvisionRequest{
		ID:         "t1",
		Repository: "api",
		Owner:      Owner{UserID: "u"},
	})
	require.NoError(t, err)
	assert.Equal(t, StateReady, rec.State)
	assert.Equal(t, "/repos/api/.conductor-worktrees/t1", rec.WorktreePath)
	assert.Equal(t, []State{StateStarting, StateReady}, transitions)
}

func TestProvision_FailureMarksError(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	p := NewProvisioner(reg, &fakeWorkspace{ensureErr: errors.New(errors.ErrCodeNotFound, "repository 'api' not found")}, logging.Discard())

	_, err := p.Provision(context.Background(), ProvisionRequest{ID: "t1", Repository: "api"})
	require.Error(t, err)

	rec, ok := reg.Get("t1")
	require.True(t, ok)
	assert.Equal(t, StateError, rec.State)
	assert.Contains(t, rec.Metadata.Extra["reason"], "not found")
}

func TestProvision_DuplicateLeavesExisting(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	_, err := reg.Create("t1", "api", "", Owner{})
	require.NoError(t, err)
	driveTo(t, reg, "t1", StateRunning)

	p := NewProvisioner(reg, &fakeWorkspace{}, logging.Discard())
	_, err = p.Provision(context.Background(), ProvisionRequest{ID: "t1", Repository: "api"})
	assert.True(t, errors.Is(err, errors.ErrCodeAlreadyExists))

	rec, _ := reg.Get("t1")
	assert.Equal(t, StateRunning, rec.State)
}

func TestProvision_RequiresRepository(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	_, err := NewProvisioner(reg, &fakeWorkspace{}, logging.Discard()).Provision(context.Background(), ProvisionRequest{ID: "x"})
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))
	_, ok := reg.Get("x")
	assert.False(t, ok)
}
