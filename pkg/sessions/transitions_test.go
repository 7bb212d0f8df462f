package sessions

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/conductor/errors"
)

func TestTransitionTable(t *testing.T) {
	assert.ElementsMatch(t, []State{StateStarting, StateError, StateCancelled}, AllowedTransitions(StateInitializing))
	assert.ElementsMatch(t, []State{StateReady, StateError, StateCancelled}, AllowedTransitions(StateStarting))
	assert.ElementsMatch(t, []State{StateRunning, StateWaiting, StateError, StateCancelled}, AllowedTransitions(StateReady))
	assert.ElementsMatch(t, []State{StateCompleted, StateError, StateCancelled}, AllowedTransitions(StateRunning))
	assert.ElementsMatch(t, []State{StateRunning, StateError, StateCancelled}, AllowedTransitions(StateWaiting))
	assert.ElementsMatch(t, []State{StateCancelled}, AllowedTransitions(StateError))
	assert.Empty(t, AllowedTransitions(StateCompleted))
	assert.Empty(t, AllowedTransitions(StateCancelled))
}

func TestChangeState_AllPairs(t *testing.T) {
	for _, from := range AllStates {
		for _, to := range AllStates {
			t.Run(fmt.Sprintf("%s->%s", from, to), func(t *testing.T) {
				reg, _, _ := newTestRegistry(t)
				_, err := reg.Create("s", "repo", "/wt", Owner{})
				require.NoError(t, err)
				driveTo(t, reg, "s", from)

				before, _ := reg.Get("s")
				err = reg.ChangeState("s", to, nil)
				after, _ := reg.Get("s")

				if CanTransition(from, to) {
					require.NoError(t, err)
					assert.Equal(t, to, after.State)
					assert.True(t, after.UpdatedAt.After(before.UpdatedAt), "updatedAt must strictly increase")
					return
				}

				require.Error(t, err)
				assert.True(t, errors.Is(err, errors.ErrCodeInvalidTransition))
				assert.Contains(t, err.Error(), string(from))
				assert.Contains(t, err.Error(), string(to))
				assert.Equal(t, from, after.State)
				assert.Equal(t, before.UpdatedAt, after.UpdatedAt)
			})
		}
	}
}

func TestStatePredicates(t *testing.T) {
	assert.True(t, StateCompleted.IsTerminal())
	assert.True(t, StateCancelled.IsTerminal())
	assert.False(t, StateError.IsTerminal())

	assert.True(t, StateRunning.IsActive())
	assert.True(t, StateInitializing.IsActive())
	assert.False(t, StateError.IsActive())
	assert.False(t, State("BOGUS").IsActive())

	st, err := ParseState("running")
	require.NoError(t, err)
	assert.Equal(t, StateRunning, st)
	_, err = ParseState("paused")
	assert.Error(t, err)
}
