package sessions

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/conductor/errors"
	"github.com/grovetools/conductor/logging"
)

func newTestScheduler(reg *Registry) *RecoveryScheduler {
	return NewRecoveryScheduler(reg, RecoveryOptions{}, logging.Discard())
}

func TestRecovery_RunningTimeout(t *testing.T) {
	reg, _, clock := newTestRegistry(t)
	for _, id := range []string{"stale", "fresh"} {
		_, err := reg.Create(id, "repo", "", Owner{})
		require.NoError(t, err)
	}
	driveTo(t, reg, "stale", StateRunning)
	clock.Advance(2 * time.Minute)
	driveTo(t, reg, "fresh", StateRunning)

	clock.Advance(29 * time.Minute)
	report := newTestScheduler(reg).RunOnce()

	assert.Equal(t, []string{"stale"}, report.Recovered)
	stale, _ := reg.Get("stale")
	fresh, _ := reg.Get("fresh")
	assert.Equal(t, StateError, stale.State)
	assert.Equal(t, ReasonRunningTimeout, stale.Metadata.Extra["reason"])
	assert.Equal(t, StateRunning, fresh.State)
}

func TestRecovery_InitTimeout(t *testing.T) {
	reg, _, clock := newTestRegistry(t)
	_, err := reg.Create("init", "repo", "", Owner{})
	require.NoError(t, err)
	_, err = reg.Create("starting", "repo", "", Owner{})
	require.NoError(t, err)
	driveTo(t, reg, "starting", StateStarting)
	_, err = reg.Create("ready", "repo", "", Owner{})
	require.NoError(t, err)
	driveTo(t, reg, "ready", StateReady)

	sched := newTestScheduler(reg)

	clock.Advance(45 * time.Minute)
	assert.Empty(t, sched.RunOnce().Recovered, "init timeout is longer than the running timeout")

	clock.Advance(16 * time.Minute)
	report := sched.RunOnce()
	assert.ElementsMatch(t, []string{"init", "starting"}, report.Recovered)

	rec, _ := reg.Get("init")
	assert.Equal(t, ReasonInitTimeout, rec.Metadata.Extra["reason"])
	rec, _ = reg.Get("ready")
	assert.Equal(t, StateReady, rec.State, "READY sessions are never recovered")
}

func TestRecovery_FailureDoesNotAbortPass(t *testing.T) {
	reg, _, clock := newTestRegistry(t)
	for _, id := range []string{"a", "b", "c"} {
		_, err := reg.Create(id, "repo", "", Owner{})
		require.NoError(t, err)
		driveTo(t, reg, id, StateRunning)
	}
	clock.Advance(time.Hour)

	// While "a" is being recovered, "b" is removed by someone else.
	reg.Bus().Observe(func(e Event) {
		if sc, ok := e.(StateChanged); ok && sc.ID == "a" && sc.NewState == StateError {
			_, err := reg.Remove("b")
			assert.NoError(t, err)
		}
	})

	report := newTestScheduler(reg).RunOnce()
	assert.Equal(t, 3, report.Checked)
	assert.Equal(t, []string{"a", "c"}, report.Recovered)
	require.Contains(t, report.Failed, "b")
	assert.True(t, errors.Is(report.Failed["b"], errors.ErrCodeNotFound))
}

func TestRecovery_SkipsSessionsUpdatedDuringPass(t *testing.T) {
	reg, _, clock := newTestRegistry(t)
	for _, id := range []string{"a", "b", "c", "d"} {
		_, err := reg.Create(id, "repo", "", Owner{})
		require.NoError(t, err)
		driveTo(t, reg, id, StateRunning)
	}
	clock.Advance(31 * time.Minute)

	// After the listing, "b" reports activity and "c" finishes.
	reg.Bus().Observe(func(e Event) {
		if sc, ok := e.(StateChanged); ok && sc.ID == "a" && sc.NewState == StateError {
			assert.NoError(t, reg.Touch("b"))
			assert.NoError(t, reg.ChangeState("c", StateCompleted, nil))
		}
	})

	report := newTestScheduler(reg).RunOnce()
	assert.Equal(t, 4, report.Checked)
	assert.Equal(t, []string{"a", "d"}, report.Recovered)
	assert.Equal(t, []string{"b", "c"}, report.Skipped)
	assert.Empty(t, report.Failed)

	b, _ := reg.Get("b")
	assert.Equal(t, StateRunning, b.State)
	assert.Empty(t, b.Metadata.Extra["reason"])
	c, _ := reg.Get("c")
	assert.Equal(t, StateCompleted, c.State)
}

func TestRecovery_ConcurrentTouchesAreNotFailed(t *testing.T) {
	reg, _, clock := newTestRegistry(t)
	const n = 500
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("s%03d", i)
		_, err := reg.Create(ids[i], "repo", "", Owner{})
		require.NoError(t, err)
		driveTo(t, reg, ids[i], StateRunning)
	}
	clock.Advance(31 * time.Minute)

	started := make(chan struct{})
	var once sync.Once
	reg.Bus().Observe(func(e Event) {
		if sc, ok := e.(StateChanged); ok && sc.NewState == StateError {
			once.Do(func() { close(started) })
		}
	})

	var touched []string
	toucherDone := make(chan struct{})
	go func() {
		defer close(toucherDone)
		<-started
		for _, id := range ids {
			if reg.Touch(id) != nil {
				continue
			}
			// Still RUNNING after the touch means the touch landed first
			// and the session is no longer idle.
			if rec, ok := reg.Get(id); ok && rec.State == StateRunning {
				touched = append(touched, id)
			}
		}
	}()

	report := newTestScheduler(reg).RunOnce()
	<-toucherDone

	assert.Equal(t, n, report.Checked)
	assert.Equal(t, n, len(report.Recovered)+len(report.Skipped))
	assert.Empty(t, report.Failed)
	for _, id := range touched {
		rec, _ := reg.Get(id)
		assert.Equal(t, StateRunning, rec.State, "session %s was touched before recovery reached it", id)
	}
}

func TestRecovery_StartStop(t *testing.T) {
	reg, _, clock := newTestRegistry(t)
	_, err := reg.Create("s", "repo", "", Owner{})
	require.NoError(t, err)
	driveTo(t, reg, "s", StateRunning)
	clock.Advance(time.Hour)

	var recovered atomic.Int32
	reg.Bus().Observe(func(e Event) {
		if sc, ok := e.(StateChanged); ok && sc.NewState == StateError {
			recovered.Add(1)
		}
	})

	sched := NewRecoveryScheduler(reg, RecoveryOptions{Interval: 10 * time.Millisecond}, logging.Discard())
	sched.Stop() // never started
	sched.Start()
	sched.Start()

	require.Eventually(t, func() bool { return recovered.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	sched.Stop()
	sched.Stop()

	rec, _ := reg.Get("s")
	assert.Equal(t, StateError, rec.State)
}

func TestRecoveryOptionsDefaults(t *testing.T) {
	opts := newTestScheduler(nil).Options()
	assert.Equal(t, 5*time.Minute, opts.Interval)
	assert.Equal(t, 30*time.Minute, opts.RunningTimeout)
	assert.Equal(t, 60*time.Minute, opts.InitTimeout)
}
