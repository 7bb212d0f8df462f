package sessions

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/grovetools/conductor/logging"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// memStore keeps the latest snapshot in memory.
type memStore struct {
	mu      sync.Mutex
	initial map[string]*Record
	loadErr error
	last    map[string]*Record
	saves   int
	onError func(string, error)
}

func (m *memStore) Load() (map[string]*Record, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	out := map[string]*Record{}
	for k, v := range m.initial {
		out[k] = v.Clone()
	}
	return out, nil
}

func (m *memStore) Save(_ string, records map[string]*Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = records
	m.saves++
}

func (m *memStore) Flush(context.Context) error { return nil }
func (m *memStore) Close() error                 { return nil }

func (m *memStore) OnError(fn func(string, error)) { m.onError = fn }

func (m *memStore) snapshot() map[string]*Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

func newTestRegistry(t *testing.T) (*Registry, *memStore, *fakeClock) {
	t.Helper()
	store := &memStore{}
	clock := newFakeClock()
	reg := NewRegistry(store, WithClock(clock.Now), WithLogger(logging.Discard()))
	return reg, store, clock
}

// pathTo lists the transitions that bring a new session to target.
var pathTo = map[State][]State{
	StateInitializing: {},
	StateStarting:     {StateStarting},
	StateReady:        {StateStarting, StateReady},
	StateRunning:      {StateStarting, StateReady, StateRunning},
	StateWaiting:      {StateStarting, StateReady, StateWaiting},
	StateCompleted:    {StateStarting, StateReady, StateRunning, StateCompleted},
	StateError:        {StateError},
	StateCancelled:    {StateCancelled},
}

func driveTo(t *testing.T, reg *Registry, id string, target State) {
	t.Helper()
	for _, st := range pathTo[target] {
		if err := reg.ChangeState(id, st, nil); err != nil {
			t.Fatalf("driving %s to %s: %v", id, st, err)
		}
	}
}
