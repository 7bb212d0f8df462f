package sessions

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/conductor/errors"
	"github.com/grovetools/conductor/logging"
)

// Registry is the in-memory map of sessions mirrored to a Store.
//
// Mutations of one session id are serialized by a per-id lock; mutations
// of different ids proceed independently. The map lock is held only to
// swap records and take the snapshot handed to the store, so snapshots
// reach the store in the order the map changed.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Record

	locksMu sync.Mutex
	locks   map[string]*idLock

	store  Store
	bus    *Bus
	now    func() time.Time
	logger *logrus.Entry
}

type idLock struct {
	mu   sync.Mutex
	refs int
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithLogger overrides the logger.
func WithLogger(logger *logrus.Entry) Option {
	return func(r *Registry) { r.logger = logger }
}

// WithBus publishes events on an existing bus.
func WithBus(bus *Bus) Option {
	return func(r *Registry) { r.bus = bus }
}

// NewRegistry creates an empty registry persisting to store. Call Load to
// populate it from the store.
func NewRegistry(store Store, opts ...Option) *Registry {
	r := &Registry{
		sessions: make(map[string]*Record),
		locks:    make(map[string]*idLock),
		store:    store,
		bus:      NewBus(),
		now:      time.Now,
		logger:   logging.NewLogger("sessions"),
	}
	for _, opt := range opts {
		opt(r)
	}

	store.OnError(func(sessionID string, err error) {
		r.bus.Publish(SessionError{
			ID:        sessionID,
			Err:       err,
			Message:   err.Error(),
			Timestamp: r.now(),
		})
	})
	return r
}

// Bus returns the event bus.
func (r *Registry) Bus() *Bus { return r.bus }

// Now returns the registry's current time.
func (r *Registry) Now() time.Time { return r.now() }

// Load replaces the in-memory map with the store's contents and returns
// how many records were loaded. An unreadable store leaves the registry
// empty; records with an unknown state are dropped.
func (r *Registry) Load() int {
	records, err := r.store.Load()
	if err != nil {
		r.logger.WithError(err).Warn("Could not load sessions, starting with an empty registry")
		records = nil
	}

	loaded := make(map[string]*Record, len(records))
	for id, rec := range records {
		if rec == nil || !rec.State.Valid() {
			r.logger.WithField("session_id", id).Warn("Ignoring session with invalid state")
			continue
		}
		rec.ID = id
		loaded[id] = rec
	}

	r.mu.Lock()
	r.sessions = loaded
	r.mu.Unlock()

	r.logger.WithField("count", len(loaded)).Debug("Loaded sessions")
	return len(loaded)
}

// Create inserts a new session in INITIALIZING.
func (r *Registry) Create(id, repository, worktreePath string, owner Owner) (*Record, error) {
	if id == "" {
		return nil, errors.InvalidInput("session id cannot be empty")
	}
	unlock := r.lock(id)
	defer unlock()

	if _, ok := r.get(id); ok {
		return nil, errors.AlreadyExists(id)
	}

	now := r.now()
	rec := &Record{
		ID:           id,
		Repository:   repository,
		WorktreePath: worktreePath,
		State:        StateInitializing,
		CreatedAt:    now,
		UpdatedAt:    now,
		Metadata: Metadata{
			UserID:     owner.UserID,
			GuildID:    owner.GuildID,
			StartedAt:  now,
			LastUpdate: now,
		},
	}
	r.commit(id, rec)

	r.bus.Publish(SessionCreated{Session: rec.Clone(), Timestamp: now})
	return rec.Clone(), nil
}

// ChangeState moves a session to state to. extra is merged into the
// record's metadata and carried on the StateChanged event.
func (r *Registry) ChangeState(id string, to State, extra map[string]string) error {
	_, err := r.changeState(id, to, extra, nil)
	return err
}

// ChangeStateIf is ChangeState guarded by pred, which sees a copy of the
// current record under the session's lock. When pred returns false the
// session is left untouched and ChangeStateIf returns false with no error.
func (r *Registry) ChangeStateIf(id string, to State, extra map[string]string, pred func(*Record) bool) (bool, error) {
	return r.changeState(id, to, extra, pred)
}

func (r *Registry) changeState(id string, to State, extra map[string]string, pred func(*Record) bool) (bool, error) {
	if !to.Valid() {
		return false, errors.InvalidInput("unknown state " + string(to)).WithDetail("sessionId", id)
	}
	unlock := r.lock(id)
	defer unlock()

	cur, ok := r.get(id)
	if !ok {
		return false, errors.NotFound(id)
	}
	if pred != nil && !pred(cur.Clone()) {
		return false, nil
	}
	if !CanTransition(cur.State, to) {
		return false, errors.InvalidTransition(id, string(cur.State), string(to))
	}

	next := cur.Clone()
	next.State = to
	r.stamp(cur, next)
	if len(extra) > 0 {
		if next.Metadata.Extra == nil {
			next.Metadata.Extra = make(map[string]string, len(extra))
		}
		for k, v := range extra {
			next.Metadata.Extra[k] = v
		}
	}
	r.commit(id, next)

	var eventMeta map[string]string
	if len(extra) > 0 {
		eventMeta = make(map[string]string, len(extra))
		for k, v := range extra {
			eventMeta[k] = v
		}
	}
	r.bus.Publish(StateChanged{
		ID:        id,
		OldState:  cur.State,
		NewState:  to,
		Timestamp: next.UpdatedAt,
		Metadata:  eventMeta,
	})
	r.logger.WithFields(logrus.Fields{
		"session_id": id,
		"from":       cur.State,
		"to":         to,
	}).Debug("Session state changed")
	return true, nil
}

// AttachContainerID records the execution environment of a session. It is
// not a state change and does not consult the transition table.
func (r *Registry) AttachContainerID(id, containerID string) error {
	return r.update(id, func(rec *Record) { rec.ContainerID = containerID })
}

// SetWorktree records where the session's checkout lives.
func (r *Registry) SetWorktree(id, worktreePath string) error {
	return r.update(id, func(rec *Record) { rec.WorktreePath = worktreePath })
}

// Touch marks a session as active now without changing its state.
func (r *Registry) Touch(id string) error {
	return r.update(id, func(*Record) {})
}

// Get returns a copy of the session.
func (r *Registry) Get(id string) (*Record, bool) {
	rec, ok := r.get(id)
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// ListAll returns copies of every session, oldest first.
func (r *Registry) ListAll() []*Record {
	return r.list(func(*Record) bool { return true })
}

// ListActive returns sessions not in COMPLETED, CANCELLED or ERROR.
func (r *Registry) ListActive() []*Record {
	return r.list(func(rec *Record) bool { return rec.State.IsActive() })
}

// Remove deletes a session and reports whether it existed. Removing an
// unknown id is a no-op that returns false.
func (r *Registry) Remove(id string) (bool, error) {
	unlock := r.lock(id)
	defer unlock()

	cur, ok := r.get(id)
	if !ok {
		return false, nil
	}
	r.commit(id, nil)

	r.bus.Publish(SessionRemoved{ID: id, Session: cur.Clone(), Timestamp: r.now()})
	return true, nil
}

// Flush waits for pending writes of the sessions file.
func (r *Registry) Flush(ctx context.Context) error {
	return r.store.Flush(ctx)
}

// Close flushes and closes the store.
func (r *Registry) Close() error {
	return r.store.Close()
}

func (r *Registry) update(id string, fn func(*Record)) error {
	unlock := r.lock(id)
	defer unlock()

	cur, ok := r.get(id)
	if !ok {
		return errors.NotFound(id)
	}
	next := cur.Clone()
	fn(next)
	r.stamp(cur, next)
	r.commit(id, next)
	return nil
}

// stamp sets next's update times, strictly after cur's.
func (r *Registry) stamp(cur, next *Record) {
	now := r.now()
	if !now.After(cur.UpdatedAt) {
		now = cur.UpdatedAt.Add(time.Nanosecond)
	}
	next.UpdatedAt = now
	next.Metadata.LastUpdate = now
}

// commit swaps rec into the map (nil deletes) and queues a snapshot.
func (r *Registry) commit(id string, rec *Record) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec == nil {
		delete(r.sessions, id)
	} else {
		r.sessions[id] = rec
	}

	snap := make(map[string]*Record, len(r.sessions))
	for k, v := range r.sessions {
		snap[k] = v
	}
	r.store.Save(id, snap)
}

func (r *Registry) get(id string) (*Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.sessions[id]
	return rec, ok
}

func (r *Registry) list(keep func(*Record) bool) []*Record {
	r.mu.RLock()
	out := make([]*Record, 0, len(r.sessions))
	for _, rec := range r.sessions {
		if keep(rec) {
			out = append(out, rec.Clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// lock acquires the per-id mutex and returns its release function.
func (r *Registry) lock(id string) func() {
	r.locksMu.Lock()
	l, ok := r.locks[id]
	if !ok {
		l = &idLock{}
		r.locks[id] = l
	}
	l.refs++
	r.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		r.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(r.locks, id)
		}
		r.locksMu.Unlock()
	}
}
