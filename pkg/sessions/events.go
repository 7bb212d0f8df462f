package sessions

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// EventType names a domain event.
type EventType string

const (
	EventSessionCreated EventType = "session_created"
	EventStateChanged   EventType = "state_changed"
	EventSessionRemoved EventType = "session_removed"
	EventSessionError   EventType = "session_error"
)

// Event is a Registry domain event. The concrete types are
// SessionCreated, StateChanged, SessionRemoved and SessionError.
type Event interface {
	Type() EventType
	SessionID() string
	Time() time.Time
}

// SessionCreated is emitted after a session is inserted.
type SessionCreated struct {
	Session   *Record   `json:"session"`
	Timestamp time.Time `json:"timestamp"`
}

// StateChanged is emitted after a successful transition.
type StateChanged struct {
	ID        string            `json:"sessionId"`
	OldState  State             `json:"oldState"`
	NewState  State             `json:"newState"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// SessionRemoved carries the snapshot taken before deletion.
type SessionRemoved struct {
	ID        string    `json:"sessionId"`
	Session   *Record   `json:"session"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionError reports a failure that could not be returned to a caller,
// such as a failed write of the sessions file.
type SessionError struct {
	ID        string    `json:"sessionId"`
	Err       error     `json:"-"`
	Message   string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

func (e SessionCreated) Type() EventType   { return EventSessionCreated }
func (e SessionCreated) SessionID() string { return e.Session.ID }
func (e SessionCreated) Time() time.Time   { return e.Timestamp }

func (e StateChanged) Type() EventType   { return EventStateChanged }
func (e StateChanged) SessionID() string { return e.ID }
func (e StateChanged) Time() time.Time   { return e.Timestamp }

func (e SessionRemoved) Type() EventType   { return EventSessionRemoved }
func (e SessionRemoved) SessionID() string { return e.ID }
func (e SessionRemoved) Time() time.Time   { return e.Timestamp }

func (e SessionError) Type() EventType   { return EventSessionError }
func (e SessionError) SessionID() string { return e.ID }
func (e SessionError) Time() time.Time   { return e.Timestamp }

// MarshalEvent encodes an event as {"type": ..., "data": ...}.
func MarshalEvent(e Event) ([]byte, error) {
	return json.Marshal(struct {
		Type EventType `json:"type"`
		Data Event     `json:"data"`
	}{Type: e.Type(), Data: e})
}

// Handler observes events synchronously on the publishing goroutine.
//
// Registry events are published while the registry still holds the
// session's per-id lock. A handler may read the registry (Get, ListAll)
// and may mutate other sessions, but calling a mutating Registry method
// for the event's own session id deadlocks.
type Handler func(Event)

// Subscription is a buffered channel of events. When the buffer is full
// further events are dropped for this subscriber and counted.
type Subscription struct {
	id      string
	ch      chan Event
	dropped atomic.Int64
	bus     *Bus
}

// ID returns the subscription id.
func (s *Subscription) ID() string { return s.id }

// C returns the event channel. It is closed by Unsubscribe.
func (s *Subscription) C() <-chan Event { return s.ch }

// Dropped returns how many events did not fit in the buffer.
func (s *Subscription) Dropped() int64 { return s.dropped.Load() }

// Close unsubscribes.
func (s *Subscription) Close() { s.bus.Unsubscribe(s) }

// Bus fans events out to subscribers without blocking the publisher.
type Bus struct {
	mu        sync.RWMutex
	subs      map[string]*Subscription
	observers map[string]Handler
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		subs:      make(map[string]*Subscription),
		observers: make(map[string]Handler),
	}
}

// Subscribe registers a channel subscriber with the given buffer size.
func (b *Bus) Subscribe(buffer int) *Subscription {
	if buffer < 1 {
		buffer = 1
	}
	sub := &Subscription{id: uuid.NewString(), ch: make(chan Event, buffer), bus: b}

	b.mu.Lock()
	b.subs[sub.id] = sub
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes a subscription and closes its channel. It is safe to
// call more than once.
func (b *Bus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub.id]; !ok {
		return
	}
	delete(b.subs, sub.id)
	close(sub.ch)
}

// Observe registers fn for every event and returns a function that
// removes it. fn runs under the publishing session's per-id lock; see
// Handler for what it may call.
func (b *Bus) Observe(fn Handler) (cancel func()) {
	id := uuid.NewString()
	b.mu.Lock()
	b.observers[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.observers, id)
		b.mu.Unlock()
	}
}

// Publish delivers e to every subscriber and observer.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	for _, sub := range b.subs {
		select {
		case sub.ch <- e:
		default:
			sub.dropped.Add(1)
		}
	}
	observers := make([]Handler, 0, len(b.observers))
	for _, fn := range b.observers {
		observers = append(observers, fn)
	}
	b.mu.RUnlock()

	for _, fn := range observers {
		fn(e)
	}
}
