package sessions

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/conductor/errors"
)

// Store persists the full set of records.
type Store interface {
	// Load returns the persisted records. A missing file yields an empty
	// map and no error.
	Load() (map[string]*Record, error)
	// Save schedules records to be written. trigger names the session
	// whose mutation produced the snapshot. Save must not block on I/O.
	Save(trigger string, records map[string]*Record)
	// Flush waits until every snapshot passed to Save so far is written.
	Flush(ctx context.Context) error
	// Close flushes and releases the store.
	Close() error
	// OnError installs the handler invoked when a write fails.
	OnError(fn func(sessionID string, err error))
}

// sessionsFile is the on-disk layout.
type sessionsFile struct {
	Sessions map[string]*Record `json:"sessions"`
}

type snapshot struct {
	seq     uint64
	trigger string
	records map[string]*Record
}

// FileStore writes snapshots to a JSON file from a single goroutine.
// Snapshots queued while a write is in progress are coalesced so only the
// newest one is written next; writes therefore never go out of order.
type FileStore struct {
	path   string
	logger *logrus.Entry

	mu       sync.Mutex
	cond     *sync.Cond
	next     *snapshot
	enqueued uint64
	written  uint64
	closed   bool
	stopped  bool
	onError  func(sessionID string, err error)

	done chan struct{}
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a store for path and starts its writer.
func NewFileStore(path string, logger *logrus.Entry) *FileStore {
	s := &FileStore{
		path:   path,
		logger: logger,
		done:   make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	go s.writer()
	return s
}

// Path returns the file path.
func (s *FileStore) Path() string { return s.path }

// OnError installs the write failure handler.
func (s *FileStore) OnError(fn func(sessionID string, err error)) {
	s.mu.Lock()
	s.onError = fn
	s.mu.Unlock()
}

// Load reads the sessions file.
func (s *FileStore) Load() (map[string]*Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]*Record{}, nil
		}
		return nil, fmt.Errorf("reading sessions file: %w", err)
	}

	var file sessionsFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing sessions file %s: %w", s.path, err)
	}
	if file.Sessions == nil {
		file.Sessions = map[string]*Record{}
	}
	return file.Sessions, nil
}

// Save queues records for writing.
func (s *FileStore) Save(trigger string, records map[string]*Record) {
	s.mu.Lock()
	if s.closed {
		handler := s.onError
		s.mu.Unlock()
		s.logger.WithField("session_id", trigger).Warn("Sessions file store is closed, dropping snapshot")
		if handler != nil {
			handler(trigger, errors.PersistFailed(s.path, fmt.Errorf("store closed")))
		}
		return
	}
	s.enqueued++
	s.next = &snapshot{seq: s.enqueued, trigger: trigger, records: records}
	s.cond.Broadcast()
	s.mu.Unlock()
}

// Flush blocks until everything queued before the call has been written
// or attempted, or ctx is done.
func (s *FileStore) Flush(ctx context.Context) error {
	s.mu.Lock()
	target := s.enqueued
	s.mu.Unlock()

	reached := make(chan struct{})
	go func() {
		s.mu.Lock()
		for s.written < target && !s.stopped {
			s.cond.Wait()
		}
		s.mu.Unlock()
		close(reached)
	}()

	select {
	case <-reached:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close writes any pending snapshot and stops the writer.
func (s *FileStore) Close() error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		s.cond.Broadcast()
	}
	s.mu.Unlock()

	<-s.done
	return nil
}

func (s *FileStore) writer() {
	defer close(s.done)

	for {
		s.mu.Lock()
		for s.next == nil && !s.closed {
			s.cond.Wait()
		}
		if s.next == nil {
			s.stopped = true
			s.cond.Broadcast()
			s.mu.Unlock()
			return
		}
		snap := s.next
		s.next = nil
		s.mu.Unlock()

		err := s.write(snap.records)

		s.mu.Lock()
		s.written = snap.seq
		handler := s.onError
		s.cond.Broadcast()
		s.mu.Unlock()

		if err != nil {
			s.logger.WithError(err).WithField("path", s.path).Error("Failed to persist sessions")
			if handler != nil {
				handler(snap.trigger, errors.PersistFailed(s.path, err))
			}
		}
	}
}

// write replaces the file atomically through a temp file in the same
// directory.
func (s *FileStore) write(records map[string]*Record) error {
	data, err := json.MarshalIndent(sessionsFile{Sessions: records}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling sessions: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating sessions directory: %w", err)
	}
	tempFile, err := os.CreateTemp(dir, "sessions-*.json.tmp")
	if err != nil {
		return fmt.Errorf("creating temp sessions file: %w", err)
	}

	successful := false
	defer func() {
		if !successful {
			os.Remove(tempFile.Name())
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		tempFile.Close()
		return fmt.Errorf("writing temp sessions file: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		tempFile.Close()
		return fmt.Errorf("syncing temp sessions file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("closing temp sessions file: %w", err)
	}
	if err := os.Rename(tempFile.Name(), s.path); err != nil {
		return fmt.Errorf("replacing sessions file: %w", err)
	}

	successful = true
	return nil
}
