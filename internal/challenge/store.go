// ABOUTME: Single-use TTL store for in-flight WebAuthn ceremony sessions
// ABOUTME: Keys are ceremony context keys; entries are consumed exactly once

package challenge

import (
	"errors"
	"sync"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
)

// ErrNotFound is returned when a challenge is absent, already consumed,
// or past its TTL. Callers cannot distinguish the three cases.
var ErrNotFound = errors.New("challenge not found")

// entry holds a pending ceremony session and its expiry.
type entry struct {
	session   *webauthn.SessionData
	expiresAt time.Time
}

// Store is a process-lifetime, thread-safe store of server-issued ceremony
// sessions. Each entry is single-use: Consume atomically removes it, so
// concurrent consumers race safely to exactly one winner. A background
// goroutine evicts expired entries.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	ttl     time.Duration
	done    chan struct{}
	closed  bool
}

// New creates a challenge store whose entries expire after ttl.
func New(ttl time.Duration) *Store {
	s := &Store{
		entries: make(map[string]*entry),
		ttl:     ttl,
		done:    make(chan struct{}),
	}
	go s.cleanup()
	return s
}

// Issue stores a pending session under the given context key.
// Any prior unconsumed entry for the same key is overwritten: only the
// most recent ceremony attempt per key is valid.
func (s *Store) Issue(key string, session *webauthn.SessionData) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = &entry{
		session:   session,
		expiresAt: time.Now().Add(s.ttl),
	}
}

// Consume atomically reads and deletes the entry for the given key.
// Returns ErrNotFound if the entry is absent or expired; an expired but
// still-present entry is deleted on the way out.
func (s *Store) Consume(key string) (*webauthn.SessionData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	delete(s.entries, key)

	if time.Now().After(e.expiresAt) {
		return nil, ErrNotFound
	}
	return e.session, nil
}

// Len returns the number of pending entries. Intended for tests.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// cleanup runs in a background goroutine, periodically removing expired entries.
func (s *Store) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runCleanup()
		case <-s.done:
			return
		}
	}
}

// runCleanup removes all expired entries from the store.
func (s *Store) runCleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for key, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, key)
		}
	}
}

// Close stops the background cleanup goroutine. It is safe to call multiple times.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		close(s.done)
		s.closed = true
	}
}
