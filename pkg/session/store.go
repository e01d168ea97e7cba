package session

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ActiveUser is one row of the active-users snapshot.
type ActiveUser struct {
	Username     string    `json:"username"`
	Model        string    `json:"model_name"`
	LastActivity time.Time `json:"last_active"`
}

// Store is the authoritative username-to-record mapping. All mutation of
// the mapping goes through Put and Remove; per-session execution locks are
// independent of the mapping lock.
type Store struct {
	mu      sync.RWMutex
	records map[string]*Record
	logger  zerolog.Logger
}

// NewStore creates an empty store.
func NewStore(logger zerolog.Logger) *Store {
	return &Store{
		records: make(map[string]*Record),
		logger:  logger,
	}
}

// Put installs a record, atomically replacing any prior record for the same
// username. The prior record's resources are released before the new record
// becomes visible, so no reader ever observes two records for one user or a
// half-released record.
func (s *Store) Put(rec *Record) {
	s.mu.Lock()
	prior := s.records[rec.Username]
	if prior != nil {
		prior.release()
	}
	s.records[rec.Username] = rec
	s.mu.Unlock()

	if prior != nil {
		s.logger.Info().
			Str("username", rec.Username).
			Str("replaced_session_id", prior.ID).
			Msg("Session replaced")
	}
}

// Get looks up the live record for a username.
func (s *Store) Get(username string) (*Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[username]
	return rec, ok
}

// Remove deletes a session and releases its resources. Idempotent: removing
// an absent username is a no-op, which tolerates races with the reaper.
func (s *Store) Remove(username string) bool {
	s.mu.Lock()
	rec, ok := s.records[username]
	if ok {
		rec.release()
		delete(s.records, username)
	}
	s.mu.Unlock()
	return ok
}

// CompareAndRemove removes the session only if the store still maps the
// username to the given record. Used by the reaper so an eviction decision
// made against a snapshot cannot tear down a fresh re-login.
func (s *Store) CompareAndRemove(username string, rec *Record) bool {
	s.mu.Lock()
	current, ok := s.records[username]
	if !ok || current != rec {
		s.mu.Unlock()
		return false
	}
	rec.release()
	delete(s.records, username)
	s.mu.Unlock()
	return true
}

// ListActive returns a point-in-time snapshot of live sessions. It holds
// only the read lock and never a session's execution lock, so it cannot
// block unrelated chat turns.
func (s *Store) ListActive() []ActiveUser {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ActiveUser, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, ActiveUser{
			Username:     rec.Username,
			Model:        rec.Model,
			LastActivity: rec.LastActivity(),
		})
	}
	return out
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Clear removes every session, releasing resources. Used at shutdown.
func (s *Store) Clear() {
	s.mu.Lock()
	for username, rec := range s.records {
		rec.release()
		delete(s.records, username)
	}
	s.mu.Unlock()
}

// WithLock runs fn while holding the session's execution lock, guaranteeing
// that no two turns for the same user ever execute concurrently. Turns for
// different users share nothing here and proceed in parallel.
//
// The lock is released on every exit path, including a panic in fn. If the
// session is gone when the lock is requested, or was replaced or evicted
// while waiting for it, fn is not run and ErrSessionNotFound is returned.
func (s *Store) WithLock(username string, fn func(*Record) error) error {
	rec, ok := s.Get(username)
	if !ok {
		return ErrSessionNotFound
	}

	rec.execMu.Lock()
	defer rec.execMu.Unlock()

	// Re-check after acquisition: a logout, eviction, or re-login may have
	// won the race while this turn was queued.
	current, ok := s.Get(username)
	if !ok || current != rec {
		return ErrSessionNotFound
	}

	return fn(rec)
}
