package api

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Mindburn-Labs/assetrisk/pkg/session"
)

// SessionStore keeps live sessions by ID and evicts idle ones.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*session.Session
	ttl      time.Duration
	open     func() *session.Session
	now      func() time.Time
	logger   *slog.Logger
}

// NewSessionStore creates a store whose sessions come from open.
// A ttl of zero disables eviction.
func NewSessionStore(ttl time.Duration, open func() *session.Session) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*session.Session),
		ttl:      ttl,
		open:     open,
		now:      time.Now,
		logger:   slog.Default().With("component", "session_store"),
	}
}

// Create opens and registers a new session.
func (st *SessionStore) Create() *session.Session {
	s := st.open()
	st.mu.Lock()
	st.sessions[s.ID()] = s
	st.mu.Unlock()
	st.logger.Debug("session opened", "session_id", s.ID())
	return s
}

// Get looks a session up by ID.
func (st *SessionStore) Get(id string) (*session.Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[id]
	return s, ok
}

// Delete closes a session. ok is false if it did not exist.
func (st *SessionStore) Delete(id string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	_, ok := st.sessions[id]
	delete(st.sessions, id)
	return ok
}

// Len returns the number of live sessions.
func (st *SessionStore) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// Sweep evicts sessions idle for longer than the TTL. Busy sessions are
// kept regardless of age.
func (st *SessionStore) Sweep() int {
	if st.ttl <= 0 {
		return 0
	}
	cutoff := st.now().Add(-st.ttl)

	st.mu.Lock()
	defer st.mu.Unlock()
	evicted := 0
	for id, s := range st.sessions {
		if s.Busy() || s.LastUsed().After(cutoff) {
			continue
		}
		delete(st.sessions, id)
		evicted++
	}
	if evicted > 0 {
		st.logger.Info("evicted idle sessions", "count", evicted, "remaining", len(st.sessions))
	}
	return evicted
}

// Run sweeps periodically until ctx ends.
func (st *SessionStore) Run(ctx context.Context) {
	if st.ttl <= 0 {
		return
	}
	sweepEvery(ctx, min(st.ttl/2, time.Minute), func(time.Time) { st.Sweep() })
}
