package internal

import (
	"context"
	"sync"
	"time"
)

// MessageCacheLimit is how many messages per session the in-memory cache keeps
const MessageCacheLimit = 100

// SessionStore holds the last fetched session snapshot and an in-memory,
// per-session message cache. Safe for concurrent use.
type SessionStore struct {
	client GatewayClient

	mu        sync.RWMutex
	snapshot  []Session
	fetchedAt time.Time
	issued    uint64 // sequence handed to the most recently started refresh
	applied   uint64 // sequence of the response currently in snapshot
	messages  map[string][]Message
}

// NewSessionStore creates a store that refreshes through client
func NewSessionStore(client GatewayClient) *SessionStore {
	return &SessionStore{
		client:   client,
		messages: make(map[string][]Message),
	}
}

// Refresh fetches the full session list and replaces the snapshot. On any
// failure the previous snapshot stays in place. When refreshes overlap, the
// response of the most recently issued call wins regardless of which
// resolves first. A disconnected client that is a Reconnector gets one
// reconnect attempt first.
func (s *SessionStore) Refresh(ctx context.Context) error {
	if s.client == nil {
		return &GatewayUnavailableError{Err: ErrNotConnected}
	}
	if !s.client.IsConnected() {
		r, ok := s.client.(Reconnector)
		if !ok {
			return &GatewayUnavailableError{Err: ErrNotConnected}
		}
		if err := r.Reconnect(ctx); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.issued++
	seq := s.issued
	s.mu.Unlock()

	sessions, err := ListSessions(ctx, s.client)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if seq < s.applied {
		LogDebug("discarding sessions.list response #%d, #%d already applied", seq, s.applied)
		return nil
	}
	s.snapshot = sessions
	s.applied = seq
	s.fetchedAt = time.Now()
	return nil
}

// Seed installs a snapshot loaded from elsewhere (the on-disk cache) without
// touching the refresh sequence, so any live response still wins.
func (s *SessionStore) Seed(sessions []Session, fetchedAt time.Time) {
	cp := make([]Session, len(sessions))
	copy(cp, sessions)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.applied > 0 {
		return
	}
	s.snapshot = cp
	s.fetchedAt = fetchedAt
}

// Snapshot returns a copy of the current session list
func (s *SessionStore) Snapshot() []Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Session, len(s.snapshot))
	copy(out, s.snapshot)
	return out
}

// FetchedAt is when the current snapshot was obtained; zero if never
func (s *SessionStore) FetchedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fetchedAt
}

// CacheMessages stores the newest MessageCacheLimit messages for key,
// replacing whatever was there.
func (s *SessionStore) CacheMessages(key string, msgs []Message) {
	cp := tail(msgs, MessageCacheLimit)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[key] = cp
}

// CachedMessages returns the cached messages for key, if any were cached
// during this process lifetime.
func (s *SessionStore) CachedMessages(key string) ([]Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs, ok := s.messages[key]
	if !ok {
		return nil, false
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out, true
}
