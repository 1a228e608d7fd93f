package conversation

import (
	"context"
	"sync"
	"time"
)

// Turn is one message in a session, optionally carrying the sources the
// assistant cited.
type Turn struct {
	Role    string
	Text    string
	Sources []string
	At      time.Time
}

// Session is a persisted conversation thread. It is mutated only by
// appending turns and destroyed by explicit clear or inactivity expiry.
type Session struct {
	ID         string
	Turns      []Turn
	CreatedAt  time.Time
	LastActive time.Time
}

// Store keeps per-session conversation state. Implementations must be safe
// for concurrent use across sessions; turns within one session are assumed
// to be serialized by the caller.
type Store interface {
	Append(ctx context.Context, sessionID string, turn Turn) error
	Recent(ctx context.Context, sessionID string, n int) ([]Turn, error)
	Clear(ctx context.Context, sessionID string) error
}

const maxStoredTurns = 50

// MemoryStore is an in-process session store with inactivity expiry.
// Sessions are created on first append and purged lazily.
type MemoryStore struct {
	ttl time.Duration
	now func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

func (s *MemoryStore) Append(_ context.Context, sessionID string, turn Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeExpired()

	now := s.now()
	session, ok := s.sessions[sessionID]
	if !ok {
		session = &Session{ID: sessionID, CreatedAt: now}
		s.sessions[sessionID] = session
	}

	if turn.At.IsZero() {
		turn.At = now
	}
	session.Turns = append(session.Turns, turn)
	if len(session.Turns) > maxStoredTurns {
		session.Turns = session.Turns[len(session.Turns)-maxStoredTurns:]
	}
	session.LastActive = now
	return nil
}

func (s *MemoryStore) Recent(_ context.Context, sessionID string, n int) ([]Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeExpired()

	session, ok := s.sessions[sessionID]
	if !ok || n <= 0 {
		return nil, nil
	}

	turns := session.Turns
	if len(turns) > n {
		turns = turns[len(turns)-n:]
	}

	out := make([]Turn, len(turns))
	copy(out, turns)
	return out, nil
}

func (s *MemoryStore) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

func (s *MemoryStore) purgeExpired() {
	if s.ttl <= 0 {
		return
	}
	cutoff := s.now().Add(-s.ttl)
	for id, session := range s.sessions {
		if session.LastActive.Before(cutoff) {
			delete(s.sessions, id)
		}
	}
}

var _ Store = (*MemoryStore)(nil)
