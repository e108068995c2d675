package repository

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"chat-widget/internal/domain"
)

const (
	// DefaultSessionKey is the storage key of a single-visitor widget.
	DefaultSessionKey = "chat-widget-log"
	// DefaultSessionTTL is how long a session stays valid after its first message.
	DefaultSessionTTL = 24 * time.Hour
)

// SessionStore persists one conversation log under a fixed key and enforces
// the session expiry. Saves only replace the record this store last read or
// wrote; a record changed by another writer is reported as
// domain.ErrSessionChanged. Every other storage failure is logged and never
// returned.
type SessionStore struct {
	kv  KeyValueStore
	key string
	ttl time.Duration
	now func() time.Time
	log *slog.Logger

	mu   sync.Mutex
	seen *string // raw record last read or written, nil when absent
}

type SessionOption func(*SessionStore)

func WithTTL(ttl time.Duration) SessionOption {
	return func(s *SessionStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithClock(now func() time.Time) SessionOption {
	return func(s *SessionStore) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(log *slog.Logger) SessionOption {
	return func(s *SessionStore) {
		if log != nil {
			s.log = log
		}
	}
}

// NewSessionStore creates a SessionStore over kv.
func NewSessionStore(kv KeyValueStore, key string, opts ...SessionOption) (*SessionStore, error) {
	if kv == nil {
		return nil, errors.New("repository: key-value store must not be nil")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, errors.New("repository: session key must not be empty")
	}
	s := &SessionStore{
		kv:  kv,
		key: key,
		ttl: DefaultSessionTTL,
		now: time.Now,
		log: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "session_store", "key", key)
	return s, nil
}

// Load returns the stored session if one exists, parses, holds at least one
// message and is younger than the TTL. Malformed, empty and expired records
// are deleted.
func (s *SessionStore) Load(ctx context.Context) (domain.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seen = nil
	raw, found, err := s.kv.Get(ctx, s.key)
	if err != nil {
		s.log.Error("failed to read session", "err", err)
		return domain.Session{}, false
	}
	if !found {
		return domain.Session{}, false
	}
	s.seen = &raw

	var session domain.Session
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		s.log.Warn("discarding malformed session", "err", err)
		s.clearLocked(ctx)
		return domain.Session{}, false
	}
	if s.expired(session.CreatedAt) {
		s.log.Info("discarding expired session", "createdAt", session.CreatedAt)
		s.clearLocked(ctx)
		return domain.Session{}, false
	}
	if len(session.Messages) == 0 {
		s.clearLocked(ctx)
		return domain.Session{}, false
	}
	return session, true
}

// Save replaces the stored session. It returns domain.ErrSessionChanged when
// the record is no longer the one last loaded or saved through s.
func (s *SessionStore) Save(ctx context.Context, session domain.Session) error {
	b, err := json.Marshal(session)
	if err != nil {
		s.log.Error("failed to encode session", "err", err)
		return nil
	}
	value := string(b)

	s.mu.Lock()
	defer s.mu.Unlock()
	err = s.kv.CompareAndSet(ctx, s.key, s.seen, value)
	if errors.Is(err, ErrStale) {
		s.log.Info("session changed by another writer")
		return domain.ErrSessionChanged
	}
	if err != nil {
		s.log.Error("failed to save session", "err", err)
		return nil
	}
	s.seen = &value
	return nil
}

// Clear deletes the stored session.
func (s *SessionStore) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked(ctx)
}

func (s *SessionStore) clearLocked(ctx context.Context) {
	if err := s.kv.Delete(ctx, s.key); err != nil {
		s.log.Error("failed to clear session", "err", err)
		return
	}
	s.seen = nil
}

func (s *SessionStore) expired(createdAt int64) bool {
	return s.now().UnixMilli()-createdAt >= s.ttl.Milliseconds()
}
