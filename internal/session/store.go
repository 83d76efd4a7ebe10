// Package session provides the process-wide registry of conversation state.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/honeypot/internal/domain"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCapacity bounds the number of live sessions.
const DefaultCapacity = 10000

// Config controls store sizing and eviction.
type Config struct {
	// Capacity is the maximum number of sessions held. The least recently
	// used session is evicted when a new one would exceed it.
	Capacity int
	// IdleTTL evicts sessions with no activity for this long. Zero disables it.
	IdleTTL time.Duration
}

// Store maps session identifiers to their state.
//
// GetOrCreate is atomic: concurrent callers for the same id always receive the
// same *domain.Session. Eviction is by capacity (LRU) and by idle time, where
// idle means no lookup on the server clock for IdleTTL. A session that is
// mid-turn or has a delivery in flight is never chosen for eviction while
// another candidate exists. An evicted session that receives a new message
// starts over as a fresh session.
type Store struct {
	mu       sync.Mutex
	sessions *lru.Cache[string, *domain.Session]
	capacity int
	idleTTL  time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// NewStore creates a store.
func NewStore(cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	s := &Store{
		capacity: cfg.Capacity,
		idleTTL:  cfg.IdleTTL,
		now:      time.Now,
		logger:   logger,
	}
	cache, err := lru.NewWithEvict[string, *domain.Session](cfg.Capacity, s.onEvict)
	if err != nil {
		return nil, fmt.Errorf("create session cache: %w", err)
	}
	s.sessions = cache
	return s, nil
}

// SetClock overrides the time source.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// GetOrCreate returns the session for id, creating and registering it first
// if it does not exist.
func (s *Store) GetOrCreate(id string) *domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if sess, ok := s.sessions.Get(id); ok {
		sess.Touch(now)
		return sess
	}
	if s.sessions.Len() >= s.capacity && !s.evictOldestLocked(now) {
		s.logger.Warn("Session capacity exhausted by active sessions, evicting least recently used",
			"capacity", s.capacity)
	}
	sess := domain.NewSession(id, now)
	s.sessions.Add(id, sess)
	s.logger.Info("Session created", "session_id", id, "live_sessions", s.sessions.Len())
	return sess
}

// Get returns the session for id without creating it.
func (s *Store) Get(id string) (*domain.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions.Peek(id)
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	return s.sessions.Len()
}

// Sweep evicts sessions idle for longer than IdleTTL and returns the number
// removed. Sessions mid-turn or with a delivery in flight are kept.
func (s *Store) Sweep() int {
	if s.idleTTL <= 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.idleTTL)
	removed := 0
	for _, id := range s.sessions.Keys() {
		sess, ok := s.sessions.Peek(id)
		if !ok || !evictable(sess, cutoff) {
			continue
		}
		if s.sessions.Remove(id) {
			removed++
		}
	}
	return removed
}

// evictOldestLocked removes the least recently used evictable session. The
// caller holds s.mu.
func (s *Store) evictOldestLocked(now time.Time) bool {
	for _, id := range s.sessions.Keys() {
		sess, ok := s.sessions.Peek(id)
		if ok && evictable(sess, now) {
			return s.sessions.Remove(id)
		}
	}
	return false
}

// evictable reports whether sess was last looked up before cutoff and is
// neither mid-turn nor delivering. Store lookups happen under s.mu, so a
// session handed out by GetOrCreate always has LastSeen after the cutoff of
// any later sweep.
func evictable(sess *domain.Session, cutoff time.Time) bool {
	if sess.LastSeen().After(cutoff) {
		return false
	}
	if !sess.TryLock() {
		return false
	}
	defer sess.Unlock()
	return !sess.ReportInFlight()
}

// StartSweeper runs Sweep every interval until ctx is canceled.
func (s *Store) StartSweeper(ctx context.Context, interval time.Duration) {
	if s.idleTTL <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		s.logger.Info("Session sweeper started", "interval", interval, "idle_ttl", s.idleTTL)
		for {
			select {
			case <-ticker.C:
				if n := s.Sweep(); n > 0 {
					s.logger.Info("Session sweeper evicted idle sessions", "count", n, "live_sessions", s.Len())
				}
			case <-ctx.Done():
				s.logger.Info("Session sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func (s *Store) onEvict(id string, _ *domain.Session) {
	s.logger.Debug("Session evicted", "session_id", id)
}
