package session

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"campusconnect/internal/domain"
)

// Backend is the host's persistent key-value storage for the two session
// keys. Write and Delete must touch both keys atomically.
type Backend interface {
	Write(ctx context.Context, token string, user []byte) error
	Read(ctx context.Context) (token string, user []byte, err error)
	Delete(ctx context.Context) error
}

// Store is the single source of truth for who is logged in. It mirrors the
// backend in memory so Load never fails, and counts every change in a
// generation number so late responses can be detected.
type Store struct {
	backend Backend

	mu         sync.RWMutex
	current    domain.Session
	generation uint64
}

var _ domain.SessionReader = (*Store)(nil)

// New creates an empty store on backend. Call Restore to pick up a
// previously persisted session.
func New(backend Backend) *Store {
	return &Store{backend: backend}
}

// Restore loads the persisted session into memory. A record with only one of
// the two keys, or an undecodable profile, is treated as absent and wiped.
func (s *Store) Restore(ctx context.Context) domain.Session {
	token, raw, err := s.backend.Read(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("session restore failed, starting logged out")
		return domain.Session{}
	}
	if token == "" && len(raw) == 0 {
		return domain.Session{}
	}

	var user domain.UserProfile
	valid := token != "" && len(raw) > 0 && json.Unmarshal(raw, &user) == nil && user.Validate() == nil
	if !valid {
		log.Warn().Msg("discarding incomplete persisted session")
		if err := s.backend.Delete(ctx); err != nil {
			log.Warn().Err(err).Msg("failed to wipe incomplete session")
		}
		return domain.Session{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = domain.Session{Token: token, User: &user}
	s.generation++
	return s.copyLocked()
}

// Save atomically persists token and user. On a storage failure the in-memory
// session is left as it was.
func (s *Store) Save(ctx context.Context, token string, user *domain.UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(ctx, token, user)
}

// SaveAt saves only if the session is still at generation gen.
func (s *Store) SaveAt(ctx context.Context, gen uint64, token string, user *domain.UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return domain.ErrSessionChanged
	}
	return s.saveLocked(ctx, token, user)
}

func (s *Store) saveLocked(ctx context.Context, token string, user *domain.UserProfile) error {
	if token == "" {
		return domain.Invalid("session token is empty")
	}
	if err := user.Validate(); err != nil {
		return err
	}
	raw, err := json.Marshal(user)
	if err != nil {
		return domain.StorageFailure(err)
	}
	if err := s.backend.Write(ctx, token, raw); err != nil {
		return domain.StorageFailure(err)
	}
	u := *user
	s.current = domain.Session{Token: token, User: &u}
	s.generation++
	return nil
}

// Load returns the current session; both fields are absent when logged out.
func (s *Store) Load() domain.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyLocked()
}

// Snapshot returns the current session and its generation.
func (s *Store) Snapshot() (domain.Session, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyLocked(), s.generation
}

// Clear removes both fields. The in-memory session is cleared even when the
// backend fails, in which case a StorageError is returned. Clearing is
// idempotent but always starts a new generation, so a login still in flight
// when the user logs out cannot complete.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clearLocked(ctx)
}

// ClearAt clears only if the session is still at generation gen.
func (s *Store) ClearAt(ctx context.Context, gen uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return domain.ErrSessionChanged
	}
	return s.clearLocked(ctx)
}

func (s *Store) clearLocked(ctx context.Context) error {
	s.current = domain.Session{}
	s.generation++
	if err := s.backend.Delete(ctx); err != nil {
		return domain.StorageFailure(err)
	}
	return nil
}

func (s *Store) copyLocked() domain.Session {
	if !s.current.Active() {
		return domain.Session{}
	}
	u := *s.current.User
	return domain.Session{Token: s.current.Token, User: &u}
}
