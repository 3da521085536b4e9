// Package memstore implements the persistence port in process memory.
// The server always runs against Postgres; this store backs tests that
// need the full persistence contract without a database.
package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/percept-io/percept/internal/domain"
	"github.com/percept-io/percept/internal/domain/classify"
	"github.com/percept-io/percept/internal/domain/user"
	"github.com/percept-io/percept/internal/port/database"
)

// Store keeps request state and API keys in maps guarded by one RWMutex.
// Writes store snapshots and reads return snapshots, so callers never
// share a live State with the orchestrator's writer goroutine.
type Store struct {
	mu     sync.RWMutex
	states map[string]*classify.State
	keys   map[string]user.APIKey
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		states: make(map[string]*classify.State),
		keys:   make(map[string]user.APIKey),
	}
}

func (s *Store) CreateState(_ context.Context, st *classify.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.states[st.Request.ID]; exists {
		return fmt.Errorf("create request %s: already exists", st.Request.ID)
	}
	s.states[st.Request.ID] = st.Snapshot()
	return nil
}

func (s *Store) UpdateState(_ context.Context, st *classify.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.states[st.Request.ID]; !exists {
		return fmt.Errorf("update request %s: %w", st.Request.ID, domain.ErrNotFound)
	}
	s.states[st.Request.ID] = st.Snapshot()
	return nil
}

func (s *Store) GetState(_ context.Context, id string) (*classify.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[id]
	if !ok {
		return nil, fmt.Errorf("get request %s: %w", id, domain.ErrNotFound)
	}
	return st.Snapshot(), nil
}

func (s *Store) CreateAPIKey(_ context.Context, key *user.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.keys[key.ID]; exists {
		return fmt.Errorf("create api key %s: already exists", key.ID)
	}
	s.keys[key.ID] = *key
	return nil
}

func (s *Store) GetAPIKey(_ context.Context, id string) (*user.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.keys[id]
	if !ok {
		return nil, fmt.Errorf("get api key %s: %w", id, domain.ErrNotFound)
	}
	return &k, nil
}

func (s *Store) ListAPIKeys(_ context.Context) ([]user.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]user.APIKey, 0, len(s.keys))
	for _, k := range s.keys {
		keys = append(keys, k)
	}
	return keys, nil
}

func (s *Store) RevokeAPIKey(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[id]
	if !ok || k.RevokedAt != nil {
		return fmt.Errorf("revoke api key %s: %w", id, domain.ErrNotFound)
	}
	now := time.Now().UTC()
	k.RevokedAt = &now
	s.keys[id] = k
	return nil
}

var _ database.Store = (*Store)(nil)
