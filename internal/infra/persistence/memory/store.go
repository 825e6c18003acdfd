// Package memory provides an in-process SessionStore for tests and ephemeral
// deployments.
package memory

import (
	"context"
	"slices"
	"sync"

	"smartloan/pkg/domain"
)

var _ domain.SessionStore = (*Store)(nil)

// Store keeps deep copies of session state in a map.
type Store struct {
	mu     sync.RWMutex
	states map[string]domain.SessionState
	closed bool
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{states: make(map[string]domain.SessionState)}
}

// Load implements domain.SessionStore.
func (s *Store) Load(_ context.Context, sessionID string) (domain.SessionState, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return domain.SessionState{}, false, ErrClosed
	}
	state, ok := s.states[sessionID]
	if !ok {
		return domain.SessionState{}, false, nil
	}
	return state.Clone(), true, nil
}

// Save implements domain.SessionStore.
func (s *Store) Save(_ context.Context, state domain.SessionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.states[state.SessionID] = state.Clone()
	return nil
}

// Delete implements domain.SessionStore.
func (s *Store) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	delete(s.states, sessionID)
	return nil
}

// List implements domain.SessionStore.
func (s *Store) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	ids := make([]string, 0, len(s.states))
	for id := range s.states {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

// Close implements domain.SessionStore. Later calls fail with ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
