package risk

import (
	"context"
	"sync"
)

// MemoryStore keeps state in process memory
type MemoryStore struct {
	mu      sync.Mutex
	state   *State
	saves   int
	saveErr error
}

// NewMemoryStore creates new in-memory state store, optionally pre-seeded
func NewMemoryStore(initial *State) *MemoryStore {
	s := &MemoryStore{}
	if initial != nil {
		cp := *initial
		s.state = &cp
	}
	return s
}

func (s *MemoryStore) Load(ctx context.Context) (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == nil {
		return nil, ErrStateNotFound
	}
	cp := *s.state
	return &cp, nil
}

func (s *MemoryStore) Save(ctx context.Context, state *State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.saveErr != nil {
		return s.saveErr
	}
	cp := *state
	s.state = &cp
	s.saves++
	return nil
}

// Saves returns how many successful saves happened
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// FailSaves makes subsequent saves return err; nil restores normal behavior
func (s *MemoryStore) FailSaves(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveErr = err
}
