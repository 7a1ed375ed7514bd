package state

import (
	"context"
	"sync"
	"time"
)

// MemoryStorage keeps conversation states in process memory.
type MemoryStorage struct {
	mu     sync.RWMutex
	states map[int64]*UserState
}

// NewMemoryStorage returns an empty in-memory Storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{states: make(map[int64]*UserState)}
}

func (s *MemoryStorage) GetState(_ context.Context, chatID int64) (*UserState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.states[chatID]
	if !ok {
		return nil, ErrStateNotFound
	}
	return cloneState(st), nil
}

func (s *MemoryStorage) SetState(_ context.Context, chatID int64, st *UserState) error {
	if st == nil {
		return nil
	}
	st.UpdatedAt = time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[chatID] = cloneState(st)
	return nil
}

func (s *MemoryStorage) ClearState(_ context.Context, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, chatID)
	return nil
}

func (s *MemoryStorage) GetAllStates(_ context.Context) ([]*UserState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*UserState, 0, len(s.states))
	for _, st := range s.states {
		out = append(out, cloneState(st))
	}
	return out, nil
}

func cloneState(st *UserState) *UserState {
	if st == nil {
		return nil
	}

	cp := *st
	if st.Context != nil {
		cp.Context = make(map[string]interface{}, len(st.Context))
		for k, v := range st.Context {
			cp.Context[k] = v
		}
	}
	return &cp
}
