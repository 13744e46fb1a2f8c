package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps sessions in process memory; they are lost on restart.
type MemoryStore struct {
	mu   sync.RWMutex
	byID map[string]State
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]State)}
}

func (m *MemoryStore) Put(_ context.Context, s State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[s.SessionID] = cloneState(s)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byID[id]
	if !ok {
		return State{}, ErrNotFound
	}
	return cloneState(s), nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, id)
	return nil
}

func (m *MemoryStore) Count(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID), nil
}

func (m *MemoryStore) Purge(_ context.Context, loginBefore time.Time) ([]State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var gone []State
	for id, s := range m.byID {
		if s.LoginTime.Before(loginBefore) {
			gone = append(gone, s)
			delete(m.byID, id)
		}
	}
	return gone, nil
}

func cloneState(s State) State {
	if s.Permissions != nil {
		s.Permissions = append([]string(nil), s.Permissions...)
	}
	return s
}
