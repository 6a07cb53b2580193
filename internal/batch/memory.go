package batch

import (
	"context"
	"sync"
)

// MemoryStore is an in-process StateStore. Checkpoints survive only for the
// life of the process; it is the default when no durable store is configured
// and the workhorse for tests.
type MemoryStore struct {
	mu     sync.Mutex
	states map[string]OperationState
	locks  map[string]bool
}

// NewMemoryStore creates an empty in-process state store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states: make(map[string]OperationState),
		locks:  make(map[string]bool),
	}
}

func (m *MemoryStore) Load(_ context.Context, id string) (OperationState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.states[id]
	if !ok {
		return OperationState{}, ErrNotFound
	}
	return state, nil
}

func (m *MemoryStore) Save(_ context.Context, state OperationState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[state.ID] = state
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, id)
	return nil
}

func (m *MemoryStore) Acquire(_ context.Context, id string) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[id] {
		return nil, ErrLocked
	}
	m.locks[id] = true
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.locks, id)
	}, nil
}
