package storage

import (
	"context"
	"slices"
	"sync"
)

// MemoryBackend is an in-process Backend used by tests and by games run
// without persistence. Errors can be injected per operation.
type MemoryBackend struct {
	mu        sync.RWMutex
	data      map[string][]byte
	getError  error
	setError  error
	delError  error
	pingError error
	sets      int
}

// Ensure MemoryBackend implements Backend interface
var _ Backend = (*MemoryBackend)(nil)

// NewMemoryBackend creates an empty backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[string][]byte)}
}

// SetGetError makes Get fail with err until cleared with nil.
func (m *MemoryBackend) SetGetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getError = err
}

// SetSetError makes Set fail with err until cleared with nil.
func (m *MemoryBackend) SetSetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setError = err
}

// SetDeleteError makes Delete fail with err until cleared with nil.
func (m *MemoryBackend) SetDeleteError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delError = err
}

// SetPingError configures the backend to fail on ping with the given error
func (m *MemoryBackend) SetPingError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingError = err
}

// SetCount returns the number of successful writes.
func (m *MemoryBackend) SetCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sets
}

// Put stores raw bytes directly, bypassing error injection.
func (m *MemoryBackend) Put(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = slices.Clone(data)
}

func (m *MemoryBackend) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.getError != nil {
		return nil, m.getError
	}
	data, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	return slices.Clone(data), nil
}

func (m *MemoryBackend) Set(ctx context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setError != nil {
		return m.setError
	}
	m.data[key] = slices.Clone(data)
	m.sets++
	return nil
}

func (m *MemoryBackend) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.delError != nil {
		return m.delError
	}
	delete(m.data, key)
	return nil
}

func (m *MemoryBackend) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pingError
}

func (m *MemoryBackend) Close() error {
	return nil
}
