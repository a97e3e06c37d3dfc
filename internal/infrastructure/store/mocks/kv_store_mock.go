package mocks

import (
	"context"
	"sync"
)

// MockKeyValueStore is a mock implementation of store.KeyValueStore for testing
type MockKeyValueStore struct {
	mu   sync.RWMutex
	data map[string]string

	// For tracking calls in tests
	GetCalls []string
	SetCalls []SetCall

	GetErr error
	SetErr error
}

// SetCall records parameters passed to Set
type SetCall struct {
	Key   string
	Value string
}

// NewMockKeyValueStore creates a new MockKeyValueStore
func NewMockKeyValueStore() *MockKeyValueStore {
	return &MockKeyValueStore{
		data:     make(map[string]string),
		GetCalls: make([]string, 0),
		SetCalls: make([]SetCall, 0),
	}
}

// Get returns the stored value, or GetErr if set
func (m *MockKeyValueStore) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.GetCalls = append(m.GetCalls, key)

	if m.GetErr != nil {
		return "", false, m.GetErr
	}
	value, ok := m.data[key]
	return value, ok, nil
}

// Set records the call and stores the value unless SetErr is set
func (m *MockKeyValueStore) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SetCalls = append(m.SetCalls, SetCall{Key: key, Value: value})

	if m.SetErr != nil {
		return m.SetErr
	}
	m.data[key] = value
	return nil
}

// SetData sets data directly for testing (without recording the call)
func (m *MockKeyValueStore) SetData(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
}

// GetData gets data directly for testing (without recording the call)
func (m *MockKeyValueStore) GetData(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.data[key]
	return value, ok
}
