package kv

import "sync"

// Memory is an in-process Storage. Write and read failures can be injected
// to exercise degraded paths.
type Memory struct {
	mu       sync.RWMutex
	data     map[string][]byte
	writeErr error
	readErr  error
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

// Get implements Storage.Get.
func (m *Memory) Get(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.readErr != nil {
		return nil, m.readErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// Set implements Storage.Set.
func (m *Memory) Set(key string, value []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.writeErr != nil {
		return m.writeErr
	}
	m.data[key] = append([]byte(nil), value...)
	return nil
}

// Remove implements Storage.Remove.
func (m *Memory) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.writeErr != nil {
		return m.writeErr
	}
	delete(m.data, key)
	return nil
}

// Close implements Storage.Close.
func (m *Memory) Close() error {
	return nil
}

// FailWrites makes every subsequent Set and Remove return err.
// Pass nil to restore normal behaviour.
func (m *Memory) FailWrites(err error) {
	m.mu.Lock()
	m.writeErr = err
	m.mu.Unlock()
}

// FailReads makes every subsequent Get return err.
func (m *Memory) FailReads(err error) {
	m.mu.Lock()
	m.readErr = err
	m.mu.Unlock()
}

// Len returns the number of stored keys.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
