package vault

import (
	"context"
	"sync"
)

// memMeta is an in-memory MetadataStore with injectable failures.
type memMeta struct {
	mu     sync.Mutex
	data   map[string][]byte
	getErr error
	setErr error
}

func newMemMeta() *memMeta {
	return &memMeta{data: map[string][]byte{}}
}

func (m *memMeta) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	return append([]byte{}, v...), nil
}

func (m *memMeta) SetIfAbsent(_ context.Context, key string, value []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return nil, m.setErr
	}
	if v, ok := m.data[key]; ok {
		return append([]byte{}, v...), nil
	}
	m.data[key] = append([]byte{}, value...)
	return append([]byte{}, value...), nil
}

func (m *memMeta) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	delete(m.data, key)
	return nil
}
