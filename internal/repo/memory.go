package repo

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store used by tests and dry runs. When
// WriteErr is set every write fails with it and nothing changes; ReadErr
// does the same for Get.
type MemoryStore struct {
	mu       sync.Mutex
	data     map[string]string
	ReadErr  error
	WriteErr error
	Writes   int
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[string]string{}}
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReadErr != nil {
		return "", m.ReadErr
	}
	v, ok := m.data[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *MemoryStore) Set(ctx context.Context, key, value string) error {
	return m.SetMany(ctx, map[string]string{key: value})
}

func (m *MemoryStore) SetMany(_ context.Context, values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return m.WriteErr
	}
	if m.data == nil {
		m.data = map[string]string{}
	}
	for k, v := range values {
		m.data[k] = v
	}
	m.Writes++
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return m.WriteErr
	}
	delete(m.data, key)
	return nil
}
