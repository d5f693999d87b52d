package cartstore

import (
	"bytes"
	"context"
	"sync"

	"storefront/internal/domain"
)

// Memory keeps slots in process memory.
type Memory struct {
	mu    sync.RWMutex
	slots map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{slots: make(map[string][]byte)}
}

func (m *Memory) Load(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	blob, ok := m.slots[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return bytes.Clone(blob), nil
}

func (m *Memory) Save(_ context.Context, key string, blob []byte) error {
	m.mu.Lock()
	m.slots[key] = bytes.Clone(blob)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() error { return nil }
