package store

import (
	"strings"
	"sync"

	"github.com/zhangfengcdt/prollytree/pkg/hash"
)

// MemoryStore keeps objects and refs in process memory. It is the backend
// for tests and for callers that want an ephemeral repository.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[hash.Hash][]byte
	refs    map[string][]byte
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[hash.Hash][]byte),
		refs:    make(map[string][]byte),
	}
}

func (m *MemoryStore) Get(h hash.Hash) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[h]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *MemoryStore) Put(h hash.Hash, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[h]; ok {
		// Content-addressed: same hash, same bytes.
		return nil
	}
	stored := make([]byte, len(data))
	copy(stored, data)
	m.objects[h] = stored
	return nil
}

func (m *MemoryStore) Has(h hash.Hash) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[h]
	return ok, nil
}

func (m *MemoryStore) GetRef(name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.refs[name]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (m *MemoryStore) SetRef(name string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := make([]byte, len(value))
	copy(stored, value)
	m.refs[name] = stored
	return nil
}

func (m *MemoryStore) DeleteRef(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.refs, name)
	return nil
}

func (m *MemoryStore) ListRefs(prefix string) (map[string][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string][]byte)
	for name, v := range m.refs {
		if strings.HasPrefix(name, prefix) {
			cp := make([]byte, len(v))
			copy(cp, v)
			out[name] = cp
		}
	}
	return out, nil
}

func (m *MemoryStore) Close() error {
	return nil
}
