package storage

import (
	"sync"

	"github.com/ipfs/go-cid"
)

// MemoryCAS is a process-local CAS, used by tests and ephemeral daemons.
type MemoryCAS struct {
	mu     sync.RWMutex
	blocks map[string][]byte
}

var _ CAS = (*MemoryCAS)(nil)

func NewMemoryCAS() *MemoryCAS {
	return &MemoryCAS{blocks: make(map[string][]byte)}
}

func (m *MemoryCAS) Put(data []byte) (cid.Cid, error) {
	id, err := ComputeCID(data)
	if err != nil {
		return cid.Undef, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.blocks[id.KeyString()]; ok {
		if string(existing) != string(data) {
			return cid.Undef, ErrImmutable
		}
		return id, nil
	}
	m.blocks[id.KeyString()] = append([]byte(nil), data...)
	return id, nil
}

func (m *MemoryCAS) Get(id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, ErrInvalidCID
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.blocks[id.KeyString()]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), b...), nil
}

func (m *MemoryCAS) Has(id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.blocks[id.KeyString()]
	return ok
}
