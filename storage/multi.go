package storage

import (
	"errors"

	"github.com/ipfs/go-cid"
)

// MultiCAS reads from several stores in a fixed order and writes to the first.
//
// Read order is the slice order in Stores; there is no map iteration involved.
type MultiCAS struct {
	Stores []CAS
}

var _ CAS = MultiCAS{}

func (m MultiCAS) Put(bytes []byte) (cid.Cid, error) {
	if len(m.Stores) == 0 {
		return cid.Undef, errors.New("storage: MultiCAS has no stores")
	}
	return m.Stores[0].Put(bytes)
}

func (m MultiCAS) Get(id cid.Cid) ([]byte, error) {
	for _, store := range m.Stores {
		b, err := store.Get(id)
		if err == nil {
			return b, nil
		}
		if IsNotFound(err) {
			continue
		}
		return nil, err
	}
	return nil, ErrNotFound
}

func (m MultiCAS) Has(id cid.Cid) bool {
	for _, store := range m.Stores {
		if store.Has(id) {
			return true
		}
	}
	return false
}
