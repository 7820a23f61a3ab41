package storage

import (
	"fmt"

	"github.com/ipfs/go-cid"
)

// NamedCAS pairs a store with the name it was configured under.
type NamedCAS struct {
	Name string
	CAS  CAS
}

// ReplicatingCAS writes every snapshot to all stores and reads in order.
//
// A store returning a different CID for the same bytes fails the write with
// ErrCIDMismatch.
type ReplicatingCAS struct {
	Stores []NamedCAS
}

var _ CAS = ReplicatingCAS{}

// PutAll writes data to every store and returns the CID each one reported.
func (r ReplicatingCAS) PutAll(data []byte) (cid.Cid, map[string]cid.Cid, error) {
	want, err := ComputeCID(data)
	if err != nil {
		return cid.Undef, nil, err
	}
	if len(r.Stores) == 0 {
		return cid.Undef, nil, fmt.Errorf("storage: ReplicatingCAS has no stores")
	}

	out := make(map[string]cid.Cid, len(r.Stores))
	for _, s := range r.Stores {
		if s.CAS == nil {
			return cid.Undef, nil, fmt.Errorf("storage: nil store %q", s.Name)
		}
		got, err := s.CAS.Put(data)
		if err != nil {
			return cid.Undef, out, fmt.Errorf("storage: put to %q: %w", s.Name, err)
		}
		out[s.Name] = got
		if !got.Equals(want) {
			return cid.Undef, out, ErrCIDMismatch
		}
	}
	return want, out, nil
}

func (r ReplicatingCAS) Put(data []byte) (cid.Cid, error) {
	id, _, err := r.PutAll(data)
	return id, err
}

func (r ReplicatingCAS) Get(id cid.Cid) ([]byte, error) {
	stores := make([]CAS, 0, len(r.Stores))
	for _, s := range r.Stores {
		if s.CAS != nil {
			stores = append(stores, s.CAS)
		}
	}
	return MultiCAS{Stores: stores}.Get(id)
}

func (r ReplicatingCAS) Has(id cid.Cid) bool {
	for _, s := range r.Stores {
		if s.CAS != nil && s.CAS.Has(id) {
			return true
		}
	}
	return false
}
