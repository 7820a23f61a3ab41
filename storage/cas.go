// Package storage persists ledger snapshots in content-addressable stores.
//
// Every block is keyed by a CIDv1 (raw codec, sha2-256 multihash) computed from
// its bytes, so a snapshot CID pins the exact bank state it was taken from.
package storage

import "github.com/ipfs/go-cid"

// CAS is a minimal content-addressable block store.
//
// Contract:
// - Put MUST be idempotent.
// - Stored blocks MUST be immutable.
// - The CID MUST be ComputeCID(bytes).
// - Get MUST return ErrNotFound when the CID is absent.
type CAS interface {
	Put(bytes []byte) (cid.Cid, error)
	Get(id cid.Cid) ([]byte, error)
	Has(id cid.Cid) bool
}
