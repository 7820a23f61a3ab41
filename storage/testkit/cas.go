// Package testkit holds the conformance suite every storage.CAS must pass.
package testkit

import (
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/pdavault/storage"
)

// NewCAS constructs a fresh, empty CAS for one subtest.
type NewCAS func(t *testing.T) storage.CAS

func RunCASConformance(t *testing.T, newCAS NewCAS) {
	t.Helper()

	t.Run("PutGetRoundTrip", func(t *testing.T) {
		cas := newCAS(t)
		want := []byte("bank snapshot bytes")

		id, err := cas.Put(want)
		require.NoError(t, err)
		wantID, err := storage.ComputeCID(want)
		require.NoError(t, err)
		assert.True(t, id.Equals(wantID), "got %s want %s", id, wantID)

		got, err := cas.Get(id)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("PutIdempotent", func(t *testing.T) {
		cas := newCAS(t)
		b := []byte("same bytes")

		id1, err := cas.Put(b)
		require.NoError(t, err)
		id2, err := cas.Put(b)
		require.NoError(t, err)
		assert.True(t, id1.Equals(id2))
	})

	t.Run("HasAndNotFound", func(t *testing.T) {
		cas := newCAS(t)
		b := []byte("missing")
		id, err := storage.ComputeCID(b)
		require.NoError(t, err)

		assert.False(t, cas.Has(id))
		_, err = cas.Get(id)
		assert.True(t, storage.IsNotFound(err), "got %v", err)

		_, err = cas.Put(b)
		require.NoError(t, err)
		assert.True(t, cas.Has(id))
	})

	t.Run("RejectUndefCID", func(t *testing.T) {
		cas := newCAS(t)
		assert.False(t, cas.Has(cid.Undef))
		_, err := cas.Get(cid.Undef)
		assert.Error(t, err)
	})
}
