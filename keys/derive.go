package keys

import (
	"fmt"
	"io"

	"github.com/cloudflare/circl/sign/ed25519"
	"github.com/minio/sha256-simd"
	"github.com/pkg/errors"
	"golang.org/x/crypto/hkdf"

	"xdao.co/pdavault/address"
	"xdao.co/pdavault/instruction"
)

const derivationDomain = "pdavault-owner-key-v1"

// DeriveOwnerSeed deterministically derives a labelled Ed25519 seed from a
// root seed with HKDF-SHA256. The domain string is the salt and the label
// is bound into the info parameter.
func DeriveOwnerSeed(rootSeed []byte, label string) ([]byte, error) {
	if len(rootSeed) != ed25519.SeedSize {
		return nil, fmt.Errorf("root seed must be %d bytes", ed25519.SeedSize)
	}
	if err := CheckLabel(label); err != nil {
		return nil, err
	}

	r := hkdf.New(sha256.New, rootSeed, []byte(derivationDomain), []byte("label:"+label))
	out := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, errors.Wrap(err, "derive owner seed")
	}
	return out, nil
}

// OwnerKey is an owner's signing key and the address it controls.
type OwnerKey struct {
	Address    address.Address
	PrivateKey ed25519.PrivateKey
}

func OwnerKeyFromSeed(seed []byte) (OwnerKey, error) {
	if len(seed) != ed25519.SeedSize {
		return OwnerKey{}, fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	addr, err := address.FromBytes(priv.Public().(ed25519.PublicKey))
	if err != nil {
		return OwnerKey{}, err
	}
	return OwnerKey{Address: addr, PrivateKey: priv}, nil
}

// SignTransaction adds k's signature to tx.
func (k OwnerKey) SignTransaction(tx *instruction.Transaction) error {
	return tx.Sign(k.PrivateKey)
}
