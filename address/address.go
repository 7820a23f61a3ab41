// Package address implements 32-byte account addresses and program-derived
// address (PDA) derivation.
//
// A derived address is the SHA-256 of its seeds, a one-byte bump, the owning
// program and a fixed marker, chosen so that the result is not a valid Ed25519
// point. No private key can exist for such an address; the owning program
// authorizes spending from it by presenting the seeds and bump again (a Proof).
package address

import (
	"bytes"
	"fmt"

	"github.com/mr-tron/base58"

	"xdao.co/pdavault/errs"
)

// Size is the byte length of an address.
const Size = 32

// Address is an Ed25519 public key or a program-derived address.
type Address [Size]byte

// SystemProgram is the address of the host's native value-transfer program.
var SystemProgram Address

// FromBytes copies b into an Address.
func FromBytes(b []byte) (Address, error) {
	var a Address
	if len(b) != Size {
		return a, fmt.Errorf("address must be %d bytes, got %d", Size, len(b))
	}
	copy(a[:], b)
	return a, nil
}

// Parse decodes a base58 address string.
func Parse(s string) (Address, error) {
	decoded, err := base58.Decode(s)
	if err != nil {
		return Address{}, fmt.Errorf("invalid base58 address %q: %w", s, err)
	}
	return FromBytes(decoded)
}

// MustParse is like Parse but panics on error. Use for compile-time constants only.
func MustParse(s string) Address {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Address) String() string { return base58.Encode(a[:]) }

func (a Address) Bytes() []byte {
	out := make([]byte, Size)
	copy(out, a[:])
	return out
}

func (a Address) IsZero() bool { return a == Address{} }

func (a Address) Equal(b Address) bool { return bytes.Equal(a[:], b[:]) }

// Compare orders addresses bytewise. Used for deterministic iteration.
func Compare(a, b Address) int { return bytes.Compare(a[:], b[:]) }

func errInvalidSeeds(msg string) error {
	return errs.New(errs.KindInvalidSeeds, "VAULT-DRV-002", msg)
}
