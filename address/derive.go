package address

import (
	"fmt"

	"filippo.io/edwards25519"
	"github.com/minio/sha256-simd"

	"xdao.co/pdavault/errs"
)

const (
	// MaxSeeds is the maximum number of caller seeds (the bump is not counted).
	MaxSeeds = 16
	// MaxSeedLength is the maximum byte length of a single seed.
	MaxSeedLength = 32
)

var pdaMarker = []byte("ProgramDerivedAddress")

// IsOnCurve reports whether b decodes to a point on the Ed25519 curve.
//
// Non-canonical encodings of valid points are accepted, matching the host's
// point decompression rules.
func IsOnCurve(b []byte) bool {
	if len(b) != Size {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}

func checkSeeds(seeds [][]byte) error {
	if len(seeds) > MaxSeeds {
		return errInvalidSeeds(fmt.Sprintf("too many seeds: %d > %d", len(seeds), MaxSeeds))
	}
	for i, s := range seeds {
		if len(s) > MaxSeedLength {
			return errInvalidSeeds(fmt.Sprintf("seed %d is %d bytes, max %d", i, len(s), MaxSeedLength))
		}
	}
	return nil
}

func hashCandidate(seeds [][]byte, bump uint8, program Address) Address {
	h := sha256.New()
	for _, s := range seeds {
		_, _ = h.Write(s)
	}
	_, _ = h.Write([]byte{bump})
	_, _ = h.Write(program[:])
	_, _ = h.Write(pdaMarker)

	var out Address
	copy(out[:], h.Sum(nil))
	return out
}

// CreateProgramAddress computes the derived address for an explicit bump.
//
// It fails with KindInvalidSeeds when the seeds are out of bounds or when the
// hash lands on the curve (such an address is not a valid derived address).
func CreateProgramAddress(seeds [][]byte, bump uint8, program Address) (Address, error) {
	if err := checkSeeds(seeds); err != nil {
		return Address{}, err
	}
	candidate := hashCandidate(seeds, bump, program)
	if IsOnCurve(candidate[:]) {
		return Address{}, errInvalidSeeds("derived address is on the ed25519 curve")
	}
	return candidate, nil
}

// Derive searches bumps from 255 down to 0 and returns the first off-curve
// address with its bump. The result is a pure function of (seeds, program).
func Derive(seeds [][]byte, program Address) (Address, uint8, error) {
	if err := checkSeeds(seeds); err != nil {
		return Address{}, 0, err
	}
	for bump := 255; bump >= 0; bump-- {
		candidate := hashCandidate(seeds, uint8(bump), program)
		if !IsOnCurve(candidate[:]) {
			return candidate, uint8(bump), nil
		}
	}
	return Address{}, 0, errs.New(errs.KindDerivationExhausted, "VAULT-DRV-001", "no bump yields an off-curve address")
}

// VerifyDerivation recomputes the address for the given bump only and reports
// whether it equals addr and is off-curve. It never searches.
func VerifyDerivation(addr Address, seeds [][]byte, bump uint8, program Address) bool {
	derived, err := CreateProgramAddress(seeds, bump, program)
	if err != nil {
		return false
	}
	return derived == addr
}
