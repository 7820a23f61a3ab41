// Package rent computes the minimum balance an account must hold to stay allocated.
package rent

import (
	"math"

	"github.com/pkg/errors"
)

const (
	// AccountStorageOverhead is the per-account metadata size charged on top of data.
	AccountStorageOverhead = 128

	DefaultLamportsPerByteYear = 3480
	DefaultExemptionThreshold  = 2.0

	// Upper bounds accepted by Validate. At MaxDataLen both limits keep the
	// floor well inside uint64.
	MaxLamportsPerByteYear = 1_000_000_000
	MaxExemptionThreshold  = 100.0
	MaxDataLen             = 10 << 20
)

// Rent holds the host's rent parameters.
type Rent struct {
	LamportsPerByteYear uint64  `mapstructure:"lamports_per_byte_year"`
	ExemptionThreshold  float64 `mapstructure:"exemption_threshold"`
}

// Default returns the host's default rent parameters.
func Default() Rent {
	return Rent{
		LamportsPerByteYear: DefaultLamportsPerByteYear,
		ExemptionThreshold:  DefaultExemptionThreshold,
	}
}

// Validate rejects parameters that are zero, negative, NaN or large enough to
// overflow MinimumBalance.
func (r Rent) Validate() error {
	if r.LamportsPerByteYear == 0 || r.LamportsPerByteYear > MaxLamportsPerByteYear {
		return errors.Errorf("rent: lamports_per_byte_year must be in [1, %d], got %d", uint64(MaxLamportsPerByteYear), r.LamportsPerByteYear)
	}
	if !(r.ExemptionThreshold > 0 && r.ExemptionThreshold <= MaxExemptionThreshold) {
		return errors.Errorf("rent: exemption_threshold must be in (0, %g], got %g", MaxExemptionThreshold, r.ExemptionThreshold)
	}
	return nil
}

// MinimumBalance returns the rent-exempt floor for an account holding dataLen
// bytes. Results that do not fit in uint64 saturate at math.MaxUint64.
func (r Rent) MinimumBalance(dataLen int) uint64 {
	bytes := uint64(AccountStorageOverhead + dataLen)
	if r.LamportsPerByteYear != 0 && bytes > math.MaxUint64/r.LamportsPerByteYear {
		return math.MaxUint64
	}
	floor := float64(bytes*r.LamportsPerByteYear) * r.ExemptionThreshold
	if floor >= math.MaxUint64 {
		return math.MaxUint64
	}
	return uint64(floor)
}
