package rent

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultMinimumBalance(t *testing.T) {
	r := Default()
	assert.EqualValues(t, 890880, r.MinimumBalance(0))
	assert.EqualValues(t, 1127520, r.MinimumBalance(34))
	assert.EqualValues(t, 1183200, r.MinimumBalance(42))
}

func TestCustomParameters(t *testing.T) {
	r := Rent{LamportsPerByteYear: 1, ExemptionThreshold: 1}
	assert.EqualValues(t, 128, r.MinimumBalance(0))
	assert.EqualValues(t, 0, Rent{}.MinimumBalance(100))
}

func TestMinimumBalanceSaturates(t *testing.T) {
	r := Rent{LamportsPerByteYear: math.MaxUint64 / 2, ExemptionThreshold: 1}
	assert.EqualValues(t, uint64(math.MaxUint64), r.MinimumBalance(0))

	r = Rent{LamportsPerByteYear: 1 << 40, ExemptionThreshold: 1e9}
	assert.EqualValues(t, uint64(math.MaxUint64), r.MinimumBalance(0))

	limit := Rent{LamportsPerByteYear: MaxLamportsPerByteYear, ExemptionThreshold: MaxExemptionThreshold}
	require.NoError(t, limit.Validate())
	assert.Less(t, limit.MinimumBalance(MaxDataLen), uint64(math.MaxUint64))
}

func TestValidate(t *testing.T) {
	require.NoError(t, Default().Validate())
	for name, r := range map[string]Rent{
		"zero rate":      {LamportsPerByteYear: 0, ExemptionThreshold: 2},
		"huge rate":      {LamportsPerByteYear: MaxLamportsPerByteYear + 1, ExemptionThreshold: 2},
		"zero threshold": {LamportsPerByteYear: 1, ExemptionThreshold: 0},
		"huge threshold": {LamportsPerByteYear: 1, ExemptionThreshold: MaxExemptionThreshold * 2},
		"nan threshold":  {LamportsPerByteYear: 1, ExemptionThreshold: math.NaN()},
	} {
		assert.Error(t, r.Validate(), name)
	}
}
