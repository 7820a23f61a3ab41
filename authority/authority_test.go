package authority

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/pdavault/address"
	"xdao.co/pdavault/errs"
	"xdao.co/pdavault/ledger"
	"xdao.co/pdavault/record"
)

var program = address.MustParse("GxpAtbXpkbDu5b86TidcmuF5RF9UJm821rqJ5W3S4T12")

func owner(b byte) address.Address {
	var a address.Address
	for i := range a {
		a[i] = b
	}
	return a
}

func TestValidateOwner(t *testing.T) {
	a, b := owner(1), owner(2)
	rec := &record.VaultRecord{Owner: a}

	assert.NoError(t, ValidateOwner(rec, a))

	err := ValidateOwner(rec, b)
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindAuthorization))

	assert.True(t, errs.IsKind(ValidateOwner(nil, a), errs.KindNotFound))
}

func TestValidateAddress(t *testing.T) {
	seeds := [][]byte{[]byte("STATE"), owner(1).Bytes()}
	state, bump, err := address.Derive(seeds, program)
	require.NoError(t, err)

	assert.NoError(t, ValidateAddress(state, seeds, bump, program))

	err = ValidateAddress(owner(3), seeds, bump, program)
	assert.True(t, errs.IsKind(err, errs.KindAddressMismatch))

	err = ValidateAddress(state, seeds, bump^0x01, program)
	assert.True(t, errs.IsKind(err, errs.KindAddressMismatch))
}

func TestValidateExpected(t *testing.T) {
	assert.NoError(t, ValidateExpected("custody", owner(1), owner(1)))
	assert.True(t, errs.IsKind(ValidateExpected("custody", owner(1), owner(2)), errs.KindAddressMismatch))
}

func TestValidateSignerAndWritable(t *testing.T) {
	acct := &ledger.Account{Address: owner(1)}

	assert.NoError(t, ValidateSigner(&ledger.AccountInfo{Account: acct, IsSigner: true}))
	assert.True(t, errs.IsKind(ValidateSigner(&ledger.AccountInfo{Account: acct}), errs.KindAuthorization))
	assert.True(t, errs.IsKind(ValidateSigner(nil), errs.KindAuthorization))

	assert.NoError(t, ValidateWritable("owner", &ledger.AccountInfo{Account: acct, IsWritable: true}))
	assert.True(t, errs.IsKind(ValidateWritable("owner", &ledger.AccountInfo{Account: acct}), errs.KindAuthorization))
}

func TestLoadStateRecord(t *testing.T) {
	rec := record.VaultRecord{Owner: owner(1), StateBump: 255, VaultBump: 254}
	info := &ledger.AccountInfo{Account: &ledger.Account{
		Address:  owner(7),
		Owner:    program,
		Lamports: 1,
		Data:     rec.Marshal(),
	}}

	got, err := LoadStateRecord(info, program)
	require.NoError(t, err)
	assert.Equal(t, rec, *got)

	t.Run("unallocated", func(t *testing.T) {
		empty := &ledger.AccountInfo{Account: &ledger.Account{Address: owner(7)}}
		_, err := LoadStateRecord(empty, program)
		assert.True(t, errs.IsKind(err, errs.KindNotFound))
	})

	t.Run("foreign owner", func(t *testing.T) {
		foreign := &ledger.AccountInfo{Account: info.Clone()}
		foreign.Owner = owner(8)
		_, err := LoadStateRecord(foreign, program)
		assert.True(t, errs.IsKind(err, errs.KindNotFound))
	})

	t.Run("malformed", func(t *testing.T) {
		short := &ledger.AccountInfo{Account: info.Clone()}
		short.Data = short.Data[:10]
		_, err := LoadStateRecord(short, program)
		assert.True(t, errs.IsKind(err, errs.KindMalformedRecord))
	})

	t.Run("zeroed", func(t *testing.T) {
		zeroed := &ledger.AccountInfo{Account: info.Clone()}
		zeroed.Data = make([]byte, record.Size)
		_, err := LoadStateRecord(zeroed, program)
		assert.True(t, errs.IsKind(err, errs.KindNotFound))
	})
}
