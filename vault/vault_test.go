package vault

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/pdavault/address"
	"xdao.co/pdavault/errs"
	"xdao.co/pdavault/ledger"
	"xdao.co/pdavault/record"
)

var programID = address.MustParse("GxpAtbXpkbDu5b86TidcmuF5RF9UJm821rqJ5W3S4T12")

const (
	floor     = 890_880
	stateRent = 1_127_520
)

func key(b byte) address.Address {
	var a address.Address
	for i := range a {
		a[i] = b
	}
	return a
}

func writable(addr address.Address, lamports uint64) *ledger.AccountInfo {
	return &ledger.AccountInfo{
		Account:    &ledger.Account{Address: addr, Owner: address.SystemProgram, Lamports: lamports},
		IsWritable: true,
	}
}

type fixture struct {
	p     *Program
	addrs Addresses
	acc   Accounts
}

func newFixture(t *testing.T, owner address.Address, ownerLamports uint64) *fixture {
	t.Helper()
	addrs, err := FindAddresses(programID, owner)
	require.NoError(t, err)

	o := writable(owner, ownerLamports)
	o.IsSigner = true
	return &fixture{
		p:     New(programID),
		addrs: addrs,
		acc: Accounts{
			Owner:   o,
			State:   writable(addrs.State, 0),
			Custody: writable(addrs.Custody, 0),
		},
	}
}

func initialized(t *testing.T, ownerLamports uint64) *fixture {
	t.Helper()
	f := newFixture(t, key(1), ownerLamports)
	require.NoError(t, f.p.Initialize(f.acc))
	return f
}

func (f *fixture) snapshot() [3]ledger.Account {
	return [3]ledger.Account{*f.acc.Owner.Clone(), *f.acc.State.Clone(), *f.acc.Custody.Clone()}
}

func TestRentConstants(t *testing.T) {
	p := New(programID)
	assert.EqualValues(t, floor, p.CustodyFloor())
	assert.EqualValues(t, stateRent, p.StateRent())
}

func TestDerivationChain(t *testing.T) {
	addrs, err := FindAddresses(programID, key(1))
	require.NoError(t, err)

	assert.True(t, address.VerifyDerivation(addrs.State, StateSeeds(key(1)), addrs.StateBump, programID))
	assert.True(t, address.VerifyDerivation(addrs.Custody, VaultSeeds(addrs.State), addrs.VaultBump, programID))
	assert.False(t, address.IsOnCurve(addrs.State[:]))
	assert.False(t, address.IsOnCurve(addrs.Custody[:]))

	other, err := FindAddresses(programID, key(2))
	require.NoError(t, err)
	assert.NotEqual(t, addrs.State, other.State)
	assert.NotEqual(t, addrs.Custody, other.Custody)
}

func TestInitialize(t *testing.T) {
	f := newFixture(t, key(1), 10_000_000_000)
	require.NoError(t, f.p.Initialize(f.acc))

	assert.EqualValues(t, 10_000_000_000-stateRent-floor, f.acc.Owner.Lamports)
	assert.EqualValues(t, stateRent, f.acc.State.Lamports)
	assert.EqualValues(t, floor, f.acc.Custody.Lamports)
	assert.Equal(t, programID, f.acc.State.Owner)
	assert.Equal(t, address.SystemProgram, f.acc.Custody.Owner)

	rec, err := record.Decode(f.acc.State.Data)
	require.NoError(t, err)
	assert.Equal(t, key(1), rec.Owner)
	assert.Equal(t, f.addrs.StateBump, rec.StateBump)
	assert.Equal(t, f.addrs.VaultBump, rec.VaultBump)
}

func TestInitializeWithFundedCustodySkipsTopUp(t *testing.T) {
	f := newFixture(t, key(1), 10_000_000_000)
	f.acc.Custody.Lamports = 2_000_000_000

	require.NoError(t, f.p.Initialize(f.acc))
	assert.EqualValues(t, 10_000_000_000-stateRent, f.acc.Owner.Lamports)
	assert.EqualValues(t, 2_000_000_000, f.acc.Custody.Lamports)
}

func TestInitializeRejections(t *testing.T) {
	t.Run("twice", func(t *testing.T) {
		f := initialized(t, 10_000_000_000)
		before := f.snapshot()
		err := f.p.Initialize(f.acc)
		assert.True(t, errs.IsKind(err, errs.KindAlreadyInitialized))
		assert.Equal(t, before, f.snapshot())
	})

	t.Run("unsigned", func(t *testing.T) {
		f := newFixture(t, key(1), 10_000_000_000)
		f.acc.Owner.IsSigner = false
		assert.True(t, errs.IsKind(f.p.Initialize(f.acc), errs.KindAuthorization))
	})

	t.Run("wrong state", func(t *testing.T) {
		f := newFixture(t, key(1), 10_000_000_000)
		f.acc.State = writable(key(5), 0)
		assert.True(t, errs.IsKind(f.p.Initialize(f.acc), errs.KindAddressMismatch))
	})

	t.Run("wrong custody", func(t *testing.T) {
		f := newFixture(t, key(1), 10_000_000_000)
		other, err := FindAddresses(programID, key(2))
		require.NoError(t, err)
		f.acc.Custody = writable(other.Custody, 0)
		assert.True(t, errs.IsKind(f.p.Initialize(f.acc), errs.KindAddressMismatch))
	})

	t.Run("owner cannot pay rent", func(t *testing.T) {
		f := newFixture(t, key(1), stateRent+floor-1)
		before := f.snapshot()
		assert.True(t, errs.IsKind(f.p.Initialize(f.acc), errs.KindInsufficientBalance))
		assert.Equal(t, before, f.snapshot())
		assert.False(t, f.acc.State.IsAllocated())
	})

	t.Run("missing handle", func(t *testing.T) {
		f := newFixture(t, key(1), 10_000_000_000)
		f.acc.Custody = nil
		assert.True(t, errs.IsKind(f.p.Initialize(f.acc), errs.KindInvalidInstruction))
	})
}

func TestDeposit(t *testing.T) {
	f := initialized(t, 20_000_000_000)
	ownerBefore := f.acc.Owner.Lamports

	require.NoError(t, f.p.Deposit(f.acc, 5_000_000_000))
	assert.EqualValues(t, ownerBefore-5_000_000_000, f.acc.Owner.Lamports)
	assert.EqualValues(t, floor+5_000_000_000, f.acc.Custody.Lamports)

	require.NoError(t, f.p.Deposit(f.acc, 0))
	assert.EqualValues(t, floor+5_000_000_000, f.acc.Custody.Lamports)
}

func TestDepositInsufficientLeavesBalances(t *testing.T) {
	f := initialized(t, 20_000_000_000)
	f.acc.Owner.Lamports = 10_000_000_000
	before := f.snapshot()

	err := f.p.Deposit(f.acc, 15_000_000_000)
	assert.True(t, errs.IsKind(err, errs.KindInsufficientBalance))
	assert.Equal(t, before, f.snapshot())
}

func TestDepositByStrangerRejected(t *testing.T) {
	f := initialized(t, 20_000_000_000)
	stranger := writable(key(2), 20_000_000_000)
	stranger.IsSigner = true

	acc := f.acc
	acc.Owner = stranger
	err := f.p.Deposit(acc, 1_000)
	assert.True(t, errs.IsKind(err, errs.KindAuthorization))
	assert.EqualValues(t, 20_000_000_000, stranger.Lamports)
	assert.EqualValues(t, floor, f.acc.Custody.Lamports)
}

func TestOperationsRejectMismatchedAddresses(t *testing.T) {
	f := initialized(t, 20_000_000_000)

	foreignCustody := writable(key(9), 5_000_000_000)
	acc := f.acc
	acc.Custody = foreignCustody
	assert.True(t, errs.IsKind(f.p.Deposit(acc, 1), errs.KindAddressMismatch))
	assert.True(t, errs.IsKind(f.p.Withdraw(acc, 1), errs.KindAddressMismatch))
	assert.True(t, errs.IsKind(f.p.Close(acc), errs.KindAddressMismatch))
	assert.EqualValues(t, 5_000_000_000, foreignCustody.Lamports)

	t.Run("tampered bump", func(t *testing.T) {
		rec, err := record.Decode(f.acc.State.Data)
		require.NoError(t, err)
		rec.VaultBump ^= 0x01
		copy(f.acc.State.Data, rec.Marshal())
		assert.True(t, errs.IsKind(f.p.Withdraw(f.acc, 0), errs.KindAddressMismatch))
	})
}

func TestWithdraw(t *testing.T) {
	f := initialized(t, 20_000_000_000)
	f.acc.Owner.Lamports = 5_000_000_000
	f.acc.Custody.Lamports = 8_000_000_000

	require.NoError(t, f.p.Withdraw(f.acc, 3_000_000_000))
	assert.EqualValues(t, 8_000_000_000, f.acc.Owner.Lamports)
	assert.EqualValues(t, 5_000_000_000, f.acc.Custody.Lamports)
}

func TestWithdrawKeepsFloor(t *testing.T) {
	f := initialized(t, 20_000_000_000)
	f.acc.Custody.Lamports = floor + 100

	before := f.snapshot()
	err := f.p.Withdraw(f.acc, 101)
	assert.True(t, errs.IsKind(err, errs.KindInsufficientBalance))
	assert.Equal(t, before, f.snapshot())

	require.NoError(t, f.p.Withdraw(f.acc, 100))
	assert.EqualValues(t, floor, f.acc.Custody.Lamports)

	assert.True(t, errs.IsKind(f.p.Withdraw(f.acc, 1), errs.KindInsufficientBalance))
	require.NoError(t, f.p.Withdraw(f.acc, 0))
}

func TestWithdrawFloorProperty(t *testing.T) {
	for _, tc := range []struct{ custody, amount uint64 }{
		{floor, 0},
		{floor, 1},
		{floor + 1, 1},
		{floor + 1, 2},
		{3_000_000_000, 3_000_000_000 - floor},
		{3_000_000_000, 3_000_000_000},
	} {
		f := initialized(t, 20_000_000_000)
		f.acc.Custody.Lamports = tc.custody
		ownerBefore := f.acc.Owner.Lamports

		err := f.p.Withdraw(f.acc, tc.amount)
		if tc.amount <= Withdrawable(tc.custody, floor) {
			require.NoError(t, err)
			assert.EqualValues(t, tc.custody-tc.amount, f.acc.Custody.Lamports)
			assert.EqualValues(t, ownerBefore+tc.amount, f.acc.Owner.Lamports)
		} else {
			assert.True(t, errs.IsKind(err, errs.KindInsufficientBalance))
			assert.EqualValues(t, tc.custody, f.acc.Custody.Lamports)
		}
		assert.GreaterOrEqual(t, f.acc.Custody.Lamports, uint64(floor))
	}
}

func TestWithdrawByStrangerRejected(t *testing.T) {
	f := initialized(t, 20_000_000_000)
	f.acc.Custody.Lamports = 5_000_000_000

	stranger := writable(key(2), 0)
	stranger.IsSigner = true
	acc := f.acc
	acc.Owner = stranger

	assert.True(t, errs.IsKind(f.p.Withdraw(acc, 1_000), errs.KindAuthorization))
	assert.Zero(t, stranger.Lamports)
	assert.EqualValues(t, 5_000_000_000, f.acc.Custody.Lamports)
}

func TestClose(t *testing.T) {
	f := initialized(t, 20_000_000_000)
	f.acc.Owner.Lamports = 5_000_000_000
	f.acc.Custody.Lamports = 2_000_000_000

	require.NoError(t, f.p.Close(f.acc))
	assert.EqualValues(t, 5_000_000_000+2_000_000_000+stateRent, f.acc.Owner.Lamports)
	assert.Zero(t, f.acc.Custody.Lamports)
	assert.Zero(t, f.acc.State.Lamports)
	assert.False(t, f.acc.State.IsAllocated())

	assert.True(t, errs.IsKind(f.p.Deposit(f.acc, 1), errs.KindNotFound))
	assert.True(t, errs.IsKind(f.p.Withdraw(f.acc, 0), errs.KindNotFound))
	assert.True(t, errs.IsKind(f.p.Close(f.acc), errs.KindNotFound))
}

func TestCloseUnsignedRejected(t *testing.T) {
	f := initialized(t, 20_000_000_000)
	f.acc.Owner.IsSigner = false
	before := f.snapshot()

	assert.True(t, errs.IsKind(f.p.Close(f.acc), errs.KindAuthorization))
	assert.Equal(t, before, f.snapshot())
}

func TestReinitializeAfterClose(t *testing.T) {
	f := initialized(t, 20_000_000_000)
	require.NoError(t, f.p.Close(f.acc))
	require.NoError(t, f.p.Initialize(f.acc))

	assert.EqualValues(t, stateRent, f.acc.State.Lamports)
	assert.EqualValues(t, floor, f.acc.Custody.Lamports)
	assert.EqualValues(t, 20_000_000_000-stateRent-floor, f.acc.Owner.Lamports)
}

func TestFailedInitializeChangesNothing(t *testing.T) {
	f := newFixture(t, key(1), 10_000_000_000)
	f.acc.Custody.IsWritable = false
	before := f.snapshot()

	err := f.p.Initialize(f.acc)
	require.Error(t, err)
	assert.Equal(t, before, f.snapshot())
}

func TestGuardRestoresAfterPartialMutation(t *testing.T) {
	f := newFixture(t, key(1), 10_000_000_000)
	before := f.snapshot()

	err := f.p.guard("test", f.acc, func() error {
		f.acc.Owner.Lamports = 1
		f.acc.State.Data = []byte{9}
		return errs.New(errs.KindInternal, "TEST", "late failure")
	})
	require.Error(t, err)
	assert.Equal(t, before, f.snapshot())
}
