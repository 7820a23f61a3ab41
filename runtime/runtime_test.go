package runtime

import (
	"context"
	"testing"

	"github.com/cloudflare/circl/sign/ed25519"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"xdao.co/pdavault/address"
	"xdao.co/pdavault/errs"
	"xdao.co/pdavault/instruction"
	"xdao.co/pdavault/ledger"
	"xdao.co/pdavault/vault"
)

var programID = address.MustParse("GxpAtbXpkbDu5b86TidcmuF5RF9UJm821rqJ5W3S4T12")

const (
	floor     = 890_880
	stateRent = 1_127_520
)

type env struct {
	t     *testing.T
	rt    *Runtime
	bank  *ledger.Bank
	key   ed25519.PrivateKey
	owner address.Address
	addrs vault.Addresses
}

func newEnv(t *testing.T, seedByte byte, funding uint64) *env {
	t.Helper()
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = seedByte
	}
	key := ed25519.NewKeyFromSeed(seed)
	owner, err := address.FromBytes(key.Public().(ed25519.PublicKey))
	require.NoError(t, err)
	addrs, err := vault.FindAddresses(programID, owner)
	require.NoError(t, err)

	bank := ledger.NewBank()
	require.NoError(t, bank.Fund(owner, funding))

	log := zaptest.NewLogger(t)
	return &env{
		t:     t,
		rt:    New(bank, vault.New(programID, vault.WithLogger(log)), log),
		bank:  bank,
		key:   key,
		owner: owner,
		addrs: addrs,
	}
}

func (e *env) signed(ix *instruction.Instruction, err error) *instruction.Transaction {
	e.t.Helper()
	require.NoError(e.t, err)
	tx := instruction.NewTransaction(ix)
	tx.Nonce = e.bank.Account(ix.Accounts[instruction.AccountOwner].Address).Nonce
	require.NoError(e.t, tx.Sign(e.key))
	return tx
}

func (e *env) run(ix *instruction.Instruction, err error) (*Result, error) {
	e.t.Helper()
	return e.rt.Execute(context.Background(), e.signed(ix, err))
}

func (e *env) balance(addr address.Address) uint64 {
	return e.bank.Account(addr).Lamports
}

func TestFullVaultWorkflow(t *testing.T) {
	const (
		initial  = 10_000_000_000
		deposit  = 5_000_000_000
		withdraw = 2_000_000_000
	)
	e := newEnv(t, 1, initial)
	total := e.bank.TotalLamports()

	res, err := e.run(instruction.NewInitializeInstruction(programID, e.owner))
	require.NoError(t, err)
	assert.Equal(t, instruction.OpInitialize, res.Op)
	assert.EqualValues(t, initial-stateRent-floor, e.balance(e.owner))
	assert.EqualValues(t, stateRent, e.balance(e.addrs.State))
	assert.EqualValues(t, floor, e.balance(e.addrs.Custody))
	assert.Equal(t, programID, e.bank.Account(e.addrs.State).Owner)

	_, err = e.run(instruction.NewDepositInstruction(programID, e.owner, deposit))
	require.NoError(t, err)
	assert.EqualValues(t, floor+deposit, e.balance(e.addrs.Custody))

	res, err = e.run(instruction.NewWithdrawInstruction(programID, e.owner, withdraw))
	require.NoError(t, err)
	assert.EqualValues(t, withdraw, res.Amount)
	assert.EqualValues(t, floor+deposit-withdraw, e.balance(e.addrs.Custody))
	assert.EqualValues(t, initial-stateRent-floor-deposit+withdraw, e.balance(e.owner))

	_, err = e.run(instruction.NewCloseInstruction(programID, e.owner))
	require.NoError(t, err)
	assert.EqualValues(t, initial, e.balance(e.owner))
	assert.Zero(t, e.balance(e.addrs.Custody))
	assert.Zero(t, e.balance(e.addrs.State))
	assert.Equal(t, []address.Address{e.owner}, e.bank.Addresses())
	assert.EqualValues(t, 4, e.bank.Account(e.owner).Nonce)

	assert.Equal(t, total, e.bank.TotalLamports())
}

func TestRejectedInstructionCommitsNothing(t *testing.T) {
	e := newEnv(t, 1, 10_000_000_000)
	_, err := e.run(instruction.NewInitializeInstruction(programID, e.owner))
	require.NoError(t, err)
	before := e.bank.Snapshot()

	_, err = e.run(instruction.NewDepositInstruction(programID, e.owner, 15_000_000_000))
	assert.True(t, errs.IsKind(err, errs.KindInsufficientBalance))
	assert.Equal(t, before, e.bank.Snapshot())

	_, err = e.run(instruction.NewWithdrawInstruction(programID, e.owner, 1))
	assert.True(t, errs.IsKind(err, errs.KindInsufficientBalance))
	assert.Equal(t, before, e.bank.Snapshot())

	_, err = e.run(instruction.NewInitializeInstruction(programID, e.owner))
	assert.True(t, errs.IsKind(err, errs.KindAlreadyInitialized))
	assert.Equal(t, before, e.bank.Snapshot())
}

func TestSignerComesFromSignatures(t *testing.T) {
	victim := newEnv(t, 1, 10_000_000_000)
	_, err := victim.run(instruction.NewInitializeInstruction(programID, victim.owner))
	require.NoError(t, err)
	require.NoError(t, victim.bank.Fund(victim.addrs.Custody, 5_000_000_000))

	attacker := newEnv(t, 2, 0)
	attacker.rt = victim.rt
	attacker.bank = victim.bank

	// The attacker names the victim as signer but can only sign with their own key.
	ix, err := instruction.NewWithdrawInstruction(programID, victim.owner, 1_000_000_000)
	require.NoError(t, err)
	_, err = attacker.run(ix, nil)
	assert.True(t, errs.IsKind(err, errs.KindAuthorization))
	assert.EqualValues(t, floor+5_000_000_000, victim.balance(victim.addrs.Custody))

	unsigned := instruction.NewTransaction(ix)
	unsigned.Nonce = victim.bank.Account(victim.owner).Nonce
	_, err = victim.rt.Execute(context.Background(), unsigned)
	assert.True(t, errs.IsKind(err, errs.KindAuthorization))
}

func TestSignedTransactionRunsOnce(t *testing.T) {
	e := newEnv(t, 1, 10_000_000_000)
	initTx := e.signed(instruction.NewInitializeInstruction(programID, e.owner))
	_, err := e.rt.Execute(context.Background(), initTx)
	require.NoError(t, err)

	wire, err := e.signed(instruction.NewDepositInstruction(programID, e.owner, 1_000_000_000)).Marshal()
	require.NoError(t, err)
	submit := func() error {
		tx, err := instruction.Unmarshal(wire)
		require.NoError(t, err)
		_, err = e.rt.Execute(context.Background(), tx)
		return err
	}

	require.NoError(t, submit())
	before := e.bank.Snapshot()
	for i := 0; i < 3; i++ {
		err := submit()
		assert.True(t, errs.IsKind(err, errs.KindAuthorization))
		assert.Equal(t, "VAULT-RT-006", errs.Code(err))
	}
	assert.Equal(t, before, e.bank.Snapshot())
	assert.EqualValues(t, floor+1_000_000_000, e.balance(e.addrs.Custody))

	// A captured Initialize cannot recreate the vault after Close.
	_, err = e.run(instruction.NewCloseInstruction(programID, e.owner))
	require.NoError(t, err)
	_, err = e.rt.Execute(context.Background(), initTx)
	assert.True(t, errs.IsKind(err, errs.KindAuthorization))
	state := e.bank.Account(e.addrs.State)
	assert.False(t, state.IsAllocated())

	// The nonce survives a snapshot round trip.
	restored := ledger.NewBank()
	require.NoError(t, restored.Restore(e.bank.Snapshot()))
	assert.EqualValues(t, 3, restored.Account(e.owner).Nonce)
}

func TestStrangerCannotTouchVault(t *testing.T) {
	victim := newEnv(t, 1, 10_000_000_000)
	_, err := victim.run(instruction.NewInitializeInstruction(programID, victim.owner))
	require.NoError(t, err)

	stranger := newEnv(t, 2, 10_000_000_000)
	stranger.rt = victim.rt
	stranger.bank = victim.bank
	require.NoError(t, victim.bank.Fund(stranger.owner, 10_000_000_000))

	// Correct signature, but the stranger points at the victim's accounts.
	ix, err := instruction.NewDepositInstruction(programID, stranger.owner, 1_000)
	require.NoError(t, err)
	ix.Accounts[instruction.AccountState].Address = victim.addrs.State
	ix.Accounts[instruction.AccountCustody].Address = victim.addrs.Custody

	_, err = stranger.run(ix, nil)
	assert.True(t, errs.IsKind(err, errs.KindAuthorization))
	assert.EqualValues(t, floor, victim.balance(victim.addrs.Custody))
}

func TestExecuteRejectsMalformedTransactions(t *testing.T) {
	e := newEnv(t, 1, 10_000_000_000)

	t.Run("foreign program", func(t *testing.T) {
		ix, err := instruction.NewInitializeInstruction(address.MustParse("11111111111111111111111111111112"), e.owner)
		_, err = e.run(ix, err)
		assert.True(t, errs.IsKind(err, errs.KindInvalidInstruction))
	})

	t.Run("missing system account", func(t *testing.T) {
		ix, err := instruction.NewInitializeInstruction(programID, e.owner)
		require.NoError(t, err)
		ix.Accounts = ix.Accounts[:instruction.AccountSystem]
		_, err = e.run(ix, nil)
		assert.True(t, errs.IsKind(err, errs.KindInvalidInstruction))
	})

	t.Run("unknown discriminator", func(t *testing.T) {
		ix, err := instruction.NewCloseInstruction(programID, e.owner)
		require.NoError(t, err)
		ix.Data[0] ^= 0xff
		_, err = e.run(ix, nil)
		assert.True(t, errs.IsKind(err, errs.KindInvalidInstruction))
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		ix, err := instruction.NewInitializeInstruction(programID, e.owner)
		_, err = e.rt.Execute(ctx, e.signed(ix, err))
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("nil transaction", func(t *testing.T) {
		_, err := e.rt.Execute(context.Background(), nil)
		assert.True(t, errs.IsKind(err, errs.KindInvalidInstruction))
	})

	state := e.bank.Account(e.addrs.State)
	assert.False(t, state.IsAllocated())
}

func TestReinitializeAfterClose(t *testing.T) {
	e := newEnv(t, 1, 10_000_000_000)
	_, err := e.run(instruction.NewInitializeInstruction(programID, e.owner))
	require.NoError(t, err)
	_, err = e.run(instruction.NewCloseInstruction(programID, e.owner))
	require.NoError(t, err)

	_, err = e.run(instruction.NewDepositInstruction(programID, e.owner, 1))
	assert.True(t, errs.IsKind(err, errs.KindNotFound))

	_, err = e.run(instruction.NewInitializeInstruction(programID, e.owner))
	require.NoError(t, err)
	assert.EqualValues(t, floor, e.balance(e.addrs.Custody))
}
