// Package transfer moves lamports between accounts on behalf of the vault program.
//
// Value leaves a key-held account only if the host marked it as a signer. Value
// leaves a derived address only if the caller presents an address.Proof that
// re-derives it under the executor's program. Every call checks everything
// before it mutates anything, so a failed call changes no balance.
package transfer

import (
	"fmt"
	"math"

	"xdao.co/pdavault/address"
	"xdao.co/pdavault/errs"
	"xdao.co/pdavault/ledger"
)

// Executor is the value-transfer primitive bound to one program namespace.
type Executor struct {
	program address.Address
}

func NewExecutor(program address.Address) *Executor {
	return &Executor{program: program}
}

func (e *Executor) Program() address.Address { return e.program }

// Transfer moves amount from a signing, system-owned account to to.
func (e *Executor) Transfer(from, to *ledger.AccountInfo, amount uint64) error {
	if from == nil || !from.IsSigner {
		return errs.New(errs.KindAuthorization, "VAULT-XFER-001", "transfer source did not sign")
	}
	if err := checkMove(from, to, amount); err != nil {
		return err
	}
	move(from, to, amount)
	return nil
}

// TransferSigned moves amount out of a derived address. proof must re-derive
// from's address under the executor's program.
func (e *Executor) TransferSigned(proof address.Proof, from, to *ledger.AccountInfo, amount uint64) error {
	if from == nil || from.Account == nil {
		return errs.New(errs.KindInternal, "VAULT-XFER-002", "missing transfer source")
	}
	if err := proof.Authorizes(from.Address, e.program); err != nil {
		return err
	}
	if err := checkMove(from, to, amount); err != nil {
		return err
	}
	move(from, to, amount)
	return nil
}

// CreateAccount funds target from funder, allocates space zeroed bytes and
// assigns target to owner. target must be a derived address proven by proof,
// and must not be allocated yet.
func (e *Executor) CreateAccount(funder, target *ledger.AccountInfo, proof address.Proof, lamports uint64, space int, owner address.Address) error {
	if funder == nil || !funder.IsSigner {
		return errs.New(errs.KindAuthorization, "VAULT-XFER-010", "funder did not sign")
	}
	if target == nil || target.Account == nil {
		return errs.New(errs.KindInternal, "VAULT-XFER-011", "missing target account")
	}
	if err := proof.Authorizes(target.Address, e.program); err != nil {
		return err
	}
	if target.IsAllocated() {
		return errs.New(errs.KindAlreadyInitialized, "VAULT-XFER-012", fmt.Sprintf("account %s is already allocated", target.Address))
	}
	if !target.IsWritable {
		return errs.New(errs.KindAuthorization, "VAULT-XFER-013", "target account is not writable")
	}
	if err := checkMove(funder, target, lamports); err != nil {
		return err
	}

	move(funder, target, lamports)
	target.Data = make([]byte, space)
	target.Owner = owner
	return nil
}

// Reclaim closes a program-owned account: its whole balance goes to recipient,
// its data is zeroed and released, and ownership returns to the system
// program. It returns the lamports released.
func (e *Executor) Reclaim(account, recipient *ledger.AccountInfo) (uint64, error) {
	if account == nil || account.Account == nil || recipient == nil || recipient.Account == nil {
		return 0, errs.New(errs.KindInternal, "VAULT-XFER-020", "missing reclaim account")
	}
	if account.Owner != e.program {
		return 0, errs.New(errs.KindAuthorization, "VAULT-XFER-021", "program does not own "+account.Address.String())
	}
	if !account.IsWritable || !recipient.IsWritable {
		return 0, errs.New(errs.KindAuthorization, "VAULT-XFER-022", "reclaim accounts must be writable")
	}
	if account.Account == recipient.Account {
		return 0, errs.New(errs.KindInternal, "VAULT-XFER-023", "cannot reclaim into the same account")
	}
	released := account.Lamports
	if recipient.Lamports > math.MaxUint64-released {
		return 0, errs.New(errs.KindInternal, "VAULT-XFER-024", "recipient balance overflow")
	}

	recipient.Lamports += released
	account.Lamports = 0
	for i := range account.Data {
		account.Data[i] = 0
	}
	account.Data = nil
	account.Owner = address.SystemProgram
	return released, nil
}

func checkMove(from, to *ledger.AccountInfo, amount uint64) error {
	if from == nil || from.Account == nil || to == nil || to.Account == nil {
		return errs.New(errs.KindInternal, "VAULT-XFER-030", "missing transfer account")
	}
	if !from.IsWritable || !to.IsWritable {
		return errs.New(errs.KindAuthorization, "VAULT-XFER-031", "transfer accounts must be writable")
	}
	if from.Owner != address.SystemProgram || len(from.Data) != 0 {
		return errs.New(errs.KindInvalidInstruction, "VAULT-XFER-032", "transfer source must be a plain system account")
	}
	if from.Lamports < amount {
		return errs.New(errs.KindInsufficientBalance, "VAULT-BAL-001", fmt.Sprintf("insufficient funds: have %d, need %d", from.Lamports, amount))
	}
	if from.Account != to.Account && to.Lamports > math.MaxUint64-amount {
		return errs.New(errs.KindInternal, "VAULT-XFER-033", "destination balance overflow")
	}
	return nil
}

func move(from, to *ledger.AccountInfo, amount uint64) {
	if from.Account == to.Account {
		return
	}
	from.Lamports -= amount
	to.Lamports += amount
}
