// Package runtime is the host side of the vault: it authenticates a signed
// transaction, loads the accounts it names from the bank and runs the vault
// operation inside one atomic bank transaction.
package runtime

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"xdao.co/pdavault/address"
	"xdao.co/pdavault/errs"
	"xdao.co/pdavault/instruction"
	"xdao.co/pdavault/ledger"
	"xdao.co/pdavault/vault"
)

// Result describes a committed instruction.
type Result struct {
	Op     instruction.Op
	Amount uint64
	// Accounts holds the post-state of every account the instruction named, in
	// instruction order.
	Accounts []ledger.Account
}

type Runtime struct {
	bank    *ledger.Bank
	program *vault.Program
	log     *zap.Logger
}

func New(bank *ledger.Bank, program *vault.Program, log *zap.Logger) *Runtime {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runtime{
		bank:    bank,
		program: program,
		log:     log.With(zap.String("program", program.ID().String())),
	}
}

func (r *Runtime) Bank() *ledger.Bank { return r.bank }

func (r *Runtime) Program() *vault.Program { return r.program }

// Execute verifies and runs tx. Either every balance change it makes is
// committed or none is. A committed transaction advances the owner's nonce, so
// resubmitting the same signed bytes is rejected.
func (r *Runtime) Execute(ctx context.Context, tx *instruction.Transaction) (*Result, error) {
	start := time.Now()
	log := r.log

	res, err := r.execute(ctx, tx)
	if res != nil {
		log = log.With(zap.String("op", res.Op.String()), zap.Uint64("amount", res.Amount))
	}
	if tx != nil && len(tx.Instruction.Accounts) > 0 {
		log = log.With(zap.String("owner", tx.Instruction.Accounts[instruction.AccountOwner].Address.String()))
	}
	log = log.With(zap.Duration("elapsed", time.Since(start)))

	if err != nil {
		log.With(
			zap.Error(err),
			zap.String("kind", string(errs.KindOf(err))),
			zap.String("code", errs.Code(err)),
		).Info("instruction rejected")
		return nil, err
	}
	log.Info("instruction committed")
	return res, nil
}

func (r *Runtime) execute(ctx context.Context, tx *instruction.Transaction) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, errs.New(errs.KindInvalidInstruction, "VAULT-RT-001", "missing transaction")
	}
	if err := tx.Verify(); err != nil {
		return nil, err
	}

	ix := &tx.Instruction
	if ix.Program != r.program.ID() {
		return nil, errs.New(errs.KindInvalidInstruction, "VAULT-RT-002", "instruction targets program "+ix.Program.String())
	}
	op, amount, err := instruction.Decode(ix.Data)
	if err != nil {
		return nil, err
	}
	if len(ix.Accounts) != instruction.AccountCount {
		return nil, errs.New(errs.KindInvalidInstruction, "VAULT-RT-003", fmt.Sprintf("%s expects %d accounts, got %d", op, instruction.AccountCount, len(ix.Accounts)))
	}
	if ix.Accounts[instruction.AccountSystem].Address != address.SystemProgram {
		return nil, errs.New(errs.KindInvalidInstruction, "VAULT-RT-004", "fourth account must be the system program")
	}

	res := &Result{Op: op, Amount: amount}
	err = r.bank.Atomic(func(btx *ledger.Tx) error {
		infos := make([]*ledger.AccountInfo, len(ix.Accounts))
		for i, meta := range ix.Accounts {
			infos[i] = &ledger.AccountInfo{
				Account:    btx.Load(meta.Address),
				IsSigner:   meta.IsSigner && tx.SignedBy(meta.Address),
				IsWritable: meta.IsWritable,
			}
		}

		owner := infos[instruction.AccountOwner]
		if tx.Nonce != owner.Nonce {
			return errs.New(errs.KindAuthorization, "VAULT-RT-006",
				fmt.Sprintf("stale nonce %d for %s, expected %d", tx.Nonce, owner.Address, owner.Nonce))
		}

		accounts := vault.Accounts{
			Owner:   owner,
			State:   infos[instruction.AccountState],
			Custody: infos[instruction.AccountCustody],
		}
		if err := r.dispatch(op, amount, accounts); err != nil {
			return err
		}
		owner.Nonce++

		res.Accounts = make([]ledger.Account, len(infos))
		for i, info := range infos {
			res.Accounts[i] = *info.Clone()
		}
		return nil
	})
	return res, err
}

func (r *Runtime) dispatch(op instruction.Op, amount uint64, a vault.Accounts) error {
	switch op {
	case instruction.OpInitialize:
		return r.program.Initialize(a)
	case instruction.OpDeposit:
		return r.program.Deposit(a, amount)
	case instruction.OpWithdraw:
		return r.program.Withdraw(a, amount)
	case instruction.OpClose:
		return r.program.Close(a)
	default:
		return errs.New(errs.KindInvalidInstruction, "VAULT-RT-005", "unsupported op "+op.String())
	}
}
