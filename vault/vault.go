// Package vault implements the single-owner custody vault lifecycle:
// Initialize, Deposit, Withdraw and Close.
//
// Funds sit at a custody address derived from the owner's state address, so
// no private key exists for it. Only this program can move value out, by
// re-proving the custody derivation on every withdrawal. Every operation checks
// signer, ownership and both derived addresses before any balance moves, and a
// failed operation restores every account handle it was given.
package vault

import (
	"fmt"

	"go.uber.org/zap"

	"xdao.co/pdavault/address"
	"xdao.co/pdavault/authority"
	"xdao.co/pdavault/errs"
	"xdao.co/pdavault/ledger"
	"xdao.co/pdavault/record"
	"xdao.co/pdavault/rent"
	"xdao.co/pdavault/transfer"
)

// Accounts are the handles every operation takes, in wire order.
type Accounts struct {
	// Owner is the owner's funding account; it must be a signer.
	Owner *ledger.AccountInfo
	// State is the claimed state record address.
	State *ledger.AccountInfo
	// Custody is the claimed custody address.
	Custody *ledger.AccountInfo
}

// Program is the vault program bound to one program address.
type Program struct {
	id   address.Address
	rent rent.Rent
	xfer *transfer.Executor
	log  *zap.Logger
}

type Option func(*Program)

func WithRent(r rent.Rent) Option {
	return func(p *Program) { p.rent = r }
}

func WithLogger(log *zap.Logger) Option {
	return func(p *Program) {
		if log != nil {
			p.log = log
		}
	}
}

func New(id address.Address, opts ...Option) *Program {
	p := &Program{
		id:   id,
		rent: rent.Default(),
		xfer: transfer.NewExecutor(id),
		log:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Program) ID() address.Address { return p.id }

// CustodyFloor is the rent-exempt minimum the custody address keeps while the
// vault is active.
func (p *Program) CustodyFloor() uint64 { return p.rent.MinimumBalance(0) }

// StateRent is the balance that keeps the state record allocated.
func (p *Program) StateRent() uint64 { return p.rent.MinimumBalance(record.Size) }

// Initialize creates the owner's state record and funds custody up to the floor.
func (p *Program) Initialize(a Accounts) error {
	return p.guard("initialize", a, func() error {
		if err := checkHandles(a); err != nil {
			return err
		}
		if err := authority.ValidateSigner(a.Owner); err != nil {
			return err
		}
		if err := authority.ValidateWritable("owner", a.Owner); err != nil {
			return err
		}
		if err := authority.ValidateWritable("state", a.State); err != nil {
			return err
		}
		if err := authority.ValidateWritable("custody", a.Custody); err != nil {
			return err
		}

		owner := a.Owner.Address
		addrs, err := FindAddresses(p.id, owner)
		if err != nil {
			return err
		}
		if err := authority.ValidateExpected("state", a.State.Address, addrs.State); err != nil {
			return err
		}
		if err := authority.ValidateExpected("custody", a.Custody.Address, addrs.Custody); err != nil {
			return err
		}
		if err := checkCustodyKind(a.Custody); err != nil {
			return err
		}
		if a.State.IsAllocated() {
			return errs.New(errs.KindAlreadyInitialized, "VAULT-LIFE-001", "vault is already initialized for "+owner.String())
		}

		stateRent := p.StateRent()
		floor := p.CustodyFloor()
		var topUp uint64
		if a.Custody.Lamports < floor {
			topUp = floor - a.Custody.Lamports
		}
		if need := stateRent + topUp; a.Owner.Lamports < need {
			return errs.New(errs.KindInsufficientBalance, "VAULT-BAL-003", fmt.Sprintf("owner cannot cover vault rent: have %d, need %d", a.Owner.Lamports, need))
		}

		stateProof := address.NewProof(StateSeeds(owner), addrs.StateBump, p.id)
		if err := p.xfer.CreateAccount(a.Owner, a.State, stateProof, stateRent, record.Size, p.id); err != nil {
			return err
		}
		if topUp > 0 {
			if err := p.xfer.Transfer(a.Owner, a.Custody, topUp); err != nil {
				return err
			}
		}

		rec := record.VaultRecord{Owner: owner, StateBump: addrs.StateBump, VaultBump: addrs.VaultBump}
		copy(a.State.Data, rec.Marshal())

		p.log.Debug("vault initialized",
			zap.String("owner", owner.String()),
			zap.String("state", addrs.State.String()),
			zap.String("custody", addrs.Custody.String()),
			zap.Uint64("custody_top_up", topUp),
		)
		return nil
	})
}

// Deposit moves amount from the owner into custody.
func (p *Program) Deposit(a Accounts, amount uint64) error {
	return p.guard("deposit", a, func() error {
		if _, err := p.loadVault(a); err != nil {
			return err
		}
		if err := p.xfer.Transfer(a.Owner, a.Custody, amount); err != nil {
			return err
		}
		p.log.Debug("vault deposit", zap.String("owner", a.Owner.Address.String()), zap.Uint64("amount", amount))
		return nil
	})
}

// Withdraw moves amount from custody to the owner. The custody balance must
// stay at or above the floor afterwards.
func (p *Program) Withdraw(a Accounts, amount uint64) error {
	return p.guard("withdraw", a, func() error {
		rec, err := p.loadVault(a)
		if err != nil {
			return err
		}

		available := Withdrawable(a.Custody.Lamports, p.CustodyFloor())
		if amount > available {
			return errs.New(errs.KindInsufficientBalance, "VAULT-BAL-002", fmt.Sprintf("withdraw %d exceeds withdrawable balance %d", amount, available))
		}

		proof := address.NewProof(VaultSeeds(a.State.Address), rec.VaultBump, p.id)
		if err := p.xfer.TransferSigned(proof, a.Custody, a.Owner, amount); err != nil {
			return err
		}
		p.log.Debug("vault withdraw", zap.String("owner", a.Owner.Address.String()), zap.Uint64("amount", amount))
		return nil
	})
}

// Close sweeps all of custody to the owner, zeroes the record and returns the
// state account's rent to the owner. The vault is gone afterwards.
func (p *Program) Close(a Accounts) error {
	return p.guard("close", a, func() error {
		rec, err := p.loadVault(a)
		if err != nil {
			return err
		}
		if err := authority.ValidateWritable("state", a.State); err != nil {
			return err
		}

		swept := a.Custody.Lamports
		if swept > 0 {
			proof := address.NewProof(VaultSeeds(a.State.Address), rec.VaultBump, p.id)
			if err := p.xfer.TransferSigned(proof, a.Custody, a.Owner, swept); err != nil {
				return err
			}
		}
		released, err := p.xfer.Reclaim(a.State, a.Owner)
		if err != nil {
			return err
		}

		p.log.Debug("vault closed",
			zap.String("owner", a.Owner.Address.String()),
			zap.Uint64("swept", swept),
			zap.Uint64("rent_released", released),
		)
		return nil
	})
}

// Withdrawable is the part of a custody balance above the floor.
func Withdrawable(balance, floor uint64) uint64 {
	if balance <= floor {
		return 0
	}
	return balance - floor
}

// loadVault runs the checks shared by Deposit, Withdraw and Close and returns
// the decoded record.
func (p *Program) loadVault(a Accounts) (*record.VaultRecord, error) {
	if err := checkHandles(a); err != nil {
		return nil, err
	}
	if err := authority.ValidateSigner(a.Owner); err != nil {
		return nil, err
	}
	if err := authority.ValidateWritable("owner", a.Owner); err != nil {
		return nil, err
	}
	if err := authority.ValidateWritable("custody", a.Custody); err != nil {
		return nil, err
	}

	rec, err := authority.LoadStateRecord(a.State, p.id)
	if err != nil {
		return nil, err
	}
	owner := a.Owner.Address
	if err := authority.ValidateOwner(rec, owner); err != nil {
		return nil, err
	}
	if err := authority.ValidateAddress(a.State.Address, StateSeeds(owner), rec.StateBump, p.id); err != nil {
		return nil, err
	}
	if err := authority.ValidateAddress(a.Custody.Address, VaultSeeds(a.State.Address), rec.VaultBump, p.id); err != nil {
		return nil, err
	}
	if err := checkCustodyKind(a.Custody); err != nil {
		return nil, err
	}
	return rec, nil
}

func checkHandles(a Accounts) error {
	if a.Owner == nil || a.Owner.Account == nil ||
		a.State == nil || a.State.Account == nil ||
		a.Custody == nil || a.Custody.Account == nil {
		return errs.New(errs.KindInvalidInstruction, "VAULT-IX-001", "owner, state and custody accounts are required")
	}
	return nil
}

func checkCustodyKind(custody *ledger.AccountInfo) error {
	if custody.Owner != address.SystemProgram || len(custody.Data) != 0 {
		return errs.New(errs.KindInvalidInstruction, "VAULT-IX-002", "custody must be a system account without data")
	}
	return nil
}

// guard restores every distinct account handle if fn fails, so callers never
// observe a partial mutation.
func (p *Program) guard(op string, a Accounts, fn func() error) error {
	saved := make(map[*ledger.Account]*ledger.Account, 3)
	for _, info := range []*ledger.AccountInfo{a.Owner, a.State, a.Custody} {
		if info == nil || info.Account == nil {
			continue
		}
		if _, ok := saved[info.Account]; !ok {
			saved[info.Account] = info.Account.Clone()
		}
	}

	err := fn()
	if err == nil {
		return nil
	}
	for live, before := range saved {
		*live = *before
	}
	p.log.With(zap.String("op", op), zap.Error(err)).Debug("vault operation rejected")
	return err
}
