package ledger

import (
	"math"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"xdao.co/pdavault/address"
)

// ErrOverflow is returned when a credit would overflow an account balance.
var ErrOverflow = errors.New("ledger: lamport overflow")

// Bank is the in-memory account store.
//
// Bank serializes access: only one Atomic call runs at a time. Code running
// inside Atomic must use the Tx and must not call back into the Bank.
type Bank struct {
	mu       sync.Mutex
	accounts map[address.Address]*Account
}

func NewBank() *Bank {
	return &Bank{accounts: make(map[address.Address]*Account)}
}

// Account returns a copy of the account at addr. Unknown addresses read as an
// empty, system-owned account.
func (b *Bank) Account(addr address.Address) Account {
	b.mu.Lock()
	defer b.mu.Unlock()
	return *b.load(addr)
}

// Fund credits lamports to addr out of thin air. It backs the development faucet
// and test fixtures.
func (b *Bank) Fund(addr address.Address, lamports uint64) error {
	return b.Atomic(func(tx *Tx) error {
		acct := tx.Load(addr)
		if acct.Lamports > math.MaxUint64-lamports {
			return ErrOverflow
		}
		acct.Lamports += lamports
		return nil
	})
}

// Put overwrites the account at its address. Intended for fixtures.
func (b *Bank) Put(acct Account) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.store(acct.Clone())
}

// Atomic runs fn against a transactional view of the bank. Accounts loaded
// through the Tx are private copies; they are committed only if fn returns nil.
func (b *Bank) Atomic(fn func(tx *Tx) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	tx := &Tx{bank: b, touched: make(map[address.Address]*Account)}
	if err := fn(tx); err != nil {
		return err
	}
	for _, acct := range tx.touched {
		b.store(acct)
	}
	return nil
}

// Addresses returns every allocated address in ascending byte order.
func (b *Bank) Addresses() []address.Address {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sortedAddresses()
}

// TotalLamports sums every balance in the bank.
func (b *Bank) TotalLamports() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	var total uint64
	for _, acct := range b.accounts {
		total += acct.Lamports
	}
	return total
}

func (b *Bank) sortedAddresses() []address.Address {
	out := make([]address.Address, 0, len(b.accounts))
	for addr := range b.accounts {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool { return address.Compare(out[i], out[j]) < 0 })
	return out
}

func (b *Bank) load(addr address.Address) *Account {
	if acct, ok := b.accounts[addr]; ok {
		return acct.Clone()
	}
	return &Account{Address: addr, Owner: address.SystemProgram}
}

func (b *Bank) store(acct *Account) {
	if !acct.IsAllocated() {
		delete(b.accounts, acct.Address)
		return
	}
	b.accounts[acct.Address] = acct
}

// Tx is a transactional view handed to Bank.Atomic callbacks.
type Tx struct {
	bank    *Bank
	touched map[address.Address]*Account
}

// Load returns the transaction's private copy of addr. Repeated loads of the
// same address return the same pointer, so aliased handles stay consistent.
func (tx *Tx) Load(addr address.Address) *Account {
	if acct, ok := tx.touched[addr]; ok {
		return acct
	}
	acct := tx.bank.load(addr)
	tx.touched[addr] = acct
	return acct
}
