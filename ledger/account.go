// Package ledger is the in-memory host environment the vault program runs against.
//
// A Bank holds every account. Instructions run inside Bank.Atomic, which hands
// out copies of the accounts it touches and commits them only on success, so a
// failed instruction leaves no observable mutation.
package ledger

import (
	"bytes"
	"fmt"

	"github.com/pkg/errors"

	"xdao.co/pdavault/address"
)

// Account is the persisted state of a single address.
type Account struct {
	Address  address.Address
	Owner    address.Address
	Lamports uint64
	Data     []byte

	// Nonce counts the transactions this account has committed as owner. A
	// signed transaction must carry the current value.
	Nonce uint64
}

// IsAllocated reports whether the account holds value or data, has been
// assigned to a program, or has committed a transaction. Unallocated accounts
// are not persisted.
func (a *Account) IsAllocated() bool {
	return a.Lamports > 0 || len(a.Data) > 0 || a.Owner != address.SystemProgram || a.Nonce > 0
}

func (a *Account) Clone() *Account {
	cp := *a
	if a.Data != nil {
		cp.Data = append([]byte(nil), a.Data...)
	}
	return &cp
}

func (a *Account) String() string {
	return fmt.Sprintf("Account{address=%s,owner=%s,lamports=%d,nonce=%d,data_len=%d}", a.Address, a.Owner, a.Lamports, a.Nonce, len(a.Data))
}

// MarshalBinary encodes a single account the same way a snapshot entry is
// encoded.
func (a *Account) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	writeAccount(&buf, a)
	return buf.Bytes(), nil
}

func (a *Account) UnmarshalBinary(data []byte) error {
	r := bytes.NewReader(data)
	acct, err := readAccount(r, 0)
	if err != nil {
		return err
	}
	if r.Len() != 0 {
		return errors.Wrapf(ErrBadSnapshot, "%d trailing bytes", r.Len())
	}
	*a = *acct
	return nil
}

// AccountInfo is the handle an instruction receives for one of its accounts.
type AccountInfo struct {
	*Account

	// IsSigner is set by the host only when the key holder signed the transaction.
	IsSigner bool
	// IsWritable is set when the transaction declared the account writable.
	IsWritable bool
}
