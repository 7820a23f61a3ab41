// Package authority holds the checks every vault operation runs before value
// moves: the caller must be the recorded owner, and every supplied address must
// be the one its seeds and bump re-derive to.
package authority

import (
	"fmt"

	"xdao.co/pdavault/address"
	"xdao.co/pdavault/errs"
	"xdao.co/pdavault/ledger"
	"xdao.co/pdavault/record"
)

// ValidateOwner fails with KindAuthorization unless rec names claimed as owner.
func ValidateOwner(rec *record.VaultRecord, claimed address.Address) error {
	if rec == nil {
		return errs.New(errs.KindNotFound, "VAULT-AUTH-001", "vault record is missing")
	}
	if rec.Owner != claimed {
		return errs.New(errs.KindAuthorization, "VAULT-AUTH-002", fmt.Sprintf("%s is not the vault owner", claimed))
	}
	return nil
}

// ValidateAddress fails with KindAddressMismatch unless candidate is the
// derived address for (seeds, bump) under program.
func ValidateAddress(candidate address.Address, seeds [][]byte, bump uint8, program address.Address) error {
	if !address.VerifyDerivation(candidate, seeds, bump, program) {
		return errs.New(errs.KindAddressMismatch, "VAULT-ADDR-001", fmt.Sprintf("%s does not match the derived address", candidate))
	}
	return nil
}

// ValidateExpected fails with KindAddressMismatch when a supplied address
// differs from one the caller already derived.
func ValidateExpected(name string, candidate, expected address.Address) error {
	if candidate != expected {
		return errs.New(errs.KindAddressMismatch, "VAULT-ADDR-002", fmt.Sprintf("%s address %s, expected %s", name, candidate, expected))
	}
	return nil
}

// ValidateSigner fails with KindAuthorization unless the host marked info as a
// signer of the current transaction.
func ValidateSigner(info *ledger.AccountInfo) error {
	if info == nil || info.Account == nil || !info.IsSigner {
		return errs.New(errs.KindAuthorization, "VAULT-AUTH-003", "owner did not sign")
	}
	return nil
}

// ValidateWritable fails with KindAuthorization unless info was declared writable.
func ValidateWritable(name string, info *ledger.AccountInfo) error {
	if info == nil || info.Account == nil || !info.IsWritable {
		return errs.New(errs.KindAuthorization, "VAULT-AUTH-004", name+" account is not writable")
	}
	return nil
}

// LoadStateRecord is the validation for the vault state account kind: it must
// be owned by program, hold exactly one record, and not be zeroed.
func LoadStateRecord(info *ledger.AccountInfo, program address.Address) (*record.VaultRecord, error) {
	if info == nil || info.Account == nil || !info.IsAllocated() {
		return nil, errs.New(errs.KindNotFound, "VAULT-AUTH-010", "vault state account does not exist")
	}
	if info.Owner != program {
		return nil, errs.New(errs.KindNotFound, "VAULT-AUTH-011", fmt.Sprintf("state account is owned by %s, not the vault program", info.Owner))
	}
	var rec record.VaultRecord
	if err := rec.Unmarshal(info.Data); err != nil {
		return nil, err
	}
	if rec.IsZero() {
		return nil, errs.New(errs.KindNotFound, "VAULT-AUTH-012", "vault state record is closed")
	}
	return &rec, nil
}
