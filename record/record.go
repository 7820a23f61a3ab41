// Package record encodes the persisted vault state record.
//
// Layout (little-endian, no padding):
//
//	offset 0  : owner       (32 bytes)
//	offset 32 : state_bump  (1 byte)
//	offset 33 : vault_bump  (1 byte)
package record

import (
	"bytes"
	"fmt"

	"xdao.co/pdavault/address"
	"xdao.co/pdavault/errs"
)

const (
	Size = (address.Size + // owner
		1 + // state_bump
		1) // vault_bump

	DiscriminatorSize = 8

	// AccountSize is the discriminator-prefixed layout used by account-loading
	// frameworks that tag program accounts with a type prefix.
	AccountSize = DiscriminatorSize + Size
)

// StateAccountDiscriminator tags a vault state account in the prefixed layout.
var StateAccountDiscriminator = []byte{0xe4, 0xc4, 0x52, 0xa5, 0x62, 0xd2, 0xeb, 0x98}

// VaultRecord names the vault owner and the bumps that reproduce the state and
// custody addresses.
type VaultRecord struct {
	Owner     address.Address
	StateBump uint8
	VaultBump uint8
}

func (r *VaultRecord) Marshal() []byte {
	var offset int
	data := make([]byte, Size)

	putAddress(data, r.Owner, &offset)
	putUint8(data, r.StateBump, &offset)
	putUint8(data, r.VaultBump, &offset)

	return data
}

func (r *VaultRecord) Unmarshal(data []byte) error {
	if len(data) != Size {
		return errs.New(errs.KindMalformedRecord, "VAULT-REC-001", fmt.Sprintf("vault record must be %d bytes, got %d", Size, len(data)))
	}

	var offset int
	getAddress(data, &r.Owner, &offset)
	getUint8(data, &r.StateBump, &offset)
	getUint8(data, &r.VaultBump, &offset)

	return nil
}

// MarshalAccount returns the discriminator-prefixed encoding.
func (r *VaultRecord) MarshalAccount() []byte {
	out := make([]byte, 0, AccountSize)
	out = append(out, StateAccountDiscriminator...)
	return append(out, r.Marshal()...)
}

// UnmarshalAccount decodes the discriminator-prefixed encoding.
func (r *VaultRecord) UnmarshalAccount(data []byte) error {
	if len(data) != AccountSize {
		return errs.New(errs.KindMalformedRecord, "VAULT-REC-002", fmt.Sprintf("vault account must be %d bytes, got %d", AccountSize, len(data)))
	}
	if !bytes.Equal(data[:DiscriminatorSize], StateAccountDiscriminator) {
		return errs.New(errs.KindMalformedRecord, "VAULT-REC-003", "unexpected account discriminator")
	}
	return r.Unmarshal(data[DiscriminatorSize:])
}

// IsZero reports whether every field is zero, i.e. the record was closed.
func (r *VaultRecord) IsZero() bool {
	return r.Owner.IsZero() && r.StateBump == 0 && r.VaultBump == 0
}

func (r *VaultRecord) String() string {
	return fmt.Sprintf(
		"VaultRecord{owner=%s,state_bump=%d,vault_bump=%d}",
		r.Owner,
		r.StateBump,
		r.VaultBump,
	)
}

// Decode accepts either the bare or the discriminator-prefixed layout.
func Decode(data []byte) (*VaultRecord, error) {
	var r VaultRecord
	var err error
	switch len(data) {
	case AccountSize:
		err = r.UnmarshalAccount(data)
	default:
		err = r.Unmarshal(data)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func putAddress(dst []byte, v address.Address, offset *int) {
	copy(dst[*offset:], v[:])
	*offset += address.Size
}
func getAddress(src []byte, dst *address.Address, offset *int) {
	copy(dst[:], src[*offset:*offset+address.Size])
	*offset += address.Size
}

func putUint8(dst []byte, v uint8, offset *int) {
	dst[*offset] = v
	*offset += 1
}
func getUint8(src []byte, dst *uint8, offset *int) {
	*dst = src[*offset]
	*offset += 1
}
