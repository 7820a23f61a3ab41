// Package instruction encodes vault instructions and the signed transactions
// that carry them to the runtime.
package instruction

import (
	"bytes"
	"fmt"

	"xdao.co/pdavault/address"
	"xdao.co/pdavault/errs"
	"xdao.co/pdavault/vault"
)

type Op uint8

const (
	OpUnknown Op = iota

	OpInitialize
	OpDeposit
	OpWithdraw
	OpClose
)

func (o Op) String() string {
	switch o {
	case OpInitialize:
		return "initialize"
	case OpDeposit:
		return "deposit"
	case OpWithdraw:
		return "withdraw"
	case OpClose:
		return "close"
	default:
		return "unknown"
	}
}

const (
	DiscriminatorSize = 8

	AmountArgsSize = 8 // amount
)

var (
	InitializeDiscriminator = []byte{0xaf, 0xaf, 0x6d, 0x1f, 0x0d, 0x98, 0x9b, 0xed}
	DepositDiscriminator    = []byte{0xf2, 0x23, 0xc6, 0x89, 0x52, 0xe1, 0xf2, 0xb6}
	WithdrawDiscriminator   = []byte{0xb7, 0x12, 0x46, 0x9c, 0x94, 0x6d, 0xa1, 0x22}
	CloseDiscriminator      = []byte{0x62, 0xa5, 0xc9, 0xb1, 0x6c, 0x41, 0xce, 0x60}
)

func discriminatorFor(op Op) []byte {
	switch op {
	case OpInitialize:
		return InitializeDiscriminator
	case OpDeposit:
		return DepositDiscriminator
	case OpWithdraw:
		return WithdrawDiscriminator
	case OpClose:
		return CloseDiscriminator
	}
	return nil
}

func hasAmount(op Op) bool { return op == OpDeposit || op == OpWithdraw }

// Account positions shared by every vault instruction.
const (
	AccountOwner = iota
	AccountState
	AccountCustody
	AccountSystem

	AccountCount
)

type AccountMeta struct {
	Address    address.Address
	IsSigner   bool
	IsWritable bool
}

type Instruction struct {
	Program  address.Address
	Accounts []AccountMeta
	Data     []byte
}

// EncodeData returns the instruction data for op. amount is ignored by
// Initialize and Close.
func EncodeData(op Op, amount uint64) ([]byte, error) {
	disc := discriminatorFor(op)
	if disc == nil {
		return nil, errs.New(errs.KindInvalidInstruction, "VAULT-IX-010", fmt.Sprintf("unknown op %d", op))
	}

	var offset int
	size := DiscriminatorSize
	if hasAmount(op) {
		size += AmountArgsSize
	}
	data := make([]byte, size)

	putDiscriminator(data, disc, &offset)
	if hasAmount(op) {
		putUint64(data, amount, &offset)
	}
	return data, nil
}

// Decode parses instruction data into its op and amount.
func Decode(data []byte) (Op, uint64, error) {
	if len(data) < DiscriminatorSize {
		return OpUnknown, 0, errs.New(errs.KindInvalidInstruction, "VAULT-IX-011", "instruction data shorter than discriminator")
	}

	var offset int
	var disc []byte
	getDiscriminator(data, &disc, &offset)

	op := OpUnknown
	for _, candidate := range []Op{OpInitialize, OpDeposit, OpWithdraw, OpClose} {
		if bytes.Equal(disc, discriminatorFor(candidate)) {
			op = candidate
			break
		}
	}
	if op == OpUnknown {
		return OpUnknown, 0, errs.New(errs.KindInvalidInstruction, "VAULT-IX-012", fmt.Sprintf("unknown discriminator %x", disc))
	}

	want := DiscriminatorSize
	if hasAmount(op) {
		want += AmountArgsSize
	}
	if len(data) != want {
		return OpUnknown, 0, errs.New(errs.KindInvalidInstruction, "VAULT-IX-013", fmt.Sprintf("%s data must be %d bytes, got %d", op, want, len(data)))
	}

	var amount uint64
	if hasAmount(op) {
		getUint64(data, &amount, &offset)
	}
	return op, amount, nil
}

func NewInitializeInstruction(program, owner address.Address) (*Instruction, error) {
	return newVaultInstruction(program, owner, OpInitialize, 0)
}

func NewDepositInstruction(program, owner address.Address, amount uint64) (*Instruction, error) {
	return newVaultInstruction(program, owner, OpDeposit, amount)
}

func NewWithdrawInstruction(program, owner address.Address, amount uint64) (*Instruction, error) {
	return newVaultInstruction(program, owner, OpWithdraw, amount)
}

func NewCloseInstruction(program, owner address.Address) (*Instruction, error) {
	return newVaultInstruction(program, owner, OpClose, 0)
}

func newVaultInstruction(program, owner address.Address, op Op, amount uint64) (*Instruction, error) {
	addrs, err := vault.FindAddresses(program, owner)
	if err != nil {
		return nil, err
	}
	data, err := EncodeData(op, amount)
	if err != nil {
		return nil, err
	}

	return &Instruction{
		Program: program,

		// Instruction args
		Data: data,

		// Instruction accounts
		Accounts: []AccountMeta{
			{
				Address:    owner,
				IsSigner:   true,
				IsWritable: true,
			},
			{
				Address:    addrs.State,
				IsSigner:   false,
				IsWritable: true,
			},
			{
				Address:    addrs.Custody,
				IsSigner:   false,
				IsWritable: true,
			},
			{
				Address:    address.SystemProgram,
				IsSigner:   false,
				IsWritable: false,
			},
		},
	}, nil
}
