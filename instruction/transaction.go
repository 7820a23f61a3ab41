package instruction

import (
	"fmt"
	"math"

	"github.com/cloudflare/circl/sign/ed25519"

	"xdao.co/pdavault/address"
	"xdao.co/pdavault/errs"
)

const (
	metaSigner   = 1 << 0
	metaWritable = 1 << 1

	metaSize = address.Size + 1 // address, flags

	SignatureEntrySize = address.Size + ed25519.SignatureSize

	NonceSize = 8
)

// Marshal returns the canonical message encoding of ix:
//
//	program (32) | account count (1) | accounts (32 + flags 1 each) | data length (2) | data
func (ix *Instruction) Marshal() ([]byte, error) {
	if len(ix.Accounts) > math.MaxUint8 {
		return nil, errs.New(errs.KindInvalidInstruction, "VAULT-TX-001", "too many accounts")
	}
	if len(ix.Data) > math.MaxUint16 {
		return nil, errs.New(errs.KindInvalidInstruction, "VAULT-TX-002", "instruction data too large")
	}

	var offset int
	data := make([]byte, address.Size+1+len(ix.Accounts)*metaSize+2+len(ix.Data))

	putAddress(data, ix.Program, &offset)
	putUint8(data, uint8(len(ix.Accounts)), &offset)
	for _, meta := range ix.Accounts {
		var flags uint8
		if meta.IsSigner {
			flags |= metaSigner
		}
		if meta.IsWritable {
			flags |= metaWritable
		}
		putAddress(data, meta.Address, &offset)
		putUint8(data, flags, &offset)
	}
	putUint16(data, uint16(len(ix.Data)), &offset)
	copy(data[offset:], ix.Data)

	return data, nil
}

func (ix *Instruction) Unmarshal(data []byte) error {
	if len(data) < address.Size+1 {
		return malformed("message too short")
	}

	var offset int
	var count uint8
	getAddress(data, &ix.Program, &offset)
	getUint8(data, &count, &offset)

	if len(data) < offset+int(count)*metaSize+2 {
		return malformed("truncated account list")
	}
	ix.Accounts = make([]AccountMeta, count)
	for i := range ix.Accounts {
		var flags uint8
		getAddress(data, &ix.Accounts[i].Address, &offset)
		getUint8(data, &flags, &offset)
		if flags&^(metaSigner|metaWritable) != 0 {
			return malformed(fmt.Sprintf("unknown flags %#x on account %d", flags, i))
		}
		ix.Accounts[i].IsSigner = flags&metaSigner != 0
		ix.Accounts[i].IsWritable = flags&metaWritable != 0
	}

	var dataLen uint16
	getUint16(data, &dataLen, &offset)
	if len(data) != offset+int(dataLen) {
		return malformed("instruction data length mismatch")
	}
	ix.Data = append([]byte(nil), data[offset:]...)
	return nil
}

type Signature struct {
	Signer    address.Address
	Signature []byte
}

// Transaction is one instruction plus the Ed25519 signatures over its message.
type Transaction struct {
	Instruction Instruction
	Signatures  []Signature

	// Nonce must equal the owner account's nonce when the transaction runs.
	// Committing the transaction advances it, so a signed transaction is
	// accepted at most once.
	Nonce uint64
}

func NewTransaction(ix *Instruction) *Transaction {
	return &Transaction{Instruction: *ix}
}

// Message returns the signed bytes: nonce (u64 LE) followed by the instruction.
func (tx *Transaction) Message() ([]byte, error) {
	ixData, err := tx.Instruction.Marshal()
	if err != nil {
		return nil, err
	}

	var offset int
	msg := make([]byte, NonceSize+len(ixData))
	putUint64(msg, tx.Nonce, &offset)
	copy(msg[offset:], ixData)
	return msg, nil
}

// Sign appends a signature by key over the message. A second signature by
// the same key replaces the first.
func (tx *Transaction) Sign(key ed25519.PrivateKey) error {
	if len(key) != ed25519.PrivateKeySize {
		return errs.New(errs.KindInvalidInstruction, "VAULT-TX-010", "invalid ed25519 private key")
	}
	msg, err := tx.Message()
	if err != nil {
		return err
	}

	signer, err := address.FromBytes(key.Public().(ed25519.PublicKey))
	if err != nil {
		return err
	}
	sig := ed25519.Sign(key, msg)

	for i := range tx.Signatures {
		if tx.Signatures[i].Signer == signer {
			tx.Signatures[i].Signature = sig
			return nil
		}
	}
	tx.Signatures = append(tx.Signatures, Signature{Signer: signer, Signature: sig})
	return nil
}

// Verify checks every signature against the message. A transaction with any
// bad signature is rejected whole.
func (tx *Transaction) Verify() error {
	msg, err := tx.Message()
	if err != nil {
		return err
	}
	for _, s := range tx.Signatures {
		if len(s.Signature) != ed25519.SignatureSize ||
			!ed25519.Verify(ed25519.PublicKey(s.Signer.Bytes()), msg, s.Signature) {
			return errs.New(errs.KindAuthorization, "VAULT-TX-011", "invalid signature from "+s.Signer.String())
		}
	}
	return nil
}

// SignedBy reports whether addr contributed a signature. Call Verify first.
func (tx *Transaction) SignedBy(addr address.Address) bool {
	for _, s := range tx.Signatures {
		if s.Signer == addr {
			return true
		}
	}
	return false
}

// Marshal encodes the transaction as:
//
//	signature count (1) | signatures (signer 32 + signature 64 each) | nonce (8) | instruction
func (tx *Transaction) Marshal() ([]byte, error) {
	if len(tx.Signatures) > math.MaxUint8 {
		return nil, errs.New(errs.KindInvalidInstruction, "VAULT-TX-003", "too many signatures")
	}
	msg, err := tx.Message()
	if err != nil {
		return nil, err
	}

	var offset int
	data := make([]byte, 1+len(tx.Signatures)*SignatureEntrySize+len(msg))

	putUint8(data, uint8(len(tx.Signatures)), &offset)
	for _, s := range tx.Signatures {
		if len(s.Signature) != ed25519.SignatureSize {
			return nil, errs.New(errs.KindInvalidInstruction, "VAULT-TX-004", "signature must be 64 bytes")
		}
		putAddress(data, s.Signer, &offset)
		copy(data[offset:], s.Signature)
		offset += ed25519.SignatureSize
	}
	copy(data[offset:], msg)

	return data, nil
}

func Unmarshal(data []byte) (*Transaction, error) {
	if len(data) < 1 {
		return nil, malformed("empty transaction")
	}

	var offset int
	var count uint8
	getUint8(data, &count, &offset)
	if len(data) < offset+int(count)*SignatureEntrySize {
		return nil, malformed("truncated signatures")
	}

	tx := &Transaction{Signatures: make([]Signature, count)}
	for i := range tx.Signatures {
		getAddress(data, &tx.Signatures[i].Signer, &offset)
		tx.Signatures[i].Signature = append([]byte(nil), data[offset:offset+ed25519.SignatureSize]...)
		offset += ed25519.SignatureSize
	}
	if len(data) < offset+NonceSize {
		return nil, malformed("missing nonce")
	}
	getUint64(data, &tx.Nonce, &offset)
	if err := tx.Instruction.Unmarshal(data[offset:]); err != nil {
		return nil, err
	}
	return tx, nil
}

func malformed(msg string) error {
	return errs.New(errs.KindInvalidInstruction, "VAULT-TX-020", "malformed transaction: "+msg)
}
