package ledger

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"

	"xdao.co/pdavault/address"
	"xdao.co/pdavault/storage"
)

const snapshotVersion = 2

// minEntrySize is the encoded size of an account with no data.
const minEntrySize = address.Size + address.Size + 8 + 8 + 4

var snapshotMagic = []byte("PDVS")

// ErrBadSnapshot is returned when snapshot bytes cannot be decoded.
var ErrBadSnapshot = errors.New("ledger: malformed snapshot")

// Snapshot encodes every allocated account in ascending address order.
//
//	magic "PDVS" | version u8 | count u32
//	count × ( address 32 | owner 32 | lamports u64 | nonce u64 | data_len u32 | data )
//
// Integers are little-endian. Equal banks always encode to equal bytes.
func (b *Bank) Snapshot() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	var buf bytes.Buffer
	buf.Write(snapshotMagic)
	buf.WriteByte(snapshotVersion)

	addrs := b.sortedAddresses()
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(addrs)))
	for _, addr := range addrs {
		writeAccount(&buf, b.accounts[addr])
	}
	return buf.Bytes()
}

func writeAccount(buf *bytes.Buffer, acct *Account) {
	buf.Write(acct.Address[:])
	buf.Write(acct.Owner[:])
	_ = binary.Write(buf, binary.LittleEndian, acct.Lamports)
	_ = binary.Write(buf, binary.LittleEndian, acct.Nonce)
	_ = binary.Write(buf, binary.LittleEndian, uint32(len(acct.Data)))
	buf.Write(acct.Data)
}

func readAccount(r *bytes.Reader, i uint32) (*Account, error) {
	acct := &Account{}
	var dataLen uint32
	if err := readFull(r, acct.Address[:]); err != nil {
		return nil, errors.Wrapf(ErrBadSnapshot, "account %d address", i)
	}
	if err := readFull(r, acct.Owner[:]); err != nil {
		return nil, errors.Wrapf(ErrBadSnapshot, "account %d owner", i)
	}
	if err := binary.Read(r, binary.LittleEndian, &acct.Lamports); err != nil {
		return nil, errors.Wrapf(ErrBadSnapshot, "account %d lamports", i)
	}
	if err := binary.Read(r, binary.LittleEndian, &acct.Nonce); err != nil {
		return nil, errors.Wrapf(ErrBadSnapshot, "account %d nonce", i)
	}
	if err := binary.Read(r, binary.LittleEndian, &dataLen); err != nil {
		return nil, errors.Wrapf(ErrBadSnapshot, "account %d data length", i)
	}
	if int64(dataLen) > int64(r.Len()) {
		return nil, errors.Wrapf(ErrBadSnapshot, "account %d data truncated", i)
	}
	if dataLen > 0 {
		acct.Data = make([]byte, dataLen)
		if err := readFull(r, acct.Data); err != nil {
			return nil, errors.Wrapf(ErrBadSnapshot, "account %d data", i)
		}
	}
	return acct, nil
}

// Restore replaces the bank contents with a decoded snapshot. On error the
// bank is left unchanged.
func (b *Bank) Restore(data []byte) error {
	accounts, err := decodeSnapshot(data)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.accounts = accounts
	return nil
}

func decodeSnapshot(data []byte) (map[address.Address]*Account, error) {
	r := bytes.NewReader(data)

	header := make([]byte, len(snapshotMagic)+1)
	if _, err := r.Read(header); err != nil || !bytes.Equal(header[:len(snapshotMagic)], snapshotMagic) {
		return nil, errors.Wrap(ErrBadSnapshot, "bad header")
	}
	if v := header[len(snapshotMagic)]; v != snapshotVersion {
		return nil, errors.Wrapf(ErrBadSnapshot, "unsupported version %d", v)
	}

	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, errors.Wrap(ErrBadSnapshot, "read count")
	}

	if uint64(count)*minEntrySize > uint64(r.Len()) {
		return nil, errors.Wrapf(ErrBadSnapshot, "%d accounts do not fit in %d bytes", count, r.Len())
	}

	accounts := make(map[address.Address]*Account, count)
	for i := uint32(0); i < count; i++ {
		acct, err := readAccount(r, i)
		if err != nil {
			return nil, err
		}
		if _, dup := accounts[acct.Address]; dup {
			return nil, errors.Wrapf(ErrBadSnapshot, "duplicate account %s", acct.Address)
		}
		accounts[acct.Address] = acct
	}
	if r.Len() != 0 {
		return nil, errors.Wrapf(ErrBadSnapshot, "%d trailing bytes", r.Len())
	}
	return accounts, nil
}

func readFull(r *bytes.Reader, dst []byte) error {
	n, err := r.Read(dst)
	if err != nil {
		return err
	}
	if n != len(dst) {
		return fmt.Errorf("short read: %d of %d", n, len(dst))
	}
	return nil
}

// Save writes the current snapshot to cas and returns its CID.
func (b *Bank) Save(cas storage.CAS) (cid.Cid, error) {
	id, err := cas.Put(b.Snapshot())
	if err != nil {
		return cid.Undef, errors.Wrap(err, "ledger: save snapshot")
	}
	return id, nil
}

// Load restores the bank from the snapshot stored under id.
func (b *Bank) Load(cas storage.CAS, id cid.Cid) error {
	data, err := cas.Get(id)
	if err != nil {
		return errors.Wrapf(err, "ledger: load snapshot %s", id)
	}
	return b.Restore(data)
}
