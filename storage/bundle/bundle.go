// Package bundle packs a ledger snapshot into a TAR archive so it can be
// backed up or moved between stores.
//
// Layout:
//
//	HEAD          snapshot CID followed by a newline
//	blocks/<cid>  snapshot bytes
//
// Export is deterministic: headers carry no timestamps or ownership, and
// entries are written in a fixed order. ExportCompressed wraps the same archive
// in a zstd stream; Import accepts either form.
package bundle

import (
	"archive/tar"
	"bufio"
	"bytes"
	"io"
	"strings"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"

	"xdao.co/pdavault/storage"
)

const (
	headEntry   = "HEAD"
	blockPrefix = "blocks/"

	// maxEntrySize bounds a single entry read during Import.
	maxEntrySize = 64 << 20
)

// ErrMalformed is returned by Import for archives that do not follow the layout.
var ErrMalformed = errors.New("bundle: malformed archive")

var (
	epoch     = time.Unix(0, 0).UTC()
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// Export writes the snapshot block named by head, read from cas, to w.
func Export(w io.Writer, cas storage.CAS, head cid.Cid) error {
	if cas == nil {
		return errors.New("bundle: nil CAS")
	}
	if !head.Defined() {
		return storage.ErrInvalidCID
	}

	data, err := cas.Get(head)
	if err != nil {
		return errors.Wrapf(err, "bundle: read %s", head)
	}
	if got, err := storage.ComputeCID(data); err != nil || !got.Equals(head) {
		return storage.ErrCIDMismatch
	}

	tw := tar.NewWriter(w)
	if err := writeEntry(tw, headEntry, []byte(head.String()+"\n")); err != nil {
		return err
	}
	if err := writeEntry(tw, blockPrefix+head.String(), data); err != nil {
		return err
	}
	return tw.Close()
}

// ExportCompressed is Export written through a zstd encoder.
func ExportCompressed(w io.Writer, cas storage.CAS, head cid.Cid) error {
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return errors.Wrap(err, "bundle: create zstd writer")
	}
	if err := Export(zw, cas, head); err != nil {
		_ = zw.Close()
		return err
	}
	return errors.Wrap(zw.Close(), "bundle: flush zstd")
}

// Import copies every block in the archive into cas and returns the HEAD CID.
// Each block must hash to its entry name, and the block HEAD names must be
// present. Unknown entries are rejected.
func Import(r io.Reader, cas storage.CAS) (cid.Cid, error) {
	if cas == nil {
		return cid.Undef, errors.New("bundle: nil CAS")
	}

	br := bufio.NewReader(r)
	if magic, _ := br.Peek(len(zstdMagic)); bytes.Equal(magic, zstdMagic) {
		zr, err := zstd.NewReader(br)
		if err != nil {
			return cid.Undef, errors.Wrap(err, "bundle: create zstd reader")
		}
		defer zr.Close()
		return importTar(zr, cas)
	}
	return importTar(br, cas)
}

func importTar(r io.Reader, cas storage.CAS) (cid.Cid, error) {
	tr := tar.NewReader(r)
	head := cid.Undef
	seen := map[cid.Cid]struct{}{}

	for {
		h, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return cid.Undef, errors.Wrap(ErrMalformed, err.Error())
		}
		if h.Typeflag != tar.TypeReg {
			return cid.Undef, errors.Wrapf(ErrMalformed, "unexpected entry type %v for %q", h.Typeflag, h.Name)
		}
		if h.Size > maxEntrySize {
			return cid.Undef, errors.Wrapf(ErrMalformed, "entry %q too large", h.Name)
		}
		payload, err := io.ReadAll(tr)
		if err != nil {
			return cid.Undef, errors.Wrap(ErrMalformed, err.Error())
		}

		switch name := h.Name; {
		case name == headEntry:
			if head.Defined() {
				return cid.Undef, errors.Wrap(ErrMalformed, "duplicate HEAD")
			}
			if head, err = storage.ParseCID(strings.TrimSpace(string(payload))); err != nil {
				return cid.Undef, err
			}
		case strings.HasPrefix(name, blockPrefix):
			id, err := storage.ParseCID(strings.TrimPrefix(name, blockPrefix))
			if err != nil {
				return cid.Undef, err
			}
			if _, dup := seen[id]; dup {
				return cid.Undef, errors.Wrapf(ErrMalformed, "duplicate block %s", id)
			}
			seen[id] = struct{}{}
			if got, err := storage.ComputeCID(payload); err != nil || !got.Equals(id) {
				return cid.Undef, storage.ErrCIDMismatch
			}
			if _, err := cas.Put(payload); err != nil {
				return cid.Undef, err
			}
		default:
			return cid.Undef, errors.Wrapf(ErrMalformed, "unknown entry %q", name)
		}
	}

	if !head.Defined() {
		return cid.Undef, errors.Wrap(ErrMalformed, "missing HEAD")
	}
	if _, ok := seen[head]; !ok {
		return cid.Undef, errors.Wrapf(ErrMalformed, "HEAD block %s not in archive", head)
	}
	return head, nil
}

func writeEntry(tw *tar.Writer, name string, content []byte) error {
	hdr := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		ModTime:  epoch,
		Typeflag: tar.TypeReg,
		Format:   tar.FormatUSTAR,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return errors.Wrapf(err, "bundle: write %s header", name)
	}
	if _, err := io.Copy(tw, bytes.NewReader(content)); err != nil {
		return errors.Wrapf(err, "bundle: write %s", name)
	}
	return nil
}
