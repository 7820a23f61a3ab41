package localfs

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"

	"xdao.co/pdavault/storage"
)

// Head is a mutable pointer file naming the latest snapshot CID.
type Head struct {
	path string
}

func NewHead(path string) *Head {
	return &Head{path: path}
}

func (h *Head) Path() string { return h.path }

// Read returns the CID in the head file. It returns storage.ErrNotFound when
// no head has been written yet.
func (h *Head) Read() (cid.Cid, error) {
	b, err := os.ReadFile(h.path)
	if err != nil {
		if os.IsNotExist(err) {
			return cid.Undef, storage.ErrNotFound
		}
		return cid.Undef, errors.Wrap(err, "localfs: read head")
	}
	return storage.ParseCID(strings.TrimSpace(string(b)))
}

// Write replaces the head with id. The file is swapped in by rename, so a
// reader sees either the old or the new CID.
func (h *Head) Write(id cid.Cid) error {
	if !id.Defined() {
		return storage.ErrInvalidCID
	}
	dir := filepath.Dir(h.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "localfs: create head dir")
	}

	f, err := os.CreateTemp(dir, ".head-*")
	if err != nil {
		return errors.Wrap(err, "localfs: create head temp")
	}
	tmp := f.Name()
	if _, err := f.WriteString(id.String() + "\n"); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return errors.Wrap(err, "localfs: write head")
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return errors.Wrap(err, "localfs: sync head")
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(err, "localfs: close head")
	}
	if err := os.Rename(tmp, h.path); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(err, "localfs: swap head")
	}
	return nil
}
