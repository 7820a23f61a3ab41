package keys

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
)

func TestKeyStoreRoundTrip(t *testing.T) {
	ks, err := OpenKeyStore(t.TempDir())
	if err != nil {
		t.Fatalf("OpenKeyStore: %v", err)
	}

	root, path, err := ks.InitRoot("alice", rootSeed(), false)
	if err != nil {
		t.Fatalf("InitRoot: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat root key: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("root key mode = %o, want 600", perm)
	}

	if _, _, err := ks.InitRoot("alice", rootSeed(), false); err == nil {
		t.Fatalf("expected InitRoot without overwrite to refuse an existing key")
	}

	derived, _, err := ks.Derive("alice", "savings", false)
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	if derived.Address == root.Address {
		t.Fatalf("derived key must differ from root")
	}

	loaded, err := ks.Load("alice", "savings")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Address != derived.Address {
		t.Fatalf("loaded %s, want %s", loaded.Address, derived.Address)
	}

	entries, err := ks.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "alice" || len(entries[0].Labels) != 1 || entries[0].Labels[0] != "savings" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestKeyStoreResolve(t *testing.T) {
	ks, err := OpenKeyStore(t.TempDir())
	if err != nil {
		t.Fatalf("OpenKeyStore: %v", err)
	}
	want, path, err := ks.InitRoot("bob", rootSeed(), false)
	if err != nil {
		t.Fatalf("InitRoot: %v", err)
	}

	for name, args := range map[string][4]string{
		"seed hex": {"0x" + hex.EncodeToString(rootSeed()), "", "", ""},
		"key file": {"", path, "", ""},
		"name":     {"", "", "bob", ""},
	} {
		got, err := ks.Resolve(args[0], args[1], args[2], args[3])
		if err != nil {
			t.Fatalf("%s: Resolve: %v", name, err)
		}
		if got.Address != want.Address {
			t.Fatalf("%s: got %s, want %s", name, got.Address, want.Address)
		}
	}

	if _, err := ks.Resolve("", "", "", ""); err == nil {
		t.Fatalf("expected error with no signer")
	}
	if _, err := ks.Load("../escape", ""); err == nil {
		t.Fatalf("expected invalid name to fail")
	}
}

func TestKeyStoreListEmpty(t *testing.T) {
	ks := &KeyStore{Directory: filepath.Join(t.TempDir(), "missing")}
	entries, err := ks.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no entries, got %d", len(entries))
	}
}
