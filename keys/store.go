package keys

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cloudflare/circl/sign/ed25519"
	"github.com/pkg/errors"
)

// KeyStore keeps owner seeds on the local filesystem:
//
//	<dir>/<name>/root.key
//	<dir>/<name>/derived/<label>.key
//
// Seed files are hex, mode 0600.
type KeyStore struct {
	Directory string
}

type KeyEntry struct {
	Name   string
	Labels []string
}

func DefaultDirectory() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".pdavault", "keys"), nil
}

// OpenKeyStore opens the store at directory, or the default directory when
// it is empty.
func OpenKeyStore(directory string) (*KeyStore, error) {
	if directory == "" {
		var err error
		directory, err = DefaultDirectory()
		if err != nil {
			return nil, err
		}
	}
	return &KeyStore{Directory: directory}, nil
}

func (ks *KeyStore) rootKeyPath(name string) string {
	return filepath.Join(ks.Directory, name, "root.key")
}

func (ks *KeyStore) derivedKeyPath(name, label string) string {
	return filepath.Join(ks.Directory, name, "derived", label+".key")
}

func CheckName(name string) error {
	return checkIdent("name", name)
}

func CheckLabel(label string) error {
	return checkIdent("label", label)
}

func checkIdent(what, s string) error {
	if s == "" {
		return fmt.Errorf("%s cannot be empty", what)
	}
	for _, char := range s {
		if (char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z') || (char >= '0' && char <= '9') || char == '-' || char == '_' {
			continue
		}
		return fmt.Errorf("invalid character %q in %s", char, what)
	}
	return nil
}

func ParseSeedHex(seedHex string) ([]byte, error) {
	seedHex = strings.TrimSpace(seedHex)
	seedHex = strings.TrimPrefix(seedHex, "0x")
	data, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, errors.Wrap(err, "decode seed hex")
	}
	if len(data) != ed25519.SeedSize {
		return nil, fmt.Errorf("expected seed length of %d bytes, got %d", ed25519.SeedSize, len(data))
	}
	return data, nil
}

func (ks *KeyStore) saveSeed(path string, seed []byte, overwrite bool) error {
	if len(seed) != ed25519.SeedSize {
		return fmt.Errorf("expected seed length of %d bytes", ed25519.SeedSize)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return errors.Wrap(err, "create key dir")
	}
	flags := os.O_WRONLY | os.O_CREATE
	if overwrite {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_EXCL
	}
	file, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer file.Close()
	if _, err := file.WriteString(hex.EncodeToString(seed) + "\n"); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	return file.Close()
}

func (ks *KeyStore) loadSeed(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	return ParseSeedHex(string(data))
}

// InitRoot stores seed as the root key of name.
func (ks *KeyStore) InitRoot(name string, seed []byte, overwrite bool) (OwnerKey, string, error) {
	if err := CheckName(name); err != nil {
		return OwnerKey{}, "", err
	}
	path := ks.rootKeyPath(name)
	if err := ks.saveSeed(path, seed, overwrite); err != nil {
		return OwnerKey{}, "", err
	}
	key, err := OwnerKeyFromSeed(seed)
	return key, path, err
}

// Derive stores the seed derived from name's root under label.
func (ks *KeyStore) Derive(name, label string, overwrite bool) (OwnerKey, string, error) {
	if err := CheckName(name); err != nil {
		return OwnerKey{}, "", err
	}
	if err := CheckLabel(label); err != nil {
		return OwnerKey{}, "", err
	}
	rootSeed, err := ks.loadSeed(ks.rootKeyPath(name))
	if err != nil {
		return OwnerKey{}, "", err
	}
	seed, err := DeriveOwnerSeed(rootSeed, label)
	if err != nil {
		return OwnerKey{}, "", err
	}
	path := ks.derivedKeyPath(name, label)
	if err := ks.saveSeed(path, seed, overwrite); err != nil {
		return OwnerKey{}, "", err
	}
	key, err := OwnerKeyFromSeed(seed)
	return key, path, err
}

// Load returns name's root key, or its derived key when label is set.
func (ks *KeyStore) Load(name, label string) (OwnerKey, error) {
	if err := CheckName(name); err != nil {
		return OwnerKey{}, err
	}
	path := ks.rootKeyPath(name)
	if label != "" {
		if err := CheckLabel(label); err != nil {
			return OwnerKey{}, err
		}
		path = ks.derivedKeyPath(name, label)
	}
	seed, err := ks.loadSeed(path)
	if err != nil {
		return OwnerKey{}, err
	}
	return OwnerKeyFromSeed(seed)
}

// Resolve picks a signer from, in order, a raw seed, a key file, or a stored
// name (with optional label).
func (ks *KeyStore) Resolve(seedHex, keyFile, name, label string) (OwnerKey, error) {
	switch {
	case seedHex != "":
		seed, err := ParseSeedHex(seedHex)
		if err != nil {
			return OwnerKey{}, err
		}
		return OwnerKeyFromSeed(seed)
	case keyFile != "":
		seed, err := ks.loadSeed(keyFile)
		if err != nil {
			return OwnerKey{}, err
		}
		return OwnerKeyFromSeed(seed)
	case name != "":
		return ks.Load(name, label)
	}
	return OwnerKey{}, errors.New("no signer provided")
}

func (ks *KeyStore) List() ([]KeyEntry, error) {
	entries, err := os.ReadDir(ks.Directory)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	var result []KeyEntry
	for _, name := range names {
		derived, derr := os.ReadDir(filepath.Join(ks.Directory, name, "derived"))
		var labels []string
		if derr == nil {
			for _, entry := range derived {
				if entry.IsDir() {
					continue
				}
				if strings.HasSuffix(entry.Name(), ".key") {
					labels = append(labels, strings.TrimSuffix(entry.Name(), ".key"))
				}
			}
			sort.Strings(labels)
		}
		result = append(result, KeyEntry{Name: name, Labels: labels})
	}
	return result, nil
}
